package store

// #region imports
import (
	"database/sql"
	"time"
)

// #endregion imports

// #region types

// MetricsSnapshot is one processing cycle's learning metrics, append-only
// for trend auditing.
type MetricsSnapshot struct {
	Timestamp           time.Time `json:"timestamp"`
	AttacksTotal        int       `json:"attacks_total"`
	AttacksProcessed    int       `json:"attacks_processed"`
	VariationsGenerated int       `json:"variations_generated"`
	KeywordsLearned     int       `json:"keywords_learned"`
	DetectionRateBefore float64   `json:"detection_rate_before"`
	DetectionRateAfter  float64   `json:"detection_rate_after"`
}

// PatternRecord is the portable export form of one learned variation.
type PatternRecord struct {
	Text       string  `json:"text"`
	Technique  string  `json:"technique"`
	Confidence float64 `json:"confidence"`
}

// #endregion types

// #region snapshots

// InsertMetricsSnapshot appends one cycle's metrics.
func (s *Store) InsertMetricsSnapshot(m MetricsSnapshot) error {
	_, err := s.db.Exec(
		`INSERT INTO learning_metrics
		 (timestamp, attacks_total, attacks_processed, variations, keywords,
		  detection_rate_before, detection_rate_after)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		m.Timestamp.Format(time.RFC3339Nano),
		m.AttacksTotal, m.AttacksProcessed,
		m.VariationsGenerated, m.KeywordsLearned,
		m.DetectionRateBefore, m.DetectionRateAfter,
	)
	return wrapErr("insert metrics", err)
}

// LatestMetrics returns the most recent snapshot. Returns sql.ErrNoRows
// wrapped when no cycle has completed yet.
func (s *Store) LatestMetrics() (MetricsSnapshot, error) {
	var m MetricsSnapshot
	var tsStr string
	err := s.db.QueryRow(
		`SELECT timestamp, attacks_total, attacks_processed, variations, keywords,
		        detection_rate_before, detection_rate_after
		 FROM learning_metrics ORDER BY id DESC LIMIT 1`,
	).Scan(&tsStr, &m.AttacksTotal, &m.AttacksProcessed,
		&m.VariationsGenerated, &m.KeywordsLearned,
		&m.DetectionRateBefore, &m.DetectionRateAfter)
	if err != nil {
		return MetricsSnapshot{}, wrapErr("latest metrics", err)
	}
	m.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	return m, nil
}

// ListMetrics returns up to limit snapshots, newest first.
func (s *Store) ListMetrics(limit int) ([]MetricsSnapshot, error) {
	rows, err := s.db.Query(
		`SELECT timestamp, attacks_total, attacks_processed, variations, keywords,
		        detection_rate_before, detection_rate_after
		 FROM learning_metrics ORDER BY id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, wrapErr("list metrics", err)
	}
	defer rows.Close()

	var out []MetricsSnapshot
	for rows.Next() {
		var m MetricsSnapshot
		var tsStr string
		if err := rows.Scan(&tsStr, &m.AttacksTotal, &m.AttacksProcessed,
			&m.VariationsGenerated, &m.KeywordsLearned,
			&m.DetectionRateBefore, &m.DetectionRateAfter); err != nil {
			return nil, wrapErr("scan metrics", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		out = append(out, m)
	}
	return out, rows.Err()
}

// #endregion snapshots

// #region export

// ExportPatterns returns all learned variations in insertion order as a
// portable record set for offline audit or re-import.
func (s *Store) ExportPatterns() ([]PatternRecord, error) {
	rows, err := s.db.Query(
		`SELECT text, technique, confidence FROM learned_patterns ORDER BY rowid`,
	)
	if err != nil {
		return nil, wrapErr("export patterns", err)
	}
	defer rows.Close()

	out := []PatternRecord{}
	for rows.Next() {
		var r PatternRecord
		if err := rows.Scan(&r.Text, &r.Technique, &r.Confidence); err != nil {
			return nil, wrapErr("scan pattern", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// #endregion export

// #region active-check

// HasActiveRuleSet reports whether an active version exists.
func (s *Store) HasActiveRuleSet() (bool, error) {
	var id string
	err := s.db.QueryRow(`SELECT version_id FROM active_rule_set WHERE id = 1`).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("check active rule set", err)
	}
	return true, nil
}

// #endregion active-check
