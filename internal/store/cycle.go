package store

// #region imports
import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/leakwatch/leakwatch/internal/ruleset"
)

// #endregion imports

// #region types

// Variation is one generator-produced paraphrase of a missed attack.
type Variation struct {
	ID         string
	AttackID   string
	Text       string
	Technique  string
	Confidence float64
}

// KeywordRow is one extracted keyword attributed to its source variation.
type KeywordRow struct {
	Token             string
	Frequency         int
	SourceVariationID string
}

// #endregion types

// #region commit-cycle

// CommitCycle persists one successful processing cycle atomically: the
// variation batch, the keyword batch, the new rule set version with the
// active-pointer update, and the attack's transition to processed. Either
// everything commits or the attack stays untouched for retry.
func (s *Store) CommitCycle(attackID string, vars []Variation, kws []KeywordRow, rs *ruleset.RuleSet) error {
	tableJSON, err := json.Marshal(rs.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keyword table: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return wrapErr("begin cycle", err)
	}
	defer tx.Rollback()

	for _, v := range vars {
		if _, err := tx.Exec(
			`INSERT INTO learned_patterns (id, attack_id, text, technique, confidence)
			 VALUES (?, ?, ?, ?, ?)`,
			v.ID, v.AttackID, v.Text, v.Technique, v.Confidence,
		); err != nil {
			return wrapErr("insert variation", err)
		}
	}

	for _, k := range kws {
		if _, err := tx.Exec(
			`INSERT INTO learned_keywords (token, frequency, source_variation_id)
			 VALUES (?, ?, ?)`,
			k.Token, k.Frequency, k.SourceVariationID,
		); err != nil {
			return wrapErr("insert keyword", err)
		}
	}

	var parentPtr interface{}
	if rs.ParentID != "" {
		parentPtr = rs.ParentID
	}
	if _, err := tx.Exec(
		`INSERT INTO rule_set_versions (version_id, parent_id, secret, keyword_table, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rs.VersionID, parentPtr, rs.Secret, string(tableJSON), rs.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return wrapErr("insert rule set version", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO active_rule_set (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rs.VersionID,
	); err != nil {
		return wrapErr("set active rule set", err)
	}

	if _, err := tx.Exec(
		`UPDATE missed_attacks SET status = ? WHERE id = ?`, StatusProcessed, attackID,
	); err != nil {
		return wrapErr("mark processed", err)
	}

	return wrapErr("commit cycle", tx.Commit())
}

// #endregion commit-cycle

// #region rule-set-versions

// RuleSetRecord is the persisted form of one published rule set version.
type RuleSetRecord struct {
	VersionID string
	ParentID  string
	Secret    string
	Keywords  ruleset.KeywordTable
	CreatedAt time.Time
}

// SaveInitialRuleSet records the bootstrap version and points the active
// row at it.
func (s *Store) SaveInitialRuleSet(rs *ruleset.RuleSet) error {
	tableJSON, err := json.Marshal(rs.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keyword table: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return wrapErr("begin initial rule set", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		`INSERT INTO rule_set_versions (version_id, parent_id, secret, keyword_table, created_at)
		 VALUES (?, NULL, ?, ?, ?)`,
		rs.VersionID, rs.Secret, string(tableJSON), rs.CreatedAt.Format(time.RFC3339Nano),
	); err != nil {
		return wrapErr("insert initial version", err)
	}
	if _, err := tx.Exec(
		`INSERT INTO active_rule_set (id, version_id) VALUES (1, ?)
		 ON CONFLICT(id) DO UPDATE SET version_id = excluded.version_id`,
		rs.VersionID,
	); err != nil {
		return wrapErr("set active rule set", err)
	}
	return wrapErr("commit initial rule set", tx.Commit())
}

// LoadActiveRuleSet reads the active version, if any, so a restarted engine
// resumes with its learned vocabulary intact.
func (s *Store) LoadActiveRuleSet() (RuleSetRecord, error) {
	var rec RuleSetRecord
	var parentID *string
	var tableJSON, createdStr string

	err := s.db.QueryRow(
		`SELECT v.version_id, v.parent_id, v.secret, v.keyword_table, v.created_at
		 FROM rule_set_versions v JOIN active_rule_set a ON a.version_id = v.version_id
		 WHERE a.id = 1`,
	).Scan(&rec.VersionID, &parentID, &rec.Secret, &tableJSON, &createdStr)
	if err != nil {
		return RuleSetRecord{}, wrapErr("load active rule set", err)
	}
	if parentID != nil {
		rec.ParentID = *parentID
	}
	if err := json.Unmarshal([]byte(tableJSON), &rec.Keywords); err != nil {
		return RuleSetRecord{}, fmt.Errorf("unmarshal keyword table: %w", err)
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return rec, nil
}

// #endregion rule-set-versions

// #region counts

// CountPatterns returns the learned_patterns row count.
func (s *Store) CountPatterns() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM learned_patterns`).Scan(&n)
	return n, wrapErr("count patterns", err)
}

// CountKeywords returns the learned_keywords row count.
func (s *Store) CountKeywords() (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM learned_keywords`).Scan(&n)
	return n, wrapErr("count keywords", err)
}

// #endregion counts
