package logging

import (
	"database/sql"
	"fmt"
	"time"
)

// #region log-decision
// LogDecision writes an audit entry to the learning_log table.
func LogDecision(db *sql.DB, entry AuditEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	_, err := db.Exec(
		`INSERT INTO learning_log (attack_id, version_id, decision, reason, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		nullIfEmpty(entry.AttackID),
		nullIfEmpty(entry.VersionID),
		entry.Decision,
		nullIfEmpty(entry.Reason),
		entry.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("log decision: %w", err)
	}
	return nil
}

// #endregion log-decision

// #region helpers
func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// #endregion helpers
