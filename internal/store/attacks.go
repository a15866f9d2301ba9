package store

// #region imports
import (
	"database/sql"
	"fmt"
	"time"
)

// #endregion imports

// #region types

// Attack statuses. pending and processing are transient; processed and
// failed are terminal.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusProcessed  = "processed"
	StatusFailed     = "failed"
)

// MissedAttack is one reported miss: an input that exposed the secret
// without being flagged. Rows are never deleted.
type MissedAttack struct {
	ID               string
	Text             string
	Status           string
	DetectedAtIntake bool
	RetryCount       int
	CreatedAt        time.Time
}

// #endregion types

// #region insert-miss

// InsertMiss persists a newly reported miss.
func (s *Store) InsertMiss(a MissedAttack) error {
	detected := 0
	if a.DetectedAtIntake {
		detected = 1
	}
	_, err := s.db.Exec(
		`INSERT INTO missed_attacks (id, text, status, detected_at_intake, retry_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		a.ID, a.Text, a.Status, detected, a.RetryCount, a.CreatedAt.Format(time.RFC3339Nano),
	)
	return wrapErr("insert miss", err)
}

// #endregion insert-miss

// #region get-miss

// GetMiss retrieves one attack by ID.
func (s *Store) GetMiss(id string) (MissedAttack, error) {
	var a MissedAttack
	var detected int
	var createdStr string
	err := s.db.QueryRow(
		`SELECT id, text, status, detected_at_intake, retry_count, created_at
		 FROM missed_attacks WHERE id = ?`, id,
	).Scan(&a.ID, &a.Text, &a.Status, &detected, &a.RetryCount, &createdStr)
	if err == sql.ErrNoRows {
		return MissedAttack{}, fmt.Errorf("attack %s not found", id)
	}
	if err != nil {
		return MissedAttack{}, wrapErr("get miss", err)
	}
	a.DetectedAtIntake = detected != 0
	a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	return a, nil
}

// #endregion get-miss

// #region update-status

// UpdateMissStatus moves an attack through its state machine.
func (s *Store) UpdateMissStatus(id, status string) error {
	res, err := s.db.Exec(`UPDATE missed_attacks SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return wrapErr("update status", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("attack %s not found", id)
	}
	return nil
}

// ClaimPending moves a pending attack to processing in one conditional
// update, so concurrent workers cannot both claim the same attack. Errors
// when the attack is missing or not pending.
func (s *Store) ClaimPending(id string) error {
	res, err := s.db.Exec(
		`UPDATE missed_attacks SET status = ? WHERE id = ? AND status = ?`,
		StatusProcessing, id, StatusPending,
	)
	if err != nil {
		return wrapErr("claim attack", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("attack %s is not pending", id)
	}
	return nil
}

// BumpRetry increments an attack's retry counter and returns the new count.
func (s *Store) BumpRetry(id string) (int, error) {
	_, err := s.db.Exec(`UPDATE missed_attacks SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return 0, wrapErr("bump retry", err)
	}
	var count int
	if err := s.db.QueryRow(`SELECT retry_count FROM missed_attacks WHERE id = ?`, id).Scan(&count); err != nil {
		return 0, wrapErr("bump retry", err)
	}
	return count, nil
}

// #endregion update-status

// #region list-pending

// PendingAttacks returns all attacks awaiting processing, oldest first.
func (s *Store) PendingAttacks() ([]MissedAttack, error) {
	rows, err := s.db.Query(
		`SELECT id, text, status, detected_at_intake, retry_count, created_at
		 FROM missed_attacks WHERE status = ? ORDER BY created_at`, StatusPending,
	)
	if err != nil {
		return nil, wrapErr("list pending", err)
	}
	defer rows.Close()

	var out []MissedAttack
	for rows.Next() {
		var a MissedAttack
		var detected int
		var createdStr string
		if err := rows.Scan(&a.ID, &a.Text, &a.Status, &detected, &a.RetryCount, &createdStr); err != nil {
			return nil, wrapErr("scan pending", err)
		}
		a.DetectedAtIntake = detected != 0
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAttacks returns total and processed attack counts.
func (s *Store) CountAttacks() (total, processed int, err error) {
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM missed_attacks`).Scan(&total); err != nil {
		return 0, 0, wrapErr("count attacks", err)
	}
	if err = s.db.QueryRow(`SELECT COUNT(*) FROM missed_attacks WHERE status = ?`, StatusProcessed).Scan(&processed); err != nil {
		return 0, 0, wrapErr("count attacks", err)
	}
	return total, processed, nil
}

// #endregion list-pending
