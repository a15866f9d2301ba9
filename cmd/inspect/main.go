package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/leakwatch/leakwatch/internal/store"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to leakwatch.db")
	last := flag.Int("last", 20, "show N most recent rows")
	mode := flag.String("mode", "attacks", "what to show: attacks | metrics | versions | log")
	jsonOut := flag.Bool("json", false, "output as JSON instead of table")
	flag.Parse()

	if *dbPath == "" {
		fmt.Fprintln(os.Stderr, "usage: inspect --db path/to/leakwatch.db [--mode attacks|metrics|versions|log] [--last N] [--json]")
		os.Exit(2)
	}

	st, err := store.NewStore(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open db: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	switch *mode {
	case "attacks":
		err = runAttacks(st, *last, *jsonOut)
	case "metrics":
		err = runMetrics(st, *last, *jsonOut)
	case "versions":
		err = runVersions(st.DB(), *last, *jsonOut)
	case "log":
		err = runLog(st.DB(), *last, *jsonOut)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region attacks

type attackRow struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count"`
	CreatedAt  string `json:"created_at"`
	Text       string `json:"text"`
}

func runAttacks(st *store.Store, last int, jsonOut bool) error {
	rows, err := st.DB().Query(
		`SELECT id, status, retry_count, created_at, text FROM missed_attacks
		 ORDER BY created_at DESC LIMIT ?`, last,
	)
	if err != nil {
		return fmt.Errorf("query attacks: %w", err)
	}
	defer rows.Close()

	var out []attackRow
	for rows.Next() {
		var r attackRow
		if err := rows.Scan(&r.ID, &r.Status, &r.RetryCount, &r.CreatedAt, &r.Text); err != nil {
			return fmt.Errorf("scan attack: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(out) == 0 {
		fmt.Fprintln(os.Stderr, "no attacks found")
		return nil
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("%-10s  %-10s  %5s  %-24s  %s\n", "ID", "Status", "Retry", "Created", "Text")
	for _, r := range out {
		fmt.Printf("%-10s  %-10s  %5d  %-24s  %s\n",
			shortID(r.ID), r.Status, r.RetryCount, r.CreatedAt, truncate(r.Text, 60))
	}

	total, processed, err := st.CountAttacks()
	if err != nil {
		return err
	}
	fmt.Printf("\n%d attacks total, %d processed\n", total, processed)
	return nil
}

// #endregion attacks

// #region metrics

func runMetrics(st *store.Store, last int, jsonOut bool) error {
	snaps, err := st.ListMetrics(last)
	if err != nil {
		return err
	}
	if len(snaps) == 0 {
		fmt.Fprintln(os.Stderr, "no metrics recorded")
		return nil
	}

	if jsonOut {
		return printJSON(snaps)
	}

	fmt.Printf("%-24s  %7s  %9s  %10s  %8s  %6s  %6s\n",
		"Time", "Attacks", "Processed", "Variations", "Keywords", "Before", "After")
	for _, m := range snaps {
		fmt.Printf("%-24s  %7d  %9d  %10d  %8d  %6.2f  %6.2f\n",
			m.Timestamp.Format("2006-01-02T15:04:05Z"),
			m.AttacksTotal, m.AttacksProcessed,
			m.VariationsGenerated, m.KeywordsLearned,
			m.DetectionRateBefore, m.DetectionRateAfter)
	}
	return nil
}

// #endregion metrics

// #region versions

type versionRow struct {
	VersionID string `json:"version_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Keywords  int    `json:"keywords"`
	Active    bool   `json:"active"`
	CreatedAt string `json:"created_at"`
}

func runVersions(db *sql.DB, last int, jsonOut bool) error {
	var activeID string
	if err := db.QueryRow(`SELECT version_id FROM active_rule_set WHERE id = 1`).Scan(&activeID); err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query active: %w", err)
	}

	rows, err := db.Query(
		`SELECT version_id, parent_id, keyword_table, created_at FROM rule_set_versions
		 ORDER BY created_at DESC LIMIT ?`, last,
	)
	if err != nil {
		return fmt.Errorf("query versions: %w", err)
	}
	defer rows.Close()

	var out []versionRow
	for rows.Next() {
		var r versionRow
		var parent sql.NullString
		var tableJSON string
		if err := rows.Scan(&r.VersionID, &parent, &tableJSON, &r.CreatedAt); err != nil {
			return fmt.Errorf("scan version: %w", err)
		}
		if parent.Valid {
			r.ParentID = parent.String
		}
		var table map[string]json.RawMessage
		if err := json.Unmarshal([]byte(tableJSON), &table); err == nil {
			r.Keywords = len(table)
		}
		r.Active = r.VersionID == activeID
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(out) == 0 {
		fmt.Fprintln(os.Stderr, "no versions found")
		return nil
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("%-10s  %-10s  %8s  %-6s  %s\n", "Version", "Parent", "Keywords", "Active", "Created")
	for _, r := range out {
		active := ""
		if r.Active {
			active = "*"
		}
		fmt.Printf("%-10s  %-10s  %8d  %-6s  %s\n",
			shortID(r.VersionID), shortID(r.ParentID), r.Keywords, active, r.CreatedAt)
	}
	return nil
}

// #endregion versions

// #region log

type logRow struct {
	AttackID  string `json:"attack_id,omitempty"`
	VersionID string `json:"version_id,omitempty"`
	Decision  string `json:"decision"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at"`
}

func runLog(db *sql.DB, last int, jsonOut bool) error {
	rows, err := db.Query(
		`SELECT attack_id, version_id, decision, reason, created_at FROM learning_log
		 ORDER BY created_at DESC LIMIT ?`, last,
	)
	if err != nil {
		return fmt.Errorf("query log: %w", err)
	}
	defer rows.Close()

	var out []logRow
	for rows.Next() {
		var r logRow
		var attackID, versionID, reason sql.NullString
		if err := rows.Scan(&attackID, &versionID, &r.Decision, &reason, &r.CreatedAt); err != nil {
			return fmt.Errorf("scan log: %w", err)
		}
		r.AttackID = attackID.String
		r.VersionID = versionID.String
		r.Reason = reason.String
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(out) == 0 {
		fmt.Fprintln(os.Stderr, "no log entries found")
		return nil
	}

	if jsonOut {
		return printJSON(out)
	}

	fmt.Printf("%-10s  %-10s  %-18s  %-24s  %s\n", "Attack", "Version", "Decision", "Created", "Reason")
	for _, r := range out {
		fmt.Printf("%-10s  %-10s  %-18s  %-24s  %s\n",
			shortID(r.AttackID), shortID(r.VersionID), r.Decision, r.CreatedAt, truncate(r.Reason, 60))
	}
	return nil
}

// #endregion log

// #region output

func printJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal json: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// #endregion output
