package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/leakwatch/leakwatch/internal/store"
	_ "modernc.org/sqlite"
)

// #region main

func main() {
	dbPath := flag.String("db", "", "path to leakwatch.db")
	outPath := flag.String("out", "", "output JSON path")
	flag.Parse()

	if *dbPath == "" || *outPath == "" {
		fmt.Fprintln(os.Stderr, "usage: patterns-export --db path/to/leakwatch.db --out path/to/patterns.json")
		os.Exit(2)
	}

	if err := run(*dbPath, *outPath); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// #endregion main

// #region export

// exportFile is the portable artifact: every learned variation plus enough
// context to audit or re-import the set elsewhere.
type exportFile struct {
	ExportedAt    string                `json:"exported_at"`
	ActiveVersion string                `json:"active_version,omitempty"`
	Count         int                   `json:"count"`
	Patterns      []store.PatternRecord `json:"patterns"`
}

func run(dbPath, outPath string) error {
	st, err := store.NewStore(dbPath)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer st.Close()

	records, err := st.ExportPatterns()
	if err != nil {
		return err
	}

	out := exportFile{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Count:      len(records),
		Patterns:   records,
	}
	if has, err := st.HasActiveRuleSet(); err == nil && has {
		if rec, err := st.LoadActiveRuleSet(); err == nil {
			out.ActiveVersion = rec.VersionID
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal export: %w", err)
	}
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	fmt.Printf("Wrote %d patterns to %s (%d bytes)\n", len(records), outPath, len(data))
	return nil
}

// #endregion export
