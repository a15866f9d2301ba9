package ruleset

// #region imports
import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

// #endregion imports

// #region types

// PatternRule is a fixed detection rule: either a compiled regex or a
// literal phrase, with a fixed confidence weight.
type PatternRule struct {
	ID     string
	Regex  *regexp.Regexp // nil for phrase rules
	Phrase string         // lowercase literal, used when Regex is nil
	Weight float64
}

// KeywordStat holds the learned weight and accumulated frequency for one token.
type KeywordStat struct {
	Weight    float64 `json:"weight"`
	Frequency int     `json:"frequency"`
}

// KeywordTable maps case-folded tokens (and two-word phrases) to their stats.
type KeywordTable map[string]KeywordStat

// RuleSet is an immutable-per-version bundle of secret, fixed pattern rules,
// and the learned keyword table. Never mutate a published RuleSet; build a
// child version with WithKeywords and swap it in.
type RuleSet struct {
	VersionID string
	ParentID  string
	Secret    string
	Patterns  []PatternRule
	Keywords  KeywordTable
	CreatedAt time.Time
}

// #endregion types

// #region constructor

// New creates the initial RuleSet version for a secret with an empty
// keyword table.
func New(secret string, patterns []PatternRule) *RuleSet {
	return &RuleSet{
		VersionID: uuid.New().String(),
		Secret:    secret,
		Patterns:  patterns,
		Keywords:  KeywordTable{},
		CreatedAt: time.Now().UTC(),
	}
}

// WithKeywords builds a child version carrying the given table. The table is
// cloned so the caller cannot alias the published version's map.
func (r *RuleSet) WithKeywords(table KeywordTable) *RuleSet {
	return &RuleSet{
		VersionID: uuid.New().String(),
		ParentID:  r.VersionID,
		Secret:    r.Secret,
		Patterns:  r.Patterns,
		Keywords:  table.Clone(),
		CreatedAt: time.Now().UTC(),
	}
}

// #endregion constructor

// #region merge

// weightFor derives a token's weight from its accumulated frequency.
// Saturates at 0.5 so no single learned token can reach the exact-match
// ceiling on its own.
func weightFor(freq int) float64 {
	if freq < 1 {
		freq = 1
	}
	w := 0.1 + 0.05*float64(freq-1)
	if w > 0.5 {
		w = 0.5
	}
	return w
}

// Clone returns a deep copy of the table.
func (t KeywordTable) Clone() KeywordTable {
	out := make(KeywordTable, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Merge unions two keyword tables, accumulating frequency per token and
// re-deriving weights from the merged frequency. The result does not depend
// on argument order, so concurrent learning cycles converge regardless of
// completion order. Neither input is modified.
func Merge(a, b KeywordTable) KeywordTable {
	out := make(KeywordTable, len(a)+len(b))
	for k, v := range a {
		out[k] = KeywordStat{Weight: weightFor(v.Frequency), Frequency: v.Frequency}
	}
	for k, v := range b {
		freq := v.Frequency
		if prev, ok := out[k]; ok {
			freq += prev.Frequency
		}
		out[k] = KeywordStat{Weight: weightFor(freq), Frequency: freq}
	}
	return out
}

// FromCounts builds a table fragment from raw token frequencies.
func FromCounts(counts map[string]int) KeywordTable {
	out := make(KeywordTable, len(counts))
	for tok, freq := range counts {
		out[tok] = KeywordStat{Weight: weightFor(freq), Frequency: freq}
	}
	return out
}

// #endregion merge
