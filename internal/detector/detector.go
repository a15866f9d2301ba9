package detector

// #region imports
import (
	"sort"
	"strings"

	"github.com/leakwatch/leakwatch/internal/extract"
	"github.com/leakwatch/leakwatch/internal/ruleset"
)

// #endregion imports

// #region types

// Policy selects how the leak decision relates to the numeric threshold.
// PolicyAnyOverlap (the default) flags on any keyword overlap even when the
// summed confidence sits well below the threshold; PolicyThreshold requires
// confidence >= threshold in all cases.
type Policy string

const (
	PolicyAnyOverlap Policy = "any_overlap"
	PolicyThreshold  Policy = "threshold"
)

// Config holds detector tuning.
type Config struct {
	Threshold float64
	Policy    Policy
}

// DefaultConfig returns the detector defaults.
func DefaultConfig() Config {
	return Config{Threshold: 0.7, Policy: PolicyAnyOverlap}
}

// Verdict is the outcome of evaluating one candidate text.
type Verdict struct {
	Leaked       bool     `json:"leaked"`
	Confidence   float64  `json:"confidence"`
	Method       string   `json:"method"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
	VersionID    string   `json:"version_id"`
}

// #endregion types

// #region detector

// Detector evaluates candidate text against the active RuleSet version.
// Evaluate has no side effects and is safe for concurrent callers; each
// call reads one immutable version from the handle.
type Detector struct {
	rules *ruleset.Handle
	cfg   Config
}

// New creates a detector reading from the given handle.
func New(rules *ruleset.Handle, cfg Config) *Detector {
	return &Detector{rules: rules, cfg: cfg}
}

// Evaluate scores text against the active version. Never returns an error:
// malformed or empty input simply scores zero.
func (d *Detector) Evaluate(text string) Verdict {
	rs := d.rules.Active()
	v := Verdict{Method: "none", VersionID: rs.VersionID}
	if strings.TrimSpace(text) == "" {
		return v
	}

	lower := strings.ToLower(text)

	// 1. Exact match: case-insensitive containment of the secret
	if rs.Secret != "" && strings.Contains(lower, strings.ToLower(rs.Secret)) {
		v.Leaked = true
		v.Confidence = 1.0
		v.Method = "exact_match"
		return v
	}

	// 2. Fixed pattern rules: first match names the method, strongest
	// matching rule sets the floor for confidence
	var patternConf float64
	for _, rule := range rs.Patterns {
		matched := false
		if rule.Regex != nil {
			matched = rule.Regex.MatchString(text)
		} else if rule.Phrase != "" {
			matched = strings.Contains(lower, rule.Phrase)
		}
		if !matched {
			continue
		}
		if v.Method == "none" {
			v.Method = rule.ID
		}
		if rule.Weight > patternConf {
			patternConf = rule.Weight
		}
	}

	// 3. Keyword overlap against the learned table
	keywordConf, terms := d.keywordOverlap(rs, text)
	if len(terms) > 0 && v.Method == "none" {
		v.Method = "keyword_match"
	}
	v.MatchedTerms = terms

	v.Confidence = patternConf
	if keywordConf > v.Confidence {
		v.Confidence = keywordConf
	}

	switch d.cfg.Policy {
	case PolicyThreshold:
		v.Leaked = v.Confidence >= d.cfg.Threshold
	default: // PolicyAnyOverlap
		v.Leaked = v.Confidence >= d.cfg.Threshold || len(terms) > 0
	}
	return v
}

// keywordOverlap intersects the text's tokens with the keyword table and
// sums matched weights, saturating at 1.0. Two-word phrases in the table
// match only as whole tokens: "hidden flag" must not fire on "hidden
// flagstone".
func (d *Detector) keywordOverlap(rs *ruleset.RuleSet, text string) (float64, []string) {
	tokens := extract.Tokenize(text)
	if len(tokens) == 0 {
		return 0, nil
	}
	normalized := " " + strings.Join(tokens, " ") + " "

	present := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		present[tok] = true
	}

	var conf float64
	var terms []string
	for key, stat := range rs.Keywords {
		if strings.ContainsRune(key, ' ') {
			if !strings.Contains(normalized, " "+key+" ") {
				continue
			}
		} else if !present[key] {
			continue
		}
		conf += stat.Weight
		terms = append(terms, key)
	}
	if conf > 1.0 {
		conf = 1.0
	}
	sort.Strings(terms) // map iteration order is random; verdicts must be stable
	return conf, terms
}

// #endregion detector
