package extract

// #region imports
import (
	"sort"
	"strings"
	"unicode"
)

// #endregion imports

// #region types

// Keyword is a lexical token (or two-word phrase) mined from one variation.
type Keyword struct {
	Token             string
	SourceVariationID string
	Frequency         int
}

// Config bounds the extraction pipeline.
type Config struct {
	TopK      int // max single tokens kept per variation
	MinLength int // shortest token considered
}

// DefaultConfig returns the extraction defaults.
func DefaultConfig() Config {
	return Config{TopK: 8, MinLength: 2}
}

// #endregion types

// #region extract

// Keywords mines the detection vocabulary from one variation's text:
// tokenize, case-fold, drop stop words, keep the top-K tokens by frequency,
// and add adjacent content-word bigrams for phrase context.
func Keywords(text, variationID string, cfg Config) []Keyword {
	content := contentTokens(text, cfg.MinLength)
	if len(content) == 0 {
		return nil
	}

	counts := make(map[string]int, len(content))
	for _, tok := range content {
		counts[tok]++
	}

	// Deterministic top-K: frequency desc, then lexicographic
	uniq := make([]string, 0, len(counts))
	for tok := range counts {
		uniq = append(uniq, tok)
	}
	sort.Slice(uniq, func(i, j int) bool {
		if counts[uniq[i]] != counts[uniq[j]] {
			return counts[uniq[i]] > counts[uniq[j]]
		}
		return uniq[i] < uniq[j]
	})
	if cfg.TopK > 0 && len(uniq) > cfg.TopK {
		uniq = uniq[:cfg.TopK]
	}

	out := make([]Keyword, 0, len(uniq))
	for _, tok := range uniq {
		out = append(out, Keyword{Token: tok, SourceVariationID: variationID, Frequency: counts[tok]})
	}

	// Adjacent content-word bigrams, counted once each per variation
	seen := make(map[string]bool)
	for i := 0; i+1 < len(content); i++ {
		phrase := content[i] + " " + content[i+1]
		if seen[phrase] {
			continue
		}
		seen[phrase] = true
		out = append(out, Keyword{Token: phrase, SourceVariationID: variationID, Frequency: 1})
	}

	return out
}

// #endregion extract

// #region tokenizer

// Tokenize splits text into lowercase alphanumeric tokens, punctuation
// stripped. Stop words are kept; callers that need content words only use
// contentTokens.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// contentTokens returns the in-order non-stopword tokens of text.
func contentTokens(text string, minLen int) []string {
	var out []string
	for _, tok := range Tokenize(text) {
		if len(tok) < minLen || stopwords[tok] {
			continue
		}
		out = append(out, tok)
	}
	return out
}

// #endregion tokenizer
