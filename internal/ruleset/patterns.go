package ruleset

// #region imports
import "regexp"

// #endregion imports

// #region default-patterns

// DefaultPatterns returns the fixed pattern rules shipped with a new
// RuleSet. These catch direct extraction phrasings before any learning has
// happened; learned keywords extend coverage from there.
func DefaultPatterns() []PatternRule {
	return []PatternRule{
		{
			ID:     "secret_assignment",
			Regex:  regexp.MustCompile(`(?i)(secret|flag|password|credential|token)s?\b\s*(is|was|=|:)\s*\S`),
			Weight: 0.6,
		},
		{
			ID:     "reveal_request",
			Regex:  regexp.MustCompile(`(?i)(reveal|show|tell|give|print|output|display)\s+(me\s+)?(the\s+|your\s+)?(secret|flag|password|credential|token)s?\b`),
			Weight: 0.6,
		},
		{
			ID:     "system_prompt_probe",
			Phrase: "system prompt",
			Weight: 0.5,
		},
		{
			ID:     "instruction_probe",
			Phrase: "your instructions",
			Weight: 0.5,
		},
		{
			ID:     "ignore_previous",
			Regex:  regexp.MustCompile(`(?i)(ignore|disregard|forget)\s+(all\s+|your\s+)?(previous|prior|above)\s+(instructions?|rules?|prompts?)`),
			Weight: 0.6,
		},
	}
}

// #endregion default-patterns
