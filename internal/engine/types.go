package engine

// #region imports
import (
	"fmt"

	"github.com/leakwatch/leakwatch/internal/detector"
	"github.com/leakwatch/leakwatch/internal/extract"
)

// #endregion imports

// #region errors

// ValidationError rejects malformed miss reports at intake. Nothing is
// persisted when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation: %s", e.Reason)
}

// #endregion errors

// #region config

// Config bounds the learning pipeline.
type Config struct {
	Secret         string
	VariationCount int     // paraphrases requested per miss
	Diversity      float64 // generator diversity parameter, favors lexical spread
	MaxRetries     int     // generator failures tolerated before an attack goes terminal
	MaxMissLength  int     // longest accepted miss text, bytes
	Extract        extract.Config
	Detection      detector.Config
}

// DefaultConfig returns the engine defaults.
func DefaultConfig(secret string) Config {
	return Config{
		Secret:         secret,
		VariationCount: 15,
		Diversity:      0.9,
		MaxRetries:     2,
		MaxMissLength:  4096,
		Extract:        extract.DefaultConfig(),
		Detection:      detector.DefaultConfig(),
	}
}

// #endregion config

// #region summary

// CycleSummary reports one committed processing cycle back to the caller.
type CycleSummary struct {
	AttackID            string  `json:"attack_id"`
	RuleSetVersion      string  `json:"rule_set_version"`
	VariationsAdded     int     `json:"variations_added"`
	KeywordsExtracted   int     `json:"keywords_extracted"`
	KeywordsTotal       int     `json:"keywords_total"`
	DetectionRateBefore float64 `json:"detection_rate_before"`
	DetectionRateAfter  float64 `json:"detection_rate_after"`
}

// #endregion summary
