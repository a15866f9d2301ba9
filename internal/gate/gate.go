package gate

// #region imports
import (
	"fmt"

	"github.com/leakwatch/leakwatch/internal/corpus"
	"github.com/leakwatch/leakwatch/internal/detector"
	"github.com/leakwatch/leakwatch/internal/ruleset"
)

// #endregion imports

// #region gate
// Gate evaluates whether a proposed rule set version may replace the active
// one. It re-runs the fixed evaluation corpus against both versions and
// vetoes any swap that would lose a detection.
type Gate struct {
	probes []corpus.Probe
	cfg    detector.Config
}

// NewGate creates a publish gate over the given evaluation corpus.
func NewGate(probes []corpus.Probe, cfg detector.Config) *Gate {
	return &Gate{probes: probes, cfg: cfg}
}

// Evaluate checks hard vetoes for swapping active out for proposed.
// Detection comparisons use throwaway handles so the live pointer is never
// touched before the decision.
func (g *Gate) Evaluate(active, proposed *ruleset.RuleSet) Decision {
	var vetoes []VetoSignal

	// 1. Secret immutability
	if proposed.Secret != active.Secret {
		vetoes = append(vetoes, VetoSignal{
			Type:   VetoSecretDrift,
			Reason: "proposed version changes the protected secret",
		})
	}

	// 2. Keyword table monotonicity: merges are unions, never shrink
	if len(proposed.Keywords) < len(active.Keywords) {
		vetoes = append(vetoes, VetoSignal{
			Type: VetoTableShrink,
			Reason: fmt.Sprintf("keyword table shrank from %d to %d entries",
				len(active.Keywords), len(proposed.Keywords)),
		})
	}

	// 3. Corpus non-regression: texts detected before must stay detected
	oldDet := detector.New(ruleset.NewHandle(active), g.cfg)
	newDet := detector.New(ruleset.NewHandle(proposed), g.cfg)
	before := corpus.Detected(g.probes, func(t string) bool { return oldDet.Evaluate(t).Leaked })
	after := corpus.Detected(g.probes, func(t string) bool { return newDet.Evaluate(t).Leaked })
	for text := range before {
		if !after[text] {
			vetoes = append(vetoes, VetoSignal{
				Type:   VetoRegression,
				Reason: fmt.Sprintf("previously detected probe would be missed: %q", text),
			})
			break
		}
	}

	if len(vetoes) > 0 {
		return Decision{
			Action:      "reject",
			Reason:      fmt.Sprintf("hard veto: %s", vetoes[0].Reason),
			Vetoed:      true,
			VetoSignals: vetoes,
		}
	}

	return Decision{
		Action: "publish",
		Reason: fmt.Sprintf("passed gate: %d keywords, corpus detections %d -> %d",
			len(proposed.Keywords), len(before), len(after)),
	}
}

// #endregion gate
