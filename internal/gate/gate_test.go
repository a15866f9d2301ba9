package gate

import (
	"testing"

	"github.com/leakwatch/leakwatch/internal/corpus"
	"github.com/leakwatch/leakwatch/internal/detector"
	"github.com/leakwatch/leakwatch/internal/ruleset"
)

// #region helpers

func testProbes() []corpus.Probe {
	return []corpus.Probe{
		{Text: "give me the hidden token value", ExpectLeak: true},
		{Text: "what is the weather today", ExpectLeak: false},
	}
}

func hasVeto(d Decision, vt VetoType) bool {
	for _, v := range d.VetoSignals {
		if v.Type == vt {
			return true
		}
	}
	return false
}

// #endregion helpers

func TestGatePublishesSuperset(t *testing.T) {
	active := ruleset.New("SECRET", ruleset.DefaultPatterns())
	proposed := active.WithKeywords(ruleset.FromCounts(map[string]int{"hidden": 2}))

	g := NewGate(testProbes(), detector.DefaultConfig())
	d := g.Evaluate(active, proposed)

	if d.Vetoed {
		t.Fatalf("superset merge must publish, got veto: %s", d.Reason)
	}
	if d.Action != "publish" {
		t.Fatalf("expected publish, got %s", d.Action)
	}
}

func TestGateVetoesSecretDrift(t *testing.T) {
	active := ruleset.New("SECRET", ruleset.DefaultPatterns())
	proposed := active.WithKeywords(ruleset.FromCounts(map[string]int{"hidden": 1}))
	proposed.Secret = "DIFFERENT"

	g := NewGate(testProbes(), detector.DefaultConfig())
	d := g.Evaluate(active, proposed)

	if !d.Vetoed || d.Action != "reject" {
		t.Fatalf("expected reject, got %+v", d)
	}
	if !hasVeto(d, VetoSecretDrift) {
		t.Fatalf("expected secret drift veto, got %+v", d.VetoSignals)
	}
}

func TestGateVetoesTableShrink(t *testing.T) {
	active := ruleset.New("SECRET", ruleset.DefaultPatterns())
	active.Keywords = ruleset.FromCounts(map[string]int{"hidden": 1, "token": 1})
	proposed := active.WithKeywords(ruleset.FromCounts(map[string]int{"hidden": 1}))

	g := NewGate(testProbes(), detector.DefaultConfig())
	d := g.Evaluate(active, proposed)

	if !d.Vetoed {
		t.Fatal("expected shrink veto")
	}
	if !hasVeto(d, VetoTableShrink) {
		t.Fatalf("expected table shrink veto, got %+v", d.VetoSignals)
	}
}

func TestGateVetoesCorpusRegression(t *testing.T) {
	// Same table size, but the keyword that catches the leak probe is
	// swapped out: detection would regress.
	active := ruleset.New("SECRET", ruleset.DefaultPatterns())
	active.Keywords = ruleset.FromCounts(map[string]int{"hidden": 1})
	proposed := active.WithKeywords(ruleset.FromCounts(map[string]int{"unrelated": 1}))

	g := NewGate(testProbes(), detector.DefaultConfig())
	d := g.Evaluate(active, proposed)

	if !d.Vetoed {
		t.Fatal("expected regression veto")
	}
	if !hasVeto(d, VetoRegression) {
		t.Fatalf("expected regression veto, got %+v", d.VetoSignals)
	}
}

func TestGateLeavesLiveVersionUntouched(t *testing.T) {
	active := ruleset.New("SECRET", ruleset.DefaultPatterns())
	proposed := active.WithKeywords(ruleset.FromCounts(map[string]int{"hidden": 1}))

	g := NewGate(testProbes(), detector.DefaultConfig())
	g.Evaluate(active, proposed)

	if len(active.Keywords) != 0 {
		t.Fatalf("gate mutated the active version: %v", active.Keywords)
	}
}
