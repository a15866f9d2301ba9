package ruleset

import (
	"math"
	"reflect"
	"testing"
)

func TestMergeAccumulatesFrequency(t *testing.T) {
	a := FromCounts(map[string]int{"flag": 2})
	b := FromCounts(map[string]int{"flag": 3})

	out := Merge(a, b)

	got, ok := out["flag"]
	if !ok {
		t.Fatal("merged table missing token")
	}
	if got.Frequency != 5 {
		t.Fatalf("expected frequency 5, got %d", got.Frequency)
	}
	// 0.1 + 0.05*(5-1), compared with a tolerance for float accumulation
	if math.Abs(got.Weight-0.3) > 1e-9 {
		t.Fatalf("expected weight 0.3, got %v", got.Weight)
	}
}

func TestMergeCommutative(t *testing.T) {
	a := FromCounts(map[string]int{"flag": 2, "secret": 1})
	b := FromCounts(map[string]int{"flag": 1, "hidden": 4})

	ab := Merge(a, b)
	ba := Merge(b, a)

	if !reflect.DeepEqual(ab, ba) {
		t.Fatalf("merge order changed result:\n  ab=%v\n  ba=%v", ab, ba)
	}
}

func TestMergeDoesNotModifyInputs(t *testing.T) {
	a := FromCounts(map[string]int{"flag": 1})
	b := FromCounts(map[string]int{"flag": 1})

	Merge(a, b)

	if a["flag"].Frequency != 1 || b["flag"].Frequency != 1 {
		t.Fatalf("inputs mutated: a=%v b=%v", a["flag"], b["flag"])
	}
}

func TestWeightSaturates(t *testing.T) {
	low := FromCounts(map[string]int{"x": 1})
	if low["x"].Weight != 0.1 {
		t.Fatalf("expected base weight 0.1, got %.3f", low["x"].Weight)
	}

	high := FromCounts(map[string]int{"x": 50})
	if high["x"].Weight != 0.5 {
		t.Fatalf("expected saturated weight 0.5, got %.3f", high["x"].Weight)
	}
}

func TestWithKeywordsBuildsChildVersion(t *testing.T) {
	parent := New("SECRET", DefaultPatterns())
	table := FromCounts(map[string]int{"flag": 2})

	child := parent.WithKeywords(table)

	if child.VersionID == parent.VersionID {
		t.Fatal("child must get a fresh version id")
	}
	if child.ParentID != parent.VersionID {
		t.Fatalf("expected parent %s, got %s", parent.VersionID, child.ParentID)
	}
	if child.Secret != parent.Secret {
		t.Fatal("secret must carry over")
	}
	if len(parent.Keywords) != 0 {
		t.Fatal("parent table must stay empty")
	}

	// The child clones the table, so later caller mutation cannot reach it
	table["injected"] = KeywordStat{Weight: 0.5, Frequency: 1}
	if _, ok := child.Keywords["injected"]; ok {
		t.Fatal("child table aliases the caller's map")
	}
}

func TestHandleSwap(t *testing.T) {
	v1 := New("SECRET", nil)
	h := NewHandle(v1)

	if h.Active().VersionID != v1.VersionID {
		t.Fatalf("expected %s active, got %s", v1.VersionID, h.Active().VersionID)
	}

	v2 := v1.WithKeywords(FromCounts(map[string]int{"flag": 1}))
	h.Publish(v2)

	if h.Active().VersionID != v2.VersionID {
		t.Fatalf("expected %s active after publish, got %s", v2.VersionID, h.Active().VersionID)
	}
}
