package ruleset

// #region imports
import "sync/atomic"

// #endregion imports

// #region handle

// Handle holds the active RuleSet version pointer: single-writer (the
// learning engine), many-reader (the detector). Readers always observe a
// fully built version; there is no partially merged table to tear.
type Handle struct {
	active atomic.Pointer[RuleSet]
}

// NewHandle creates a handle with the given initial version active.
func NewHandle(rs *RuleSet) *Handle {
	h := &Handle{}
	h.active.Store(rs)
	return h
}

// Active returns the currently active version.
func (h *Handle) Active() *RuleSet {
	return h.active.Load()
}

// Publish atomically swaps the active version. Callers must pass a fully
// built RuleSet; the handle never exposes intermediate state.
func (h *Handle) Publish(rs *RuleSet) {
	h.active.Store(rs)
}

// #endregion handle
