package gate

// #region veto-type
// VetoType enumerates hard veto categories.
type VetoType string

const (
	// VetoRegression fires when a corpus text detected by the active
	// version would no longer be detected. Learning must never un-detect.
	VetoRegression VetoType = "regression"

	// VetoTableShrink fires when the proposed keyword table is smaller
	// than the active one. Merges are unions; a shrink means a bug.
	VetoTableShrink VetoType = "table_shrink"

	// VetoSecretDrift fires when the proposed version carries a different
	// secret. The secret is immutable for the lifetime of a rule set line.
	VetoSecretDrift VetoType = "secret_drift"
)

// #endregion veto-type

// #region veto-signal
// VetoSignal represents a detected hard veto condition.
type VetoSignal struct {
	Type   VetoType
	Reason string
}

// #endregion veto-signal

// #region decision
// Decision is the gate's verdict on a proposed rule set publish.
type Decision struct {
	Action      string // "publish" | "reject"
	Reason      string
	Vetoed      bool
	VetoSignals []VetoSignal
}

// #endregion decision
