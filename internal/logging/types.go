package logging

import "time"

// #region audit-entry
// AuditEntry is a single row in the learning_log table: one decision made
// by the learning engine, durable alongside the data it describes.
type AuditEntry struct {
	AttackID  string
	VersionID string
	Decision  string // "published" | "gate_reject" | "generation_failed" | "attack_failed"
	Reason    string
	CreatedAt time.Time
}

// #endregion audit-entry

// #region cycle-record
// CycleRecord captures the complete inputs and outputs of one processing
// cycle. Serialized as JSON into learning_log.reason for offline audit.
type CycleRecord struct {
	AttackID            string  `json:"attack_id"`
	AttackText          string  `json:"attack_text"`
	Variations          int     `json:"variations"`
	KeywordsExtracted   int     `json:"keywords_extracted"`
	KeywordsTotal       int     `json:"keywords_total"`
	DetectionRateBefore float64 `json:"detection_rate_before"`
	DetectionRateAfter  float64 `json:"detection_rate_after"`
	GateAction          string  `json:"gate_action"`
	GateReason          string  `json:"gate_reason"`
}

// #endregion cycle-record
