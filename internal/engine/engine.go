package engine

// #region imports
import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/leakwatch/leakwatch/internal/corpus"
	"github.com/leakwatch/leakwatch/internal/detector"
	"github.com/leakwatch/leakwatch/internal/extract"
	"github.com/leakwatch/leakwatch/internal/gate"
	"github.com/leakwatch/leakwatch/internal/generator"
	"github.com/leakwatch/leakwatch/internal/logging"
	"github.com/leakwatch/leakwatch/internal/ruleset"
	"github.com/leakwatch/leakwatch/internal/store"
	"github.com/leakwatch/leakwatch/internal/telemetry"
)

// #endregion imports

// #region engine

// Engine drives the adversarial learning loop: misses come in, the
// generator expands them, keywords fold into a new rule set version, and
// the publish gate decides whether the detector swaps to it.
type Engine struct {
	cfg    Config
	store  *store.Store
	gen    generator.Expander
	rules  *ruleset.Handle
	det    *detector.Detector
	gate   *gate.Gate
	probes []corpus.Probe

	// mu serializes the read-merge-commit-publish section so concurrent
	// cycles cannot race on the active version. Evaluate never takes it.
	mu sync.Mutex
}

// New builds an engine over an open store. If the store already holds an
// active rule set version the engine resumes from it; otherwise it
// bootstraps version one from the fixed patterns and persists it.
func New(st *store.Store, gen generator.Expander, probes []corpus.Probe, cfg Config) (*Engine, error) {
	telemetry.InitMetrics()

	rs, err := loadOrBootstrap(st, cfg.Secret)
	if err != nil {
		return nil, err
	}

	handle := ruleset.NewHandle(rs)
	e := &Engine{
		cfg:    cfg,
		store:  st,
		gen:    gen,
		rules:  handle,
		det:    detector.New(handle, cfg.Detection),
		gate:   gate.NewGate(probes, cfg.Detection),
		probes: probes,
	}
	log.Printf("[ENGINE] active rule set %s (%d keywords, %d patterns)",
		rs.VersionID, len(rs.Keywords), len(rs.Patterns))
	return e, nil
}

// loadOrBootstrap restores the persisted active version or creates the
// initial one.
func loadOrBootstrap(st *store.Store, secret string) (*ruleset.RuleSet, error) {
	has, err := st.HasActiveRuleSet()
	if err != nil {
		return nil, fmt.Errorf("check active rule set: %w", err)
	}
	if !has {
		rs := ruleset.New(secret, ruleset.DefaultPatterns())
		if err := st.SaveInitialRuleSet(rs); err != nil {
			return nil, fmt.Errorf("bootstrap rule set: %w", err)
		}
		log.Printf("[ENGINE] bootstrapped rule set %s", rs.VersionID)
		return rs, nil
	}

	rec, err := st.LoadActiveRuleSet()
	if err != nil {
		return nil, fmt.Errorf("restore rule set: %w", err)
	}
	rs := ruleset.New(rec.Secret, ruleset.DefaultPatterns())
	rs.VersionID = rec.VersionID
	rs.ParentID = rec.ParentID
	rs.Keywords = rec.Keywords
	rs.CreatedAt = rec.CreatedAt
	return rs, nil
}

// Rules exposes the live handle for read-side consumers.
func (e *Engine) Rules() *ruleset.Handle { return e.rules }

// #endregion engine

// #region report-miss

// ReportMiss records a leak the detector failed to flag and queues it for
// processing. Empty or oversized text is rejected without persisting
// anything.
func (e *Engine) ReportMiss(text string, detectedAtIntake bool) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", &ValidationError{Reason: "empty attack text"}
	}
	if e.cfg.MaxMissLength > 0 && len(text) > e.cfg.MaxMissLength {
		return "", &ValidationError{
			Reason: fmt.Sprintf("attack text %d bytes exceeds limit %d", len(text), e.cfg.MaxMissLength),
		}
	}

	a := store.MissedAttack{
		ID:               uuid.New().String(),
		Text:             text,
		Status:           store.StatusPending,
		DetectedAtIntake: detectedAtIntake,
		CreatedAt:        time.Now().UTC(),
	}
	if err := e.withRetry("insert miss", func() error { return e.store.InsertMiss(a) }); err != nil {
		return "", err
	}

	telemetry.MissesReported.Inc()
	log.Printf("[ENGINE] miss %s reported (%d bytes)", a.ID, len(text))
	return a.ID, nil
}

// #endregion report-miss

// #region evaluate

// Evaluate scores text against the current active rule set.
func (e *Engine) Evaluate(text string) detector.Verdict {
	v := e.det.Evaluate(text)
	if v.Leaked {
		telemetry.Detections.WithLabelValues(v.Method).Inc()
	}
	return v
}

// #endregion evaluate

// #region process

// Process runs one full learning cycle for a pending attack: generate
// variations, extract keywords, merge into a proposed version, gate it,
// commit, and swap the active pointer. On generator failure the attack
// rolls back to pending until retries run out; nothing partial is ever
// persisted.
func (e *Engine) Process(ctx context.Context, attackID string) (CycleSummary, error) {
	a, err := e.store.GetMiss(attackID)
	if err != nil {
		return CycleSummary{}, err
	}
	// Conditional claim: exactly one caller wins a pending attack
	if err := e.store.ClaimPending(a.ID); err != nil {
		return CycleSummary{}, err
	}

	texts, err := e.gen.Expand(ctx, a.Text, e.cfg.VariationCount, e.cfg.Diversity)
	if err != nil {
		return CycleSummary{}, e.failCycle(a, err)
	}

	vars := make([]store.Variation, 0, len(texts))
	kwRows := make([]store.KeywordRow, 0, len(texts)*e.cfg.Extract.TopK)
	counts := make(map[string]int)
	for _, t := range texts {
		v := store.Variation{
			ID:         uuid.New().String(),
			AttackID:   a.ID,
			Text:       t,
			Technique:  classifyTechnique(a.Text, t),
			Confidence: variationConfidence(a.Text, t),
		}
		vars = append(vars, v)
		for _, kw := range extract.Keywords(t, v.ID, e.cfg.Extract) {
			kwRows = append(kwRows, store.KeywordRow{
				Token:             kw.Token,
				Frequency:         kw.Frequency,
				SourceVariationID: kw.SourceVariationID,
			})
			counts[kw.Token] += kw.Frequency
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	active := e.rules.Active()
	merged := ruleset.Merge(active.Keywords, ruleset.FromCounts(counts))
	proposed := active.WithKeywords(merged)

	rateBefore := corpus.DetectionRate(e.probes, func(t string) bool { return e.det.Evaluate(t).Leaked })

	decision := e.gate.Evaluate(active, proposed)
	if decision.Vetoed {
		e.rollbackToPending(a.ID)
		e.audit(logging.AuditEntry{
			AttackID:  a.ID,
			VersionID: proposed.VersionID,
			Decision:  "gate_reject",
			Reason:    decision.Reason,
		})
		telemetry.CyclesCompleted.WithLabelValues("gate_reject").Inc()
		return CycleSummary{}, fmt.Errorf("process %s: %s", a.ID, decision.Reason)
	}

	if err := e.withRetry("commit cycle", func() error {
		return e.store.CommitCycle(a.ID, vars, kwRows, proposed)
	}); err != nil {
		e.rollbackToPending(a.ID)
		telemetry.CyclesCompleted.WithLabelValues("commit_failed").Inc()
		return CycleSummary{}, fmt.Errorf("process %s: %w", a.ID, err)
	}

	// Readers see the new version only after the durable commit.
	e.rules.Publish(proposed)

	rateAfter := corpus.DetectionRate(e.probes, func(t string) bool { return e.det.Evaluate(t).Leaked })

	telemetry.CyclesCompleted.WithLabelValues("published").Inc()
	telemetry.VariationsGenerated.Add(float64(len(vars)))
	telemetry.KeywordsLearned.Add(float64(len(kwRows)))

	e.snapshotMetrics(len(vars), len(kwRows), rateBefore, rateAfter)

	record, _ := json.Marshal(logging.CycleRecord{
		AttackID:            a.ID,
		AttackText:          a.Text,
		Variations:          len(vars),
		KeywordsExtracted:   len(kwRows),
		KeywordsTotal:       len(proposed.Keywords),
		DetectionRateBefore: rateBefore,
		DetectionRateAfter:  rateAfter,
		GateAction:          decision.Action,
		GateReason:          decision.Reason,
	})
	e.audit(logging.AuditEntry{
		AttackID:  a.ID,
		VersionID: proposed.VersionID,
		Decision:  "published",
		Reason:    string(record),
	})

	log.Printf("[ENGINE] cycle %s published version %s: %d variations, %d keywords (table %d), detection %.2f -> %.2f",
		a.ID, proposed.VersionID, len(vars), len(kwRows), len(proposed.Keywords), rateBefore, rateAfter)

	return CycleSummary{
		AttackID:            a.ID,
		RuleSetVersion:      proposed.VersionID,
		VariationsAdded:     len(vars),
		KeywordsExtracted:   len(kwRows),
		KeywordsTotal:       len(proposed.Keywords),
		DetectionRateBefore: rateBefore,
		DetectionRateAfter:  rateAfter,
	}, nil
}

// failCycle handles a generator failure: the attack returns to pending
// while retries remain, then goes terminal.
func (e *Engine) failCycle(a store.MissedAttack, cause error) error {
	count, err := e.store.BumpRetry(a.ID)
	if err != nil {
		log.Printf("[ENGINE] warn: bump retry %s: %v", a.ID, err)
		count = a.RetryCount + 1
	}

	status := store.StatusPending
	decision := "generation_failed"
	if count > e.cfg.MaxRetries {
		status = store.StatusFailed
		decision = "attack_failed"
	}
	if err := e.store.UpdateMissStatus(a.ID, status); err != nil {
		log.Printf("[ENGINE] warn: roll back %s to %s: %v", a.ID, status, err)
	}

	e.audit(logging.AuditEntry{AttackID: a.ID, Decision: decision, Reason: cause.Error()})
	telemetry.CyclesCompleted.WithLabelValues(decision).Inc()
	log.Printf("[ENGINE] cycle %s %s (retry %d/%d): %v", a.ID, decision, count, e.cfg.MaxRetries, cause)
	return fmt.Errorf("process %s: %w", a.ID, cause)
}

// rollbackToPending is best-effort; the attack stays claimable either way
// once its processing transaction is gone.
func (e *Engine) rollbackToPending(attackID string) {
	if err := e.store.UpdateMissStatus(attackID, store.StatusPending); err != nil {
		log.Printf("[ENGINE] warn: roll back %s to pending: %v", attackID, err)
	}
}

// #endregion process

// #region process-pending

// ProcessPending drains the pending queue in arrival order. Per-attack
// failures are logged and skipped so one poisoned attack cannot stall the
// queue; the context cancels the drain between attacks.
func (e *Engine) ProcessPending(ctx context.Context) ([]CycleSummary, error) {
	pending, err := e.store.PendingAttacks()
	if err != nil {
		return nil, err
	}

	var out []CycleSummary
	for _, a := range pending {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		summary, err := e.Process(ctx, a.ID)
		if err != nil {
			log.Printf("[ENGINE] skip %s: %v", a.ID, err)
			continue
		}
		out = append(out, summary)
	}
	return out, nil
}

// #endregion process-pending

// #region metrics-export

// Metrics returns the latest learning snapshot.
func (e *Engine) Metrics() (store.MetricsSnapshot, error) {
	return e.store.LatestMetrics()
}

// ExportLearnedPatterns returns every learned variation in insertion order.
func (e *Engine) ExportLearnedPatterns() ([]store.PatternRecord, error) {
	return e.store.ExportPatterns()
}

// snapshotMetrics appends one cycle's snapshot. Failures are logged, not
// fatal: the cycle itself already committed.
func (e *Engine) snapshotMetrics(variations, keywords int, rateBefore, rateAfter float64) {
	total, processed, err := e.store.CountAttacks()
	if err != nil {
		log.Printf("[ENGINE] warn: count attacks: %v", err)
	}
	m := store.MetricsSnapshot{
		Timestamp:           time.Now().UTC(),
		AttacksTotal:        total,
		AttacksProcessed:    processed,
		VariationsGenerated: variations,
		KeywordsLearned:     keywords,
		DetectionRateBefore: rateBefore,
		DetectionRateAfter:  rateAfter,
	}
	if err := e.store.InsertMetricsSnapshot(m); err != nil {
		log.Printf("[ENGINE] warn: insert metrics: %v", err)
	}
}

// audit appends a learning_log row, logging failures instead of failing
// the cycle.
func (e *Engine) audit(entry logging.AuditEntry) {
	if err := logging.LogDecision(e.store.DB(), entry); err != nil {
		log.Printf("[ENGINE] warn: audit log: %v", err)
	}
}

// #endregion metrics-export

// #region helpers

// withRetry retries transient store failures with linear backoff. Anything
// non-retryable fails immediately.
func (e *Engine) withRetry(op string, fn func() error) error {
	const attempts = 3
	var err error
	for i := 1; i <= attempts; i++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !store.IsRetryable(err) {
			return err
		}
		log.Printf("[ENGINE] retry %d/%d %s: %v", i, attempts, op, err)
		time.Sleep(time.Duration(i) * 50 * time.Millisecond)
	}
	return fmt.Errorf("%s after %d attempts: %w", op, attempts, err)
}

// classifyTechnique labels a variation by how far it drifts from the
// source text.
func classifyTechnique(source, variation string) string {
	if strings.EqualFold(strings.TrimSpace(source), strings.TrimSpace(variation)) {
		return "case_change"
	}
	if tokenOverlap(source, variation) >= 0.5 {
		return "lexical_swap"
	}
	return "rephrase"
}

// variationConfidence scores a variation by token overlap with its source:
// close paraphrases are more trustworthy signal than loose ones.
func variationConfidence(source, variation string) float64 {
	return 0.5 + 0.4*tokenOverlap(source, variation)
}

// tokenOverlap returns the fraction of source tokens present in variation.
func tokenOverlap(source, variation string) float64 {
	src := extract.Tokenize(source)
	if len(src) == 0 {
		return 0
	}
	present := make(map[string]bool)
	for _, tok := range extract.Tokenize(variation) {
		present[tok] = true
	}
	var hits int
	for _, tok := range src {
		if present[tok] {
			hits++
		}
	}
	return float64(hits) / float64(len(src))
}

// #endregion helpers
