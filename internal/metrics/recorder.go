// Package metrics records intake gate outcomes.
package metrics

// Recorder defines the interface for recording intake metrics.
type Recorder interface {
	// IncGateDecision counts one Gate decision.
	IncGateDecision(decision string)

	// IncEscalation counts an Ensure call by source and result (created, existing, error).
	IncEscalation(source, result string)

	// IncSideEffectFailure counts a failed best-effort step (label, note, notify, ...).
	IncSideEffectFailure(step string)

	// IncCounterTouch counts counter writes by path (insert, increment, fallback).
	IncCounterTouch(path string)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) IncGateDecision(_ string)      {}
func (n *NoopRecorder) IncEscalation(_, _ string)     {}
func (n *NoopRecorder) IncSideEffectFailure(_ string) {}
func (n *NoopRecorder) IncCounterTouch(_ string)      {}
