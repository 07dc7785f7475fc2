package policy

import "spacerun/internal/protocol"

// Engine pairs a resolved Policy with the pure Evaluate/EffectiveTimeout
// functions, giving each space one decider instance to pass to the
// executor.
type Engine struct {
	Policy Policy
}

// NewEngine wraps an already-resolved Policy.
func NewEngine(p Policy) *Engine {
	return &Engine{Policy: p}
}

func (e *Engine) Evaluate(op protocol.Operation) Decision {
	return Evaluate(e.Policy, op)
}

func (e *Engine) EffectiveTimeout(requested *int) int {
	return EffectiveTimeout(requested, e.Policy)
}
