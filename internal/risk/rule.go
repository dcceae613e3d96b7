package risk

import (
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// Rule is a single pre-trade check. Rules are evaluated by the Manager in
// insertion order; the first denial stops evaluation.
//
// Check must not mutate the order, the account snapshot or the context map.
// Implementations are responsible for their own locking since UpdateParams
// may be called concurrently with Check.
type Rule interface {
	// Name returns the unique identifier of the rule within a Manager.
	Name() string
	// Enabled reports whether the rule participates in evaluation.
	Enabled() bool
	// SetEnabled toggles participation without losing rule state.
	SetEnabled(enabled bool)
	// UpdateParams replaces the rule's tunable parameters. Internal
	// counters (trade counts, high-water marks) survive the update.
	UpdateParams(params map[string]any) error
	// Check evaluates a proposed order against the account snapshot and
	// the shared risk context.
	Check(order types.Order, account types.AccountInfo, ctx map[string]any) Decision
}

// Decision is the outcome of a risk check.
type Decision struct {
	Allowed bool
	// Rule is the name of the denying rule. Empty when allowed.
	Rule string
	// Reason is a human-readable explanation of a denial.
	Reason string
}

// Allow returns a passing decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a failing decision attributed to the named rule.
func Deny(rule, reason string) Decision {
	return Decision{Allowed: false, Rule: rule, Reason: reason}
}

// floatParam reads a float64 parameter that may arrive as float64, int or
// int64 depending on how the params map was built (yaml decodes whole
// numbers as int).
func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func intParam(params map[string]any, key string) (int, bool) {
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false
	}
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}
