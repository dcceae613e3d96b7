package risk

import (
	"fmt"
	"sync"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// ContextKeyDrawdown is the shared-context key holding the current account
// drawdown as a percentage from the equity high-water mark.
const ContextKeyDrawdown = "drawdown"

// MaxDrawdownRule is a circuit breaker: once the account drawdown reported
// through the risk context reaches the threshold, every new order is denied
// until the drawdown recovers below it.
//
// Parameters:
//
//	max_drawdown – drawdown threshold in percent, e.g. 10 for 10%
type MaxDrawdownRule struct {
	mu          sync.Mutex
	enabled     bool
	maxDrawdown float64
}

// NewMaxDrawdownRule builds the rule with the given threshold in percent.
func NewMaxDrawdownRule(maxDrawdown float64) *MaxDrawdownRule {
	return &MaxDrawdownRule{enabled: true, maxDrawdown: maxDrawdown}
}

func (r *MaxDrawdownRule) Name() string { return "max_drawdown" }

func (r *MaxDrawdownRule) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *MaxDrawdownRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *MaxDrawdownRule) UpdateParams(params map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := floatParam(params, "max_drawdown"); ok {
		r.maxDrawdown = v
	}
	return nil
}

// Check denies every order while the context drawdown is at or above the
// threshold. A missing drawdown entry means no breach has been observed; a
// zero threshold disables the breaker.
func (r *MaxDrawdownRule) Check(order types.Order, account types.AccountInfo, ctx map[string]any) Decision {
	r.mu.Lock()
	threshold := r.maxDrawdown
	r.mu.Unlock()

	if threshold <= 0 {
		return Allow()
	}

	v, ok := ctx[ContextKeyDrawdown]
	if !ok {
		return Allow()
	}
	drawdown, ok := v.(float64)
	if !ok {
		return Allow()
	}
	if drawdown >= threshold {
		return Deny(r.Name(), fmt.Sprintf("drawdown %.2f%% has reached the maximum of %.2f%%", drawdown, threshold))
	}
	return Allow()
}
