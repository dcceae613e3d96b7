package risk

import (
	"fmt"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// ContextKeyCurrentTime is the shared-context key holding the engine's
// notion of "now" as a time.Time. Backtests set it to the replayed event
// time so that day boundaries follow simulated time instead of wall time.
const ContextKeyCurrentTime = "current_time"

// MaxTradesPerDayRule limits how many orders a day may pass risk checks.
// The counter resets when the calendar day (UTC) changes and survives both
// parameter updates and disable/enable cycles.
//
// Parameters:
//
//	max_trades_per_day – maximum allowed orders per calendar day
type MaxTradesPerDayRule struct {
	mu       sync.Mutex
	enabled  bool
	maxDaily int

	count int
	day   time.Time
}

// NewMaxTradesPerDayRule builds the rule with the given daily cap.
func NewMaxTradesPerDayRule(maxTradesPerDay int) *MaxTradesPerDayRule {
	return &MaxTradesPerDayRule{enabled: true, maxDaily: maxTradesPerDay}
}

func (r *MaxTradesPerDayRule) Name() string { return "max_trades_per_day" }

func (r *MaxTradesPerDayRule) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *MaxTradesPerDayRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *MaxTradesPerDayRule) UpdateParams(params map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if v, ok := intParam(params, "max_trades_per_day"); ok {
		r.maxDaily = v
	}
	return nil
}

// Check counts orders that pass. The current day is read from the risk
// context when present, otherwise from the order timestamp. A zero cap
// disables the limit.
func (r *MaxTradesPerDayRule) Check(order types.Order, account types.AccountInfo, ctx map[string]any) Decision {
	now := order.Timestamp
	if v, ok := ctx[ContextKeyCurrentTime]; ok {
		if t, ok := v.(time.Time); ok {
			now = t
		}
	}
	day := now.UTC().Truncate(24 * time.Hour)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !day.Equal(r.day) {
		r.day = day
		r.count = 0
	}
	if r.maxDaily <= 0 {
		return Allow()
	}
	if r.count >= r.maxDaily {
		return Deny(r.Name(), fmt.Sprintf("daily trade limit of %d reached", r.maxDaily))
	}
	r.count++
	return Allow()
}
