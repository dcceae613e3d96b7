package risk

import (
	"fmt"
	"sync"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// ContextKeyLastPrice prefixes the shared-context key holding the most
// recent close for a symbol, e.g. "last_price:BTCUSDT".
const ContextKeyLastPrice = "last_price:"

// PositionSizeRule caps order and position size. Every limit is optional;
// an unset or zero limit is not enforced.
//
// Parameters:
//
//	max_order_value          – maximum notional of a single order
//	max_position_value       – maximum notional of the resulting position
//	max_position_amount      – maximum quantity of the resulting position
//	max_position_percentage  – resulting position value as a percent of equity
type PositionSizeRule struct {
	mu      sync.Mutex
	enabled bool

	maxOrderValue         optional.Option[float64]
	maxPositionValue      optional.Option[float64]
	maxPositionAmount     optional.Option[float64]
	maxPositionPercentage optional.Option[float64]
}

// NewPositionSizeRule builds the rule from a params map. Missing keys leave
// the corresponding limit unset.
func NewPositionSizeRule(params map[string]any) *PositionSizeRule {
	r := &PositionSizeRule{enabled: true}
	r.applyParams(params)
	return r
}

func (r *PositionSizeRule) Name() string { return "position_size" }

func (r *PositionSizeRule) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.enabled
}

func (r *PositionSizeRule) SetEnabled(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.enabled = enabled
}

func (r *PositionSizeRule) UpdateParams(params map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyParams(params)
	return nil
}

// applyParams stores each present key. A zero, negative or nil value clears
// the limit: zero means "no limit", not "nothing allowed".
func (r *PositionSizeRule) applyParams(params map[string]any) {
	for key, target := range map[string]*optional.Option[float64]{
		"max_order_value":         &r.maxOrderValue,
		"max_position_value":      &r.maxPositionValue,
		"max_position_amount":     &r.maxPositionAmount,
		"max_position_percentage": &r.maxPositionPercentage,
	} {
		if _, present := params[key]; !present {
			continue
		}
		if v, ok := floatParam(params, key); ok && v > 0 {
			*target = optional.Some(v)
		} else {
			*target = optional.None[float64]()
		}
	}
}

// Check evaluates the order against the configured caps. Market orders are
// priced from the last known price in the shared context; when no reference
// price exists the rule cannot size the order and allows it.
func (r *PositionSizeRule) Check(order types.Order, account types.AccountInfo, ctx map[string]any) Decision {
	r.mu.Lock()
	maxOrderValue := r.maxOrderValue
	maxPositionValue := r.maxPositionValue
	maxPositionAmount := r.maxPositionAmount
	maxPositionPercentage := r.maxPositionPercentage
	r.mu.Unlock()

	price, ok := referencePrice(order, ctx)
	if !ok {
		return Allow()
	}
	orderValue := order.Quantity * price

	if maxOrderValue.IsSome() {
		limit, _ := maxOrderValue.Take()
		if orderValue > limit {
			return Deny(r.Name(), fmt.Sprintf("order value %.2f exceeds max order value %.2f", orderValue, limit))
		}
	}

	// Sells reduce exposure; only buys grow the position.
	resultingQty := order.Quantity
	if pos := account.Position(order.Symbol); pos.Quantity > 0 {
		if order.Side == types.OrderSideBuy {
			resultingQty += pos.Quantity
		} else {
			resultingQty = pos.Quantity - order.Quantity
		}
	} else if order.Side == types.OrderSideSell {
		resultingQty = 0
	}
	if resultingQty < 0 {
		resultingQty = 0
	}
	resulting := resultingQty * price

	if maxPositionValue.IsSome() {
		limit, _ := maxPositionValue.Take()
		if resulting > limit {
			return Deny(r.Name(), fmt.Sprintf("resulting position value %.2f exceeds max position value %.2f", resulting, limit))
		}
	}

	if maxPositionAmount.IsSome() {
		limit, _ := maxPositionAmount.Take()
		if resultingQty > limit {
			return Deny(r.Name(), fmt.Sprintf("resulting position quantity %.4f exceeds max position amount %.4f", resultingQty, limit))
		}
	}

	if maxPositionPercentage.IsSome() && account.Equity > 0 {
		limit, _ := maxPositionPercentage.Take()
		if pct := resulting / account.Equity * 100; pct > limit {
			return Deny(r.Name(), fmt.Sprintf("resulting position is %.2f%% of equity, max is %.2f%%", pct, limit))
		}
	}

	return Allow()
}

// referencePrice resolves the price used to value an order: the limit price
// when present, otherwise the last traded price from the risk context.
func referencePrice(order types.Order, ctx map[string]any) (float64, bool) {
	if price, ok := order.LimitPrice(); ok {
		return price, true
	}
	if v, ok := ctx[ContextKeyLastPrice+order.Symbol]; ok {
		if price, ok := v.(float64); ok && price > 0 {
			return price, true
		}
	}
	return 0, false
}
