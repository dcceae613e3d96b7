package strategy

import (
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// IntervalBuyStrategy buys a fixed quantity every Nth bar. It exists mostly
// as a deterministic smoke-test strategy for backtests.
//
// Params:
//
//	buy_every – buy on every Nth bar (required, >= 1)
//	quantity  – order quantity (required, > 0)
type IntervalBuyStrategy struct {
	buyEvery int
	quantity float64
	seen     int
}

// NewIntervalBuy returns a fresh, uninitialized instance.
func NewIntervalBuy() Strategy {
	return &IntervalBuyStrategy{}
}

func (s *IntervalBuyStrategy) Name() string { return "interval_buy" }

func (s *IntervalBuyStrategy) RequiredParams() []string {
	return []string{"buy_every", "quantity"}
}

func (s *IntervalBuyStrategy) Initialize(ctx *Context) error {
	s.buyEvery = ctx.IntParam("buy_every", 0)
	s.quantity = ctx.FloatParam("quantity", 0)
	if s.buyEvery < 1 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "buy_every must be >= 1, got %d", s.buyEvery)
	}
	if s.quantity <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "quantity must be > 0, got %f", s.quantity)
	}
	s.seen = 0
	return nil
}

func (s *IntervalBuyStrategy) OnMarketData(ctx *Context, data types.MarketData) (Result, error) {
	s.seen++
	if s.seen%s.buyEvery != 0 {
		return Result{}, nil
	}

	ctx.Logf("interval buy: %f %s at bar %d", s.quantity, data.Symbol, s.seen)
	order := ctx.NewMarketOrder(data.Symbol, types.OrderSideBuy, s.quantity, types.Reason{
		Reason:  types.OrderReasonStrategy,
		Message: "scheduled interval buy",
	})
	return Result{Orders: []types.Order{order}}, nil
}
