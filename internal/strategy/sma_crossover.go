package strategy

import (
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// SMACrossoverStrategy trades simple moving average crossovers: it buys when
// the fast average crosses above the slow one and closes the position when
// the fast average crosses back below.
//
// Params:
//
//	fast_period – fast SMA window (required, >= 1)
//	slow_period – slow SMA window (required, > fast_period)
//	quantity    – order quantity (required, > 0)
type SMACrossoverStrategy struct {
	fastPeriod int
	slowPeriod int
	quantity   float64

	closes   []float64
	lastFast float64
	lastSlow float64
	primed   bool
}

// NewSMACrossover returns a fresh, uninitialized instance.
func NewSMACrossover() Strategy {
	return &SMACrossoverStrategy{}
}

func (s *SMACrossoverStrategy) Name() string { return "sma_crossover" }

func (s *SMACrossoverStrategy) RequiredParams() []string {
	return []string{"fast_period", "slow_period", "quantity"}
}

func (s *SMACrossoverStrategy) Initialize(ctx *Context) error {
	s.fastPeriod = ctx.IntParam("fast_period", 0)
	s.slowPeriod = ctx.IntParam("slow_period", 0)
	s.quantity = ctx.FloatParam("quantity", 0)
	if s.fastPeriod < 1 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "fast_period must be >= 1, got %d", s.fastPeriod)
	}
	if s.slowPeriod <= s.fastPeriod {
		return errors.Newf(errors.ErrCodeInvalidParameter, "slow_period must be greater than fast_period, got %d <= %d", s.slowPeriod, s.fastPeriod)
	}
	if s.quantity <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "quantity must be > 0, got %f", s.quantity)
	}
	s.closes = nil
	s.primed = false
	return nil
}

func (s *SMACrossoverStrategy) OnMarketData(ctx *Context, data types.MarketData) (Result, error) {
	s.closes = append(s.closes, data.Close)
	if len(s.closes) > s.slowPeriod {
		s.closes = s.closes[len(s.closes)-s.slowPeriod:]
	}
	if len(s.closes) < s.slowPeriod {
		return Result{}, nil
	}

	fast := mean(s.closes[len(s.closes)-s.fastPeriod:])
	slow := mean(s.closes)

	defer func() {
		s.lastFast, s.lastSlow = fast, slow
		s.primed = true
	}()

	if !s.primed {
		return Result{}, nil
	}

	var result Result
	crossedUp := s.lastFast <= s.lastSlow && fast > slow
	crossedDown := s.lastFast >= s.lastSlow && fast < slow
	position := ctx.Account().Position(data.Symbol)

	switch {
	case crossedUp && position.Quantity == 0:
		ctx.Logf("golden cross on %s: fast %.4f > slow %.4f", data.Symbol, fast, slow)
		result.Orders = append(result.Orders, ctx.NewMarketOrder(data.Symbol, types.OrderSideBuy, s.quantity, types.Reason{
			Reason:  types.OrderReasonStrategy,
			Message: "fast SMA crossed above slow SMA",
		}))
	case crossedDown && position.Quantity > 0:
		ctx.Logf("death cross on %s: fast %.4f < slow %.4f", data.Symbol, fast, slow)
		result.Orders = append(result.Orders, ctx.NewMarketOrder(data.Symbol, types.OrderSideSell, position.Quantity, types.Reason{
			Reason:  types.OrderReasonStrategy,
			Message: "fast SMA crossed below slow SMA",
		}))
	}
	return result, nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
