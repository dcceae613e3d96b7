package backtest

import (
	"sync"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// FillPolicy controls how the simulated account executes orders.
type FillPolicy struct {
	// MultiBar lets resting limit orders persist across bars until filled
	// or canceled. When false an unfilled limit order is canceled at the
	// end of the bar that follows its submission.
	MultiBar bool `yaml:"multi_bar" json:"multi_bar"`
	// Slippage is applied adversely to market fills as a fraction of the
	// fill price. Limit fills execute at the limit price.
	Slippage float64 `yaml:"slippage" json:"slippage" validate:"gte=0"`
	// CommissionRate is charged on every fill as a fraction of notional.
	CommissionRate float64 `yaml:"commission_rate" json:"commission_rate" validate:"gte=0"`
}

// position is the account's internal long position bookkeeping. Average
// entry price includes fees, so PnL on exit is net of entry costs.
type position struct {
	quantity float64
	avgEntry float64
	realized float64
}

// SimulatedAccount is the backtest order sink and account state. Market
// orders fill at the current bar's close; limit orders rest and fill when a
// later bar's range crosses the limit price. Shorting is not supported.
type SimulatedAccount struct {
	mu sync.Mutex

	balance   float64
	positions map[string]*position
	lastPrice map[string]float64
	pending   []types.Order
	trades    []types.Trade
	now       time.Time

	policy FillPolicy
	logger *logger.Logger
	onFill func(types.Trade)
}

// NewSimulatedAccount creates an account with the given starting cash.
func NewSimulatedAccount(initialBalance float64, policy FillPolicy, log *logger.Logger) *SimulatedAccount {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &SimulatedAccount{
		balance:   initialBalance,
		positions: make(map[string]*position),
		lastPrice: make(map[string]float64),
		policy:    policy,
		logger:    log,
	}
}

// SetFillHandler installs a hook invoked after every fill, used to persist
// trades. Must be set before the backtest starts.
func (a *SimulatedAccount) SetFillHandler(handler func(types.Trade)) {
	a.onFill = handler
}

// SubmitOrder implements the order sink. Market orders fill immediately at
// the last seen close for the symbol; limit orders start resting.
func (a *SimulatedAccount) SubmitOrder(order types.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch order.OrderType {
	case types.OrderTypeMarket:
		price, ok := a.lastPrice[order.Symbol]
		if !ok {
			return errors.Newf(errors.ErrCodeMarketDataMissing, "no market data seen for %s, cannot fill market order", order.Symbol)
		}
		if order.Side == types.OrderSideBuy {
			price *= 1 + a.policy.Slippage
		} else {
			price *= 1 - a.policy.Slippage
		}
		return a.fill(order, price)
	case types.OrderTypeLimit:
		order.Status = types.OrderStatusOpen
		a.pending = append(a.pending, order)
		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidOrder, "unsupported order type %s", order.OrderType)
	}
}

// CancelOrder implements the order sink. Only resting limit orders can be
// canceled.
func (a *SimulatedAccount) CancelOrder(orderID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i, order := range a.pending {
		if order.OrderID == orderID {
			a.pending = append(a.pending[:i], a.pending[i+1:]...)
			return nil
		}
	}
	return errors.Newf(errors.ErrCodeOrderNotFound, "no resting order %s", orderID)
}

// OnBar advances simulated time: it records the bar's close as the last
// price and tries to fill resting limit orders whose price the bar's range
// crossed. Call it before dispatching the bar to strategies.
func (a *SimulatedAccount) OnBar(data types.MarketData) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.lastPrice[data.Symbol] = data.Close
	a.now = data.Time

	remaining := a.pending[:0]
	for _, order := range a.pending {
		if order.Symbol != data.Symbol {
			remaining = append(remaining, order)
			continue
		}
		limit, _ := order.LimitPrice()
		crossed := (order.Side == types.OrderSideBuy && data.Low <= limit) ||
			(order.Side == types.OrderSideSell && data.High >= limit)
		if crossed {
			if err := a.fill(order, limit); err != nil {
				a.logger.Warn("resting order dropped",
					zap.String("order_id", order.OrderID),
					zap.Error(err))
			}
			continue
		}
		if a.policy.MultiBar {
			remaining = append(remaining, order)
		}
	}
	a.pending = remaining
}

// fill executes an order at the given price. Called with a.mu held.
func (a *SimulatedAccount) fill(order types.Order, price float64) error {
	fee := order.Quantity * price * a.policy.CommissionRate

	pos := a.positions[order.Symbol]
	var pnl float64

	switch order.Side {
	case types.OrderSideBuy:
		cost := order.Quantity*price + fee
		if cost > a.balance {
			return errors.Newf(errors.ErrCodeInsufficientFunds, "order %s needs %.2f, balance is %.2f", order.OrderID, cost, a.balance)
		}
		if pos == nil {
			pos = &position{}
			a.positions[order.Symbol] = pos
		}
		// Fees are folded into the average entry price.
		totalCost := decimal.NewFromFloat(pos.quantity).Mul(decimal.NewFromFloat(pos.avgEntry)).
			Add(decimal.NewFromFloat(cost))
		totalQty := pos.quantity + order.Quantity
		pos.avgEntry = totalCost.Div(decimal.NewFromFloat(totalQty)).InexactFloat64()
		pos.quantity = totalQty
		a.balance -= cost
	case types.OrderSideSell:
		if pos == nil || pos.quantity < order.Quantity {
			held := 0.0
			if pos != nil {
				held = pos.quantity
			}
			return errors.Newf(errors.ErrCodeInsufficientFunds, "order %s sells %.8f %s, position holds %.8f", order.OrderID, order.Quantity, order.Symbol, held)
		}
		entry := decimal.NewFromFloat(order.Quantity).Mul(decimal.NewFromFloat(pos.avgEntry))
		exit := decimal.NewFromFloat(order.Quantity).Mul(decimal.NewFromFloat(price)).
			Sub(decimal.NewFromFloat(fee))
		pnl = exit.Sub(entry).InexactFloat64()
		pos.quantity -= order.Quantity
		pos.realized += pnl
		a.balance += order.Quantity*price - fee
		if pos.quantity == 0 {
			delete(a.positions, order.Symbol)
		}
	}

	order.Status = types.OrderStatusFilled
	trade := types.Trade{
		Order:         order,
		ExecutedAt:    a.now,
		ExecutedQty:   order.Quantity,
		ExecutedPrice: price,
		Fee:           fee,
		PnL:           pnl,
	}
	a.trades = append(a.trades, trade)
	if a.onFill != nil {
		a.onFill(trade)
	}
	return nil
}

// AccountInfo implements the strategy account view. The returned snapshot
// is a copy.
func (a *SimulatedAccount) AccountInfo() types.AccountInfo {
	a.mu.Lock()
	defer a.mu.Unlock()

	positions := make(map[string]types.Position, len(a.positions))
	for symbol, pos := range a.positions {
		positions[symbol] = types.Position{
			Symbol:        symbol,
			Quantity:      pos.quantity,
			AvgEntryPrice: pos.avgEntry,
			RealizedPnL:   pos.realized,
		}
	}
	return types.AccountInfo{
		Balance:   a.balance,
		Equity:    a.equityLocked(),
		Positions: positions,
	}
}

// Equity returns cash plus the market value of open positions.
func (a *SimulatedAccount) Equity() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.equityLocked()
}

func (a *SimulatedAccount) equityLocked() float64 {
	equity := a.balance
	for symbol, pos := range a.positions {
		price, ok := a.lastPrice[symbol]
		if !ok {
			price = pos.avgEntry
		}
		equity += pos.quantity * price
	}
	return equity
}

// Trades returns all executed trades in execution order.
func (a *SimulatedAccount) Trades() []types.Trade {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.Trade(nil), a.trades...)
}

// PendingOrders returns the resting limit orders.
func (a *SimulatedAccount) PendingOrders() []types.Order {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.Order(nil), a.pending...)
}
