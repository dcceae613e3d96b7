package strategy

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/risk"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"go.uber.org/zap"
)

// Context is handed to a strategy on every callback. It exposes the
// instance identity, configured parameters, account state and order
// construction helpers. A Context belongs to exactly one instance and is
// only touched under that instance's callback lock.
type Context struct {
	InstanceID   string
	StrategyName string
	Params       map[string]any

	account     AccountView
	riskManager *risk.Manager
	logger      *logger.Logger
	now         func() time.Time

	logs []string
}

// NewContext builds a callback context. riskManager is the engine's shared
// pipeline; strategies may register rules into it during Initialize. now
// supplies the engine's clock; backtests pass simulated time, live engines
// pass time.Now.
func NewContext(instanceID, strategyName string, params map[string]any, account AccountView, riskManager *risk.Manager, log *logger.Logger, now func() time.Time) *Context {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if now == nil {
		now = time.Now
	}
	return &Context{
		InstanceID:   instanceID,
		StrategyName: strategyName,
		Params:       params,
		account:      account,
		riskManager:  riskManager,
		logger:       log,
		now:          now,
	}
}

// RiskManager returns the engine's shared risk pipeline. The context does
// not own it: rules registered here gate every instance's orders.
func (c *Context) RiskManager() *risk.Manager {
	return c.riskManager
}

// Account returns a snapshot of the current account state.
func (c *Context) Account() types.AccountInfo {
	if c.account == nil {
		return types.AccountInfo{Positions: make(map[string]types.Position)}
	}
	return c.account.AccountInfo()
}

// Time returns the engine's notion of now. During backtests this is the
// time of the bar being replayed.
func (c *Context) Time() time.Time {
	return c.now()
}

// NewMarketOrder constructs a market order attributed to this instance.
func (c *Context) NewMarketOrder(symbol string, side types.OrderSide, quantity float64, reason types.Reason) types.Order {
	return types.Order{
		OrderID:    uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		OrderType:  types.OrderTypeMarket,
		Quantity:   quantity,
		StrategyID: c.InstanceID,
		Reason:     reason,
		Status:     types.OrderStatusPending,
		Timestamp:  c.now(),
	}
}

// NewLimitOrder constructs a limit order attributed to this instance.
func (c *Context) NewLimitOrder(symbol string, side types.OrderSide, quantity, price float64, reason types.Reason) types.Order {
	order := c.NewMarketOrder(symbol, side, quantity, reason)
	order.OrderType = types.OrderTypeLimit
	order.Price = optional.Some(price)
	return order
}

// Logf records a strategy log line. Lines are written to the structured
// logger immediately and collected into the callback's Result afterwards.
func (c *Context) Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	c.logs = append(c.logs, msg)
	c.logger.Info(msg,
		zap.String("instance_id", c.InstanceID),
		zap.String("strategy", c.StrategyName))
}

// DrainLogs returns the log lines accumulated since the last drain.
func (c *Context) DrainLogs() []string {
	logs := c.logs
	c.logs = nil
	return logs
}

// FloatParam reads a numeric parameter, falling back to def when the key is
// absent or not numeric.
func (c *Context) FloatParam(key string, def float64) float64 {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	}
	return def
}

// IntParam reads an integer parameter, falling back to def when the key is
// absent or not numeric.
func (c *Context) IntParam(key string, def int) int {
	v, ok := c.Params[key]
	if !ok {
		return def
	}
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	}
	return def
}
