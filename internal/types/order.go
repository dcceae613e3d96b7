package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"

	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

type OrderSide string

type OrderType string

type OrderStatus string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
)

const (
	OrderStatusPending  OrderStatus = "PENDING"
	OrderStatusOpen     OrderStatus = "OPEN"
	OrderStatusFilled   OrderStatus = "FILLED"
	OrderStatusCanceled OrderStatus = "CANCELED"
	OrderStatusRejected OrderStatus = "REJECTED"
)

const (
	OrderReasonStrategy     string = "strategy"
	OrderReasonRiskRejected string = "risk_rejected"
	OrderReasonStopLoss     string = "stop_loss"
	OrderReasonTakeProfit   string = "take_profit"
)

// Reason describes why an order was created or rejected.
type Reason struct {
	Reason  string `yaml:"reason" json:"reason" csv:"reason"`
	Message string `yaml:"message" json:"message" csv:"message"`
}

// Order is a proposed or executed order. Once accepted by the risk manager it
// is immutable except for Status transitions driven by the order sink.
type Order struct {
	OrderID   string    `yaml:"order_id" json:"order_id" csv:"order_id" validate:"required,uuid"`
	Symbol    string    `yaml:"symbol" json:"symbol" csv:"symbol" validate:"required"`
	Side      OrderSide `yaml:"side" json:"side" csv:"side" validate:"required,oneof=BUY SELL"`
	OrderType OrderType `yaml:"order_type" json:"order_type" csv:"order_type" validate:"required,oneof=MARKET LIMIT"`
	Quantity  float64   `yaml:"quantity" json:"quantity" csv:"quantity" validate:"required,gt=0"`
	// Price is the limit price. None for market orders.
	Price optional.Option[float64] `yaml:"price" json:"price" csv:"price"`
	// StrategyID identifies the strategy instance that created this order.
	StrategyID string      `yaml:"strategy_id" json:"strategy_id" csv:"strategy_id" validate:"required"`
	Reason     Reason      `yaml:"reason" json:"reason" csv:"reason"`
	Status     OrderStatus `yaml:"status" json:"status" csv:"status"`
	Timestamp  time.Time   `yaml:"timestamp" json:"timestamp" csv:"timestamp"`
}

// LimitPrice returns the limit price and true if the order carries one.
func (o *Order) LimitPrice() (float64, bool) {
	if o.Price.IsNone() {
		return 0, false
	}

	return o.Price.Unwrap(), true
}

// Notional returns the order value quantity*price against the given reference
// price for market orders, or against the limit price for limit orders.
func (o *Order) Notional(referencePrice float64) float64 {
	if price, ok := o.LimitPrice(); ok {
		return o.Quantity * price
	}

	return o.Quantity * referencePrice
}

// Validate validates the Order struct.
func (o *Order) Validate() error {
	validate := validator.New()
	if err := validate.Struct(o); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidOrder, "invalid order", err)
	}

	if o.OrderType == OrderTypeLimit {
		price, ok := o.LimitPrice()
		if !ok {
			return errors.New(errors.ErrCodeInvalidOrder, "limit order requires a price")
		}

		if price <= 0 {
			return errors.Newf(errors.ErrCodeInvalidOrder, "limit price must be positive: %f", price)
		}
	}

	return nil
}
