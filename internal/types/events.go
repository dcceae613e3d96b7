package types

// Event is an observable notification emitted by the strategy and backtest
// engines. Persistence, messaging and presentation layers consume these; the
// engines never depend on a consumer being present.
type Event interface {
	EventName() string
}

// EventHandler receives engine events. A nil handler drops them.
type EventHandler func(Event)

type InstanceCreatedEvent struct {
	InstanceID   string
	StrategyName string
}

type InstanceStartedEvent struct {
	InstanceID string
}

type InstanceStoppedEvent struct {
	InstanceID string
}

type InstanceErroredEvent struct {
	InstanceID string
	Reason     string
}

type InstanceRemovedEvent struct {
	InstanceID string
}

type OrderAcceptedEvent struct {
	Order Order
}

// OrderRejectedEvent carries the rejecting rule's name and reason.
type OrderRejectedEvent struct {
	Order  Order
	Rule   string
	Reason string
}

type OrderCanceledEvent struct {
	InstanceID string
	OrderID    string
}

type BacktestCompletedEvent struct {
	InstanceID string
	Metrics    BacktestMetrics
}

func (e InstanceCreatedEvent) EventName() string   { return "InstanceCreated" }
func (e InstanceStartedEvent) EventName() string   { return "InstanceStarted" }
func (e InstanceStoppedEvent) EventName() string   { return "InstanceStopped" }
func (e InstanceErroredEvent) EventName() string   { return "InstanceErrored" }
func (e InstanceRemovedEvent) EventName() string   { return "InstanceRemoved" }
func (e OrderAcceptedEvent) EventName() string     { return "OrderAccepted" }
func (e OrderRejectedEvent) EventName() string     { return "OrderRejected" }
func (e OrderCanceledEvent) EventName() string     { return "OrderCanceled" }
func (e BacktestCompletedEvent) EventName() string { return "BacktestCompleted" }
