// Package engine implements the strategy engine: it hosts strategy
// instances, drives their lifecycle, fans market data out to them and gates
// every resulting order through the risk manager before handing it to an
// order sink. Live trading and backtesting both run through this exact code
// path; only the data source and the order sink differ.
package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/risk"
	"github.com/rxtech-lab/argo-strategy/internal/strategy"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// OrderSink receives orders that passed risk checks. A live implementation
// forwards to a broker; the backtest implementation fills them against
// simulated bars.
type OrderSink interface {
	SubmitOrder(order types.Order) error
	CancelOrder(orderID string) error
}

// Config tunes engine failure handling.
type Config struct {
	// MaxCallbackFailures is the number of consecutive callback failures
	// after which an instance transitions to ERRORED. Zero uses the
	// default of 3.
	MaxCallbackFailures int `yaml:"max_callback_failures" json:"max_callback_failures"`
	// CallbackTimeout bounds a single OnMarketData callback. Zero
	// disables the timeout.
	CallbackTimeout time.Duration `yaml:"callback_timeout" json:"callback_timeout"`
}

const defaultMaxCallbackFailures = 3

// Engine hosts strategy instances and routes market data to them.
type Engine struct {
	mu sync.RWMutex

	registry    *strategy.Registry
	riskManager *risk.Manager
	account     strategy.AccountView
	sink        OrderSink
	logger      *logger.Logger
	config      Config

	instances   map[string]*Instance
	events      types.EventHandler
	currentTime time.Time
}

// NewEngine wires a strategy engine. registry, riskManager, account and sink
// are required; a nil logger is replaced with a no-op logger.
func NewEngine(registry *strategy.Registry, riskManager *risk.Manager, account strategy.AccountView, sink OrderSink, log *logger.Logger, config Config) *Engine {
	if log == nil {
		log = logger.NewNopLogger()
	}
	if config.MaxCallbackFailures <= 0 {
		config.MaxCallbackFailures = defaultMaxCallbackFailures
	}
	return &Engine{
		registry:    registry,
		riskManager: riskManager,
		account:     account,
		sink:        sink,
		logger:      log,
		config:      config,
		instances:   make(map[string]*Instance),
	}
}

// SetEventHandler installs the handler engine events are delivered to.
// Events are emitted synchronously from the engine's goroutines.
func (e *Engine) SetEventHandler(handler types.EventHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = handler
}

// RegisterStrategy adds a strategy factory to the engine's registry.
func (e *Engine) RegisterStrategy(name string, factory strategy.Factory) error {
	return e.registry.Register(name, factory)
}

// RiskManager exposes the engine's risk pipeline for rule administration.
func (e *Engine) RiskManager() *risk.Manager {
	return e.riskManager
}

// CreateStrategy validates the config, instantiates the strategy and runs
// its Initialize hook. The instance starts in CREATED and receives no data
// until started.
func (e *Engine) CreateStrategy(config strategy.Config) (string, error) {
	if err := config.Validate(); err != nil {
		return "", err
	}
	st, err := e.registry.Create(config.StrategyName)
	if err != nil {
		return "", err
	}
	if err := config.ValidateParams(st); err != nil {
		return "", err
	}

	id := uuid.New().String()
	ctx := strategy.NewContext(id, config.StrategyName, config.Params, e.account, e.riskManager, e.logger, e.now)
	if err := st.Initialize(ctx); err != nil {
		return "", errors.Wrapf(errors.ErrCodeCallbackFailed, err, "strategy %q failed to initialize", config.StrategyName)
	}

	inst := &Instance{
		id:       id,
		strategy: st,
		config:   config,
		ctx:      ctx,
		state:    InstanceStateCreated,
	}

	e.mu.Lock()
	e.instances[id] = inst
	e.mu.Unlock()

	intervals := make([]string, len(config.Intervals))
	for i, iv := range config.Intervals {
		intervals[i] = string(iv)
	}
	e.logger.Info("strategy instance created",
		zap.String("instance_id", id),
		zap.String("strategy", config.StrategyName),
		zap.Strings("symbols", config.Symbols),
		zap.Strings("intervals", intervals))
	e.emit(types.InstanceCreatedEvent{InstanceID: id, StrategyName: config.StrategyName})
	return id, nil
}

// StartStrategy moves an instance to RUNNING. Starting a running instance
// is a no-op; an errored instance cannot be started.
func (e *Engine) StartStrategy(id string) error {
	inst, err := e.instance(id)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	switch inst.state {
	case InstanceStateRunning:
		return nil
	case InstanceStateErrored:
		return errors.Newf(errors.ErrCodeInvalidState, "instance %s is errored and cannot be started", id)
	}
	inst.state = InstanceStateRunning
	e.emit(types.InstanceStartedEvent{InstanceID: id})
	return nil
}

// StopStrategy pauses market data delivery. Strategy state is retained; a
// stopped instance can be started again. Stopping waits for an in-flight
// callback to finish.
func (e *Engine) StopStrategy(id string) error {
	inst, err := e.instance(id)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()
	switch inst.state {
	case InstanceStateStopped:
		return nil
	case InstanceStateRunning:
		inst.state = InstanceStateStopped
		e.emit(types.InstanceStoppedEvent{InstanceID: id})
		return nil
	default:
		return errors.Newf(errors.ErrCodeInvalidState, "instance %s cannot be stopped from state %s", id, inst.state)
	}
}

// RemoveStrategy discards an instance. Removal is only valid from STOPPED
// or ERRORED; created and running instances must be stopped first.
func (e *Engine) RemoveStrategy(id string) error {
	inst, err := e.instance(id)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	if inst.state != InstanceStateStopped && inst.state != InstanceStateErrored {
		inst.mu.Unlock()
		return errors.Newf(errors.ErrCodeInvalidState, "instance %s is %s, only stopped or errored instances can be removed", id, inst.state)
	}
	inst.mu.Unlock()

	e.mu.Lock()
	delete(e.instances, id)
	e.mu.Unlock()

	e.emit(types.InstanceRemovedEvent{InstanceID: id})
	return nil
}

// InstanceState returns the lifecycle state of an instance.
func (e *Engine) InstanceState(id string) (InstanceState, error) {
	inst, err := e.instance(id)
	if err != nil {
		return "", err
	}
	return inst.State(), nil
}

// Instance returns a hosted instance by id.
func (e *Engine) Instance(id string) (*Instance, error) {
	return e.instance(id)
}

// Instances returns all hosted instances.
func (e *Engine) Instances() []*Instance {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		out = append(out, inst)
	}
	return out
}

// OnMarketData fans one bar out to every running instance subscribed to its
// symbol and interval. Instances are dispatched concurrently; the call
// returns once every callback and its order handling completed. The risk
// context is refreshed with the bar's time and close before any dispatch.
func (e *Engine) OnMarketData(data types.MarketData) {
	e.mu.Lock()
	e.currentTime = data.Time
	targets := make([]*Instance, 0, len(e.instances))
	for _, inst := range e.instances {
		if inst.subscribed(data.Symbol, string(data.Interval)) {
			targets = append(targets, inst)
		}
	}
	e.mu.Unlock()

	e.riskManager.UpdateContext(map[string]any{
		risk.ContextKeyCurrentTime:             data.Time,
		risk.ContextKeyLastPrice + data.Symbol: data.Close,
	})

	var wg sync.WaitGroup
	for _, inst := range targets {
		wg.Add(1)
		go func(inst *Instance) {
			defer wg.Done()
			e.dispatch(inst, data)
		}(inst)
	}
	wg.Wait()
}

// dispatch runs one callback under the instance lock and processes its
// result.
func (e *Engine) dispatch(inst *Instance, data types.MarketData) {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if inst.state != InstanceStateRunning {
		return
	}

	result, err := e.invoke(inst, data)
	if err != nil {
		e.recordFailure(inst, err)
		return
	}
	inst.failures = 0

	result.Logs = append(inst.ctx.DrainLogs(), result.Logs...)

	// Cancellations are not risk-gated.
	for _, orderID := range result.Cancels {
		if err := e.sink.CancelOrder(orderID); err != nil {
			e.logger.Warn("order cancel failed",
				zap.String("instance_id", inst.id),
				zap.String("order_id", orderID),
				zap.Error(err))
			continue
		}
		e.emit(types.OrderCanceledEvent{InstanceID: inst.id, OrderID: orderID})
	}

	account := e.account.AccountInfo()
	for _, order := range result.Orders {
		if err := order.Validate(); err != nil {
			e.emit(types.OrderRejectedEvent{Order: order, Reason: err.Error()})
			continue
		}
		decision := e.riskManager.CheckOrder(order, account)
		if !decision.Allowed {
			e.emit(types.OrderRejectedEvent{Order: order, Rule: decision.Rule, Reason: decision.Reason})
			continue
		}
		if err := e.sink.SubmitOrder(order); err != nil {
			e.logger.Warn("order submission failed",
				zap.String("instance_id", inst.id),
				zap.String("order_id", order.OrderID),
				zap.Error(err))
			e.emit(types.OrderRejectedEvent{Order: order, Reason: err.Error()})
			continue
		}
		e.emit(types.OrderAcceptedEvent{Order: order})
	}
}

type callbackOutcome struct {
	result strategy.Result
	err    error
}

// invoke calls OnMarketData with panic containment and the configured
// timeout. A timed-out callback keeps running on its goroutine and the
// instance is quarantined: until the orphan finishes, further bars are
// counted as failures without touching the strategy, since the orphan still
// holds the context and strategy state. The orphan's result is discarded
// once it lands. Called with inst.mu held.
func (e *Engine) invoke(inst *Instance, data types.MarketData) (strategy.Result, error) {
	if inst.pending != nil {
		select {
		case <-inst.pending:
			inst.pending = nil
		default:
			return strategy.Result{}, errors.Newf(errors.ErrCodeCallbackTimeout, "strategy %q is still running a timed-out callback, bar skipped", inst.StrategyName())
		}
	}

	if e.config.CallbackTimeout <= 0 {
		return safeOnMarketData(inst, data)
	}

	ch := make(chan callbackOutcome, 1)
	go func() {
		result, err := safeOnMarketData(inst, data)
		ch <- callbackOutcome{result: result, err: err}
	}()

	select {
	case out := <-ch:
		return out.result, out.err
	case <-time.After(e.config.CallbackTimeout):
		inst.pending = ch
		return strategy.Result{}, errors.Newf(errors.ErrCodeCallbackTimeout, "strategy %q exceeded callback timeout %s", inst.StrategyName(), e.config.CallbackTimeout)
	}
}

func safeOnMarketData(inst *Instance, data types.MarketData) (result strategy.Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Newf(errors.ErrCodeCallbackFailed, "strategy %q panicked: %v", inst.StrategyName(), r)
		}
	}()
	return inst.strategy.OnMarketData(inst.ctx, data)
}

// recordFailure counts a callback failure and escalates to ERRORED when the
// consecutive-failure budget is exhausted. Called with inst.mu held.
func (e *Engine) recordFailure(inst *Instance, err error) {
	inst.failures++
	e.logger.Error("strategy callback failed",
		zap.String("instance_id", inst.id),
		zap.String("strategy", inst.StrategyName()),
		zap.Int("consecutive_failures", inst.failures),
		zap.Error(err))

	if inst.failures >= e.config.MaxCallbackFailures {
		inst.state = InstanceStateErrored
		e.emit(types.InstanceErroredEvent{InstanceID: inst.id, Reason: err.Error()})
	}
}

func (e *Engine) instance(id string) (*Instance, error) {
	e.mu.RLock()
	inst, exists := e.instances[id]
	e.mu.RUnlock()
	if !exists {
		return nil, errors.Newf(errors.ErrCodeUnknownInstance, "instance %s not found", id)
	}
	return inst, nil
}

// now is the engine clock handed to strategy contexts: the time of the bar
// being processed, or wall time before any bar arrived.
func (e *Engine) now() time.Time {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.currentTime.IsZero() {
		return time.Now()
	}
	return e.currentTime
}

func (e *Engine) emit(event types.Event) {
	e.mu.RLock()
	handler := e.events
	e.mu.RUnlock()
	if handler != nil {
		handler(event)
	}
}
