package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/risk"
	"github.com/rxtech-lab/argo-strategy/internal/strategy"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// scriptedStrategy delegates OnMarketData to a test-provided function.
type scriptedStrategy struct {
	name    string
	onData  func(ctx *strategy.Context, data types.MarketData) (strategy.Result, error)
	initErr error
	calls   int
}

func (s *scriptedStrategy) Name() string { return s.name }

func (s *scriptedStrategy) Initialize(ctx *strategy.Context) error { return s.initErr }

func (s *scriptedStrategy) OnMarketData(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
	s.calls++
	if s.onData == nil {
		return strategy.Result{}, nil
	}
	return s.onData(ctx, data)
}

// blockingStrategy blocks its first callback until released.
type blockingStrategy struct {
	release chan struct{}
	calls   atomic.Int32
}

func (b *blockingStrategy) Name() string { return "stuck" }

func (b *blockingStrategy) Initialize(ctx *strategy.Context) error { return nil }

func (b *blockingStrategy) OnMarketData(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
	if b.calls.Add(1) == 1 {
		<-b.release
	}
	return strategy.Result{}, nil
}

// recordingSink captures submitted and canceled orders.
type recordingSink struct {
	mu        sync.Mutex
	submitted []types.Order
	canceled  []string
	submitErr error
}

func (r *recordingSink) SubmitOrder(order types.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.submitErr != nil {
		return r.submitErr
	}
	r.submitted = append(r.submitted, order)
	return nil
}

func (r *recordingSink) CancelOrder(orderID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.canceled = append(r.canceled, orderID)
	return nil
}

func (r *recordingSink) submittedOrders() []types.Order {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]types.Order(nil), r.submitted...)
}

// denyAllRule rejects every order.
type denyAllRule struct {
	name   string
	reason string
}

func (d *denyAllRule) Name() string                      { return d.name }
func (d *denyAllRule) Enabled() bool                     { return true }
func (d *denyAllRule) SetEnabled(bool)                   {}
func (d *denyAllRule) UpdateParams(map[string]any) error { return nil }

func (d *denyAllRule) Check(types.Order, types.AccountInfo, map[string]any) risk.Decision {
	return risk.Deny(d.name, d.reason)
}

type staticAccount struct {
	info types.AccountInfo
}

func (a *staticAccount) AccountInfo() types.AccountInfo { return a.info }

type EngineTestSuite struct {
	suite.Suite
	engine  *Engine
	sink    *recordingSink
	account *staticAccount
	events  []types.Event
	eventMu sync.Mutex
}

func (s *EngineTestSuite) SetupTest() {
	s.sink = &recordingSink{}
	s.account = &staticAccount{info: types.AccountInfo{
		Balance:   10000,
		Equity:    10000,
		Positions: make(map[string]types.Position),
	}}
	s.events = nil
	s.engine = NewEngine(
		strategy.NewRegistry(),
		risk.NewManager(logger.NewNopLogger()),
		s.account,
		s.sink,
		logger.NewNopLogger(),
		Config{MaxCallbackFailures: 2},
	)
	s.engine.SetEventHandler(func(event types.Event) {
		s.eventMu.Lock()
		defer s.eventMu.Unlock()
		s.events = append(s.events, event)
	})
}

func (s *EngineTestSuite) eventNames() []string {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	names := make([]string, len(s.events))
	for i, e := range s.events {
		names[i] = e.EventName()
	}
	return names
}

func (s *EngineTestSuite) findEvent(name string) types.Event {
	s.eventMu.Lock()
	defer s.eventMu.Unlock()
	for _, e := range s.events {
		if e.EventName() == name {
			return e
		}
	}
	return nil
}

func (s *EngineTestSuite) register(st *scriptedStrategy) {
	s.Require().NoError(s.engine.RegisterStrategy(st.name, func() strategy.Strategy { return st }))
}

func (s *EngineTestSuite) create(name string, symbols ...string) string {
	if len(symbols) == 0 {
		symbols = []string{"BTCUSDT"}
	}
	id, err := s.engine.CreateStrategy(strategy.Config{
		StrategyName: name,
		Symbols:      symbols,
		Exchanges:    []string{"binance"},
		Intervals:    []types.Interval{types.Interval1h},
	})
	s.Require().NoError(err)
	return id
}

func (s *EngineTestSuite) bar(symbol string, closePrice float64) types.MarketData {
	return types.MarketData{
		Symbol:   symbol,
		Interval: types.Interval1h,
		Time:     time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC),
		Open:     closePrice,
		High:     closePrice,
		Low:      closePrice,
		Close:    closePrice,
		Volume:   1,
	}
}

func (s *EngineTestSuite) TestLifecycle() {
	s.register(&scriptedStrategy{name: "noop"})
	id := s.create("noop")

	state, err := s.engine.InstanceState(id)
	s.Require().NoError(err)
	s.Equal(InstanceStateCreated, state)

	// A created instance cannot be removed either; removal requires a
	// stopped or errored instance.
	err = s.engine.RemoveStrategy(id)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidState))

	s.Require().NoError(s.engine.StartStrategy(id))
	state, _ = s.engine.InstanceState(id)
	s.Equal(InstanceStateRunning, state)

	// Starting a running instance is idempotent.
	s.Require().NoError(s.engine.StartStrategy(id))

	// A running instance cannot be removed.
	err = s.engine.RemoveStrategy(id)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidState))

	s.Require().NoError(s.engine.StopStrategy(id))
	state, _ = s.engine.InstanceState(id)
	s.Equal(InstanceStateStopped, state)
	s.Require().NoError(s.engine.StopStrategy(id))

	s.Require().NoError(s.engine.RemoveStrategy(id))
	_, err = s.engine.InstanceState(id)
	s.True(errors.HasCode(err, errors.ErrCodeUnknownInstance))

	s.Contains(s.eventNames(), "InstanceCreated")
	s.Contains(s.eventNames(), "InstanceStarted")
	s.Contains(s.eventNames(), "InstanceStopped")
	s.Contains(s.eventNames(), "InstanceRemoved")
}

func (s *EngineTestSuite) TestUnknownInstanceErrors() {
	s.True(errors.HasCode(s.engine.StartStrategy("nope"), errors.ErrCodeUnknownInstance))
	s.True(errors.HasCode(s.engine.StopStrategy("nope"), errors.ErrCodeUnknownInstance))
	s.True(errors.HasCode(s.engine.RemoveStrategy("nope"), errors.ErrCodeUnknownInstance))
}

func (s *EngineTestSuite) TestCreateValidatesConfigAndStrategy() {
	_, err := s.engine.CreateStrategy(strategy.Config{
		StrategyName: "missing",
		Symbols:      []string{"BTCUSDT"},
		Exchanges:    []string{"binance"},
		Intervals:    []types.Interval{types.Interval1h},
	})
	s.True(errors.HasCode(err, errors.ErrCodeUnknownStrategy))

	s.register(&scriptedStrategy{name: "noop"})
	_, err = s.engine.CreateStrategy(strategy.Config{
		StrategyName: "noop",
		Exchanges:    []string{"binance"},
		Intervals:    []types.Interval{types.Interval1h},
	})
	s.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (s *EngineTestSuite) TestInitializeFailureFailsCreation() {
	s.register(&scriptedStrategy{name: "bad", initErr: errors.New(errors.ErrCodeInvalidParameter, "nope")})
	_, err := s.engine.CreateStrategy(strategy.Config{
		StrategyName: "bad",
		Symbols:      []string{"BTCUSDT"},
		Exchanges:    []string{"binance"},
		Intervals:    []types.Interval{types.Interval1h},
	})
	s.True(errors.HasCode(err, errors.ErrCodeCallbackFailed))
	s.Empty(s.engine.Instances())
}

func (s *EngineTestSuite) TestOnlyRunningSubscribedInstancesReceiveData() {
	btc := &scriptedStrategy{name: "btc"}
	eth := &scriptedStrategy{name: "eth"}
	stopped := &scriptedStrategy{name: "stopped"}
	s.register(btc)
	s.register(eth)
	s.register(stopped)

	btcID := s.create("btc", "BTCUSDT")
	s.create("eth", "ETHUSDT")
	stoppedID := s.create("stopped", "BTCUSDT")

	s.Require().NoError(s.engine.StartStrategy(btcID))
	s.Require().NoError(s.engine.StartStrategy(stoppedID))
	s.Require().NoError(s.engine.StopStrategy(stoppedID))

	s.engine.OnMarketData(s.bar("BTCUSDT", 100))

	s.Equal(1, btc.calls)
	s.Equal(0, eth.calls, "not subscribed to BTCUSDT")
	s.Equal(0, stopped.calls, "stopped instances receive no data")
}

func (s *EngineTestSuite) TestAcceptedOrderReachesSink() {
	st := &scriptedStrategy{name: "buyer"}
	st.onData = func(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
		order := ctx.NewMarketOrder(data.Symbol, types.OrderSideBuy, 1, types.Reason{Reason: types.OrderReasonStrategy})
		return strategy.Result{Orders: []types.Order{order}}, nil
	}
	s.register(st)
	id := s.create("buyer")
	s.Require().NoError(s.engine.StartStrategy(id))

	s.engine.OnMarketData(s.bar("BTCUSDT", 100))

	orders := s.sink.submittedOrders()
	s.Require().Len(orders, 1)
	s.Equal(id, orders[0].StrategyID)
	s.Contains(s.eventNames(), "OrderAccepted")
}

func (s *EngineTestSuite) TestRiskRejectionBlocksOrder() {
	s.Require().NoError(s.engine.RiskManager().AddRule(
		&denyAllRule{name: "deny_all", reason: "testing"}))

	st := &scriptedStrategy{name: "buyer"}
	st.onData = func(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
		order := ctx.NewMarketOrder(data.Symbol, types.OrderSideBuy, 1, types.Reason{Reason: types.OrderReasonStrategy})
		return strategy.Result{Orders: []types.Order{order}}, nil
	}
	s.register(st)
	id := s.create("buyer")
	s.Require().NoError(s.engine.StartStrategy(id))

	s.engine.OnMarketData(s.bar("BTCUSDT", 100))

	s.Empty(s.sink.submittedOrders())
	rejected, ok := s.findEvent("OrderRejected").(types.OrderRejectedEvent)
	s.Require().True(ok)
	s.Equal("deny_all", rejected.Rule)
	s.Equal("testing", rejected.Reason)
}

func (s *EngineTestSuite) TestCancelsBypassRiskChecks() {
	s.Require().NoError(s.engine.RiskManager().AddRule(
		&denyAllRule{name: "deny_all", reason: "testing"}))

	st := &scriptedStrategy{name: "canceler"}
	st.onData = func(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
		return strategy.Result{Cancels: []string{"order-123"}}, nil
	}
	s.register(st)
	id := s.create("canceler")
	s.Require().NoError(s.engine.StartStrategy(id))

	s.engine.OnMarketData(s.bar("BTCUSDT", 100))

	s.Equal([]string{"order-123"}, s.sink.canceled)
	s.Contains(s.eventNames(), "OrderCanceled")
}

func (s *EngineTestSuite) TestPanicIsContainedAndEscalates() {
	st := &scriptedStrategy{name: "panics"}
	st.onData = func(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
		panic("boom")
	}
	s.register(st)
	id := s.create("panics")
	s.Require().NoError(s.engine.StartStrategy(id))

	// MaxCallbackFailures is 2: first failure keeps the instance running.
	s.engine.OnMarketData(s.bar("BTCUSDT", 100))
	state, _ := s.engine.InstanceState(id)
	s.Equal(InstanceStateRunning, state)

	s.engine.OnMarketData(s.bar("BTCUSDT", 101))
	state, _ = s.engine.InstanceState(id)
	s.Equal(InstanceStateErrored, state)
	s.Contains(s.eventNames(), "InstanceErrored")

	// Errored is terminal except for removal.
	s.True(errors.HasCode(s.engine.StartStrategy(id), errors.ErrCodeInvalidState))
	s.Require().NoError(s.engine.RemoveStrategy(id))
}

func (s *EngineTestSuite) TestSuccessResetsFailureCounter() {
	fail := true
	st := &scriptedStrategy{name: "flaky"}
	st.onData = func(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
		if fail {
			return strategy.Result{}, errors.New(errors.ErrCodeUnknown, "transient")
		}
		return strategy.Result{}, nil
	}
	s.register(st)
	id := s.create("flaky")
	s.Require().NoError(s.engine.StartStrategy(id))

	s.engine.OnMarketData(s.bar("BTCUSDT", 100))
	fail = false
	s.engine.OnMarketData(s.bar("BTCUSDT", 101))
	fail = true
	s.engine.OnMarketData(s.bar("BTCUSDT", 102))

	// Two failures happened but never consecutively.
	state, _ := s.engine.InstanceState(id)
	s.Equal(InstanceStateRunning, state)
}

func (s *EngineTestSuite) TestCallbackTimeout() {
	engine := NewEngine(
		strategy.NewRegistry(),
		risk.NewManager(logger.NewNopLogger()),
		s.account,
		s.sink,
		logger.NewNopLogger(),
		Config{MaxCallbackFailures: 1, CallbackTimeout: 20 * time.Millisecond},
	)

	st := &scriptedStrategy{name: "slow"}
	st.onData = func(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
		time.Sleep(200 * time.Millisecond)
		return strategy.Result{}, nil
	}
	s.Require().NoError(engine.RegisterStrategy("slow", func() strategy.Strategy { return st }))
	id, err := engine.CreateStrategy(strategy.Config{
		StrategyName: "slow",
		Symbols:      []string{"BTCUSDT"},
		Exchanges:    []string{"binance"},
		Intervals:    []types.Interval{types.Interval1h},
	})
	s.Require().NoError(err)
	s.Require().NoError(engine.StartStrategy(id))

	engine.OnMarketData(s.bar("BTCUSDT", 100))

	state, _ := engine.InstanceState(id)
	s.Equal(InstanceStateErrored, state)
}

func (s *EngineTestSuite) TestTimedOutCallbackQuarantinesInstance() {
	engine := NewEngine(
		strategy.NewRegistry(),
		risk.NewManager(logger.NewNopLogger()),
		s.account,
		s.sink,
		logger.NewNopLogger(),
		Config{MaxCallbackFailures: 10, CallbackTimeout: 20 * time.Millisecond},
	)

	st := &blockingStrategy{release: make(chan struct{})}
	s.Require().NoError(engine.RegisterStrategy("stuck", func() strategy.Strategy { return st }))
	id, err := engine.CreateStrategy(strategy.Config{
		StrategyName: "stuck",
		Symbols:      []string{"BTCUSDT"},
		Exchanges:    []string{"binance"},
		Intervals:    []types.Interval{types.Interval1h},
	})
	s.Require().NoError(err)
	s.Require().NoError(engine.StartStrategy(id))

	// The first bar times out; its callback keeps running in the background.
	engine.OnMarketData(s.bar("BTCUSDT", 100))
	// While that callback runs the instance is quarantined: further bars are
	// skipped without invoking the strategy, which would otherwise race the
	// orphaned callback on shared state.
	engine.OnMarketData(s.bar("BTCUSDT", 101))
	s.Equal(int32(1), st.calls.Load())

	// Once the orphan finishes, delivery resumes.
	close(st.release)
	s.Eventually(func() bool {
		engine.OnMarketData(s.bar("BTCUSDT", 102))
		return st.calls.Load() >= 2
	}, time.Second, 10*time.Millisecond)

	state, _ := engine.InstanceState(id)
	s.Equal(InstanceStateRunning, state)
}

func (s *EngineTestSuite) TestMultipleIntervalsRouteIndependently() {
	st := &scriptedStrategy{name: "multi"}
	s.register(st)
	id, err := s.engine.CreateStrategy(strategy.Config{
		StrategyName: "multi",
		Symbols:      []string{"BTCUSDT"},
		Exchanges:    []string{"binance"},
		Intervals:    []types.Interval{types.Interval5m, types.Interval1h},
	})
	s.Require().NoError(err)
	s.Require().NoError(s.engine.StartStrategy(id))

	bar := s.bar("BTCUSDT", 100)
	s.engine.OnMarketData(bar)
	bar.Interval = types.Interval5m
	s.engine.OnMarketData(bar)
	bar.Interval = types.Interval1d
	s.engine.OnMarketData(bar)

	s.Equal(2, st.calls, "only subscribed intervals are delivered")
}

func (s *EngineTestSuite) TestRiskContextUpdatedFromBar() {
	s.register(&scriptedStrategy{name: "noop"})
	id := s.create("noop")
	s.Require().NoError(s.engine.StartStrategy(id))

	bar := s.bar("BTCUSDT", 123.45)
	s.engine.OnMarketData(bar)

	v, ok := s.engine.RiskManager().ContextValue(risk.ContextKeyLastPrice + "BTCUSDT")
	s.True(ok)
	s.Equal(123.45, v)
	v, ok = s.engine.RiskManager().ContextValue(risk.ContextKeyCurrentTime)
	s.True(ok)
	s.Equal(bar.Time, v)
}

func (s *EngineTestSuite) TestStrategyLogsFlowIntoContext() {
	st := &scriptedStrategy{name: "logger"}
	st.onData = func(ctx *strategy.Context, data types.MarketData) (strategy.Result, error) {
		ctx.Logf("saw %s at %.2f", data.Symbol, data.Close)
		return strategy.Result{}, nil
	}
	s.register(st)
	id := s.create("logger")
	s.Require().NoError(s.engine.StartStrategy(id))

	s.engine.OnMarketData(s.bar("BTCUSDT", 100))
	// Logs were drained by the dispatch; the context holds nothing.
	inst := s.engine.Instances()[0]
	s.Equal(id, inst.ID())
}

func TestEngineTestSuite(t *testing.T) {
	suite.Run(t, new(EngineTestSuite))
}
