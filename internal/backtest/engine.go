// Package backtest replays historical market data through the strategy
// engine with a simulated account standing in for a broker. The strategy,
// risk and dispatch code paths are exactly the ones live trading uses; only
// the data source and the order sink are simulated.
package backtest

import (
	"context"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/argo-strategy/internal/datasource"
	"github.com/rxtech-lab/argo-strategy/internal/engine"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/risk"
	"github.com/rxtech-lab/argo-strategy/internal/strategy"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

// Config tunes a backtest run.
type Config struct {
	// InitialBalance is the starting cash of the simulated account.
	InitialBalance float64 `yaml:"initial_balance" json:"initial_balance" validate:"gt=0"`
	// FillPolicy controls order execution simulation.
	FillPolicy FillPolicy `yaml:"fill_policy" json:"fill_policy"`
	// Engine tunes callback failure handling, identical to live trading.
	Engine engine.Config `yaml:"engine" json:"engine"`
}

var validate = validator.New()

// Engine drives a historical replay through the strategy engine.
type Engine struct {
	config  Config
	account *SimulatedAccount
	inner   *engine.Engine
	state   *State
	logger  *logger.Logger

	events   types.EventHandler
	progress func(processed, total int)
}

// NewEngine builds a backtest around a fresh simulated account. The state
// database records every order and trade of the run.
func NewEngine(config Config, registry *strategy.Registry, riskManager *risk.Manager, log *logger.Logger) (*Engine, error) {
	if err := validate.Struct(config); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid backtest config", err)
	}
	if log == nil {
		log = logger.NewNopLogger()
	}

	state, err := NewState(log)
	if err != nil {
		return nil, err
	}
	if err := state.Initialize(); err != nil {
		state.Close()
		return nil, err
	}

	account := NewSimulatedAccount(config.InitialBalance, config.FillPolicy, log)
	account.SetFillHandler(func(trade types.Trade) {
		if err := state.RecordTrade(trade); err != nil {
			log.Warn("failed to record trade", zap.Error(err))
		}
	})

	e := &Engine{
		config:  config,
		account: account,
		state:   state,
		logger:  log,
	}
	e.inner = engine.NewEngine(registry, riskManager, account, account, log, config.Engine)
	e.inner.SetEventHandler(e.handleEvent)
	return e, nil
}

// CreateStrategy adds a strategy instance to the run.
func (e *Engine) CreateStrategy(config strategy.Config) (string, error) {
	return e.inner.CreateStrategy(config)
}

// RiskManager exposes the underlying risk pipeline.
func (e *Engine) RiskManager() *risk.Manager {
	return e.inner.RiskManager()
}

// Account returns the simulated account.
func (e *Engine) Account() *SimulatedAccount {
	return e.account
}

// State returns the run's order and trade records.
func (e *Engine) State() *State {
	return e.state
}

// SetEventHandler installs the consumer of engine and backtest events.
func (e *Engine) SetEventHandler(handler types.EventHandler) {
	e.events = handler
}

// SetProgressHandler installs a callback invoked after every processed
// event with the running count and the total.
func (e *Engine) SetProgressHandler(handler func(processed, total int)) {
	e.progress = handler
}

// handleEvent persists order outcomes and forwards everything to the
// installed handler.
func (e *Engine) handleEvent(event types.Event) {
	switch ev := event.(type) {
	case types.OrderAcceptedEvent:
		if err := e.state.RecordOrder(ev.Order); err != nil {
			e.logger.Warn("failed to record order", zap.Error(err))
		}
	case types.OrderRejectedEvent:
		order := ev.Order
		order.Status = types.OrderStatusRejected
		order.Reason = types.Reason{Reason: types.OrderReasonRiskRejected, Message: ev.Reason}
		if err := e.state.RecordOrder(order); err != nil {
			e.logger.Warn("failed to record rejected order", zap.Error(err))
		}
	}
	if e.events != nil {
		e.events(event)
	}
}

// RunBacktest replays the source's events in [start, end) through the
// engine for one strategy instance and returns the run's metrics. The
// source is filtered to the instance's configured symbols and intervals, so
// a dataset that carries none of them fails with an insufficient-data error
// instead of silently producing an empty run. The instance is started if
// still in CREATED and stopped when the replay finishes. The replay is
// deterministic: identical inputs produce identical metrics.
func (e *Engine) RunBacktest(ctx context.Context, source datasource.Source, instanceID string, start, end time.Time) (types.BacktestMetrics, error) {
	inst, err := e.inner.Instance(instanceID)
	if err != nil {
		return types.BacktestMetrics{}, err
	}
	symbols := inst.Config().Symbols
	intervals := inst.Config().Intervals

	total, err := source.Count(symbols, intervals, start, end)
	if err != nil {
		return types.BacktestMetrics{}, err
	}
	if total == 0 {
		return types.BacktestMetrics{}, errors.NewInsufficientDataError(symbols, start, end, "no market data in backtest range for the instance's symbols and intervals")
	}

	if inst.State() == engine.InstanceStateCreated {
		if err := e.inner.StartStrategy(instanceID); err != nil {
			return types.BacktestMetrics{}, err
		}
	}

	curve := make([]types.EquityPoint, 0, total)
	peak := e.account.Equity()
	processed := 0

	for data, err := range source.GetEvents(symbols, intervals, start, end) {
		if err != nil {
			return types.BacktestMetrics{}, err
		}
		if err := ctx.Err(); err != nil {
			return types.BacktestMetrics{}, errors.Wrap(errors.ErrCodeBacktestAborted, "backtest canceled", err)
		}

		// Resting limit orders fill against the bar before strategies see
		// it, so a fill and the reaction to it never share a bar.
		e.account.OnBar(data)
		e.updateRiskContext(&peak)
		e.inner.OnMarketData(data)

		curve = append(curve, types.EquityPoint{Time: data.Time, Equity: e.account.Equity()})
		processed++
		if e.progress != nil {
			e.progress(processed, total)
		}
	}

	if inst.State() == engine.InstanceStateRunning {
		if err := e.inner.StopStrategy(instanceID); err != nil {
			e.logger.Warn("failed to stop instance after replay",
				zap.String("instance_id", instanceID),
				zap.Error(err))
		}
	}

	metrics := ComputeMetrics(curve, e.account.Trades(), e.config.InitialBalance)
	if e.events != nil {
		e.events(types.BacktestCompletedEvent{Metrics: metrics})
	}
	return metrics, nil
}

// updateRiskContext refreshes the drawdown the risk rules observe. The
// drawdown is a percentage off the equity high-water mark.
func (e *Engine) updateRiskContext(peak *float64) {
	equity := e.account.Equity()
	if equity > *peak {
		*peak = equity
	}
	if *peak > 0 {
		drawdown := (*peak - equity) / *peak * 100
		e.inner.RiskManager().UpdateContext(map[string]any{
			risk.ContextKeyDrawdown: drawdown,
		})
	}
}

// Close releases the run's state database.
func (e *Engine) Close() error {
	return e.state.Close()
}
