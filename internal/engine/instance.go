package engine

import (
	"sync"

	"github.com/rxtech-lab/argo-strategy/internal/strategy"
)

// InstanceState is the lifecycle state of a strategy instance.
type InstanceState string

const (
	// InstanceStateCreated means the instance is initialized but not yet
	// receiving market data.
	InstanceStateCreated InstanceState = "CREATED"
	// InstanceStateRunning means the instance receives market data.
	InstanceStateRunning InstanceState = "RUNNING"
	// InstanceStateStopped means delivery is paused. Strategy state is
	// retained and the instance can be started again.
	InstanceStateStopped InstanceState = "STOPPED"
	// InstanceStateErrored is terminal: the instance exceeded its failure
	// budget and can only be removed.
	InstanceStateErrored InstanceState = "ERRORED"
)

// Instance binds one strategy value to its configuration and lifecycle
// state. The mutex serializes callbacks and excludes lifecycle transitions
// while a callback is in flight.
type Instance struct {
	mu sync.Mutex

	id       string
	strategy strategy.Strategy
	config   strategy.Config
	ctx      *strategy.Context

	state    InstanceState
	failures int

	// pending holds the outcome channel of a timed-out callback that is
	// still running. While set, no further callbacks are delivered: the
	// orphaned goroutine shares the context and strategy state, and a
	// concurrent callback would race it.
	pending chan callbackOutcome
}

// ID returns the instance identifier.
func (i *Instance) ID() string { return i.id }

// StrategyName returns the name of the strategy this instance runs.
func (i *Instance) StrategyName() string { return i.config.StrategyName }

// Config returns the instance configuration.
func (i *Instance) Config() strategy.Config { return i.config }

// State returns the current lifecycle state.
func (i *Instance) State() InstanceState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// subscribed reports whether the instance wants bars for the given symbol
// and interval.
func (i *Instance) subscribed(symbol string, interval string) bool {
	match := false
	for _, iv := range i.config.Intervals {
		if string(iv) == interval {
			match = true
			break
		}
	}
	if !match {
		return false
	}
	for _, s := range i.config.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
