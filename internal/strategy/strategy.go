// Package strategy defines the trading strategy contract and the registry
// the engines resolve strategy names against. Strategies are plain Go
// implementations compiled into the binary and registered at startup.
package strategy

import (
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// Strategy is the contract every trading strategy implements. The engine
// guarantees that Initialize and OnMarketData calls for one instance never
// overlap, so implementations may keep unsynchronized state.
type Strategy interface {
	// Name is the registry key for this strategy.
	Name() string
	// Initialize is called once when an instance is created, before any
	// market data is delivered. Parameter validation belongs here.
	Initialize(ctx *Context) error
	// OnMarketData handles one bar and returns the orders and
	// cancellations the strategy wants executed.
	OnMarketData(ctx *Context, data types.MarketData) (Result, error)
}

// RequiredParamer is optionally implemented by strategies that want the
// engine to reject instance creation when configuration keys are missing.
type RequiredParamer interface {
	RequiredParams() []string
}

// Result is the outcome of one OnMarketData callback.
type Result struct {
	// Orders are new orders to submit, in the order the strategy decided
	// them.
	Orders []types.Order
	// Cancels holds IDs of previously submitted orders to cancel.
	// Cancellations are not risk-checked.
	Cancels []string
	// Logs are free-form messages the strategy emitted during the
	// callback, in emission order.
	Logs []string
}

// AccountView provides strategies a read-only snapshot of account state.
// The returned value is a copy; mutating it has no effect.
type AccountView interface {
	AccountInfo() types.AccountInfo
}
