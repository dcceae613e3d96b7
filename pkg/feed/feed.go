// Package feed provides live market data feeds that yield the same
// MarketData the backtest data sources produce, so a strategy instance can
// move from replay to live data without code changes.
package feed

import (
	"context"
	"iter"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// Feed streams realtime candles for a set of symbols. The iterator yields
// MarketData and error pairs; cancel the context to stop streaming.
type Feed interface {
	Name() string
	Stream(ctx context.Context, symbols []string, interval types.Interval) iter.Seq2[types.MarketData, error]
}
