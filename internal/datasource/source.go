// Package datasource provides ordered historical market data streams for
// the backtest engine. All sources yield events sorted by time, then
// symbol, then interval, so replays are deterministic.
package datasource

import (
	"iter"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// Source streams historical market data. GetEvents yields events with time
// in [start, end), strictly ordered by (time, symbol, interval). A zero end
// means no upper bound; a zero start means no lower bound. Empty symbols or
// intervals mean no filter on that dimension.
type Source interface {
	// GetEvents streams events in deterministic order, restricted to the
	// given symbols and intervals. Iteration stops on the first yielded
	// error.
	GetEvents(symbols []string, intervals []types.Interval, start, end time.Time) iter.Seq2[types.MarketData, error]
	// Count returns the number of events matching the filters and range.
	Count(symbols []string, intervals []types.Interval, start, end time.Time) (int, error)
	// Close releases underlying resources.
	Close() error
}

// inRange reports whether t falls in [start, end) under the zero-value
// conventions above.
func inRange(t, start, end time.Time) bool {
	if !start.IsZero() && t.Before(start) {
		return false
	}
	if !end.IsZero() && !t.Before(end) {
		return false
	}
	return true
}

// matches reports whether the event passes the symbol and interval filters.
func matches(event types.MarketData, symbols []string, intervals []types.Interval) bool {
	if len(symbols) > 0 {
		found := false
		for _, s := range symbols {
			if s == event.Symbol {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if len(intervals) > 0 {
		found := false
		for _, iv := range intervals {
			if iv == event.Interval {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
