package datasource

import (
	"iter"
	"sort"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// MemorySource serves market data from an in-memory slice. Events are
// sorted once at construction; the input slice is copied and never
// modified.
type MemorySource struct {
	events []types.MarketData
}

// NewMemorySource builds a source over the given events.
func NewMemorySource(events []types.MarketData) *MemorySource {
	sorted := make([]types.MarketData, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.Symbol != b.Symbol {
			return a.Symbol < b.Symbol
		}
		return a.Interval < b.Interval
	})
	return &MemorySource{events: sorted}
}

// GetEvents implements Source.
func (m *MemorySource) GetEvents(symbols []string, intervals []types.Interval, start, end time.Time) iter.Seq2[types.MarketData, error] {
	return func(yield func(types.MarketData, error) bool) {
		for _, event := range m.events {
			if !inRange(event.Time, start, end) || !matches(event, symbols, intervals) {
				continue
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

// Count implements Source.
func (m *MemorySource) Count(symbols []string, intervals []types.Interval, start, end time.Time) (int, error) {
	count := 0
	for _, event := range m.events {
		if inRange(event.Time, start, end) && matches(event, symbols, intervals) {
			count++
		}
	}
	return count, nil
}

// Close implements Source.
func (m *MemorySource) Close() error { return nil }
