package types

import "time"

// Interval is the candle timeframe of a market data event.
type Interval string

const (
	Interval1m  Interval = "1m"
	Interval5m  Interval = "5m"
	Interval15m Interval = "15m"
	Interval30m Interval = "30m"
	Interval1h  Interval = "1h"
	Interval4h  Interval = "4h"
	Interval6h  Interval = "6h"
	Interval8h  Interval = "8h"
	Interval12h Interval = "12h"
	Interval1d  Interval = "1d"
	Interval1w  Interval = "1w"
	Interval1M  Interval = "1M"
)

// Duration returns the wall-clock length of one candle. The monthly interval
// is approximated as 30 days.
func (i Interval) Duration() time.Duration {
	switch i {
	case Interval1m:
		return time.Minute
	case Interval5m:
		return 5 * time.Minute
	case Interval15m:
		return 15 * time.Minute
	case Interval30m:
		return 30 * time.Minute
	case Interval1h:
		return time.Hour
	case Interval4h:
		return 4 * time.Hour
	case Interval6h:
		return 6 * time.Hour
	case Interval8h:
		return 8 * time.Hour
	case Interval12h:
		return 12 * time.Hour
	case Interval1d:
		return 24 * time.Hour
	case Interval1w:
		return 7 * 24 * time.Hour
	case Interval1M:
		return 30 * 24 * time.Hour
	default:
		return 0
	}
}

// IsValid reports whether the interval is one of the supported timeframes.
func (i Interval) IsValid() bool {
	return i.Duration() > 0
}

// MarketData is a single candle for a (symbol, interval) pair. Values are
// immutable once produced by a data source.
type MarketData struct {
	Symbol   string    `yaml:"symbol" csv:"symbol"`
	Interval Interval  `yaml:"interval" csv:"interval"`
	Time     time.Time `yaml:"time" csv:"time"`
	Open     float64   `yaml:"open" csv:"open"`
	High     float64   `yaml:"high" csv:"high"`
	Low      float64   `yaml:"low" csv:"low"`
	Close    float64   `yaml:"close" csv:"close"`
	Volume   float64   `yaml:"volume" csv:"volume"`
}
