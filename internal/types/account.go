package types

// Position represents current holdings of a single symbol.
type Position struct {
	Symbol        string  `yaml:"symbol" csv:"symbol"`
	Quantity      float64 `yaml:"quantity" csv:"quantity"`
	AvgEntryPrice float64 `yaml:"avg_entry_price" csv:"avg_entry_price"`
	// RealizedPnL is the accumulated realized profit/loss from closed quantity.
	RealizedPnL float64 `yaml:"realized_pnl" csv:"realized_pnl"`
}

// MarketValue returns the position value at the given price.
func (p Position) MarketValue(price float64) float64 {
	return p.Quantity * price
}

// AccountInfo is a read-only snapshot of portfolio state. It is a value copy:
// mutating it never affects the account it was taken from.
type AccountInfo struct {
	// Balance is the free cash balance.
	Balance float64 `yaml:"balance" json:"balance"`
	// Equity is the total account value (balance + position market value).
	Equity float64 `yaml:"equity" json:"equity"`
	// Positions maps symbol to the open position for that symbol.
	Positions map[string]Position `yaml:"positions" json:"positions"`
}

// Position returns the position for symbol, or a zero position if none is open.
func (a AccountInfo) Position(symbol string) Position {
	if p, ok := a.Positions[symbol]; ok {
		return p
	}

	return Position{Symbol: symbol}
}
