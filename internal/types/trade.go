package types

import "time"

// Trade is the execution record of a filled order.
type Trade struct {
	Order         Order     `csv:"order"`
	ExecutedAt    time.Time `csv:"executed_at"`
	ExecutedQty   float64   `csv:"executed_qty"`
	ExecutedPrice float64   `csv:"executed_price"`
	// Fee is the commission charged for this trade.
	Fee float64 `csv:"fee"`
	// PnL is the realized profit and loss for this trade. Zero for trades that
	// open or increase a position.
	PnL float64 `csv:"pnl"`
}
