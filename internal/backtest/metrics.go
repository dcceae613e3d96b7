package backtest

import (
	"math"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/types"
)

// tradingDaysPerYear is the conventional annualization factor for the
// Sharpe ratio.
const tradingDaysPerYear = 252

// ComputeMetrics derives summary statistics from a backtest's equity curve
// and executed trades. The equity curve must be in chronological order.
func ComputeMetrics(curve []types.EquityPoint, trades []types.Trade, initialEquity float64) types.BacktestMetrics {
	metrics := types.BacktestMetrics{
		InitialEquity: initialEquity,
		FinalEquity:   initialEquity,
		TotalTrades:   len(trades),
	}
	if len(curve) > 0 {
		metrics.StartTime = curve[0].Time
		metrics.EndTime = curve[len(curve)-1].Time
		metrics.FinalEquity = curve[len(curve)-1].Equity
	}

	if initialEquity > 0 {
		metrics.TotalReturn = metrics.FinalEquity/initialEquity - 1
	}
	metrics.AnnualizedReturn = annualize(metrics.TotalReturn, metrics.StartTime, metrics.EndTime)
	metrics.MaxDrawdown = maxDrawdown(curve)
	metrics.SharpeRatio = sharpe(curve)

	// Only sells realize PnL; buys are entries and never count as wins or
	// losses.
	for _, trade := range trades {
		if trade.Order.Side != types.OrderSideSell {
			continue
		}
		if trade.PnL > 0 {
			metrics.WinningTrades++
		} else if trade.PnL < 0 {
			metrics.LosingTrades++
		}
	}
	if closed := metrics.WinningTrades + metrics.LosingTrades; closed > 0 {
		metrics.WinRate = float64(metrics.WinningTrades) / float64(closed)
	}
	return metrics
}

// annualize compounds the total return over the run length:
// (1+r)^(365/days) - 1. Runs shorter than one day return the raw total.
func annualize(totalReturn float64, start, end time.Time) float64 {
	days := end.Sub(start).Hours() / 24
	if days < 1 {
		return totalReturn
	}
	return math.Pow(1+totalReturn, 365/days) - 1
}

// maxDrawdown is the largest peak-to-trough decline of the equity curve as
// a fraction of the peak.
func maxDrawdown(curve []types.EquityPoint) float64 {
	var peak, worst float64
	for _, point := range curve {
		if point.Equity > peak {
			peak = point.Equity
		}
		if peak > 0 {
			if dd := (peak - point.Equity) / peak; dd > worst {
				worst = dd
			}
		}
	}
	return worst
}

// sharpe is the annualized ratio of mean to standard deviation of
// per-period equity returns. Zero-variance curves have no meaningful ratio
// and report zero.
func sharpe(curve []types.EquityPoint) float64 {
	if len(curve) < 2 {
		return 0
	}
	returns := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev := curve[i-1].Equity
		if prev == 0 {
			continue
		}
		returns = append(returns, curve[i].Equity/prev-1)
	}
	if len(returns) < 2 {
		return 0
	}

	var sum float64
	for _, r := range returns {
		sum += r
	}
	mean := sum / float64(len(returns))

	var variance float64
	for _, r := range returns {
		variance += (r - mean) * (r - mean)
	}
	variance /= float64(len(returns) - 1)
	if variance == 0 {
		return 0
	}
	return mean / math.Sqrt(variance) * math.Sqrt(tradingDaysPerYear)
}
