package types

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EquityPoint is one sample of the account equity curve.
type EquityPoint struct {
	Time   time.Time `yaml:"time"`
	Equity float64   `yaml:"equity"`
}

// BacktestMetrics summarizes the performance of one backtest run.
type BacktestMetrics struct {
	// InitialEquity is the account equity at replay start.
	InitialEquity float64 `yaml:"initial_equity"`
	// FinalEquity is the account equity after the last event.
	FinalEquity float64 `yaml:"final_equity"`
	// TotalReturn is (final - initial) / initial.
	TotalReturn float64 `yaml:"total_return"`
	// AnnualizedReturn extrapolates TotalReturn over a 365-day year.
	AnnualizedReturn float64 `yaml:"annualized_return"`
	// MaxDrawdown is the largest peak-to-trough decline of the equity curve,
	// as a fraction of the peak.
	MaxDrawdown float64 `yaml:"max_drawdown"`
	// SharpeRatio is the risk-adjusted return over the per-event return
	// series, annualized with sqrt(252) and a zero risk-free rate.
	SharpeRatio float64 `yaml:"sharpe_ratio"`
	// Trade statistics.
	TotalTrades   int     `yaml:"total_trades"`
	WinningTrades int     `yaml:"winning_trades"`
	LosingTrades  int     `yaml:"losing_trades"`
	WinRate       float64 `yaml:"win_rate"`
	// Replay window.
	StartTime time.Time `yaml:"start_time"`
	EndTime   time.Time `yaml:"end_time"`
}

// WriteMetrics writes metrics as YAML to the given path.
func WriteMetrics(path string, metrics BacktestMetrics) error {
	data, err := yaml.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write metrics to file: %w", err)
	}

	return nil
}
