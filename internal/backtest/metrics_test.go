package backtest

import (
	"testing"
	"time"

	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/stretchr/testify/suite"
)

type MetricsTestSuite struct {
	suite.Suite
	base time.Time
}

func (s *MetricsTestSuite) SetupSuite() {
	s.base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
}

func (s *MetricsTestSuite) curve(values ...float64) []types.EquityPoint {
	points := make([]types.EquityPoint, len(values))
	for i, v := range values {
		points[i] = types.EquityPoint{Time: s.base.AddDate(0, 0, i), Equity: v}
	}
	return points
}

func sellTrade(pnl float64) types.Trade {
	return types.Trade{
		Order: types.Order{Side: types.OrderSideSell},
		PnL:   pnl,
	}
}

func (s *MetricsTestSuite) TestTotalReturn() {
	metrics := ComputeMetrics(s.curve(10000, 10500, 11000), nil, 10000)
	s.InDelta(0.10, metrics.TotalReturn, 1e-9)
	s.Equal(10000.0, metrics.InitialEquity)
	s.Equal(11000.0, metrics.FinalEquity)
}

func (s *MetricsTestSuite) TestAnnualizedReturnCompounds() {
	// A 10% gain over one year stays 10% annualized.
	points := []types.EquityPoint{
		{Time: s.base, Equity: 10000},
		{Time: s.base.AddDate(1, 0, 0), Equity: 11000},
	}
	metrics := ComputeMetrics(points, nil, 10000)
	s.InDelta(0.10, metrics.AnnualizedReturn, 1e-3)
}

func (s *MetricsTestSuite) TestMaxDrawdownPeakToTrough() {
	// Peak 12000, trough 9000: drawdown 25%.
	metrics := ComputeMetrics(s.curve(10000, 12000, 9000, 11000), nil, 10000)
	s.InDelta(0.25, metrics.MaxDrawdown, 1e-9)
}

func (s *MetricsTestSuite) TestWinRateCountsOnlySells() {
	trades := []types.Trade{
		{Order: types.Order{Side: types.OrderSideBuy}},
		sellTrade(50),
		sellTrade(-20),
		sellTrade(10),
	}
	metrics := ComputeMetrics(s.curve(10000, 10040), trades, 10000)
	s.Equal(4, metrics.TotalTrades)
	s.Equal(2, metrics.WinningTrades)
	s.Equal(1, metrics.LosingTrades)
	s.InDelta(2.0/3.0, metrics.WinRate, 1e-9)
}

func (s *MetricsTestSuite) TestSharpeZeroForFlatCurve() {
	metrics := ComputeMetrics(s.curve(10000, 10000, 10000), nil, 10000)
	s.Equal(0.0, metrics.SharpeRatio)
}

func (s *MetricsTestSuite) TestSharpePositiveForSteadyGains() {
	metrics := ComputeMetrics(s.curve(10000, 10100, 10250, 10400), nil, 10000)
	s.Greater(metrics.SharpeRatio, 0.0)
}

func (s *MetricsTestSuite) TestEmptyCurve() {
	metrics := ComputeMetrics(nil, nil, 10000)
	s.Equal(0.0, metrics.TotalReturn)
	s.Equal(0.0, metrics.MaxDrawdown)
	s.Equal(10000.0, metrics.FinalEquity)
}

func TestMetricsTestSuite(t *testing.T) {
	suite.Run(t, new(MetricsTestSuite))
}
