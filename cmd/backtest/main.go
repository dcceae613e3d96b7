package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/schollz/progressbar/v3"
	"github.com/urfave/cli/v3"

	"github.com/rxtech-lab/argo-strategy/internal/backtest"
	"github.com/rxtech-lab/argo-strategy/internal/datasource"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/risk"
	"github.com/rxtech-lab/argo-strategy/internal/strategy"
	"github.com/rxtech-lab/argo-strategy/internal/types"
)

func main() {
	cmd := &cli.Command{
		Name:  "backtest",
		Usage: "Run trading strategies against historical market data",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Path to the backtest configuration file",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "data",
				Aliases:  []string{"d"},
				Usage:    "Path to the market data file",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Market data format: parquet, csv, or duckdb",
				Value:   "parquet",
			},
			&cli.TimestampFlag{
				Name:    "start",
				Aliases: []string{"s"},
				Usage:   "Start of the backtest range (inclusive)",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.TimestampFlag{
				Name:    "end",
				Aliases: []string{"e"},
				Usage:   "End of the backtest range (exclusive)",
				Config: cli.TimestampConfig{
					Layouts: []string{"2006-01-02"},
				},
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the backtest metrics to a YAML file",
			},
		},
		Action: backtestAction,
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal(err)
	}
}

func backtestAction(ctx context.Context, cmd *cli.Command) error {
	cfg, err := LoadConfig(cmd.String("config"))
	if err != nil {
		return err
	}

	log, err := logger.NewLogger()
	if err != nil {
		return err
	}

	registry := strategy.NewRegistry()
	if err := registry.Register("interval_buy", strategy.NewIntervalBuy); err != nil {
		return err
	}

	if err := registry.Register("sma_crossover", strategy.NewSMACrossover); err != nil {
		return err
	}

	source, err := openSource(cmd.String("data"), cmd.String("format"), log)
	if err != nil {
		return err
	}
	defer source.Close()

	// Each configured strategy gets its own run with a fresh account and
	// risk pipeline, so runs cannot influence each other.
	for _, strategyCfg := range cfg.Strategies {
		metrics, err := runStrategy(ctx, cfg, strategyCfg, registry, source, log, cmd)
		if err != nil {
			return err
		}

		fmt.Printf("\n%s\n", strategyCfg.StrategyName)
		renderMetrics(metrics)

		if output := cmd.String("output"); output != "" {
			path := metricsPath(output, strategyCfg.StrategyName, len(cfg.Strategies) > 1)
			if err := types.WriteMetrics(path, metrics); err != nil {
				return err
			}

			fmt.Printf("Metrics written to %s\n", path)
		}
	}

	return nil
}

// runStrategy backtests one strategy config on its own engine.
func runStrategy(ctx context.Context, cfg *AppConfig, strategyCfg strategy.Config, registry *strategy.Registry, source datasource.Source, log *logger.Logger, cmd *cli.Command) (types.BacktestMetrics, error) {
	riskManager := risk.NewManager(log)
	for _, ruleCfg := range cfg.RiskRules {
		rule, err := buildRiskRule(ruleCfg)
		if err != nil {
			return types.BacktestMetrics{}, err
		}

		if err := riskManager.AddRule(rule); err != nil {
			return types.BacktestMetrics{}, err
		}
	}

	bt, err := backtest.NewEngine(cfg.Backtest, registry, riskManager, log)
	if err != nil {
		return types.BacktestMetrics{}, err
	}
	defer bt.Close()

	id, err := bt.CreateStrategy(strategyCfg)
	if err != nil {
		return types.BacktestMetrics{}, err
	}

	var bar *progressbar.ProgressBar

	bt.SetProgressHandler(func(processed, total int) {
		if bar == nil {
			bar = progressbar.Default(int64(total), "backtesting "+strategyCfg.StrategyName)
		}

		//nolint:errcheck
		bar.Set(processed)
	})

	return bt.RunBacktest(ctx, source, id, cmd.Timestamp("start"), cmd.Timestamp("end"))
}

// metricsPath suffixes the output path with the strategy name when several
// strategies share one run, so their metrics files do not clobber each
// other.
func metricsPath(output, strategyName string, multiple bool) string {
	if !multiple {
		return output
	}
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + "_" + strategyName + ext
}

// openSource opens the market data behind a DuckDB-backed source. Parquet and
// CSV files are loaded into an in-memory database, duckdb files are opened
// directly.
func openSource(path string, format string, log *logger.Logger) (*datasource.DuckDBSource, error) {
	if format == "duckdb" {
		return datasource.NewDuckDBSource(path, log)
	}

	source, err := datasource.NewDuckDBSource("", log)
	if err != nil {
		return nil, err
	}

	switch format {
	case "parquet":
		err = source.LoadParquet(path)
	case "csv":
		err = source.LoadCSV(path)
	default:
		err = fmt.Errorf("unknown data format %q, expected parquet, csv, or duckdb", format)
	}

	if err != nil {
		source.Close()
		return nil, err
	}

	return source, nil
}

func renderMetrics(metrics types.BacktestMetrics) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Period", fmt.Sprintf("%s - %s",
			metrics.StartTime.Format(time.DateOnly),
			metrics.EndTime.Format(time.DateOnly))},
		{"Initial Equity", fmt.Sprintf("%.2f", metrics.InitialEquity)},
		{"Final Equity", fmt.Sprintf("%.2f", metrics.FinalEquity)},
		{"Total Return", fmt.Sprintf("%.2f%%", metrics.TotalReturn*100)},
		{"Annualized Return", fmt.Sprintf("%.2f%%", metrics.AnnualizedReturn*100)},
		{"Max Drawdown", fmt.Sprintf("%.2f%%", metrics.MaxDrawdown*100)},
		{"Sharpe Ratio", fmt.Sprintf("%.2f", metrics.SharpeRatio)},
		{"Total Trades", fmt.Sprintf("%d", metrics.TotalTrades)},
		{"Win Rate", fmt.Sprintf("%.2f%%", metrics.WinRate*100)},
	})
	t.Render()
}
