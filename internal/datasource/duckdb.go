package datasource

import (
	"database/sql"
	"fmt"
	"iter"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
	"go.uber.org/zap"
)

const marketDataTable = "market_data"

// DuckDBSource streams market data out of a DuckDB database. Data is loaded
// either by pointing the source at a parquet/CSV file, which becomes a view,
// or by inserting events programmatically.
type DuckDBSource struct {
	db     *sql.DB
	logger *logger.Logger
}

// NewDuckDBSource opens a DuckDB database at path. An empty path opens an
// in-memory database.
func NewDuckDBSource(path string, log *logger.Logger) (*DuckDBSource, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open duckdb", err)
	}
	return &DuckDBSource{db: db, logger: log}, nil
}

// LoadParquet exposes a parquet file as the market data view. The file must
// provide time, symbol, interval, open, high, low, close and volume columns.
func (d *DuckDBSource) LoadParquet(path string) error {
	d.logger.Debug("loading parquet into duckdb", zap.String("path", path))
	query := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet('%s')`, marketDataTable, path)
	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to create view from parquet %s", path)
	}
	return nil
}

// LoadCSV exposes a CSV file as the market data view. Column types are
// inferred.
func (d *DuckDBSource) LoadCSV(path string) error {
	d.logger.Debug("loading csv into duckdb", zap.String("path", path))
	query := fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_csv_auto('%s')`, marketDataTable, path)
	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to create view from csv %s", path)
	}
	return nil
}

// CreateTable creates an empty market data table for programmatic inserts.
func (d *DuckDBSource) CreateTable() error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			time TIMESTAMP NOT NULL,
			symbol VARCHAR NOT NULL,
			"interval" VARCHAR NOT NULL,
			open DOUBLE NOT NULL,
			high DOUBLE NOT NULL,
			low DOUBLE NOT NULL,
			close DOUBLE NOT NULL,
			volume DOUBLE NOT NULL
		)`, marketDataTable)
	if _, err := d.db.Exec(query); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create market data table", err)
	}
	return nil
}

// InsertEvents appends events to the market data table.
func (d *DuckDBSource) InsertEvents(events []types.MarketData) error {
	for _, event := range events {
		query, args, err := sq.Insert(marketDataTable).
			Columns("time", "symbol", `"interval"`, "open", "high", "low", "close", "volume").
			Values(event.Time, event.Symbol, string(event.Interval), event.Open, event.High, event.Low, event.Close, event.Volume).
			ToSql()
		if err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build insert", err)
		}
		if _, err := d.db.Exec(query, args...); err != nil {
			return errors.Wrap(errors.ErrCodeQueryFailed, "failed to insert market data", err)
		}
	}
	return nil
}

func queryConditions(symbols []string, intervals []types.Interval, start, end time.Time) []sq.Sqlizer {
	var conds []sq.Sqlizer
	if !start.IsZero() {
		conds = append(conds, sq.GtOrEq{"time": start})
	}
	if !end.IsZero() {
		conds = append(conds, sq.Lt{"time": end})
	}
	if len(symbols) > 0 {
		conds = append(conds, sq.Eq{"symbol": symbols})
	}
	if len(intervals) > 0 {
		values := make([]string, len(intervals))
		for i, iv := range intervals {
			values[i] = string(iv)
		}
		conds = append(conds, sq.Eq{`"interval"`: values})
	}
	return conds
}

// GetEvents implements Source. Rows stream in (time, symbol, interval)
// order in batches to bound memory during long replays.
func (d *DuckDBSource) GetEvents(symbols []string, intervals []types.Interval, start, end time.Time) iter.Seq2[types.MarketData, error] {
	const batchSize = 1000

	return func(yield func(types.MarketData, error) bool) {
		builder := sq.Select("time", "symbol", `"interval"`, "open", "high", "low", "close", "volume").
			From(marketDataTable).
			OrderBy("time ASC", "symbol ASC", `"interval" ASC`)
		for _, cond := range queryConditions(symbols, intervals, start, end) {
			builder = builder.Where(cond)
		}
		query, args, err := builder.ToSql()
		if err != nil {
			yield(types.MarketData{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build query", err))
			return
		}

		rows, err := d.db.Query(query, args...)
		if err != nil {
			yield(types.MarketData{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query market data", err))
			return
		}
		defer rows.Close()

		batch := make([]types.MarketData, 0, batchSize)
		flush := func() bool {
			for _, data := range batch {
				if !yield(data, nil) {
					return false
				}
			}
			batch = batch[:0]
			return true
		}

		for rows.Next() {
			var (
				timestamp                      time.Time
				symbol, interval               string
				open, high, low, close, volume float64
			)
			if err := rows.Scan(&timestamp, &symbol, &interval, &open, &high, &low, &close, &volume); err != nil {
				yield(types.MarketData{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan row", err))
				return
			}
			batch = append(batch, types.MarketData{
				Symbol:   symbol,
				Interval: types.Interval(interval),
				Time:     timestamp,
				Open:     open,
				High:     high,
				Low:      low,
				Close:    close,
				Volume:   volume,
			})
			if len(batch) >= batchSize && !flush() {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(types.MarketData{}, errors.Wrap(errors.ErrCodeQueryFailed, "error iterating rows", err))
			return
		}
		flush()
	}
}

// Count implements Source.
func (d *DuckDBSource) Count(symbols []string, intervals []types.Interval, start, end time.Time) (int, error) {
	builder := sq.Select("COUNT(*)").From(marketDataTable)
	for _, cond := range queryConditions(symbols, intervals, start, end) {
		builder = builder.Where(cond)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build count query", err)
	}
	var count int
	if err := d.db.QueryRow(query, args...).Scan(&count); err != nil {
		return 0, errors.Wrap(errors.ErrCodeQueryFailed, "failed to count market data", err)
	}
	return count, nil
}

// Close implements Source.
func (d *DuckDBSource) Close() error {
	return d.db.Close()
}
