package backtest

import (
	"database/sql"

	"github.com/Masterminds/squirrel"
	_ "github.com/marcboeker/go-duckdb"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/argo-strategy/internal/logger"
	"github.com/rxtech-lab/argo-strategy/internal/types"
	"github.com/rxtech-lab/argo-strategy/pkg/errors"
)

// State persists the order and trade history of one backtest run in DuckDB,
// keeping the full audit trail queryable after the run.
type State struct {
	db     *sql.DB
	sq     squirrel.StatementBuilderType
	logger *logger.Logger
}

// NewState opens an in-memory DuckDB database for run bookkeeping.
func NewState(log *logger.Logger) (*State, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	db, err := sql.Open("duckdb", ":memory:")
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeDataSourceUnavailable, "failed to open state database", err)
	}
	return &State{
		db:     db,
		sq:     squirrel.StatementBuilder.PlaceholderFormat(squirrel.Question),
		logger: log,
	}, nil
}

// Initialize creates the orders and trades tables.
func (s *State) Initialize() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS orders (
			order_id TEXT PRIMARY KEY,
			symbol TEXT,
			side TEXT,
			order_type TEXT,
			quantity DOUBLE,
			price DOUBLE,
			strategy_id TEXT,
			status TEXT,
			reason TEXT,
			message TEXT,
			timestamp TIMESTAMP
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create orders table", err)
	}

	_, err = s.db.Exec(`
		CREATE TABLE IF NOT EXISTS trades (
			order_id TEXT,
			symbol TEXT,
			side TEXT,
			executed_at TIMESTAMP,
			executed_qty DOUBLE,
			executed_price DOUBLE,
			fee DOUBLE,
			pnl DOUBLE
		)
	`)
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to create trades table", err)
	}
	return nil
}

// RecordOrder inserts one order with its final engine-side status.
func (s *State) RecordOrder(order types.Order) error {
	var price any
	if p, ok := order.LimitPrice(); ok {
		price = p
	}
	query, args, err := s.sq.Insert("orders").
		Columns("order_id", "symbol", "side", "order_type", "quantity", "price", "strategy_id", "status", "reason", "message", "timestamp").
		Values(order.OrderID, order.Symbol, string(order.Side), string(order.OrderType), order.Quantity, price, order.StrategyID, string(order.Status), order.Reason.Reason, order.Reason.Message, order.Timestamp).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build order insert", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to record order", err)
	}
	return nil
}

// RecordTrade inserts one executed trade.
func (s *State) RecordTrade(trade types.Trade) error {
	query, args, err := s.sq.Insert("trades").
		Columns("order_id", "symbol", "side", "executed_at", "executed_qty", "executed_price", "fee", "pnl").
		Values(trade.Order.OrderID, trade.Order.Symbol, string(trade.Order.Side), trade.ExecutedAt, trade.ExecutedQty, trade.ExecutedPrice, trade.Fee, trade.PnL).
		ToSql()
	if err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trade insert", err)
	}
	if _, err := s.db.Exec(query, args...); err != nil {
		return errors.Wrap(errors.ErrCodeQueryFailed, "failed to record trade", err)
	}
	return nil
}

// GetOrders returns every recorded order in submission order.
func (s *State) GetOrders() ([]types.Order, error) {
	query, args, err := s.sq.Select("order_id", "symbol", "side", "order_type", "quantity", "price", "strategy_id", "status", "reason", "message", "timestamp").
		From("orders").
		OrderBy("timestamp ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build orders query", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query orders", err)
	}
	defer rows.Close()

	var orders []types.Order
	for rows.Next() {
		var (
			order types.Order
			price sql.NullFloat64
		)
		if err := rows.Scan(&order.OrderID, &order.Symbol, &order.Side, &order.OrderType, &order.Quantity, &price, &order.StrategyID, &order.Status, &order.Reason.Reason, &order.Reason.Message, &order.Timestamp); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan order", err)
		}
		if price.Valid {
			order.Price = optional.Some(price.Float64)
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// GetTrades returns every recorded trade in execution order.
func (s *State) GetTrades() ([]types.Trade, error) {
	query, args, err := s.sq.Select("order_id", "symbol", "side", "executed_at", "executed_qty", "executed_price", "fee", "pnl").
		From("trades").
		OrderBy("executed_at ASC").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to build trades query", err)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to query trades", err)
	}
	defer rows.Close()

	var trades []types.Trade
	for rows.Next() {
		var trade types.Trade
		if err := rows.Scan(&trade.Order.OrderID, &trade.Order.Symbol, &trade.Order.Side, &trade.ExecutedAt, &trade.ExecutedQty, &trade.ExecutedPrice, &trade.Fee, &trade.PnL); err != nil {
			return nil, errors.Wrap(errors.ErrCodeQueryFailed, "failed to scan trade", err)
		}
		trades = append(trades, trade)
	}
	return trades, rows.Err()
}

// Close releases the database.
func (s *State) Close() error {
	return s.db.Close()
}
