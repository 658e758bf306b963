package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"forexsim/internal/domain"
	"forexsim/internal/util"

	_ "modernc.org/sqlite" // Pure-Go SQLite driver.
)

// Compile-time interface checks.
var _ BarStore = (*SQLiteStore)(nil)
var _ OrderStore = (*SQLiteStore)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS bars (
    market      TEXT    NOT NULL,
    symbol      TEXT    NOT NULL,
    ts          INTEGER NOT NULL,
    open        REAL    NOT NULL,
    high        REAL    NOT NULL,
    low         REAL    NOT NULL,
    close       REAL    NOT NULL,
    volume      INTEGER NOT NULL DEFAULT 0,
    trade_count INTEGER NOT NULL DEFAULT 0,
    vwap        REAL    NOT NULL DEFAULT 0,
    PRIMARY KEY (market, symbol, ts)
);

CREATE TABLE IF NOT EXISTS runs (
    id           TEXT PRIMARY KEY,
    strategy     TEXT    NOT NULL,
    symbols      TEXT    NOT NULL,
    start_ts     INTEGER NOT NULL,
    end_ts       INTEGER NOT NULL,
    created_at   INTEGER NOT NULL,
    total_return REAL    NOT NULL DEFAULT 0,
    max_drawdown REAL    NOT NULL DEFAULT 0,
    total_trades INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS orders (
    run_id        TEXT    NOT NULL,
    seq           INTEGER NOT NULL,
    id            TEXT    NOT NULL,
    base_order_id TEXT    NOT NULL DEFAULT '',
    leg           TEXT    NOT NULL,
    asset         TEXT    NOT NULL,
    amount        INTEGER NOT NULL,
    filled        INTEGER NOT NULL,
    limit_price   REAL    NOT NULL DEFAULT 0,
    stop_price    REAL    NOT NULL DEFAULT 0,
    take_profit   REAL    NOT NULL DEFAULT 0,
    stop_loss     REAL    NOT NULL DEFAULT 0,
    commission    REAL    NOT NULL DEFAULT 0,
    status        TEXT    NOT NULL,
    created_ts    INTEGER NOT NULL,
    updated_ts    INTEGER NOT NULL,
    PRIMARY KEY (run_id, id)
);

CREATE TABLE IF NOT EXISTS transactions (
    run_id   TEXT    NOT NULL,
    seq      INTEGER NOT NULL,
    order_id TEXT    NOT NULL,
    asset    TEXT    NOT NULL,
    amount   INTEGER NOT NULL,
    price    REAL    NOT NULL,
    ts       INTEGER NOT NULL,
    PRIMARY KEY (run_id, seq)
);
`

// Write attempts made when the database is busy.
const (
	writeAttempts = 3
	writeBackoff  = 50 * time.Millisecond
)

// SQLiteStore implements BarStore and OrderStore backed by a SQLite
// database. The bars table holds minute bars; the remaining tables hold the
// audit trail of backtest runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath and returns
// a ready-to-use SQLiteStore with its schema applied. ":memory:" opens a
// private in-memory database.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite prefers a single writer.

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// inTx runs fn in a transaction, retrying the whole transaction while the
// database is locked by another connection.
func (s *SQLiteStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	return util.RetryIf(ctx, writeAttempts, writeBackoff, isBusy, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		return tx.Commit()
	})
}

func isBusy(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars upserts bars keyed by (market, symbol, timestamp).
func (s *SQLiteStore) WriteBars(ctx context.Context, market string, bars []domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO bars
			    (market, symbol, ts, open, high, low, close, volume, trade_count, vwap)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range bars {
			if _, err := stmt.ExecContext(ctx, market, strings.ToUpper(b.Symbol), b.Timestamp.UnixMilli(),
				b.Open, b.High, b.Low, b.Close, b.Volume, b.TradeCount, b.VWAP); err != nil {
				return fmt.Errorf("insert bar %s@%s: %w", b.Symbol, b.Timestamp.Format(time.RFC3339), err)
			}
		}
		return nil
	})
}

// ReadBars returns bars for symbol within [start, end] ordered by time.
func (s *SQLiteStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT symbol, ts, open, high, low, close, volume, trade_count, vwap
		FROM bars
		WHERE market = ? AND symbol = ? AND ts >= ? AND ts <= ?
		ORDER BY ts`,
		market, strings.ToUpper(symbol), start.UnixMilli(), end.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var bars []domain.Bar
	for rows.Next() {
		var (
			b  domain.Bar
			ts int64
		)
		if err := rows.Scan(&b.Symbol, &ts, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume, &b.TradeCount, &b.VWAP); err != nil {
			return nil, err
		}
		b.Timestamp = time.UnixMilli(ts).UTC()
		bars = append(bars, b)
	}
	return bars, rows.Err()
}

// ListSymbols returns the symbols that have bars in market.
func (s *SQLiteStore) ListSymbols(ctx context.Context, market string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars WHERE market = ? ORDER BY symbol`, market)
	if err != nil {
		return nil, fmt.Errorf("query symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, err
		}
		symbols = append(symbols, sym)
	}
	return symbols, rows.Err()
}

// ---------------------------------------------------------------------------
// OrderStore implementation
// ---------------------------------------------------------------------------

// SaveRun inserts or replaces a run summary.
func (s *SQLiteStore) SaveRun(ctx context.Context, run Run) error {
	created := run.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT OR REPLACE INTO runs
			    (id, strategy, symbols, start_ts, end_ts, created_at, total_return, max_drawdown, total_trades)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, run.Strategy, strings.Join(run.Symbols, ","), run.Start.UnixMilli(), run.End.UnixMilli(),
			created.UnixMilli(), run.TotalReturn, run.MaxDrawdown, run.TotalTrades)
		return err
	})
}

// LatestRun returns the most recently created run.
func (s *SQLiteStore) LatestRun(ctx context.Context) (Run, error) {
	var (
		run                     Run
		symbols                 string
		startTS, endTS, created int64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, strategy, symbols, start_ts, end_ts, created_at, total_return, max_drawdown, total_trades
		FROM runs ORDER BY created_at DESC, rowid DESC LIMIT 1`).
		Scan(&run.ID, &run.Strategy, &symbols, &startTS, &endTS, &created,
			&run.TotalReturn, &run.MaxDrawdown, &run.TotalTrades)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("query latest run: %w", err)
	}
	if symbols != "" {
		run.Symbols = strings.Split(symbols, ",")
	}
	run.Start = time.UnixMilli(startTS).UTC()
	run.End = time.UnixMilli(endTS).UTC()
	run.CreatedAt = time.UnixMilli(created).UTC()
	return run, nil
}

// SaveOrders inserts or replaces the orders of runID, keeping their order.
func (s *SQLiteStore) SaveOrders(ctx context.Context, runID string, orders []OrderRecord) error {
	if len(orders) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO orders
			    (run_id, seq, id, base_order_id, leg, asset, amount, filled, limit_price, stop_price,
			     take_profit, stop_loss, commission, status, created_ts, updated_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, o := range orders {
			if _, err := stmt.ExecContext(ctx, runID, i, o.ID, o.BaseOrderID, o.Leg, o.Asset, o.Amount, o.Filled,
				o.Limit, o.Stop, o.TakeProfit, o.StopLoss, o.Commission, o.Status,
				o.Created.UnixMilli(), o.Updated.UnixMilli()); err != nil {
				return fmt.Errorf("insert order %s: %w", o.ID, err)
			}
		}
		return nil
	})
}

// ListOrders returns the orders saved for runID in placement order.
func (s *SQLiteStore) ListOrders(ctx context.Context, runID string) ([]OrderRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, base_order_id, leg, asset, amount, filled, limit_price, stop_price,
		       take_profit, stop_loss, commission, status, created_ts, updated_ts
		FROM orders WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []OrderRecord
	for rows.Next() {
		var (
			o                OrderRecord
			created, updated int64
		)
		if err := rows.Scan(&o.ID, &o.BaseOrderID, &o.Leg, &o.Asset, &o.Amount, &o.Filled, &o.Limit, &o.Stop,
			&o.TakeProfit, &o.StopLoss, &o.Commission, &o.Status, &created, &updated); err != nil {
			return nil, err
		}
		o.Created = time.UnixMilli(created).UTC()
		o.Updated = time.UnixMilli(updated).UTC()
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// SaveTransactions appends txns to the fills of runID.
func (s *SQLiteStore) SaveTransactions(ctx context.Context, runID string, txns []domain.Transaction) error {
	if len(txns) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		var next int64
		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(seq) + 1, 0) FROM transactions WHERE run_id = ?`, runID).Scan(&next); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO transactions (run_id, seq, order_id, asset, amount, price, ts)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, t := range txns {
			if _, err := stmt.ExecContext(ctx, runID, next+int64(i), t.OrderID, t.Asset, t.Amount, t.Price,
				t.Timestamp.UnixMilli()); err != nil {
				return fmt.Errorf("insert transaction for %s: %w", t.OrderID, err)
			}
		}
		return nil
	})
}

// ListTransactions returns the fills of runID ordered by time.
func (s *SQLiteStore) ListTransactions(ctx context.Context, runID string) ([]domain.Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT order_id, asset, amount, price, ts
		FROM transactions WHERE run_id = ? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	var txns []domain.Transaction
	for rows.Next() {
		var (
			t  domain.Transaction
			ts int64
		)
		if err := rows.Scan(&t.OrderID, &t.Asset, &t.Amount, &t.Price, &ts); err != nil {
			return nil, err
		}
		t.Timestamp = time.UnixMilli(ts).UTC()
		txns = append(txns, t)
	}
	sort.SliceStable(txns, func(i, j int) bool { return txns[i].Timestamp.Before(txns[j].Timestamp) })
	return txns, rows.Err()
}
