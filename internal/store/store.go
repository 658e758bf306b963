// Package store defines storage interfaces for persisting and retrieving
// market data and the audit trail of backtest runs.
package store

import (
	"context"
	"errors"
	"time"

	"forexsim/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// BarStore persists and retrieves OHLCV bar data.
type BarStore interface {
	// WriteBars persists a batch of bars for the given market.
	WriteBars(ctx context.Context, market string, bars []domain.Bar) error

	// ReadBars returns bars for the given symbol and market within [start, end],
	// ordered by timestamp.
	ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error)

	// ListSymbols returns all distinct symbols available in the given market.
	ListSymbols(ctx context.Context, market string) ([]string, error)
}

// QuoteStore persists and retrieves bid/ask ticks.
type QuoteStore interface {
	// WriteQuotes persists a batch of quotes to storage.
	WriteQuotes(ctx context.Context, market string, quotes []domain.Quote) error

	// ReadQuotes returns quotes for the given symbol within [start, end].
	ReadQuotes(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Quote, error)
}

// Run describes one backtest execution.
type Run struct {
	ID          string
	Strategy    string
	Symbols     []string
	Start       time.Time
	End         time.Time
	CreatedAt   time.Time
	TotalReturn float64
	MaxDrawdown float64
	TotalTrades int
}

// OrderRecord is the persisted state of a blotter order at the end of a run.
type OrderRecord struct {
	ID          string
	BaseOrderID string
	Leg         string
	Asset       string
	Amount      int64
	Filled      int64
	Limit       float64
	Stop        float64
	TakeProfit  float64
	StopLoss    float64
	Commission  float64
	Status      string
	Created     time.Time
	Updated     time.Time
}

// Order statuses stored in OrderRecord.Status.
const (
	StatusOpen      = "open"
	StatusFilled    = "filled"
	StatusCancelled = "cancelled"
)

// OrderStore persists the audit trail of backtest runs.
type OrderStore interface {
	// SaveRun inserts or replaces a run summary.
	SaveRun(ctx context.Context, run Run) error

	// LatestRun returns the most recently created run, or ErrNotFound.
	LatestRun(ctx context.Context) (Run, error)

	// SaveOrders inserts the final state of a run's orders.
	SaveOrders(ctx context.Context, runID string, orders []OrderRecord) error

	// ListOrders returns the orders of a run in placement order.
	ListOrders(ctx context.Context, runID string) ([]OrderRecord, error)

	// SaveTransactions inserts a run's fills.
	SaveTransactions(ctx context.Context, runID string, txns []domain.Transaction) error

	// ListTransactions returns a run's fills ordered by time.
	ListTransactions(ctx context.Context, runID string) ([]domain.Transaction, error)
}
