// Package engine drives the simulation one bar at a time: it advances the
// blotter's clock, matches open orders and books the resulting fills into a
// portfolio.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"forexsim/internal/blotter"
	"forexsim/internal/domain"
	"forexsim/internal/execution"
)

// Config wires an Engine.
type Config struct {
	Blotter      blotter.Config
	StartingCash float64
	Logger       *slog.Logger
}

// Step is the outcome of one simulated bar.
type Step struct {
	Time         time.Time
	Transactions []domain.Transaction
	Commissions  []domain.Commission
	Closed       []*blotter.Order
	// Updates are the orders placed or changed since the previous step,
	// including bracket legs opened or resized during this one.
	Updates []*blotter.Order
	Account domain.AccountInfo
}

// Engine owns the order book and the portfolio of a single backtest. It is
// not safe for concurrent use.
type Engine struct {
	blotter   *blotter.Blotter
	portfolio *Portfolio
	logger    *slog.Logger
	steps     int
}

// NewEngine creates an Engine with an empty book and StartingCash in cash.
func NewEngine(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	bc := cfg.Blotter
	if bc.Logger == nil {
		bc.Logger = logger
	}
	return &Engine{
		blotter:   blotter.New(bc),
		portfolio: NewPortfolio(cfg.StartingCash),
		logger:    logger.With("component", "engine"),
	}
}

// Blotter exposes the order book.
func (e *Engine) Blotter() *blotter.Blotter { return e.blotter }

// Portfolio exposes the booked positions and cash.
func (e *Engine) Portfolio() *Portfolio { return e.portfolio }

// Steps returns the number of bars processed so far.
func (e *Engine) Steps() int { return e.steps }

// PlaceOrder resolves p into an execution style and places the order.
func (e *Engine) PlaceOrder(_ context.Context, asset string, amount int64, p execution.Params) (string, error) {
	id, err := e.blotter.Order(asset, amount, execution.Resolve(p))
	if err != nil {
		return "", fmt.Errorf("placing %s %d: %w", asset, amount, err)
	}
	return id, nil
}

// CancelOrder cancels an open order; unknown or closed ids are ignored.
func (e *Engine) CancelOrder(_ context.Context, id string) {
	e.blotter.Cancel(id)
}

// ProcessStep advances the clock to dt and matches every open order against
// bars, keyed by asset id. The returned Updates drain the blotter's batch of
// status transitions.
func (e *Engine) ProcessStep(ctx context.Context, dt time.Time, bars map[string]domain.Bar) (Step, error) {
	if err := ctx.Err(); err != nil {
		return Step{}, err
	}
	if !e.blotter.CurrentDate().IsZero() && dt.Before(e.blotter.CurrentDate()) {
		return Step{}, fmt.Errorf("step at %s precedes current time %s", dt, e.blotter.CurrentDate())
	}
	e.blotter.SetDate(dt)

	res, err := e.blotter.GetTransactions(bars)
	if err != nil {
		return Step{}, fmt.Errorf("matching at %s: %w", dt.Format(time.RFC3339), err)
	}

	for _, txn := range res.Transactions {
		e.portfolio.ApplyTransaction(txn)
	}
	for _, c := range res.Commissions {
		e.portfolio.ApplyCommission(c)
	}
	for asset, bar := range bars {
		e.portfolio.UpdatePrice(asset, bar.Close)
	}

	step := Step{
		Time:         dt,
		Transactions: res.Transactions,
		Commissions:  res.Commissions,
		Closed:       res.Closed,
		Updates:      e.blotter.NewOrders(),
		Account:      e.portfolio.Account(),
	}
	e.blotter.ResetNewOrders()
	e.steps++

	if len(step.Transactions) > 0 {
		e.logger.Debug("step filled",
			"time", dt,
			"transactions", len(step.Transactions),
			"closed", len(step.Closed),
			"equity", step.Account.Equity,
		)
	}
	return step, nil
}
