// Package broker defines the Broker interface strategies trade through and
// the simulated implementation backed by the backtest engine.
package broker

import (
	"context"
	"errors"

	"forexsim/internal/domain"
)

// ErrOrderNotFound is returned when cancelling an id the broker never issued.
var ErrOrderNotFound = errors.New("order not found")

// OrderParams carries the optional prices of an order. Zero means absent.
// The combination present selects the order style: limit and/or stop for the
// entry, take-profit and/or stop-loss to bracket it.
type OrderParams struct {
	Limit      float64
	Stop       float64
	StopLoss   float64
	TakeProfit float64
	Trailing   float64
}

// Broker abstracts brokerage operations for order execution and account management.
type Broker interface {
	// Name returns the broker identifier (e.g. "simulator").
	Name() string

	// CreateOrder places an order for amount units of asset, positive to buy
	// and negative to sell, and returns its id. A zero amount places nothing
	// and returns an empty id.
	CreateOrder(ctx context.Context, asset string, amount int64, p OrderParams) (string, error)

	// CancelOrder requests cancellation of an open order by its ID.
	CancelOrder(ctx context.Context, orderID string) error

	// GetPositions returns all current non-flat positions.
	GetPositions(ctx context.Context) ([]domain.Position, error)

	// GetAccount returns a snapshot of the account's financial metrics.
	GetAccount(ctx context.Context) (*domain.AccountInfo, error)
}

// SignalParams extracts the order prices from a strategy signal.
func SignalParams(s domain.Signal) OrderParams {
	return OrderParams{
		Limit:      s.Limit,
		Stop:       s.Stop,
		StopLoss:   s.StopLoss,
		TakeProfit: s.TakeProfit,
		Trailing:   s.Trailing,
	}
}
