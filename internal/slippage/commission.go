package slippage

import (
	"fmt"

	"github.com/shopspring/decimal"

	"forexsim/internal/blotter"
	"forexsim/internal/domain"
)

const (
	ModelPerShare = "per_share"
	ModelPerTrade = "per_trade"
)

// Compile-time interface checks.
var (
	_ blotter.CommissionModel = (*PerShare)(nil)
	_ blotter.CommissionModel = (*PerTrade)(nil)
)

// PerShare charges Cost per unit traded with a floor of MinTradeCost per
// order. The floor is charged once, on the order's first fill, and later
// fills only add what the running total exceeds it by.
type PerShare struct {
	Cost         float64
	MinTradeCost float64
}

// Calculate is called before the fill is added to order.Filled.
func (c PerShare) Calculate(order *blotter.Order, txn domain.Transaction) float64 {
	cost := decimal.NewFromFloat(c.Cost)
	floor := decimal.NewFromFloat(c.MinTradeCost)
	additional := decimal.NewFromInt(txn.Amount).Mul(cost).Abs()

	if order.Commission == 0 {
		return decimal.Max(floor, additional).InexactFloat64()
	}

	total := decimal.NewFromInt(order.Filled).Mul(cost).Abs().Add(additional)
	if total.LessThan(floor) {
		return 0
	}
	due := total.Sub(decimal.NewFromFloat(order.Commission))
	if due.IsNegative() {
		return 0
	}
	return due.InexactFloat64()
}

// PerTrade charges a flat Cost on an order's first fill.
type PerTrade struct {
	Cost float64
}

func (c PerTrade) Calculate(order *blotter.Order, _ domain.Transaction) float64 {
	if order.Commission != 0 {
		return 0
	}
	return c.Cost
}

// NewCommission builds the named commission model.
func NewCommission(model string, cost, minTradeCost float64) (blotter.CommissionModel, error) {
	switch model {
	case "", ModelPerShare:
		return PerShare{Cost: cost, MinTradeCost: minTradeCost}, nil
	case ModelPerTrade:
		return PerTrade{Cost: cost}, nil
	default:
		return nil, fmt.Errorf("commission %q: %w", model, ErrUnknownModel)
	}
}
