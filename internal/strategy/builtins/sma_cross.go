// Package builtins provides built-in strategy implementations that ship with
// forexsim.
package builtins

import (
	"context"
	"fmt"

	"forexsim/internal/domain"
	"forexsim/internal/strategy"
)

// Compile-time interface check.
var _ strategy.Strategy = (*SMACross)(nil)

// SMACross implements a simple moving average crossover strategy. While flat
// it buys when the short-period SMA crosses above the long-period SMA and
// sells when it crosses below. Every entry is a bracketed market order with
// take-profit and stop-loss placed at fixed distances from the signal bar's
// close.
type SMACross struct {
	shortPeriod int
	longPeriod  int

	// Amount is the entry size in units.
	Amount int64
	// TakeProfit and StopLoss are price distances from the entry bar's close.
	TakeProfit float64
	StopLoss   float64

	closes map[string][]float64
	prev   map[string]float64
}

// NewSMACross creates a new SMACross strategy with the specified short and
// long moving average periods.
func NewSMACross(short, long int) *SMACross {
	return &SMACross{
		shortPeriod: short,
		longPeriod:  long,
		Amount:      1000,
		TakeProfit:  0.0020,
		StopLoss:    0.0010,
	}
}

// Name returns "sma-cross".
func (s *SMACross) Name() string {
	return "sma-cross"
}

// Init resets the price buffers.
func (s *SMACross) Init(_ context.Context) error {
	if s.shortPeriod <= 0 || s.longPeriod <= s.shortPeriod {
		return fmt.Errorf("sma-cross: need 0 < short < long, got %d/%d", s.shortPeriod, s.longPeriod)
	}
	s.closes = make(map[string][]float64)
	s.prev = make(map[string]float64)
	return nil
}

// OnBar records the close and emits an entry on a crossover while flat.
func (s *SMACross) OnBar(_ context.Context, bar domain.Bar, pos domain.Position) ([]domain.Signal, error) {
	closes := append(s.closes[bar.Symbol], bar.Close)
	if len(closes) > s.longPeriod {
		closes = closes[len(closes)-s.longPeriod:]
	}
	s.closes[bar.Symbol] = closes
	if len(closes) < s.longPeriod {
		return nil, nil
	}

	spread := mean(closes[len(closes)-s.shortPeriod:]) - mean(closes)
	prev, seen := s.prev[bar.Symbol]
	s.prev[bar.Symbol] = spread
	if !seen || pos.Amount != 0 {
		return nil, nil
	}

	sig := domain.Signal{
		StrategyID: s.Name(),
		Asset:      bar.Symbol,
		CreatedAt:  bar.Timestamp,
	}
	switch {
	case prev <= 0 && spread > 0:
		sig.Amount = s.Amount
		sig.TakeProfit = bar.Close + s.TakeProfit
		sig.StopLoss = bar.Close - s.StopLoss
		sig.Reason = "short sma crossed above long"
	case prev >= 0 && spread < 0:
		sig.Amount = -s.Amount
		sig.TakeProfit = bar.Close - s.TakeProfit
		sig.StopLoss = bar.Close + s.StopLoss
		sig.Reason = "short sma crossed below long"
	default:
		return nil, nil
	}
	return []domain.Signal{sig}, nil
}

func mean(xs []float64) float64 {
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}
