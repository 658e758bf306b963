package builtins

import (
	"context"
	"fmt"
	"math"

	"forexsim/internal/domain"
	"forexsim/internal/strategy"
)

var _ strategy.Strategy = (*IchimokuCross)(nil)

// Default Ichimoku periods, in bars.
const (
	DefaultTurn         = 9
	DefaultBase         = 26
	DefaultLagSpan      = 52
	DefaultDisplacement = 26
)

// IchimokuLines holds the Ichimoku Kinko Hyo lines for a price series, one
// value per input price. Values that cannot be computed yet are NaN.
type IchimokuLines struct {
	Price []float64
	// Base and Turn are the midpoints of the highest and lowest price over
	// the last base and turn bars.
	Base []float64
	Turn []float64
	// Lag is the price displacement bars later.
	Lag []float64
	// Cloud1 is the Base/Turn midpoint and Cloud2 the lagSpan midpoint,
	// both shifted forward by displacement bars.
	Cloud1 []float64
	Cloud2 []float64
}

// Ichimoku computes the Ichimoku lines of prices. Every window includes the
// current bar.
func Ichimoku(prices []float64, turn, base, lagSpan, displacement int) IchimokuLines {
	lines := IchimokuLines{
		Price: prices,
		Base:  midrange(prices, base),
		Turn:  midrange(prices, turn),
		Lag:   shift(prices, -displacement),
	}
	mid := make([]float64, len(prices))
	for i := range mid {
		mid[i] = (lines.Base[i] + lines.Turn[i]) / 2
	}
	lines.Cloud1 = shift(mid, displacement)
	lines.Cloud2 = shift(midrange(prices, lagSpan), displacement)
	return lines
}

// midrange returns (min+max)/2 over a trailing window of w prices.
func midrange(prices []float64, w int) []float64 {
	out := make([]float64, len(prices))
	for i := range prices {
		if w <= 0 || i < w-1 {
			out[i] = math.NaN()
			continue
		}
		lo, hi := prices[i], prices[i]
		for _, p := range prices[i-w+1 : i] {
			lo = min(lo, p)
			hi = max(hi, p)
		}
		out[i] = (lo + hi) / 2
	}
	return out
}

// shift moves xs forward by d positions (backward when d < 0), filling the
// gap with NaN.
func shift(xs []float64, d int) []float64 {
	out := make([]float64, len(xs))
	for i := range out {
		j := i - d
		if j < 0 || j >= len(xs) {
			out[i] = math.NaN()
			continue
		}
		out[i] = xs[j]
	}
	return out
}

// IchimokuCross trades turn/base crossovers confirmed by the cloud. While
// flat it buys when the turn line crosses above the base line with the close
// above both cloud lines, and sells on the mirror image. Entries are
// bracketed like SMACross entries.
type IchimokuCross struct {
	turn, base, lagSpan, displacement int

	Amount     int64
	TakeProfit float64
	StopLoss   float64

	closes map[string][]float64
}

// NewIchimokuCross creates an IchimokuCross with the given periods.
func NewIchimokuCross(turn, base, lagSpan, displacement int) *IchimokuCross {
	return &IchimokuCross{
		turn:         turn,
		base:         base,
		lagSpan:      lagSpan,
		displacement: displacement,
		Amount:       1000,
		TakeProfit:   0.0030,
		StopLoss:     0.0015,
	}
}

// Name returns "ikh-cross".
func (s *IchimokuCross) Name() string {
	return "ikh-cross"
}

func (s *IchimokuCross) Init(_ context.Context) error {
	if s.turn <= 0 || s.base <= s.turn || s.lagSpan < s.base || s.displacement <= 0 {
		return fmt.Errorf("ikh-cross: need 0 < turn < base <= lag span and displacement > 0, got %d/%d/%d/%d",
			s.turn, s.base, s.lagSpan, s.displacement)
	}
	s.closes = make(map[string][]float64)
	return nil
}

// warmup is the number of closes needed before the cloud exists at the
// latest bar.
func (s *IchimokuCross) warmup() int {
	return s.lagSpan + s.displacement
}

func (s *IchimokuCross) OnBar(_ context.Context, bar domain.Bar, pos domain.Position) ([]domain.Signal, error) {
	closes := append(s.closes[bar.Symbol], bar.Close)
	if len(closes) > s.warmup()+1 {
		closes = closes[len(closes)-s.warmup()-1:]
	}
	s.closes[bar.Symbol] = closes
	if len(closes) < s.warmup() || pos.Amount != 0 {
		return nil, nil
	}

	lines := Ichimoku(closes, s.turn, s.base, s.lagSpan, s.displacement)
	last := len(closes) - 1
	prev := lines.Turn[last-1] - lines.Base[last-1]
	cur := lines.Turn[last] - lines.Base[last]
	top := max(lines.Cloud1[last], lines.Cloud2[last])
	bottom := min(lines.Cloud1[last], lines.Cloud2[last])

	sig := domain.Signal{
		StrategyID: s.Name(),
		Asset:      bar.Symbol,
		CreatedAt:  bar.Timestamp,
	}
	switch {
	case prev <= 0 && cur > 0 && bar.Close > top:
		sig.Amount = s.Amount
		sig.TakeProfit = bar.Close + s.TakeProfit
		sig.StopLoss = bar.Close - s.StopLoss
		sig.Reason = "turn crossed above base over the cloud"
	case prev >= 0 && cur < 0 && bar.Close < bottom:
		sig.Amount = -s.Amount
		sig.TakeProfit = bar.Close - s.TakeProfit
		sig.StopLoss = bar.Close + s.StopLoss
		sig.Reason = "turn crossed below base under the cloud"
	default:
		return nil, nil
	}
	return []domain.Signal{sig}, nil
}
