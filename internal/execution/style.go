// Package execution resolves user-facing order parameters into an execution
// style: the order intent the blotter places, together with the
// direction-adjusted prices it carries.
package execution

import (
	"github.com/shopspring/decimal"
)

// Kind is the order intent. The bracketed kinds additionally open a
// take-profit and/or stop-loss once the base order fills.
type Kind int

const (
	Market Kind = iota
	Limit
	Stop
	StopLimit
	BracketedMarket
	BracketedLimit
	BracketedStop
	BracketedStopLimit
)

var kindNames = map[Kind]string{
	Market:             "market",
	Limit:              "limit",
	Stop:               "stop",
	StopLimit:          "stop_limit",
	BracketedMarket:    "bracketed_market",
	BracketedLimit:     "bracketed_limit",
	BracketedStop:      "bracketed_stop",
	BracketedStopLimit: "bracketed_stop_limit",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Bracketed reports whether the kind carries take-profit/stop-loss legs.
func (k Kind) Bracketed() bool {
	return k >= BracketedMarket
}

// Params are the raw order parameters. A zero value means "not supplied".
type Params struct {
	Limit      float64
	Stop       float64
	StopLoss   float64
	TakeProfit float64
	Trailing   float64

	// TickSize rounds limit and stop prices; 0 leaves them untouched.
	TickSize float64
}

// Style is a resolved order intent. Fields irrelevant to Kind are zero.
type Style struct {
	Kind       Kind
	Limit      float64
	Stop       float64
	StopLoss   float64
	TakeProfit float64
	Trailing   float64
	TickSize   float64
}

// Resolve maps params onto exactly one Kind. Limit+stop wins over limit,
// which wins over stop, which wins over market; any stop-loss or take-profit
// switches to the bracketed variant of the same intent.
func Resolve(p Params) Style {
	hasLimit := p.Limit != 0
	hasStop := p.Stop != 0

	var kind Kind
	switch {
	case hasLimit && hasStop:
		kind = StopLimit
	case hasLimit:
		kind = Limit
	case hasStop:
		kind = Stop
	default:
		kind = Market
	}

	s := Style{Kind: kind, TickSize: p.TickSize}
	if hasLimit {
		s.Limit = p.Limit
	}
	if hasStop {
		s.Stop = p.Stop
	}

	if p.StopLoss != 0 || p.TakeProfit != 0 {
		s.Kind = kind + BracketedMarket
		s.StopLoss = p.StopLoss
		s.TakeProfit = p.TakeProfit
		s.Trailing = p.Trailing
	}
	return s
}

// LimitPrice returns the limit price for the given direction, rounded so a
// buy never pays more and a sell never receives less than requested. Zero
// means no limit.
func (s Style) LimitPrice(isBuy bool) float64 {
	if s.Limit == 0 {
		return 0
	}
	return asymmetricRound(s.Limit, s.TickSize, isBuy)
}

// StopPrice returns the stop price for the given direction. Buy stops round
// up and sell stops round down. Zero means no stop.
func (s Style) StopPrice(isBuy bool) float64 {
	if s.Stop == 0 {
		return 0
	}
	return asymmetricRound(s.Stop, s.TickSize, !isBuy)
}

// TakeProfitPrice is the limit price of the take-profit leg.
func (s Style) TakeProfitPrice(_ bool) float64 { return s.TakeProfit }

// StopLossPrice is the stop price of the stop-loss leg.
func (s Style) StopLossPrice(_ bool) float64 { return s.StopLoss }

// TrailingOffset is carried through to the order unchanged.
func (s Style) TrailingOffset(_ bool) float64 { return s.Trailing }

// asymmetricRound rounds price onto the tick grid, preferring the given
// direction unless price sits within 5% of a tick from the other boundary.
func asymmetricRound(price, tick float64, preferDown bool) float64 {
	if tick <= 0 {
		return price
	}
	p := decimal.NewFromFloat(price)
	t := decimal.NewFromFloat(tick)
	tolerance := t.Mul(decimal.NewFromFloat(0.05))

	var steps decimal.Decimal
	if preferDown {
		steps = p.Add(tolerance).Div(t).Floor()
	} else {
		steps = p.Sub(tolerance).Div(t).Ceil()
	}
	rounded, _ := steps.Mul(t).Float64()
	return rounded
}
