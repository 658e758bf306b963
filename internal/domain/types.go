// Package domain defines the value types shared by the blotter, the
// simulation engine, the stores and the strategies.
package domain

import "time"

// Market identifies the venue family a symbol trades on. It selects the
// trading calendar and the storage layout.
type Market string

const (
	MarketForex Market = "forex"
	MarketUS    Market = "us"
)

// Asset is the resolved instrument an order refers to. The blotter only
// relies on ID being stable.
type Asset struct {
	ID       string
	Symbol   string
	Market   Market
	TickSize float64 // minimum price increment; 0 disables rounding
}

// Bar is a single OHLCV bar for one symbol.
type Bar struct {
	Symbol     string
	Timestamp  time.Time
	Open       float64
	High       float64
	Low        float64
	Close      float64
	Volume     int64
	TradeCount int64
	VWAP       float64
}

// Quote is a top-of-book bid/ask tick.
type Quote struct {
	Symbol    string
	Timestamp time.Time
	Bid       float64
	Ask       float64
}

// Mid is the midpoint of bid and ask.
func (q Quote) Mid() float64 {
	return (q.Bid + q.Ask) / 2
}

// Transaction is a simulated fill. Amount follows the order sign convention:
// positive buys, negative sells.
type Transaction struct {
	Asset     string
	OrderID   string
	Amount    int64
	Price     float64
	Timestamp time.Time
}

// Commission is the cost charged against one fill of an order.
type Commission struct {
	Asset   string
	OrderID string
	Cost    float64
}

// PositionSide tells whether a position is long or short.
type PositionSide string

const (
	PositionSideLong  PositionSide = "long"
	PositionSideShort PositionSide = "short"
	PositionSideFlat  PositionSide = "flat"
)

// Position is the net holding for one asset.
type Position struct {
	Asset     string
	Amount    int64
	CostBasis float64 // average entry price of the open amount
	LastPrice float64
}

// Side returns the position direction derived from Amount.
func (p Position) Side() PositionSide {
	switch {
	case p.Amount > 0:
		return PositionSideLong
	case p.Amount < 0:
		return PositionSideShort
	default:
		return PositionSideFlat
	}
}

// MarketValue is Amount priced at the last seen price.
func (p Position) MarketValue() float64 {
	return float64(p.Amount) * p.LastPrice
}

// AccountInfo is a snapshot of the simulated account.
type AccountInfo struct {
	StartingCash   float64
	Cash           float64
	PositionsValue float64
	Equity         float64
	PnL            float64
	RealizedPnL    float64
	Commissions    float64
}

// Signal is an order request emitted by a strategy. Zero prices mean absent.
type Signal struct {
	StrategyID string
	Asset      string
	Amount     int64
	Limit      float64
	Stop       float64
	StopLoss   float64
	TakeProfit float64
	Trailing   float64
	Reason     string
	CreatedAt  time.Time
}

// IsBracketed reports whether the signal carries a take-profit or stop-loss.
func (s Signal) IsBracketed() bool {
	return s.StopLoss != 0 || s.TakeProfit != 0
}
