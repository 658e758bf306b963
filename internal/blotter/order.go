package blotter

import (
	"fmt"
	"time"
)

// Leg tells a bracket leg apart from a base order.
type Leg int

const (
	LegNone Leg = iota
	LegTakeProfit
	LegStopLoss
)

func (l Leg) String() string {
	switch l {
	case LegTakeProfit:
		return "take_profit"
	case LegStopLoss:
		return "stop_loss"
	default:
		return "base"
	}
}

// Order is a single base order or bracket leg. Amount and Filled share the
// sign convention: positive buys/covers, negative sells/shorts. Prices are
// zero when absent.
//
// Orders are owned by the Blotter; callers must treat them as read-only.
type Order struct {
	ID     string
	Asset  string
	Amount int64
	Filled int64

	Limit float64
	Stop  float64

	TakeProfit float64
	StopLoss   float64
	Trailing   float64

	// BaseOrderID is set on bracket legs only.
	BaseOrderID string
	Leg         Leg

	// TPOrder and SLOrder are the legs of a base order once opened.
	TPOrder *Order
	SLOrder *Order

	// TxnPrice is the average fill price of the bracketed quantity.
	TxnPrice float64

	Commission float64
	Created    time.Time
	DT         time.Time
	Cancelled  bool

	StopReached  bool
	LimitReached bool

	seq       uint64
	bracketed int64
}

// Open reports whether the order can still be filled.
func (o *Order) Open() bool {
	return !o.Cancelled && abs(o.Filled) < abs(o.Amount)
}

// IsBuy reports the order direction.
func (o *Order) IsBuy() bool {
	return o.Amount > 0
}

// IsBracketLeg reports whether the order was opened by a base order fill.
func (o *Order) IsBracketLeg() bool {
	return o.BaseOrderID != ""
}

// Remaining is the signed quantity still to be filled.
func (o *Order) Remaining() int64 {
	return o.Amount - o.Filled
}

// Triggered reports whether the order's stop and limit conditions are both
// satisfied. A market order is always triggered.
func (o *Order) Triggered() bool {
	if o.Stop != 0 && !o.StopReached {
		return false
	}
	if o.Limit != 0 && !o.LimitReached {
		return false
	}
	return true
}

// CheckTriggers updates the stop/limit flags against price. A stop-limit
// order whose stop is hit becomes a plain limit order.
func (o *Order) CheckTriggers(price float64, dt time.Time) {
	if o.Triggered() {
		return
	}

	var stopReached, limitReached, stopLimitStopped bool
	switch {
	case o.Stop != 0 && o.Limit != 0:
		if (o.IsBuy() && price >= o.Stop) || (!o.IsBuy() && price <= o.Stop) {
			stopLimitStopped = true
			limitReached = o.limitCrossed(price)
		}
	case o.Stop != 0:
		stopReached = (o.IsBuy() && price >= o.Stop) || (!o.IsBuy() && price <= o.Stop)
	case o.Limit != 0:
		limitReached = o.limitCrossed(price)
	}

	if stopReached != o.StopReached || limitReached != o.LimitReached {
		o.DT = dt
	}
	o.StopReached = stopReached
	o.LimitReached = limitReached
	if stopLimitStopped {
		o.Stop = 0
	}
}

func (o *Order) limitCrossed(price float64) bool {
	if o.IsBuy() {
		return price <= o.Limit
	}
	return price >= o.Limit
}

func (o *Order) String() string {
	return fmt.Sprintf("%s %s %s amount=%d filled=%d limit=%g stop=%g",
		o.ID, o.Leg, o.Asset, o.Amount, o.Filled, o.Limit, o.Stop)
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
