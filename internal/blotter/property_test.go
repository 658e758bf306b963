package blotter

import (
	"testing"
	"time"

	"pgregory.net/rapid"

	"forexsim/internal/domain"
	"forexsim/internal/execution"
)

func barsAt(asset string, price float64, dt time.Time) map[string]domain.Bar {
	return map[string]domain.Bar{
		asset: {Symbol: asset, Timestamp: dt, Open: price, High: price, Low: price, Close: price, Volume: 1_000_000},
	}
}

// checkInvariants verifies the bookkeeping laws that must hold after any
// sequence of operations.
func checkInvariants(t *rapid.T, b *Blotter) {
	open := make(map[string]bool)
	for _, o := range b.OpenOrders(testAsset) {
		open[o.ID] = true
	}

	for _, o := range b.Orders() {
		if abs(o.Filled) > abs(o.Amount) {
			t.Fatalf("%s: filled %d exceeds amount %d", o.ID, o.Filled, o.Amount)
		}
		if o.Filled != 0 && o.Amount != 0 && (o.Filled > 0) != (o.Amount > 0) {
			t.Fatalf("%s: filled %d has the wrong sign for amount %d", o.ID, o.Filled, o.Amount)
		}
		if o.Open() != open[o.ID] {
			t.Fatalf("%s: Open()=%v but indexed=%v", o.ID, o.Open(), open[o.ID])
		}

		if !o.IsBracketLeg() {
			continue
		}
		base, ok := b.Get(o.BaseOrderID)
		if !ok {
			t.Fatalf("%s: unknown base %s", o.ID, o.BaseOrderID)
		}
		if o.Amount != 0 && (o.Amount > 0) == (base.Amount > 0) {
			t.Fatalf("%s: leg amount %d has the base's sign %d", o.ID, o.Amount, base.Amount)
		}
	}

	// Each base has at most one open leg of each kind, and open legs of a
	// pair agree on what is left.
	for _, o := range b.Orders() {
		if o.IsBracketLeg() {
			continue
		}
		tp, sl := o.TPOrder, o.SLOrder
		if tp != nil && sl != nil && tp.Open() && sl.Open() && tp.Remaining() != sl.Remaining() {
			t.Fatalf("%s: legs out of step, tp %d sl %d", o.ID, tp.Remaining(), sl.Remaining())
		}
	}
}

func TestBlotterInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		maxQty := rapid.Int64Range(0, 7).Draw(t, "maxQty")
		b := New(Config{MaxShares: 50, Slippage: closeFill{maxQty: maxQty}})
		b.SetDate(t0)

		price := 100.0
		var placed []string

		t.Repeat(map[string]func(*rapid.T){
			"order": func(t *rapid.T) {
				amount := rapid.Int64Range(-60, 60).Draw(t, "amount")
				var p execution.Params
				if rapid.Bool().Draw(t, "bracketed") {
					offset := rapid.Float64Range(0.5, 5).Draw(t, "offset")
					if amount > 0 {
						p.TakeProfit, p.StopLoss = price+offset, price-offset
					} else {
						p.TakeProfit, p.StopLoss = price-offset, price+offset
					}
				}
				id, err := b.Order(testAsset, amount, execution.Resolve(p))
				switch {
				case abs(amount) > 50:
					if err == nil {
						t.Fatalf("amount %d accepted above the ceiling", amount)
					}
				case amount == 0:
					if id != "" || err != nil {
						t.Fatalf("zero amount placed %q, %v", id, err)
					}
				default:
					if err != nil {
						t.Fatalf("order: %v", err)
					}
					placed = append(placed, id)
				}
			},
			"cancel": func(t *rapid.T) {
				if len(placed) == 0 {
					t.Skip("nothing placed")
				}
				id := rapid.SampledFrom(placed).Draw(t, "id")
				b.Cancel(id)
				n := len(b.NewOrders())
				b.Cancel(id)
				if got := len(b.NewOrders()); got != n {
					t.Fatalf("second cancel changed new orders: %d -> %d", n, got)
				}
			},
			"step": func(t *rapid.T) {
				price += rapid.Float64Range(-3, 3).Draw(t, "move")
				b.SetDate(b.CurrentDate().Add(time.Minute))
				bars := barsAt(testAsset, price, b.CurrentDate())
				if _, err := b.GetTransactions(bars); err != nil {
					t.Fatalf("step: %v", err)
				}
			},
			"reset": func(t *rapid.T) {
				b.ResetNewOrders()
			},
			"": func(t *rapid.T) {
				checkInvariants(t, b)
			},
		})
	})
}
