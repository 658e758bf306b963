package blotter

import "github.com/tidwall/btree"

// closeExistingBrackets nets a base order fill of amount against the open
// bracket pairs of asset and returns the part of amount left unabsorbed.
//
// Pairs are walked by their base order's TxnPrice, ascending, ties broken by
// placement order. A pair only absorbs a fill in the direction of its own
// legs, i.e. opposite to its base position; the walk stops at the first pair
// that does not.
func (b *Blotter) closeExistingBrackets(asset string, amount int64) int64 {
	idx, ok := b.openOrders[asset]
	if !ok || amount == 0 {
		return amount
	}

	bases := btree.NewBTreeG(func(x, y *Order) bool {
		if x.TxnPrice != y.TxnPrice {
			return x.TxnPrice < y.TxnPrice
		}
		return x.seq < y.seq
	})
	for _, id := range idx.IDs() {
		leg := b.orders[id]
		if !leg.IsBracketLeg() {
			continue
		}
		if base, ok := b.orders[leg.BaseOrderID]; ok {
			bases.Set(base)
		}
	}

	remaining := amount
	bases.Scan(func(base *Order) bool {
		ref := openLegOf(base)
		if ref == nil {
			return true
		}
		current := ref.Remaining()
		if (remaining > 0) != (current > 0) {
			return false
		}
		if abs(remaining) <= abs(current) {
			b.shrinkBracket(base, remaining)
			remaining = 0
			return false
		}
		b.shrinkBracket(base, current)
		remaining -= current
		return true
	})
	return remaining
}

// openLegOf returns the leg whose open quantity measures the pair's position.
func openLegOf(base *Order) *Order {
	if base.TPOrder != nil && base.TPOrder.Open() {
		return base.TPOrder
	}
	if base.SLOrder != nil && base.SLOrder.Open() {
		return base.SLOrder
	}
	return nil
}

// shrinkBracket reduces both legs of base by qty, which carries the legs'
// sign. A leg left with nothing to fill is retired as cancelled.
func (b *Blotter) shrinkBracket(base *Order, qty int64) {
	for _, leg := range []*Order{base.TPOrder, base.SLOrder} {
		if leg == nil || !leg.Open() {
			continue
		}
		cut := qty
		if abs(cut) > abs(leg.Remaining()) {
			cut = leg.Remaining()
		}
		b.partiallyCancel(leg, cut)
	}
	// The legs carry the opposite sign of the base position.
	base.bracketed += qty
}

// partiallyCancel lowers the target size of leg in place. Id and fill
// history are untouched.
func (b *Blotter) partiallyCancel(leg *Order, qty int64) {
	leg.Amount -= qty
	leg.DT = b.currentDT

	b.logger.Debug("bracket leg resized",
		"id", leg.ID,
		"base", leg.BaseOrderID,
		"by", qty,
		"amount", leg.Amount,
	)

	if leg.Remaining() != 0 {
		b.newOrders.Append(leg.ID)
		return
	}
	b.closeOrder(leg)
	b.newOrders.Remove(leg.ID)
	leg.Cancelled = true
	b.newOrders.Append(leg.ID)
}
