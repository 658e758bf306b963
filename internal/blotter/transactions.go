package blotter

import (
	"fmt"
	"time"

	"forexsim/internal/domain"
)

// StepResult is everything the matching loop produced for one bar.
type StepResult struct {
	Transactions []domain.Transaction
	Commissions  []domain.Commission
	Closed       []*Order
}

// GetTransactions matches every asset's open orders against its bar in
// bars. Assets without a bar in this step are skipped. Within an asset, fills
// are applied in the order the slippage model reports them, and bracket legs
// for a base order are opened only after that order's own fill is booked.
func (b *Blotter) GetTransactions(bars map[string]domain.Bar) (StepResult, error) {
	var res StepResult

	ids := b.OpenAssets()
	if len(ids) == 0 {
		return res, nil
	}

	assets, err := b.retrieveAssets(ids)
	if err != nil {
		return res, err
	}

	for _, id := range ids {
		bar, ok := bars[id]
		if !ok {
			continue
		}
		asset, ok := assets[id]
		if !ok {
			return res, fmt.Errorf("%w: %s", ErrUnknownAsset, id)
		}

		for _, fill := range b.slippage.Fill(bar, asset, b.OpenOrders(id)) {
			b.applyFill(fill, &res)
		}
	}
	return res, nil
}

func (b *Blotter) retrieveAssets(ids []string) (map[string]domain.Asset, error) {
	if b.assets == nil {
		out := make(map[string]domain.Asset, len(ids))
		for _, id := range ids {
			out[id] = domain.Asset{ID: id, Symbol: id}
		}
		return out, nil
	}

	resolved, err := b.assets.RetrieveAll(ids)
	if err != nil {
		return nil, fmt.Errorf("resolving assets: %w", err)
	}
	out := make(map[string]domain.Asset, len(resolved))
	for _, a := range resolved {
		out[a.ID] = a
	}
	return out, nil
}

func (b *Blotter) applyFill(fill Fill, res *StepResult) {
	order, txn := fill.Order, fill.Transaction

	// The order may have been closed earlier in this step, either by its
	// sibling filling or by netting shrinking it.
	if !order.Open() {
		return
	}
	if remaining := order.Remaining(); abs(txn.Amount) > abs(remaining) {
		txn.Amount = remaining
	}
	if txn.Amount == 0 || (txn.Amount > 0) != (order.Amount > 0) {
		return
	}
	txn.OrderID = order.ID
	txn.Asset = order.Asset

	var cost float64
	if b.commission != nil {
		cost = b.commission.Calculate(order, txn)
	}
	if cost > 0 {
		res.Commissions = append(res.Commissions, domain.Commission{
			Asset:   order.Asset,
			OrderID: order.ID,
			Cost:    cost,
		})
	}

	res.Transactions = append(res.Transactions, txn)
	order.Filled += txn.Amount
	order.Commission += cost
	order.DT = txn.Timestamp

	if !order.Open() {
		res.Closed = append(res.Closed, order)
		b.closeOrder(order)
	}

	if order.IsBracketLeg() {
		b.legFilled(order, txn.Amount)
		return
	}
	remaining := b.closeExistingBrackets(order.Asset, txn.Amount)
	b.openBracket(order, remaining, txn.Price, txn.Timestamp)
}

// legFilled books a leg fill against its pair. A partial fill resizes the
// sibling so both legs keep the same open quantity.
func (b *Blotter) legFilled(leg *Order, amount int64) {
	if base, ok := b.orders[leg.BaseOrderID]; ok {
		base.bracketed += amount
	}
	if !leg.Open() {
		b.closeBracket(leg)
		return
	}
	if sibling := b.sibling(leg); sibling != nil && sibling.Open() {
		b.partiallyCancel(sibling, amount)
	}
}

// closeBracket books a fully filled leg as a profit or loss exit and cancels
// its sibling without relaying, since both close in the same step.
func (b *Blotter) closeBracket(leg *Order) {
	switch leg.Leg {
	case LegTakeProfit:
		b.profitOrders[leg.Asset] = append(b.profitOrders[leg.Asset], leg)
	case LegStopLoss:
		b.lossOrders[leg.Asset] = append(b.lossOrders[leg.Asset], leg)
	}
	b.logger.Info("bracket closed",
		"id", leg.ID,
		"asset", leg.Asset,
		"leg", leg.Leg.String(),
		"amount", leg.Amount,
	)

	if sibling := b.sibling(leg); sibling != nil {
		b.cancel(sibling.ID, false)
	}
}

func (b *Blotter) sibling(leg *Order) *Order {
	base, ok := b.orders[leg.BaseOrderID]
	if !ok {
		return nil
	}
	switch leg {
	case base.TPOrder:
		return base.SLOrder
	case base.SLOrder:
		return base.TPOrder
	}
	return nil
}

// openBracket opens, or grows, the take-profit and stop-loss legs of base for
// amount, the part of a fill that netting left over.
func (b *Blotter) openBracket(base *Order, amount int64, price float64, dt time.Time) {
	base.DT = dt
	if amount == 0 || (base.TakeProfit == 0 && base.StopLoss == 0) {
		return
	}

	prev := float64(abs(base.bracketed))
	qty := float64(abs(amount))
	base.TxnPrice = (base.TxnPrice*prev + price*qty) / (prev + qty)
	base.bracketed += amount

	if base.TakeProfit != 0 {
		base.TPOrder = b.openLeg(base, base.TPOrder, LegTakeProfit, amount, dt)
	}
	if base.StopLoss != 0 {
		base.SLOrder = b.openLeg(base, base.SLOrder, LegStopLoss, amount, dt)
	}
}

func (b *Blotter) openLeg(base, current *Order, leg Leg, amount int64, dt time.Time) *Order {
	if current != nil && current.Open() {
		current.Amount -= amount
		current.DT = dt
		b.newOrders.Append(current.ID)
		b.logger.Debug("bracket grown", "id", current.ID, "amount", current.Amount)
		return current
	}

	o := b.newOrder(b.legID(base.ID, leg), base.Asset, -amount)
	o.Created = dt
	o.DT = dt
	o.BaseOrderID = base.ID
	o.Leg = leg
	switch leg {
	case LegTakeProfit:
		o.Limit = base.TakeProfit
	case LegStopLoss:
		o.Stop = base.StopLoss
		o.Trailing = base.Trailing
	}
	b.track(o)

	b.logger.Debug("bracket opened",
		"id", o.ID,
		"base", base.ID,
		"leg", leg.String(),
		"amount", o.Amount,
	)
	return o
}

// legID derives a leg id from its base. A base whose earlier legs already
// closed gets numbered ids.
func (b *Blotter) legID(baseID string, leg Leg) string {
	suffix := "_tp"
	if leg == LegStopLoss {
		suffix = "_sl"
	}
	id := baseID + suffix
	for n := 2; ; n++ {
		if _, taken := b.orders[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s%s%d", baseID, suffix, n)
	}
}
