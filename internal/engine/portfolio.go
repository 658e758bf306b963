package engine

import (
	"sort"

	"forexsim/internal/domain"
)

// Portfolio books fills into per-asset positions and cash.
type Portfolio struct {
	startingCash float64
	cash         float64
	realized     float64
	commissions  float64
	positions    map[string]*domain.Position
}

func NewPortfolio(startingCash float64) *Portfolio {
	return &Portfolio{
		startingCash: startingCash,
		cash:         startingCash,
		positions:    make(map[string]*domain.Position),
	}
}

// ApplyTransaction moves cash and updates the position for txn.Asset. Fills
// that reduce a position realize PnL against its average cost; a fill that
// flips the position opens the remainder at the fill price.
func (p *Portfolio) ApplyTransaction(txn domain.Transaction) {
	pos, ok := p.positions[txn.Asset]
	if !ok {
		pos = &domain.Position{Asset: txn.Asset}
		p.positions[txn.Asset] = pos
	}
	p.cash -= float64(txn.Amount) * txn.Price
	pos.LastPrice = txn.Price

	switch {
	case pos.Amount == 0 || (pos.Amount > 0) == (txn.Amount > 0):
		held, added := absf(pos.Amount), absf(txn.Amount)
		pos.CostBasis = (pos.CostBasis*held + txn.Price*added) / (held + added)
		pos.Amount += txn.Amount
	default:
		closing := min(absf(pos.Amount), absf(txn.Amount))
		if pos.Amount > 0 {
			p.realized += closing * (txn.Price - pos.CostBasis)
		} else {
			p.realized += closing * (pos.CostBasis - txn.Price)
		}
		before := pos.Amount
		pos.Amount += txn.Amount
		switch {
		case pos.Amount == 0:
			pos.CostBasis = 0
		case (pos.Amount > 0) != (before > 0):
			pos.CostBasis = txn.Price
		}
	}
}

func (p *Portfolio) ApplyCommission(c domain.Commission) {
	p.cash -= c.Cost
	p.commissions += c.Cost
}

// UpdatePrice marks the asset's position, if any, to price.
func (p *Portfolio) UpdatePrice(asset string, price float64) {
	if pos, ok := p.positions[asset]; ok {
		pos.LastPrice = price
	}
}

// Position returns the position for asset; flat if none.
func (p *Portfolio) Position(asset string) domain.Position {
	if pos, ok := p.positions[asset]; ok {
		return *pos
	}
	return domain.Position{Asset: asset}
}

// Positions returns the non-flat positions sorted by asset.
func (p *Portfolio) Positions() []domain.Position {
	out := make([]domain.Position, 0, len(p.positions))
	for _, pos := range p.positions {
		if pos.Amount != 0 {
			out = append(out, *pos)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

func (p *Portfolio) Cash() float64 { return p.cash }

func (p *Portfolio) Account() domain.AccountInfo {
	var value float64
	for _, pos := range p.positions {
		value += pos.MarketValue()
	}
	equity := p.cash + value
	return domain.AccountInfo{
		StartingCash:   p.startingCash,
		Cash:           p.cash,
		PositionsValue: value,
		Equity:         equity,
		PnL:            equity - p.startingCash,
		RealizedPnL:    p.realized,
		Commissions:    p.commissions,
	}
}

func absf(v int64) float64 {
	if v < 0 {
		return float64(-v)
	}
	return float64(v)
}
