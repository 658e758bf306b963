// Package blotter is the backtest-time order book. It places and cancels
// orders, matches them against each simulated bar through the slippage and
// commission models, opens take-profit/stop-loss legs when base orders fill
// and nets opposite fills against previously opened bracket pairs.
//
// A Blotter is not safe for concurrent use; the simulation driver calls it
// from a single goroutine, one step at a time.
package blotter

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"forexsim/internal/domain"
	"forexsim/internal/execution"
)

// DefaultMaxShares guards against runaway order sizes from a buggy strategy.
const DefaultMaxShares int64 = 100_000_000_000

var (
	ErrOrderTooLarge = errors.New("order exceeds max shares")
	ErrUnknownAsset  = errors.New("unknown asset")
)

// Fill pairs an order with a simulated transaction against it.
type Fill struct {
	Order       *Order
	Transaction domain.Transaction
}

// Slippage decides which open orders fill on a bar, at what price and for
// how much.
type Slippage interface {
	Fill(bar domain.Bar, asset domain.Asset, orders []*Order) []Fill
}

// CommissionModel prices a fill. It must return a non-negative cost.
type CommissionModel interface {
	Calculate(order *Order, txn domain.Transaction) float64
}

// AssetFinder resolves asset ids referenced by open orders.
type AssetFinder interface {
	RetrieveAll(ids []string) ([]domain.Asset, error)
}

// Config wires a Blotter to its collaborators.
type Config struct {
	MaxShares  int64
	Slippage   Slippage
	Commission CommissionModel
	Assets     AssetFinder
	Logger     *slog.Logger
}

// Blotter holds every order placed during a simulation.
type Blotter struct {
	maxShares  int64
	slippage   Slippage
	commission CommissionModel
	assets     AssetFinder
	logger     *slog.Logger

	currentDT time.Time
	seq       uint64

	// orders is the arena; entries are never removed.
	orders     map[string]*Order
	openOrders map[string]*idIndex
	newOrders  *idIndex

	profitOrders map[string][]*Order
	lossOrders   map[string][]*Order
}

// New creates an empty Blotter.
func New(cfg Config) *Blotter {
	maxShares := cfg.MaxShares
	if maxShares <= 0 {
		maxShares = DefaultMaxShares
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Blotter{
		maxShares:    maxShares,
		slippage:     cfg.Slippage,
		commission:   cfg.Commission,
		assets:       cfg.Assets,
		logger:       logger.With("component", "blotter"),
		orders:       make(map[string]*Order),
		openOrders:   make(map[string]*idIndex),
		newOrders:    newIDIndex(),
		profitOrders: make(map[string][]*Order),
		lossOrders:   make(map[string][]*Order),
	}
}

// SetDate sets the current simulated time. The driver must never move it
// backwards.
func (b *Blotter) SetDate(dt time.Time) {
	b.currentDT = dt
}

// CurrentDate returns the simulated time of the step in progress.
func (b *Blotter) CurrentDate() time.Time {
	return b.currentDT
}

// MaxShares returns the configured order size ceiling.
func (b *Blotter) MaxShares() int64 {
	return b.maxShares
}

// Order places a new order and returns its id. A zero amount places nothing
// and returns an empty id. An amount whose magnitude exceeds the ceiling
// fails with ErrOrderTooLarge.
func (b *Blotter) Order(asset string, amount int64, style execution.Style) (string, error) {
	if amount == 0 {
		return "", nil
	}
	// Compared without negating: abs(math.MinInt64) overflows.
	if amount > b.maxShares || amount < -b.maxShares {
		return "", fmt.Errorf("%w: |%d| > %d", ErrOrderTooLarge, amount, b.maxShares)
	}

	isBuy := amount > 0
	o := b.newOrder(uuid.NewString(), asset, amount)
	o.Stop = style.StopPrice(isBuy)
	o.Limit = style.LimitPrice(isBuy)
	o.TakeProfit = style.TakeProfitPrice(isBuy)
	o.StopLoss = style.StopLossPrice(isBuy)
	o.Trailing = style.TrailingOffset(isBuy)
	b.track(o)

	b.logger.Debug("order placed",
		"id", o.ID,
		"asset", asset,
		"amount", amount,
		"style", style.Kind.String(),
	)
	return o.ID, nil
}

// Cancel cancels an open order and relays the transition through
// NewOrders. Unknown or closed orders are ignored.
func (b *Blotter) Cancel(id string) {
	b.cancel(id, true)
}

// CancelAll cancels every open order for asset.
func (b *Blotter) CancelAll(asset string) {
	idx, ok := b.openOrders[asset]
	if !ok {
		return
	}
	for _, id := range idx.IDs() {
		b.cancel(id, true)
	}
}

func (b *Blotter) cancel(id string, relay bool) {
	o, ok := b.orders[id]
	if !ok || !o.Open() {
		return
	}

	if idx, ok := b.openOrders[o.Asset]; ok {
		idx.Remove(o.ID)
	}
	b.newOrders.Remove(o.ID)
	o.Cancelled = true
	o.DT = b.currentDT

	if relay {
		b.newOrders.Append(o.ID)
	}
	b.logger.Debug("order cancelled", "id", o.ID, "asset", o.Asset, "relay", relay)
}

// Get returns the order with the given id, open or not.
func (b *Blotter) Get(id string) (*Order, bool) {
	o, ok := b.orders[id]
	return o, ok
}

// OpenOrders returns the open orders for asset in placement order.
func (b *Blotter) OpenOrders(asset string) []*Order {
	idx, ok := b.openOrders[asset]
	if !ok {
		return nil
	}
	return b.resolve(idx.IDs())
}

// OpenAssets returns the sorted ids of assets that have open orders.
func (b *Blotter) OpenAssets() []string {
	assets := make([]string, 0, len(b.openOrders))
	for asset, idx := range b.openOrders {
		if idx.Len() > 0 {
			assets = append(assets, asset)
		}
	}
	sort.Strings(assets)
	return assets
}

// NewOrders returns orders placed or whose status changed since the last
// ResetNewOrders.
func (b *Blotter) NewOrders() []*Order {
	return b.resolve(b.newOrders.IDs())
}

// ResetNewOrders clears the batch of status transitions.
func (b *Blotter) ResetNewOrders() {
	b.newOrders.Clear()
}

// ProfitOrders returns the bracket legs for asset closed by take-profit.
func (b *Blotter) ProfitOrders(asset string) []*Order {
	return b.profitOrders[asset]
}

// LossOrders returns the bracket legs for asset closed by stop-loss.
func (b *Blotter) LossOrders(asset string) []*Order {
	return b.lossOrders[asset]
}

// Orders returns every order ever placed, in placement order.
func (b *Blotter) Orders() []*Order {
	all := make([]*Order, 0, len(b.orders))
	for _, o := range b.orders {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	return all
}

func (b *Blotter) newOrder(id, asset string, amount int64) *Order {
	b.seq++
	return &Order{
		ID:      id,
		Asset:   asset,
		Amount:  amount,
		Created: b.currentDT,
		DT:      b.currentDT,
		seq:     b.seq,
	}
}

// track indexes a freshly created order as open and new.
func (b *Blotter) track(o *Order) {
	b.orders[o.ID] = o
	idx, ok := b.openOrders[o.Asset]
	if !ok {
		idx = newIDIndex()
		b.openOrders[o.Asset] = idx
	}
	idx.Append(o.ID)
	b.newOrders.Append(o.ID)
}

// closeOrder removes a no longer open order from its asset's open list.
func (b *Blotter) closeOrder(o *Order) {
	if idx, ok := b.openOrders[o.Asset]; ok {
		idx.Remove(o.ID)
	}
}

func (b *Blotter) resolve(ids []string) []*Order {
	out := make([]*Order, 0, len(ids))
	for _, id := range ids {
		out = append(out, b.orders[id])
	}
	return out
}
