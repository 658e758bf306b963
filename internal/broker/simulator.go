package broker

import (
	"context"
	"fmt"
	"time"

	"forexsim/internal/blotter"
	"forexsim/internal/domain"
	"forexsim/internal/engine"
	"forexsim/internal/execution"
	"forexsim/internal/store"
)

// DefaultHistorySize is the number of bars per asset kept for History.
const DefaultHistorySize = 5000

// Compile-time interface check.
var _ Broker = (*SimulatorBroker)(nil)

// SimulatorBroker implements the Broker interface on top of a backtest
// engine. Orders go straight to the engine's blotter and fill as later bars
// are processed.
type SimulatorBroker struct {
	engine      *engine.Engine
	assets      blotter.AssetFinder
	history     map[string][]domain.Bar
	historySize int
}

// NewSimulatorBroker creates a SimulatorBroker trading through eng. assets
// supplies tick sizes for price rounding; it may be nil.
func NewSimulatorBroker(eng *engine.Engine, assets blotter.AssetFinder) *SimulatorBroker {
	return &SimulatorBroker{
		engine:      eng,
		assets:      assets,
		history:     make(map[string][]domain.Bar),
		historySize: DefaultHistorySize,
	}
}

// Name returns "simulator".
func (b *SimulatorBroker) Name() string {
	return "simulator"
}

// CreateOrder resolves the order style from p and places it on the blotter.
func (b *SimulatorBroker) CreateOrder(ctx context.Context, asset string, amount int64, p OrderParams) (string, error) {
	tick, err := b.tickSize(asset)
	if err != nil {
		return "", err
	}
	return b.engine.PlaceOrder(ctx, asset, amount, execution.Params{
		Limit:      p.Limit,
		Stop:       p.Stop,
		StopLoss:   p.StopLoss,
		TakeProfit: p.TakeProfit,
		Trailing:   p.Trailing,
		TickSize:   tick,
	})
}

// Submit places the order a strategy signal describes.
func (b *SimulatorBroker) Submit(ctx context.Context, s domain.Signal) (string, error) {
	return b.CreateOrder(ctx, s.Asset, s.Amount, SignalParams(s))
}

// CancelOrder cancels an open order. Cancelling a closed order is a no-op.
func (b *SimulatorBroker) CancelOrder(ctx context.Context, orderID string) error {
	if _, ok := b.engine.Blotter().Get(orderID); !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, orderID)
	}
	b.engine.CancelOrder(ctx, orderID)
	return nil
}

// OpenOrders returns the open orders for asset, bracket legs included.
func (b *SimulatorBroker) OpenOrders(asset string) []*blotter.Order {
	return b.engine.Blotter().OpenOrders(asset)
}

// GetPositions returns the simulated non-flat positions.
func (b *SimulatorBroker) GetPositions(_ context.Context) ([]domain.Position, error) {
	return b.engine.Portfolio().Positions(), nil
}

// GetAccount returns the simulated account marked to the latest bars.
func (b *SimulatorBroker) GetAccount(_ context.Context) (*domain.AccountInfo, error) {
	acct := b.engine.Portfolio().Account()
	return &acct, nil
}

// Observe records bars so History can serve them. The backtester calls it
// once per step.
func (b *SimulatorBroker) Observe(bars map[string]domain.Bar) {
	for asset, bar := range bars {
		h := append(b.history[asset], bar)
		if len(h) > b.historySize {
			h = h[len(h)-b.historySize:]
		}
		b.history[asset] = h
	}
}

// History returns up to count of the most recent bars observed for asset,
// resampled to resolution. A zero resolution returns the bars as observed.
func (b *SimulatorBroker) History(asset string, count int, resolution time.Duration) []domain.Bar {
	bars := b.history[asset]
	if resolution > 0 {
		bars = store.Resample(bars, resolution)
	}
	if count > 0 && len(bars) > count {
		bars = bars[len(bars)-count:]
	}
	out := make([]domain.Bar, len(bars))
	copy(out, bars)
	return out
}

func (b *SimulatorBroker) tickSize(asset string) (float64, error) {
	if b.assets == nil {
		return 0, nil
	}
	found, err := b.assets.RetrieveAll([]string{asset})
	if err != nil {
		return 0, fmt.Errorf("create order: %w", err)
	}
	if len(found) == 0 {
		return 0, fmt.Errorf("create order: %w: %s", blotter.ErrUnknownAsset, asset)
	}
	return found[0].TickSize, nil
}
