package strategy

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"forexsim/internal/domain"
	"forexsim/internal/slippage"
	"forexsim/internal/store"
)

// stubStrategy is a minimal Strategy implementation used in registry tests.
type stubStrategy struct {
	name string
}

func (s *stubStrategy) Name() string                 { return s.name }
func (s *stubStrategy) Init(_ context.Context) error { return nil }
func (s *stubStrategy) OnBar(_ context.Context, _ domain.Bar, _ domain.Position) ([]domain.Signal, error) {
	return nil, nil
}

// enterOnce buys a bracketed position on the first bar it sees while flat.
type enterOnce struct {
	entered bool
	bars    int
}

func (s *enterOnce) Name() string { return "enter-once" }

func (s *enterOnce) Init(_ context.Context) error {
	s.entered, s.bars = false, 0
	return nil
}

func (s *enterOnce) OnBar(_ context.Context, bar domain.Bar, pos domain.Position) ([]domain.Signal, error) {
	s.bars++
	if s.entered || pos.Amount != 0 {
		return nil, nil
	}
	s.entered = true
	return []domain.Signal{{Asset: bar.Symbol, Amount: 100, TakeProfit: 1.02, StopLoss: 0.99}}, nil
}

type failingStore struct{ store.BarStore }

func (failingStore) ReadBars(context.Context, string, string, time.Time, time.Time) ([]domain.Bar, error) {
	return nil, errors.New("disk on fire")
}

var t0 = time.Date(2017, 1, 3, 14, 0, 0, 0, time.UTC)

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	s := &stubStrategy{name: "test-strategy"}

	r.Register(s)

	got, ok := r.Get("test-strategy")
	if !ok {
		t.Fatal("Get returned false for registered strategy")
	}
	if got.Name() != "test-strategy" {
		t.Errorf("Get returned strategy with Name() = %q, want %q", got.Name(), "test-strategy")
	}
}

func TestRegistryGet_NotFound(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Get("nonexistent")
	if ok {
		t.Error("Get returned true for unregistered strategy")
	}
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	r.Register(&stubStrategy{name: "alpha"})
	r.Register(&stubStrategy{name: "beta"})

	names := r.List()
	if len(names) != 2 {
		t.Fatalf("List returned %d names, want 2", len(names))
	}
	// List returns sorted names.
	if names[0] != "alpha" || names[1] != "beta" {
		t.Errorf("List returned %v, want [alpha beta]", names)
	}
}

func newSQLite(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func writeCloses(t *testing.T, s store.BarStore, closes ...float64) {
	t.Helper()
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.Bar{
			Symbol:    "EUR_USD",
			Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 1000,
		}
	}
	if err := s.WriteBars(context.Background(), string(domain.MarketForex), bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}
}

func runConfig() RunConfig {
	return RunConfig{
		Strategy:       "enter-once",
		Symbols:        []string{"EUR_USD"},
		Market:         domain.MarketForex,
		Start:          t0,
		End:            t0.Add(time.Hour),
		InitialCapital: 10000,
		MaxShares:      1000,
		Slippage:       slippage.FixedSlippage{},
		Commission:     slippage.PerTrade{},
	}
}

func TestBacktestTakeProfitExit(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)
	writeCloses(t, db, 1.00, 1.00, 1.01, 1.02, 1.02)

	reg := NewRegistry()
	reg.Register(&enterOnce{})
	bt := NewBacktester(db, db, reg, nil)

	res, err := bt.Run(ctx, runConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if res.Steps != 5 {
		t.Errorf("Steps = %d, want 5", res.Steps)
	}
	if res.TotalTrades != 2 {
		t.Errorf("TotalTrades = %d, want entry and exit", res.TotalTrades)
	}
	if res.ProfitExits != 1 || res.LossExits != 0 {
		t.Errorf("exits = %d/%d, want 1/0", res.ProfitExits, res.LossExits)
	}
	if res.WinRate != 1 {
		t.Errorf("WinRate = %v, want 1", res.WinRate)
	}
	if !math.IsInf(res.ProfitFactor, 1) {
		t.Errorf("ProfitFactor = %v, want +Inf without losses", res.ProfitFactor)
	}
	if math.Abs(res.FinalEquity-10002) > 1e-6 {
		t.Errorf("FinalEquity = %v, want 10002", res.FinalEquity)
	}
	if math.Abs(res.TotalReturn-0.0002) > 1e-9 {
		t.Errorf("TotalReturn = %v, want 0.0002", res.TotalReturn)
	}
	if res.MaxDrawdown != 0 {
		t.Errorf("MaxDrawdown = %v, want 0", res.MaxDrawdown)
	}

	if res.RunID == "" {
		t.Fatal("RunID empty with an audit store")
	}
	run, err := db.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if run.ID != res.RunID || run.Strategy != "enter-once" {
		t.Errorf("LatestRun = %+v", run)
	}

	orders, err := db.ListOrders(ctx, res.RunID)
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("saved %d orders, want base and two legs", len(orders))
	}
	status := map[string]string{}
	for _, o := range orders {
		status[o.Leg] = o.Status
	}
	want := map[string]string{
		"base":        store.StatusFilled,
		"take_profit": store.StatusFilled,
		"stop_loss":   store.StatusCancelled,
	}
	for leg, s := range want {
		if status[leg] != s {
			t.Errorf("%s status = %q, want %q", leg, status[leg], s)
		}
	}

	txns, err := db.ListTransactions(ctx, res.RunID)
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(txns) != 2 || txns[0].Amount != 100 || txns[1].Amount != -100 {
		t.Errorf("transactions = %+v", txns)
	}
}

func TestBacktestStopLossDrawdown(t *testing.T) {
	db := newSQLite(t)
	writeCloses(t, db, 1.00, 1.00, 0.995, 0.99)

	reg := NewRegistry()
	reg.Register(&enterOnce{})
	res, err := NewBacktester(db, nil, reg, nil).Run(context.Background(), runConfig())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.RunID != "" {
		t.Errorf("RunID = %q without an audit store", res.RunID)
	}
	if res.LossExits != 1 || res.WinRate != 0 {
		t.Errorf("LossExits = %d, WinRate = %v", res.LossExits, res.WinRate)
	}
	if res.ProfitFactor != 0 {
		t.Errorf("ProfitFactor = %v, want 0", res.ProfitFactor)
	}
	if res.MaxDrawdown <= 0 {
		t.Error("MaxDrawdown not recorded for a losing trade")
	}
	if res.TotalReturn >= 0 {
		t.Errorf("TotalReturn = %v, want negative", res.TotalReturn)
	}
}

func TestBacktestResample(t *testing.T) {
	db := newSQLite(t)
	closes := make([]float64, 30)
	for i := range closes {
		closes[i] = 1
	}
	writeCloses(t, db, closes...)

	reg := NewRegistry()
	reg.Register(&stubStrategy{name: "enter-once"})
	cfg := runConfig()
	cfg.Resolution = 15 * time.Minute

	res, err := NewBacktester(db, nil, reg, nil).Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Steps != 2 {
		t.Errorf("Steps = %d, want 2 fifteen-minute bars", res.Steps)
	}
}

func TestBacktestErrors(t *testing.T) {
	ctx := context.Background()
	db := newSQLite(t)
	reg := NewRegistry()
	reg.Register(&enterOnce{})
	bt := NewBacktester(db, nil, reg, nil)

	cfg := runConfig()
	cfg.Strategy = "missing"
	if _, err := bt.Run(ctx, cfg); !errors.Is(err, ErrUnknownStrategy) {
		t.Errorf("unknown strategy: err = %v", err)
	}

	cfg = runConfig()
	cfg.Symbols = nil
	if _, err := bt.Run(ctx, cfg); !errors.Is(err, ErrNoSymbols) {
		t.Errorf("no symbols: err = %v", err)
	}

	cfg = runConfig()
	cfg.End = cfg.Start
	if _, err := bt.Run(ctx, cfg); !errors.Is(err, ErrInvalidRange) {
		t.Errorf("empty range: err = %v", err)
	}

	if _, err := bt.Run(ctx, runConfig()); !errors.Is(err, ErrNoData) {
		t.Errorf("empty store: err = %v", err)
	}

	failing := NewBacktester(failingStore{}, nil, reg, nil)
	if _, err := failing.Run(ctx, runConfig()); err == nil {
		t.Error("store failure not reported")
	}
}
