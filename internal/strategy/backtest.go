package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"forexsim/internal/blotter"
	"forexsim/internal/broker"
	"forexsim/internal/domain"
	"forexsim/internal/engine"
	"forexsim/internal/slippage"
	"forexsim/internal/store"
	"forexsim/internal/util"
)

var (
	ErrUnknownStrategy = errors.New("unknown strategy")
	ErrNoSymbols       = errors.New("no symbols")
	ErrInvalidRange    = errors.New("end is not after start")
	ErrNoData          = errors.New("no bars in range")
)

// progressPerMinute caps how often Run logs its progress.
const progressPerMinute = 6

// RunConfig describes one backtest.
type RunConfig struct {
	Strategy       string
	Symbols        []string
	Market         domain.Market
	Start          time.Time
	End            time.Time
	InitialCapital float64

	// Resolution resamples the stored minute bars; zero or one minute
	// replays them as stored.
	Resolution time.Duration

	// TickSize rounds order prices for every symbol; zero disables rounding.
	TickSize float64

	MaxShares  int64
	Slippage   blotter.Slippage
	Commission blotter.CommissionModel
}

// BacktestResult holds the summary metrics produced by a backtest run.
type BacktestResult struct {
	RunID        string
	Steps        int
	FinalEquity  float64
	TotalReturn  float64
	MaxDrawdown  float64
	TotalTrades  int
	WinRate      float64
	ProfitFactor float64
	// ProfitExits and LossExits count bracket legs that closed a position.
	ProfitExits int
	LossExits   int
	Commissions float64
}

// Backtester replays historical bar data through a strategy and computes
// performance metrics.
type Backtester struct {
	bars     store.BarStore
	audit    store.OrderStore
	registry *Registry
	logger   *slog.Logger
	progress *util.RateLimiter
}

// NewBacktester creates a Backtester that reads bars from barStore and
// looks up strategies in the provided registry. When audit is non-nil every
// run's orders and fills are saved to it.
func NewBacktester(barStore store.BarStore, audit store.OrderStore, registry *Registry, logger *slog.Logger) *Backtester {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backtester{
		bars:     barStore,
		audit:    audit,
		registry: registry,
		logger:   logger.With("component", "backtest"),
		progress: util.NewRateLimiter(progressPerMinute),
	}
}

// Run executes a backtest for cfg.Strategy over cfg.Symbols between
// cfg.Start and cfg.End.
func (bt *Backtester) Run(ctx context.Context, cfg RunConfig) (*BacktestResult, error) {
	strat, ok := bt.registry.Get(cfg.Strategy)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, cfg.Strategy)
	}
	if len(cfg.Symbols) == 0 {
		return nil, ErrNoSymbols
	}
	if !cfg.End.After(cfg.Start) {
		return nil, ErrInvalidRange
	}
	if cfg.Market == "" {
		cfg.Market = domain.MarketForex
	}
	if cfg.Slippage == nil {
		cfg.Slippage = slippage.NewVolumeShareSlippage(slippage.DefaultVolumeLimit, slippage.DefaultPriceImpact)
	}

	times, steps, err := bt.load(ctx, cfg)
	if err != nil {
		return nil, err
	}

	assets := slippage.ForSymbols(cfg.Market, cfg.TickSize, cfg.Symbols...)
	eng := engine.NewEngine(engine.Config{
		StartingCash: cfg.InitialCapital,
		Logger:       bt.logger,
		Blotter: blotter.Config{
			MaxShares:  cfg.MaxShares,
			Slippage:   cfg.Slippage,
			Commission: cfg.Commission,
			Assets:     assets,
		},
	})
	sim := broker.NewSimulatorBroker(eng, assets)

	if err := strat.Init(ctx); err != nil {
		return nil, fmt.Errorf("init %s: %w", strat.Name(), err)
	}

	bt.logger.Info("backtest started",
		"strategy", strat.Name(),
		"symbols", cfg.Symbols,
		"bars", len(times),
		"start", cfg.Start,
		"end", cfg.End,
	)

	m := newMetrics(cfg.InitialCapital)
	var txns []domain.Transaction
	for i, dt := range times {
		bars := steps[dt]
		step, err := eng.ProcessStep(ctx, dt, bars)
		if err != nil {
			return nil, err
		}
		txns = append(txns, step.Transactions...)
		m.record(step)
		sim.Observe(bars)

		for _, sym := range sortedKeys(bars) {
			signals, err := strat.OnBar(ctx, bars[sym], eng.Portfolio().Position(sym))
			if err != nil {
				return nil, fmt.Errorf("%s on %s at %s: %w", strat.Name(), sym, dt.Format(time.RFC3339), err)
			}
			for _, sig := range signals {
				if _, err := sim.Submit(ctx, sig); err != nil {
					return nil, fmt.Errorf("submit %s signal: %w", sig.Asset, err)
				}
			}
		}

		if bt.progress.Allow() {
			bt.logger.Info("backtest progress",
				"at", dt,
				"step", i+1,
				"of", len(times),
				"equity", step.Account.Equity,
			)
		}
	}

	res := m.result()
	res.Steps = eng.Steps()
	res.TotalTrades = len(txns)

	if bt.audit != nil {
		res.RunID = uuid.NewString()
		if err := bt.save(ctx, res, cfg, eng.Blotter().Orders(), txns); err != nil {
			return nil, err
		}
	}

	bt.logger.Info("backtest finished",
		"strategy", strat.Name(),
		"run", res.RunID,
		"return", res.TotalReturn,
		"max_drawdown", res.MaxDrawdown,
		"trades", res.TotalTrades,
	)
	return res, nil
}

// load reads every symbol concurrently and groups the bars by timestamp.
func (bt *Backtester) load(ctx context.Context, cfg RunConfig) ([]time.Time, map[time.Time]map[string]domain.Bar, error) {
	cal := util.NewTradingCalendar(cfg.Market)
	series := make([][]domain.Bar, len(cfg.Symbols))

	g, gctx := errgroup.WithContext(ctx)
	for i, sym := range cfg.Symbols {
		g.Go(func() error {
			bars, err := bt.bars.ReadBars(gctx, sym, string(cfg.Market), cfg.Start, cfg.End)
			if err != nil {
				return fmt.Errorf("load %s: %w", sym, err)
			}
			if cfg.Resolution > time.Minute {
				bars = store.Resample(bars, cfg.Resolution)
			}
			series[i] = cal.Filter(bars)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	steps := make(map[time.Time]map[string]domain.Bar)
	for i, sym := range cfg.Symbols {
		for _, b := range series[i] {
			dt := b.Timestamp.UTC()
			if steps[dt] == nil {
				steps[dt] = make(map[string]domain.Bar, len(cfg.Symbols))
			}
			b.Symbol = sym
			steps[dt][sym] = b
		}
	}
	if len(steps) == 0 {
		return nil, nil, fmt.Errorf("%w: %v", ErrNoData, cfg.Symbols)
	}

	times := make([]time.Time, 0, len(steps))
	for dt := range steps {
		times = append(times, dt)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times, steps, nil
}

func (bt *Backtester) save(ctx context.Context, res *BacktestResult, cfg RunConfig, orders []*blotter.Order, txns []domain.Transaction) error {
	run := store.Run{
		ID:          res.RunID,
		Strategy:    cfg.Strategy,
		Symbols:     cfg.Symbols,
		Start:       cfg.Start,
		End:         cfg.End,
		CreatedAt:   time.Now().UTC(),
		TotalReturn: res.TotalReturn,
		MaxDrawdown: res.MaxDrawdown,
		TotalTrades: res.TotalTrades,
	}
	if err := bt.audit.SaveRun(ctx, run); err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	records := make([]store.OrderRecord, 0, len(orders))
	for _, o := range orders {
		records = append(records, orderRecord(o))
	}
	if err := bt.audit.SaveOrders(ctx, res.RunID, records); err != nil {
		return fmt.Errorf("save orders: %w", err)
	}
	if err := bt.audit.SaveTransactions(ctx, res.RunID, txns); err != nil {
		return fmt.Errorf("save transactions: %w", err)
	}
	return nil
}

func orderRecord(o *blotter.Order) store.OrderRecord {
	status := store.StatusFilled
	switch {
	case o.Cancelled:
		status = store.StatusCancelled
	case o.Open():
		status = store.StatusOpen
	}
	return store.OrderRecord{
		ID:          o.ID,
		BaseOrderID: o.BaseOrderID,
		Leg:         o.Leg.String(),
		Asset:       o.Asset,
		Amount:      o.Amount,
		Filled:      o.Filled,
		Limit:       o.Limit,
		Stop:        o.Stop,
		TakeProfit:  o.TakeProfit,
		StopLoss:    o.StopLoss,
		Commission:  o.Commission,
		Status:      status,
		Created:     o.Created,
		Updated:     o.DT,
	}
}

// metrics accumulates the equity curve and realized results step by step.
type metrics struct {
	start       float64
	equity      float64
	peak        float64
	maxDrawdown float64
	realized    float64
	grossProfit float64
	grossLoss   float64
	profitExits int
	lossExits   int
	commissions float64
}

func newMetrics(start float64) *metrics {
	return &metrics{start: start, equity: start, peak: start}
}

func (m *metrics) record(step engine.Step) {
	m.equity = step.Account.Equity
	m.peak = max(m.peak, m.equity)
	if m.peak > 0 {
		m.maxDrawdown = max(m.maxDrawdown, (m.peak-m.equity)/m.peak)
	}

	if delta := step.Account.RealizedPnL - m.realized; delta > 0 {
		m.grossProfit += delta
	} else {
		m.grossLoss -= delta
	}
	m.realized = step.Account.RealizedPnL
	m.commissions = step.Account.Commissions

	for _, o := range step.Closed {
		if o.Cancelled {
			continue
		}
		switch o.Leg {
		case blotter.LegTakeProfit:
			m.profitExits++
		case blotter.LegStopLoss:
			m.lossExits++
		}
	}
}

func (m *metrics) result() *BacktestResult {
	res := &BacktestResult{
		FinalEquity: m.equity,
		MaxDrawdown: m.maxDrawdown,
		ProfitExits: m.profitExits,
		LossExits:   m.lossExits,
		Commissions: m.commissions,
	}
	if m.start != 0 {
		res.TotalReturn = (m.equity - m.start) / m.start
	}
	if exits := m.profitExits + m.lossExits; exits > 0 {
		res.WinRate = float64(m.profitExits) / float64(exits)
	}
	switch {
	case m.grossLoss > 0:
		res.ProfitFactor = m.grossProfit / m.grossLoss
	case m.grossProfit > 0:
		res.ProfitFactor = math.Inf(1)
	}
	return res
}

func sortedKeys(bars map[string]domain.Bar) []string {
	keys := make([]string, 0, len(bars))
	for k := range bars {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
