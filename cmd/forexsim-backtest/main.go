// Runs one backtest over stored minute bars and prints its summary.
//
// Usage:
//
//	go run cmd/forexsim-backtest/main.go -symbols EUR_USD,GBP_USD -start 2017-01-02 -end 2017-02-01
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"forexsim/internal/config"
	"forexsim/internal/domain"
	"forexsim/internal/slippage"
	"forexsim/internal/store"
	"forexsim/internal/strategy"
	"forexsim/internal/strategy/builtins"
	"forexsim/internal/util"
)

func main() {
	var (
		strategyName = flag.String("strategy", "", "strategy name (overrides config)")
		symbols      = flag.String("symbols", "", "comma-separated symbols (overrides config)")
		start        = flag.String("start", "", "first day, YYYY-MM-DD (overrides config)")
		end          = flag.String("end", "", "last day exclusive, YYYY-MM-DD (overrides config)")
		resolution   = flag.String("resolution", "", "bar resolution such as M1, M15, H1 (overrides config)")
		barSource    = flag.String("bars", "parquet", "bar store: parquet or sqlite")
		short        = flag.Int("short", 10, "sma-cross short period")
		long         = flag.Int("long", 30, "sma-cross long period")
		turn         = flag.Int("turn", builtins.DefaultTurn, "ikh-cross turn line period")
		base         = flag.Int("base", builtins.DefaultBase, "ikh-cross base line period")
		lagSpan      = flag.Int("lag-span", builtins.DefaultLagSpan, "ikh-cross lag span period")
		displacement = flag.Int("displacement", builtins.DefaultDisplacement, "ikh-cross cloud displacement")
	)
	flag.Parse()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if *strategyName != "" {
		cfg.Backtest.Strategy = *strategyName
	}
	if *symbols != "" {
		cfg.Backtest.Symbols = strings.Split(*symbols, ",")
	}
	if *start != "" {
		cfg.Backtest.Start = *start
	}
	if *end != "" {
		cfg.Backtest.End = *end
	}
	if *resolution != "" {
		cfg.Backtest.Resolution = *resolution
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	res, err := util.ParseResolution(cfg.Backtest.Resolution)
	if err != nil {
		log.Fatalf("resolution: %v", err)
	}
	from, to, err := cfg.Backtest.Range()
	if err != nil {
		log.Fatalf("range: %v", err)
	}
	if from.IsZero() || to.IsZero() {
		log.Fatal("backtest start and end are required")
	}
	slip, err := slippage.New(cfg.Slippage.Model, cfg.Slippage.Spread, cfg.Slippage.VolumeLimit)
	if err != nil {
		log.Fatalf("slippage: %v", err)
	}
	comm, err := slippage.NewCommission(cfg.Commission.Model, cfg.Commission.Cost, cfg.Commission.MinTradeCost)
	if err != nil {
		log.Fatalf("commission: %v", err)
	}

	audit, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("failed to open sqlite: %v", err)
	}
	defer audit.Close()

	var bars store.BarStore = store.NewParquetStore(cfg.Storage.DataDir)
	if *barSource == "sqlite" {
		bars = audit
	}

	registry := strategy.NewRegistry()
	registry.Register(builtins.NewSMACross(*short, *long))
	registry.Register(builtins.NewIchimokuCross(*turn, *base, *lagSpan, *displacement))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	bt := strategy.NewBacktester(bars, audit, registry, logger)
	result, err := bt.Run(ctx, strategy.RunConfig{
		Strategy:       cfg.Backtest.Strategy,
		Symbols:        cfg.Backtest.Symbols,
		Market:         domain.Market(cfg.Backtest.Market),
		Start:          from,
		End:            to.Add(-time.Nanosecond),
		InitialCapital: cfg.Backtest.InitialCapital,
		Resolution:     res,
		TickSize:       cfg.Backtest.TickSize,
		MaxShares:      cfg.Blotter.MaxShares,
		Slippage:       slip,
		Commission:     comm,
	})
	if err != nil {
		log.Fatalf("backtest error: %v", err)
	}

	fmt.Fprintf(os.Stdout, "run           %s\n", result.RunID)
	fmt.Fprintf(os.Stdout, "steps         %d\n", result.Steps)
	fmt.Fprintf(os.Stdout, "final equity  %.2f\n", result.FinalEquity)
	fmt.Fprintf(os.Stdout, "total return  %.4f%%\n", result.TotalReturn*100)
	fmt.Fprintf(os.Stdout, "max drawdown  %.4f%%\n", result.MaxDrawdown*100)
	fmt.Fprintf(os.Stdout, "trades        %d\n", result.TotalTrades)
	fmt.Fprintf(os.Stdout, "exits         %d profit / %d loss\n", result.ProfitExits, result.LossExits)
	fmt.Fprintf(os.Stdout, "win rate      %.2f%%\n", result.WinRate*100)
	fmt.Fprintf(os.Stdout, "profit factor %.3f\n", result.ProfitFactor)
	fmt.Fprintf(os.Stdout, "commissions   %.2f\n", result.Commissions)
}
