package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"forexsim/internal/config"
	"forexsim/internal/gather"
	"forexsim/internal/store"
	"forexsim/internal/util"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: forexsim-cli <command> [options]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                    Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  symbols [market]           List symbols with stored bars\n")
		fmt.Fprintf(os.Stderr, "  orders [run-id]            Show the orders of a run (default: latest)\n")
		fmt.Fprintf(os.Stderr, "  ingest <dir>               Import TrueFX tick files as quotes and minute bars\n")
		fmt.Fprintf(os.Stderr, "  range <symbol> <start> <end> [pips]\n")
		fmt.Fprintf(os.Stderr, "                             Print range-bar levels of stored closes (default 5 pips)\n")
		fmt.Fprintf(os.Stderr, "\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	if os.Args[1] == "version" {
		fmt.Printf("forexsim-cli %s\n", version)
		return
	}

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format))
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	switch os.Args[1] {
	case "symbols":
		market := cfg.Backtest.Market
		if len(os.Args) > 2 {
			market = os.Args[2]
		}
		err = listSymbols(ctx, cfg, market)

	case "orders":
		runID := ""
		if len(os.Args) > 2 {
			runID = os.Args[2]
		}
		err = listOrders(ctx, cfg, runID)

	case "ingest":
		if len(os.Args) < 3 {
			flag.Usage()
			os.Exit(1)
		}
		err = ingest(ctx, cfg, os.Args[2])

	case "range":
		if len(os.Args) < 5 {
			flag.Usage()
			os.Exit(1)
		}
		pips := int64(5)
		if len(os.Args) > 5 {
			if pips, err = strconv.ParseInt(os.Args[5], 10, 64); err != nil || pips <= 0 {
				log.Fatalf("range: invalid pips %q", os.Args[5])
			}
		}
		err = printRange(ctx, cfg, os.Args[2], os.Args[3], os.Args[4], pips)

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
	if err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func listSymbols(ctx context.Context, cfg *config.Config, market string) error {
	symbols, err := store.NewParquetStore(cfg.Storage.DataDir).ListSymbols(ctx, market)
	if err != nil {
		return err
	}
	for _, s := range symbols {
		fmt.Println(s)
	}
	return nil
}

func listOrders(ctx context.Context, cfg *config.Config, runID string) error {
	db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		return err
	}
	defer db.Close()

	if runID == "" {
		run, err := db.LatestRun(ctx)
		if errors.Is(err, store.ErrNotFound) {
			fmt.Println("no runs recorded")
			return nil
		}
		if err != nil {
			return err
		}
		runID = run.ID
		fmt.Printf("run %s  %s  %s  %s..%s  return %.4f%%  trades %d\n\n",
			run.ID, run.Strategy, strings.Join(run.Symbols, ","),
			run.Start.Format(time.DateOnly), run.End.Format(time.DateOnly),
			run.TotalReturn*100, run.TotalTrades)
	}

	orders, err := db.ListOrders(ctx, runID)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tLEG\tASSET\tAMOUNT\tFILLED\tLIMIT\tSTOP\tSTATUS\tUPDATED")
	for _, o := range orders {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%g\t%g\t%s\t%s\n",
			o.ID, o.Leg, o.Asset, o.Amount, o.Filled, o.Limit, o.Stop, o.Status,
			o.Updated.Format(time.DateTime))
	}
	return w.Flush()
}

func ingest(ctx context.Context, cfg *config.Config, dir string) error {
	pstore := store.NewParquetStore(cfg.Storage.DataDir)
	g := gather.NewTrueFXGatherer(dir, cfg.Backtest.Market, pstore, slog.Default())
	return g.Run(ctx)
}

// pipSize is used when the config sets no tick size.
const pipSize = 1e-4

func printRange(ctx context.Context, cfg *config.Config, symbol, from, to string, pips int64) error {
	start, err := time.Parse(time.DateOnly, from)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	end, err := time.Parse(time.DateOnly, to)
	if err != nil {
		return fmt.Errorf("end: %w", err)
	}
	bars, err := store.NewParquetStore(cfg.Storage.DataDir).ReadBars(ctx, symbol, cfg.Backtest.Market, start, end)
	if err != nil {
		return err
	}

	closes := make([]float64, len(bars))
	for i, b := range bars {
		closes[i] = b.Close
	}
	size := cfg.Backtest.TickSize
	if size <= 0 {
		size = pipSize
	}
	for _, level := range store.RangeBars(closes, pips, size) {
		fmt.Println(strconv.FormatFloat(level, 'f', -1, 64))
	}
	return nil
}
