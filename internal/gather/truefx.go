package gather

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"forexsim/internal/domain"
	"forexsim/internal/store"
)

// DefaultWorkers is the number of files parsed concurrently.
const DefaultWorkers = 4

// Sink is where imported data lands.
type Sink interface {
	store.BarStore
	store.QuoteStore
}

// Compile-time interface check.
var _ Gatherer = (*TrueFXGatherer)(nil)

// TrueFXGatherer imports TrueFX tick files (*.csv) from a directory. Ticks
// are stored as quotes and aggregated into mid-price minute bars.
type TrueFXGatherer struct {
	dir     string
	market  string
	sink    Sink
	workers int
	logger  *slog.Logger

	// Range drops ticks outside it; the zero value keeps everything.
	Range DateRange

	mu sync.Mutex
}

// NewTrueFXGatherer creates a gatherer reading files from dir.
func NewTrueFXGatherer(dir, market string, sink Sink, logger *slog.Logger) *TrueFXGatherer {
	if logger == nil {
		logger = slog.Default()
	}
	return &TrueFXGatherer{
		dir:     dir,
		market:  market,
		sink:    sink,
		workers: DefaultWorkers,
		logger:  logger.With("gatherer", "truefx"),
	}
}

// Name returns "truefx".
func (g *TrueFXGatherer) Name() string {
	return "truefx"
}

// Run imports every CSV file in the directory not recorded as done in its
// progress file.
func (g *TrueFXGatherer) Run(ctx context.Context) error {
	files, err := filepath.Glob(filepath.Join(g.dir, "*.csv"))
	if err != nil {
		return err
	}
	sort.Strings(files)

	progress, err := newProgressTracker(g.dir)
	if err != nil {
		return err
	}
	defer progress.Close()

	var pending []string
	for _, f := range files {
		if !progress.IsIngested(filepath.Base(f)) {
			pending = append(pending, f)
		}
	}
	g.logger.Info("starting import", "dir", g.dir, "files", len(files), "pending", len(pending))

	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for _, path := range pending {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			n, err := g.ingestFile(ctx, path)
			if err != nil {
				return fmt.Errorf("%s: %w", filepath.Base(path), err)
			}
			g.logger.Info("file imported", "file", filepath.Base(path), "quotes", n)
			return progress.MarkIngested(filepath.Base(path))
		})
	}
	return eg.Wait()
}

// ingestFile parses one file concurrently with others; the store writes are
// serialized because parquet files are merged in place.
func (g *TrueFXGatherer) ingestFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	quotes, err := store.ReadTrueFXQuotes(f)
	if err != nil {
		return 0, err
	}
	quotes = g.filter(quotes)

	bySymbol := make(map[string][]domain.Quote)
	for _, q := range quotes {
		bySymbol[q.Symbol] = append(bySymbol[q.Symbol], q)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.sink.WriteQuotes(ctx, g.market, quotes); err != nil {
		return 0, fmt.Errorf("write quotes: %w", err)
	}
	for sym, qs := range bySymbol {
		bars := store.QuotesToBars(qs, time.Minute)
		if err := g.sink.WriteBars(ctx, g.market, bars); err != nil {
			return 0, fmt.Errorf("write %s bars: %w", sym, err)
		}
	}
	return len(quotes), nil
}

func (g *TrueFXGatherer) filter(quotes []domain.Quote) []domain.Quote {
	if g.Range.Start.IsZero() && g.Range.End.IsZero() {
		return quotes
	}
	kept := quotes[:0]
	for _, q := range quotes {
		if g.Range.Contains(q.Timestamp) {
			kept = append(kept, q)
		}
	}
	return kept
}
