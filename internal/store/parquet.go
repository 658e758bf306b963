package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"forexsim/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ QuoteStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and QuoteStore using Parquet files on disk.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for bar data.
type BarRecord struct {
	Symbol     string  `parquet:"symbol"`
	Timestamp  int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Open       float64 `parquet:"open"`
	High       float64 `parquet:"high"`
	Low        float64 `parquet:"low"`
	Close      float64 `parquet:"close"`
	Volume     int64   `parquet:"volume"`
	TradeCount int64   `parquet:"trade_count"`
	VWAP       float64 `parquet:"vwap"`
}

// QuoteRecord is the Parquet schema for bid/ask ticks.
type QuoteRecord struct {
	Symbol    string  `parquet:"symbol"`
	Timestamp int64   `parquet:"timestamp,timestamp(millisecond)"` // Unix ms
	Bid       float64 `parquet:"bid"`
	Ask       float64 `parquet:"ask"`
}

func toBarRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Symbol:     b.Symbol,
		Timestamp:  b.Timestamp.UnixMilli(),
		Open:       b.Open,
		High:       b.High,
		Low:        b.Low,
		Close:      b.Close,
		Volume:     b.Volume,
		TradeCount: b.TradeCount,
		VWAP:       b.VWAP,
	}
}

func (r BarRecord) bar() domain.Bar {
	return domain.Bar{
		Symbol:     r.Symbol,
		Timestamp:  time.UnixMilli(r.Timestamp).UTC(),
		Open:       r.Open,
		High:       r.High,
		Low:        r.Low,
		Close:      r.Close,
		Volume:     r.Volume,
		TradeCount: r.TradeCount,
		VWAP:       r.VWAP,
	}
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// WriteBars writes bar data to Parquet files organized by symbol and year.
// Each symbol+year combination produces a separate file at:
//
//	<DataDir>/<market>/minute/<SYMBOL>/<YYYY>.parquet
//
// Bars already on disk with the same timestamp are replaced.
func (s *ParquetStore) WriteBars(_ context.Context, market string, bars []domain.Bar) error {
	type key struct {
		symbol string
		year   int
	}
	groups := make(map[key][]BarRecord)
	for _, b := range bars {
		k := key{symbol: b.Symbol, year: b.Timestamp.UTC().Year()}
		groups[k] = append(groups[k], toBarRecord(b))
	}

	for k, records := range groups {
		path := s.barPath(k.symbol, market, k.year)

		existing, err := readParquetFile[BarRecord](path)
		if err != nil {
			return fmt.Errorf("reading bars for %s/%d: %w", k.symbol, k.year, err)
		}
		merged := mergeBarRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing bars for %s/%d: %w", k.symbol, k.year, err)
		}
	}
	return nil
}

// ReadBars reads bar data from Parquet files for the given symbol and time range.
func (s *ParquetStore) ReadBars(ctx context.Context, symbol string, market string, start, end time.Time) ([]domain.Bar, error) {
	var bars []domain.Bar
	for year := start.UTC().Year(); year <= end.UTC().Year(); year++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := readParquetFile[BarRecord](s.barPath(symbol, market, year))
		if err != nil {
			return nil, fmt.Errorf("reading bars for %s/%d: %w", symbol, year, err)
		}
		for _, r := range records {
			if b := r.bar(); within(b.Timestamp, start, end) {
				bars = append(bars, b)
			}
		}
	}
	return bars, nil
}

// ListSymbols lists all symbols that have bar data in the given market.
func (s *ParquetStore) ListSymbols(_ context.Context, market string) ([]string, error) {
	dir := filepath.Join(s.DataDir, market, "minute")
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var symbols []string
	for _, e := range entries {
		if e.IsDir() {
			symbols = append(symbols, e.Name())
		}
	}
	sort.Strings(symbols)
	return symbols, nil
}

// ---------------------------------------------------------------------------
// QuoteStore implementation
// ---------------------------------------------------------------------------

// WriteQuotes writes quotes to Parquet files organized by symbol and date.
func (s *ParquetStore) WriteQuotes(_ context.Context, market string, quotes []domain.Quote) error {
	type key struct {
		symbol string
		date   string // YYYY-MM-DD
	}
	groups := make(map[key][]QuoteRecord)
	for _, q := range quotes {
		k := key{symbol: q.Symbol, date: q.Timestamp.UTC().Format(time.DateOnly)}
		groups[k] = append(groups[k], QuoteRecord{
			Symbol:    q.Symbol,
			Timestamp: q.Timestamp.UnixMilli(),
			Bid:       q.Bid,
			Ask:       q.Ask,
		})
	}

	for k, records := range groups {
		day, _ := time.Parse(time.DateOnly, k.date)
		path := s.quotePath(k.symbol, market, day)

		existing, err := readParquetFile[QuoteRecord](path)
		if err != nil {
			return fmt.Errorf("reading quotes for %s/%s: %w", k.symbol, k.date, err)
		}
		merged := mergeQuoteRecords(existing, records)

		if err := writeParquetFile(path, merged); err != nil {
			return fmt.Errorf("writing quotes for %s/%s: %w", k.symbol, k.date, err)
		}
	}
	return nil
}

// ReadQuotes reads quotes from Parquet files for the given symbol and time range.
func (s *ParquetStore) ReadQuotes(_ context.Context, symbol string, market string, start, end time.Time) ([]domain.Quote, error) {
	var quotes []domain.Quote
	first := start.UTC().Truncate(24 * time.Hour)
	for d := first; !d.After(end); d = d.AddDate(0, 0, 1) {
		records, err := readParquetFile[QuoteRecord](s.quotePath(symbol, market, d))
		if err != nil {
			return nil, fmt.Errorf("reading quotes for %s/%s: %w", symbol, d.Format(time.DateOnly), err)
		}
		for _, r := range records {
			ts := time.UnixMilli(r.Timestamp).UTC()
			if within(ts, start, end) {
				quotes = append(quotes, domain.Quote{Symbol: r.Symbol, Timestamp: ts, Bid: r.Bid, Ask: r.Ask})
			}
		}
	}
	return quotes, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// barPath returns the filesystem path for a bar Parquet file.
// Layout: <dataDir>/<market>/minute/<SYMBOL>/<YYYY>.parquet
func (s *ParquetStore) barPath(symbol, market string, year int) string {
	return filepath.Join(s.DataDir, market, "minute", strings.ToUpper(symbol), fmt.Sprintf("%d.parquet", year))
}

// quotePath returns the filesystem path for a quote Parquet file.
// Layout: <dataDir>/<market>/quotes/<SYMBOL>/<YYYY-MM-DD>.parquet
func (s *ParquetStore) quotePath(symbol, market string, day time.Time) string {
	return filepath.Join(s.DataDir, market, "quotes", strings.ToUpper(symbol), day.Format(time.DateOnly)+".parquet")
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

func writeParquetFile[T any](path string, records []T) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return parquet.WriteFile(path, records)
}

// readParquetFile returns no rows and no error when the file does not exist.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func within(ts, start, end time.Time) bool {
	return !ts.Before(start) && !ts.After(end)
}

// mergeBarRecords deduplicates bar records by (symbol, timestamp), preferring
// new records over existing ones.
func mergeBarRecords(existing, incoming []BarRecord) []BarRecord {
	type key struct {
		symbol string
		ts     int64
	}
	seen := make(map[key]BarRecord, len(existing)+len(incoming))
	for _, r := range existing {
		seen[key{r.Symbol, r.Timestamp}] = r
	}
	for _, r := range incoming {
		seen[key{r.Symbol, r.Timestamp}] = r
	}

	merged := make([]BarRecord, 0, len(seen))
	for _, r := range seen {
		merged = append(merged, r)
	}
	sort.Slice(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}

// mergeQuoteRecords appends incoming quotes, dropping exact duplicates, and
// keeps the result sorted by timestamp. Several quotes may share a
// millisecond.
func mergeQuoteRecords(existing, incoming []QuoteRecord) []QuoteRecord {
	seen := make(map[QuoteRecord]struct{}, len(existing)+len(incoming))
	merged := make([]QuoteRecord, 0, len(existing)+len(incoming))
	for _, batch := range [][]QuoteRecord{existing, incoming} {
		for _, r := range batch {
			if _, dup := seen[r]; dup {
				continue
			}
			seen[r] = struct{}{}
			merged = append(merged, r)
		}
	}
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Timestamp < merged[j].Timestamp
	})
	return merged
}
