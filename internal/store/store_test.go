package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"forexsim/internal/domain"
)

func minute(m int) time.Time {
	return time.Date(2017, 1, 3, 14, m, 0, 0, time.UTC)
}

func TestParquetStorePath(t *testing.T) {
	ps := NewParquetStore("/data")

	bp := ps.barPath("eur_usd", "forex", 2017)
	wantBarPath := filepath.Join("/data", "forex", "minute", "EUR_USD", "2017.parquet")
	if bp != wantBarPath {
		t.Errorf("barPath mismatch:\n  got  %s\n  want %s", bp, wantBarPath)
	}

	qp := ps.quotePath("EUR_USD", "forex", time.Date(2016, 7, 29, 20, 59, 0, 0, time.UTC))
	wantQuotePath := filepath.Join("/data", "forex", "quotes", "EUR_USD", "2016-07-29.parquet")
	if qp != wantQuotePath {
		t.Errorf("quotePath mismatch:\n  got  %s\n  want %s", qp, wantQuotePath)
	}
}

func TestParquetStoreWriteReadBars(t *testing.T) {
	dir := t.TempDir()
	ps := NewParquetStore(dir)
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "EUR_USD", Timestamp: minute(0), Open: 1.0400, High: 1.0410, Low: 1.0395, Close: 1.0405, Volume: 120},
		{Symbol: "EUR_USD", Timestamp: minute(1), Open: 1.0405, High: 1.0420, Low: 1.0400, Close: 1.0418, Volume: 80},
		{Symbol: "EUR_USD", Timestamp: time.Date(2018, 1, 2, 0, 0, 0, 0, time.UTC), Close: 1.2},
	}
	if err := ps.WriteBars(ctx, "forex", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := ps.ReadBars(ctx, "EUR_USD", "forex", minute(0), minute(59))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[1].Close != 1.0418 || !got[1].Timestamp.Equal(minute(1)) {
		t.Errorf("second bar = %+v", got[1])
	}

	all, err := ps.ReadBars(ctx, "EUR_USD", "forex", minute(0), time.Date(2018, 12, 31, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadBars across years: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("ReadBars across years returned %d bars, want 3", len(all))
	}

	none, err := ps.ReadBars(ctx, "GBP_USD", "forex", minute(0), minute(59))
	if err != nil || len(none) != 0 {
		t.Errorf("ReadBars for a missing symbol = %v, %v; want none", none, err)
	}
}

func TestParquetStoreMergeBars(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	first := []domain.Bar{{Symbol: "USD_JPY", Timestamp: minute(0), Close: 117.0}}
	if err := ps.WriteBars(ctx, "forex", first); err != nil {
		t.Fatalf("WriteBars (first): %v", err)
	}
	second := []domain.Bar{
		{Symbol: "USD_JPY", Timestamp: minute(0), Close: 117.5},
		{Symbol: "USD_JPY", Timestamp: minute(2), Close: 117.2},
	}
	if err := ps.WriteBars(ctx, "forex", second); err != nil {
		t.Fatalf("WriteBars (second): %v", err)
	}

	got, err := ps.ReadBars(ctx, "USD_JPY", "forex", minute(0), minute(10))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if got[0].Close != 117.5 {
		t.Errorf("merged bar Close = %v, want 117.5 (new record wins)", got[0].Close)
	}

	symbols, err := ps.ListSymbols(ctx, "forex")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if len(symbols) != 1 || symbols[0] != "USD_JPY" {
		t.Errorf("ListSymbols = %v, want [USD_JPY]", symbols)
	}
	if symbols, _ := ps.ListSymbols(ctx, "us"); len(symbols) != 0 {
		t.Errorf("ListSymbols(us) = %v, want none", symbols)
	}
}

func TestParquetStoreQuotes(t *testing.T) {
	ps := NewParquetStore(t.TempDir())
	ctx := context.Background()

	quotes := []domain.Quote{
		{Symbol: "EUR_USD", Timestamp: time.Date(2016, 7, 29, 20, 59, 56, 418e6, time.UTC), Bid: 1.11712, Ask: 1.11781},
		{Symbol: "EUR_USD", Timestamp: time.Date(2016, 7, 29, 20, 59, 56, 421e6, time.UTC), Bid: 1.11697, Ask: 1.11781},
		{Symbol: "EUR_USD", Timestamp: time.Date(2016, 7, 31, 21, 0, 0, 0, time.UTC), Bid: 1.1170, Ask: 1.1172},
	}
	if err := ps.WriteQuotes(ctx, "forex", quotes); err != nil {
		t.Fatalf("WriteQuotes: %v", err)
	}
	if err := ps.WriteQuotes(ctx, "forex", quotes[:1]); err != nil {
		t.Fatalf("WriteQuotes (again): %v", err)
	}

	got, err := ps.ReadQuotes(ctx, "EUR_USD", "forex",
		time.Date(2016, 7, 29, 0, 0, 0, 0, time.UTC), time.Date(2016, 8, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("ReadQuotes: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("ReadQuotes returned %d quotes, want 3", len(got))
	}
	if got[1].Bid != 1.11697 {
		t.Errorf("second quote Bid = %v, want 1.11697", got[1].Bid)
	}
}

func TestSQLiteStoreBars(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "db", "forexsim.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	bars := []domain.Bar{
		{Symbol: "eur_usd", Timestamp: minute(1), Open: 1.1, High: 1.2, Low: 1.0, Close: 1.15, Volume: 5},
		{Symbol: "EUR_USD", Timestamp: minute(0), Open: 1.0, High: 1.1, Low: 0.9, Close: 1.05, Volume: 3},
		{Symbol: "GBP_USD", Timestamp: minute(0), Close: 1.23},
	}
	if err := s.WriteBars(ctx, "forex", bars); err != nil {
		t.Fatalf("WriteBars: %v", err)
	}

	got, err := s.ReadBars(ctx, "EUR_USD", "forex", minute(0), minute(1))
	if err != nil {
		t.Fatalf("ReadBars: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("ReadBars returned %d bars, want 2", len(got))
	}
	if !got[0].Timestamp.Equal(minute(0)) || got[1].Close != 1.15 {
		t.Errorf("ReadBars = %+v", got)
	}

	symbols, err := s.ListSymbols(ctx, "forex")
	if err != nil {
		t.Fatalf("ListSymbols: %v", err)
	}
	if strings.Join(symbols, ",") != "EUR_USD,GBP_USD" {
		t.Errorf("ListSymbols = %v", symbols)
	}
}

func TestSQLiteStoreAudit(t *testing.T) {
	s, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	if _, err := s.LatestRun(ctx); !errors.Is(err, ErrNotFound) {
		t.Fatalf("LatestRun on empty db = %v, want ErrNotFound", err)
	}

	older := Run{ID: "r1", Strategy: "sma-cross", Symbols: []string{"EUR_USD"}, Start: minute(0), End: minute(30),
		CreatedAt: minute(40)}
	newer := Run{ID: "r2", Strategy: "sma-cross", Symbols: []string{"EUR_USD", "USD_JPY"}, Start: minute(0),
		End: minute(30), CreatedAt: minute(50), TotalReturn: 0.02, TotalTrades: 4}
	for _, r := range []Run{older, newer} {
		if err := s.SaveRun(ctx, r); err != nil {
			t.Fatalf("SaveRun: %v", err)
		}
	}
	latest, err := s.LatestRun(ctx)
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if latest.ID != "r2" || len(latest.Symbols) != 2 || latest.TotalTrades != 4 {
		t.Errorf("LatestRun = %+v", latest)
	}

	orders := []OrderRecord{
		{ID: "b", Leg: "base", Asset: "EUR_USD", Amount: 10, Filled: 10, TakeProfit: 1.2, StopLoss: 1.0,
			Status: StatusFilled, Created: minute(0), Updated: minute(1)},
		{ID: "b_tp", BaseOrderID: "b", Leg: "take_profit", Asset: "EUR_USD", Amount: -10, Limit: 1.2,
			Status: StatusOpen, Created: minute(1), Updated: minute(1)},
	}
	if err := s.SaveOrders(ctx, "r2", orders); err != nil {
		t.Fatalf("SaveOrders: %v", err)
	}
	got, err := s.ListOrders(ctx, "r2")
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(got) != 2 || got[1].ID != "b_tp" || got[1].BaseOrderID != "b" || !got[0].Updated.Equal(minute(1)) {
		t.Errorf("ListOrders = %+v", got)
	}
	if other, _ := s.ListOrders(ctx, "r1"); len(other) != 0 {
		t.Errorf("ListOrders(r1) = %+v, want none", other)
	}

	txns := []domain.Transaction{{Asset: "EUR_USD", OrderID: "b", Amount: 10, Price: 1.1, Timestamp: minute(1)}}
	if err := s.SaveTransactions(ctx, "r2", txns); err != nil {
		t.Fatalf("SaveTransactions: %v", err)
	}
	if err := s.SaveTransactions(ctx, "r2", txns); err != nil {
		t.Fatalf("SaveTransactions (append): %v", err)
	}
	gotTxns, err := s.ListTransactions(ctx, "r2")
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if len(gotTxns) != 2 || gotTxns[0].Price != 1.1 {
		t.Errorf("ListTransactions = %+v", gotTxns)
	}
}

func TestResample(t *testing.T) {
	bars := []domain.Bar{
		{Symbol: "EUR_USD", Timestamp: minute(16), Open: 4, High: 5, Low: 3, Close: 4.5, Volume: 10},
		{Symbol: "EUR_USD", Timestamp: minute(0), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Symbol: "EUR_USD", Timestamp: minute(14), Open: 1.5, High: 3, Low: 1, Close: 2.5, Volume: 30},
	}
	got := Resample(bars, 15*time.Minute)
	if len(got) != 2 {
		t.Fatalf("Resample returned %d bars, want 2", len(got))
	}

	first := got[0]
	if !first.Timestamp.Equal(minute(0)) {
		t.Errorf("first bucket = %v, want %v", first.Timestamp, minute(0))
	}
	if first.Open != 1 || first.High != 3 || first.Low != 0.5 || first.Close != 2.5 || first.Volume != 40 {
		t.Errorf("first bar = %+v", first)
	}
	if want := (1.5*10 + 2.5*30) / 40; first.VWAP != want {
		t.Errorf("VWAP = %v, want %v", first.VWAP, want)
	}
	if !got[1].Timestamp.Equal(minute(15)) || got[1].Close != 4.5 {
		t.Errorf("second bar = %+v", got[1])
	}
}

func TestQuotesToBars(t *testing.T) {
	base := time.Date(2016, 7, 29, 20, 59, 0, 0, time.UTC)
	quotes := []domain.Quote{
		{Symbol: "EUR_USD", Timestamp: base.Add(10 * time.Second), Bid: 1.0, Ask: 1.2},
		{Symbol: "EUR_USD", Timestamp: base.Add(20 * time.Second), Bid: 1.2, Ask: 1.4},
		{Symbol: "EUR_USD", Timestamp: base.Add(30 * time.Second), Bid: 0.8, Ask: 1.0},
		{Symbol: "EUR_USD", Timestamp: base.Add(70 * time.Second), Bid: 1.0, Ask: 1.0},
	}
	got := QuotesToBars(quotes, time.Minute)
	if len(got) != 2 {
		t.Fatalf("QuotesToBars returned %d bars, want 2", len(got))
	}
	b := got[0]
	if !near(b.Open, 1.1) || !near(b.High, 1.3) || !near(b.Low, 0.9) || !near(b.Close, 0.9) || b.Volume != 3 {
		t.Errorf("first bar = %+v", b)
	}
	if got[1].Volume != 1 || !got[1].Timestamp.Equal(base.Add(time.Minute)) {
		t.Errorf("second bar = %+v", got[1])
	}
}

func TestRangeBars(t *testing.T) {
	tests := []struct {
		name   string
		prices []float64
		pips   int64
		want   []float64
	}{
		{"no move", []float64{1.0000, 1.0002, 1.0001}, 3, []float64{1.0000}},
		{"up then down", []float64{1.0000, 1.0002, 1.0009, 1.0003, 1.0004}, 3, []float64{1.0000, 1.0004, 1.0008, 1.0004}},
		{"gap down", []float64{1.2000, 1.1990}, 3, []float64{1.2000, 1.1996, 1.1992}},
		{"single pip range", []float64{1.0000, 1.0005}, 1, []float64{1.0000, 1.0002, 1.0004}},
		{"empty", nil, 3, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := RangeBars(tt.prices, tt.pips, 1e-4)
			if len(got) != len(tt.want) {
				t.Fatalf("RangeBars = %v, want %v", got, tt.want)
			}
			for i := range got {
				if !near(got[i], tt.want[i]) {
					t.Errorf("level %d = %v, want %v", i, got[i], tt.want[i])
				}
			}
		})
	}

	if got := RangeBars([]float64{1, 2}, 0, 1e-4); got != nil {
		t.Errorf("RangeBars with zero pips = %v, want nil", got)
	}
}

func TestReadTrueFXQuotes(t *testing.T) {
	in := strings.NewReader("EUR/USD,20160729 20:59:56.418,1.11712,1.11781\n" +
		"EUR/USD,20160729 20:59:56.421,1.11697,1.11781\n")
	quotes, err := ReadTrueFXQuotes(in)
	if err != nil {
		t.Fatalf("ReadTrueFXQuotes: %v", err)
	}
	if len(quotes) != 2 {
		t.Fatalf("got %d quotes, want 2", len(quotes))
	}
	q := quotes[0]
	if q.Symbol != "EUR_USD" || q.Bid != 1.11712 || q.Ask != 1.11781 {
		t.Errorf("quote = %+v", q)
	}
	if want := time.Date(2016, 7, 29, 20, 59, 56, 418e6, time.UTC); !q.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", q.Timestamp, want)
	}

	if _, err := ReadTrueFXQuotes(strings.NewReader("EUR/USD,yesterday,1,2\n")); err == nil {
		t.Error("expected a timestamp error")
	}
}

func near(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
