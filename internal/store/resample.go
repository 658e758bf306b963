package store

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"forexsim/internal/domain"
)

// Resample aggregates bars of one symbol into buckets of the given
// resolution. Buckets are aligned to the Unix epoch in UTC and stamped with
// their start time; empty buckets are omitted. Input need not be sorted.
func Resample(bars []domain.Bar, resolution time.Duration) []domain.Bar {
	if len(bars) == 0 || resolution <= 0 {
		return bars
	}
	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var (
		out      []domain.Bar
		notional float64
	)
	flush := func() {
		last := &out[len(out)-1]
		if last.Volume > 0 {
			last.VWAP = notional / float64(last.Volume)
		}
	}
	for _, b := range sorted {
		bucket := b.Timestamp.UTC().Truncate(resolution)
		if len(out) == 0 || !out[len(out)-1].Timestamp.Equal(bucket) {
			if len(out) > 0 {
				flush()
			}
			out = append(out, domain.Bar{
				Symbol:    b.Symbol,
				Timestamp: bucket,
				Open:      b.Open,
				High:      b.High,
				Low:       b.Low,
			})
			notional = 0
		}
		cur := &out[len(out)-1]
		cur.High = max(cur.High, b.High)
		cur.Low = min(cur.Low, b.Low)
		cur.Close = b.Close
		cur.Volume += b.Volume
		cur.TradeCount += b.TradeCount
		price := b.VWAP
		if price == 0 {
			price = b.Close
		}
		notional += price * float64(b.Volume)
	}
	flush()
	return out
}

// QuotesToBars builds mid-price OHLC bars from bid/ask ticks. Volume and
// TradeCount are the number of ticks in each bar.
func QuotesToBars(quotes []domain.Quote, resolution time.Duration) []domain.Bar {
	if len(quotes) == 0 || resolution <= 0 {
		return nil
	}
	sorted := make([]domain.Quote, len(quotes))
	copy(sorted, quotes)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	var out []domain.Bar
	for _, q := range sorted {
		mid := q.Mid()
		bucket := q.Timestamp.UTC().Truncate(resolution)
		if len(out) == 0 || !out[len(out)-1].Timestamp.Equal(bucket) {
			out = append(out, domain.Bar{
				Symbol:    q.Symbol,
				Timestamp: bucket,
				Open:      mid,
				High:      mid,
				Low:       mid,
			})
		}
		cur := &out[len(out)-1]
		cur.High = max(cur.High, mid)
		cur.Low = min(cur.Low, mid)
		cur.Close = mid
		cur.Volume++
		cur.TradeCount++
	}
	return out
}

// RangeBars reduces a price path to the levels it moves through in steps of
// pips+1 pips. Prices are snapped to whole pips first; a new level is
// emitted each time the price moves more than pips away from the last one.
// The first price is always the first level.
func RangeBars(prices []float64, pips int64, pipSize float64) []float64 {
	if len(prices) == 0 || pips <= 0 || pipSize <= 0 {
		return nil
	}
	size := decimal.NewFromFloat(pipSize)
	toPips := func(p float64) int64 {
		return decimal.NewFromFloat(p).Div(size).Round(0).IntPart()
	}

	step := pips + 1
	levels := []int64{toPips(prices[0])}
	for _, p := range prices[1:] {
		change := toPips(p) - levels[len(levels)-1]
		for change > pips {
			levels = append(levels, levels[len(levels)-1]+step)
			change -= step
		}
		for change < -pips {
			levels = append(levels, levels[len(levels)-1]-step)
			change += step
		}
	}

	out := make([]float64, len(levels))
	for i, l := range levels {
		out[i] = decimal.NewFromInt(l).Mul(size).InexactFloat64()
	}
	return out
}
