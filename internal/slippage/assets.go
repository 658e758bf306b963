package slippage

import (
	"fmt"
	"sort"

	"forexsim/internal/blotter"
	"forexsim/internal/domain"
)

var _ blotter.AssetFinder = (*MapAssetFinder)(nil)

// MapAssetFinder resolves asset ids from a fixed instrument table.
type MapAssetFinder struct {
	assets map[string]domain.Asset
}

// NewMapAssetFinder indexes assets by ID. Assets without an ID are keyed by
// symbol.
func NewMapAssetFinder(assets ...domain.Asset) *MapAssetFinder {
	f := &MapAssetFinder{assets: make(map[string]domain.Asset, len(assets))}
	for _, a := range assets {
		if a.ID == "" {
			a.ID = a.Symbol
		}
		f.assets[a.ID] = a
	}
	return f
}

// ForSymbols builds a table with one asset per symbol sharing market and
// tick size.
func ForSymbols(market domain.Market, tickSize float64, symbols ...string) *MapAssetFinder {
	assets := make([]domain.Asset, 0, len(symbols))
	for _, s := range symbols {
		assets = append(assets, domain.Asset{ID: s, Symbol: s, Market: market, TickSize: tickSize})
	}
	return NewMapAssetFinder(assets...)
}

// RetrieveAll returns the assets for ids, failing on the first unknown one.
func (f *MapAssetFinder) RetrieveAll(ids []string) ([]domain.Asset, error) {
	out := make([]domain.Asset, 0, len(ids))
	for _, id := range ids {
		a, ok := f.assets[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", blotter.ErrUnknownAsset, id)
		}
		out = append(out, a)
	}
	return out, nil
}

// Lookup returns a single asset.
func (f *MapAssetFinder) Lookup(id string) (domain.Asset, bool) {
	a, ok := f.assets[id]
	return a, ok
}

// IDs returns the known asset ids, sorted.
func (f *MapAssetFinder) IDs() []string {
	ids := make([]string, 0, len(f.assets))
	for id := range f.assets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
