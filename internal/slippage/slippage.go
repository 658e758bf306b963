// Package slippage provides the fill and commission models the blotter
// delegates to when it matches open orders against a bar.
package slippage

import (
	"errors"
	"fmt"
	"math"

	"forexsim/internal/blotter"
	"forexsim/internal/domain"
)

const (
	ModelFixed       = "fixed"
	ModelVolumeShare = "volume_share"

	// DefaultVolumeLimit is the share of a bar's volume a single asset may
	// trade in one step.
	DefaultVolumeLimit = 0.025
	// DefaultPriceImpact scales the quadratic price impact of volume share
	// fills.
	DefaultPriceImpact = 0.1
)

var ErrUnknownModel = errors.New("unknown model")

// Compile-time interface checks.
var (
	_ blotter.Slippage = (*FixedSlippage)(nil)
	_ blotter.Slippage = (*VolumeShareSlippage)(nil)
)

// FixedSlippage fills the whole open quantity of every triggered order at
// the bar close shifted by half the spread against the order's direction.
type FixedSlippage struct {
	Spread float64
}

func (s FixedSlippage) Fill(bar domain.Bar, asset domain.Asset, orders []*blotter.Order) []blotter.Fill {
	var fills []blotter.Fill
	for _, o := range orders {
		o.CheckTriggers(bar.Close, bar.Timestamp)
		if !o.Triggered() {
			continue
		}
		price := bar.Close + direction(o)*s.Spread/2
		fills = append(fills, blotter.Fill{
			Order: o,
			Transaction: domain.Transaction{
				Asset:     asset.ID,
				OrderID:   o.ID,
				Amount:    o.Remaining(),
				Price:     price,
				Timestamp: bar.Timestamp,
			},
		})
	}
	return fills
}

// VolumeShareSlippage caps the quantity an asset can trade in one bar to
// VolumeLimit times the bar's volume. Orders beyond the cap fill partially
// and carry over to later bars. Prices move against the order by
// PriceImpact times the squared volume share.
type VolumeShareSlippage struct {
	VolumeLimit float64
	PriceImpact float64
}

// NewVolumeShareSlippage applies the default limit and impact when the
// arguments are not positive.
func NewVolumeShareSlippage(volumeLimit, priceImpact float64) *VolumeShareSlippage {
	if volumeLimit <= 0 {
		volumeLimit = DefaultVolumeLimit
	}
	if priceImpact < 0 {
		priceImpact = DefaultPriceImpact
	}
	return &VolumeShareSlippage{VolumeLimit: volumeLimit, PriceImpact: priceImpact}
}

func (s *VolumeShareSlippage) Fill(bar domain.Bar, asset domain.Asset, orders []*blotter.Order) []blotter.Fill {
	if bar.Volume <= 0 {
		return nil
	}
	capacity := int64(math.Floor(float64(bar.Volume) * s.VolumeLimit))

	var (
		fills []blotter.Fill
		used  int64
	)
	for _, o := range orders {
		if used >= capacity {
			break
		}
		o.CheckTriggers(bar.Close, bar.Timestamp)
		if !o.Triggered() {
			continue
		}

		qty := min(abs(o.Remaining()), capacity-used)
		if qty == 0 {
			continue
		}
		used += qty

		share := float64(used) / float64(bar.Volume)
		impact := share * share * s.PriceImpact * bar.Close
		amount := qty
		if !o.IsBuy() {
			amount = -qty
		}
		fills = append(fills, blotter.Fill{
			Order: o,
			Transaction: domain.Transaction{
				Asset:     asset.ID,
				OrderID:   o.ID,
				Amount:    amount,
				Price:     bar.Close + direction(o)*impact,
				Timestamp: bar.Timestamp,
			},
		})
	}
	return fills
}

// New builds the named slippage model.
func New(model string, spread, volumeLimit float64) (blotter.Slippage, error) {
	switch model {
	case "", ModelFixed:
		return FixedSlippage{Spread: spread}, nil
	case ModelVolumeShare:
		return NewVolumeShareSlippage(volumeLimit, DefaultPriceImpact), nil
	default:
		return nil, fmt.Errorf("slippage %q: %w", model, ErrUnknownModel)
	}
}

func direction(o *blotter.Order) float64 {
	if o.IsBuy() {
		return 1
	}
	return -1
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
