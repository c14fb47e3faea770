// Package pricing derives comparison metrics from raw listing prices:
// effective price after promo semantics, price per 100ml, NZ standard drinks,
// and price per standard drink.
package pricing

import (
	"bottlo.nz/pricefeed/internal/listing"
)

// DefaultStandardDrinkML is the millilitres of pure ethanol in one NZ
// standard drink (10g at 0.789 g/ml).
const DefaultStandardDrinkML = 12.7

type Options struct {
	StandardDrinkML float64
}

// Metrics is the derived pricing view of one raw listing. Pointer metrics
// are nil when the inputs needed to derive them are missing or zero; that is
// a data gap, never an error.
type Metrics struct {
	EffectivePrice        float64
	PricePer100ML         *float64
	StandardDrinks        *float64
	PricePerStandardDrink *float64

	// PromoDiscarded is set when a promo price was present but not strictly
	// lower than the list price; the caller logs it as a data-quality warning.
	PromoDiscarded bool
	// PromoApplied is set when the promo price became the effective price.
	PromoApplied bool
}

// Normalize computes derived metrics for one raw listing. Pure and total:
// missing volume or ABV yields nil metrics, never an error.
func Normalize(raw listing.RawRecord, opts Options) Metrics {
	standardDrinkML := opts.StandardDrinkML
	if standardDrinkML <= 0 {
		standardDrinkML = DefaultStandardDrinkML
	}

	m := Metrics{EffectivePrice: raw.Price}
	if raw.PromoPrice != nil {
		switch {
		case *raw.PromoPrice > 0 && *raw.PromoPrice < raw.Price:
			m.EffectivePrice = *raw.PromoPrice
			m.PromoApplied = true
		default:
			m.PromoDiscarded = true
		}
	}

	totalML := raw.TotalVolumeML()
	if totalML <= 0 || m.EffectivePrice <= 0 {
		return m
	}

	per100 := m.EffectivePrice / (totalML / 100)
	m.PricePer100ML = &per100

	if raw.ABVPercent == nil || *raw.ABVPercent <= 0 {
		return m
	}

	drinks := totalML * (*raw.ABVPercent / 100) / standardDrinkML
	if drinks <= 0 {
		return m
	}
	m.StandardDrinks = &drinks

	perDrink := m.EffectivePrice / drinks
	m.PricePerStandardDrink = &perDrink
	return m
}
