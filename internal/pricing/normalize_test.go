package pricing

import (
	"math"
	"testing"

	"bottlo.nz/pricefeed/internal/listing"
)

func floatPtr(v float64) *float64 { return &v }

func TestNormalizeBeerCase(t *testing.T) {
	t.Parallel()

	// 15 x 330ml at 4% for $24.99: 4950ml total, 198ml ethanol,
	// 15.59 standard drinks.
	abv := 4.0
	raw := listing.RawRecord{
		Name:       "Export Gold Bottles",
		PackCount:  15,
		UnitVolume: "330ml",
		ABVPercent: &abv,
		Price:      24.99,
	}

	m := Normalize(raw, Options{})

	if m.EffectivePrice != 24.99 {
		t.Fatalf("expected effective price 24.99, got %v", m.EffectivePrice)
	}
	if m.PricePer100ML == nil || math.Abs(*m.PricePer100ML-0.50485) > 0.0001 {
		t.Fatalf("expected price per 100ml ~0.50485, got %v", m.PricePer100ML)
	}
	if m.StandardDrinks == nil || math.Abs(*m.StandardDrinks-15.59) > 0.01 {
		t.Fatalf("expected ~15.59 standard drinks, got %v", m.StandardDrinks)
	}
	if m.PricePerStandardDrink == nil || math.Abs(*m.PricePerStandardDrink-1.603) > 0.01 {
		t.Fatalf("expected ~1.60 per standard drink, got %v", m.PricePerStandardDrink)
	}
}

func TestNormalizeAppliesLowerPromo(t *testing.T) {
	t.Parallel()

	raw := listing.RawRecord{
		Name:       "Sav Blanc",
		UnitVolume: "750ml",
		Price:      19.99,
		PromoPrice: floatPtr(14.99),
	}

	m := Normalize(raw, Options{})

	if !m.PromoApplied || m.PromoDiscarded {
		t.Fatalf("expected promo applied, got %+v", m)
	}
	if m.EffectivePrice != 14.99 {
		t.Fatalf("expected effective price 14.99, got %v", m.EffectivePrice)
	}
}

func TestNormalizeDiscardsBogusPromo(t *testing.T) {
	t.Parallel()

	for _, promo := range []float64{19.99, 25.00, 0, -3} {
		raw := listing.RawRecord{
			Name:       "Sav Blanc",
			UnitVolume: "750ml",
			Price:      19.99,
			PromoPrice: floatPtr(promo),
		}

		m := Normalize(raw, Options{})

		if m.PromoApplied || !m.PromoDiscarded {
			t.Fatalf("promo %v: expected discard, got %+v", promo, m)
		}
		if m.EffectivePrice != 19.99 {
			t.Fatalf("promo %v: expected list price kept, got %v", promo, m.EffectivePrice)
		}
	}
}

func TestNormalizeMissingVolume(t *testing.T) {
	t.Parallel()

	m := Normalize(listing.RawRecord{Name: "Mystery", Price: 9.99}, Options{})

	if m.PricePer100ML != nil || m.StandardDrinks != nil || m.PricePerStandardDrink != nil {
		t.Fatalf("expected nil metrics without volume, got %+v", m)
	}
	if m.EffectivePrice != 9.99 {
		t.Fatalf("effective price must survive missing volume")
	}
}

func TestNormalizeMissingABV(t *testing.T) {
	t.Parallel()

	m := Normalize(listing.RawRecord{Name: "Soda", UnitVolume: "1.5L", Price: 3.50}, Options{})

	if m.PricePer100ML == nil {
		t.Fatalf("price per 100ml needs only volume")
	}
	if m.StandardDrinks != nil || m.PricePerStandardDrink != nil {
		t.Fatalf("standard drink metrics need ABV, got %+v", m)
	}
}

func TestNormalizeCustomStandardDrink(t *testing.T) {
	t.Parallel()

	abv := 40.0
	raw := listing.RawRecord{Name: "Gin", UnitVolume: "1000ml", ABVPercent: &abv, Price: 55}

	m := Normalize(raw, Options{StandardDrinkML: 10})
	if m.StandardDrinks == nil || math.Abs(*m.StandardDrinks-40.0) > 0.001 {
		t.Fatalf("expected 40 drinks at 10ml per drink, got %v", m.StandardDrinks)
	}
}
