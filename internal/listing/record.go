package listing

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RawRecord is one per-source listing, already normalized into a fixed shape
// by a source adapter. Per-retailer field variation stops at the adapter
// boundary; the pipeline never branches on retailer identity.
type RawRecord struct {
	RetailerSlug    string
	SourceProductID string // optional; empty when the source exposes no stable id
	SourceStoreID   string
	Name            string
	Brand           string
	Category        string
	PackCount       int
	UnitVolume      string // source-reported encoding, e.g. "330ml" or "0.33L"
	ABVPercent      *float64
	Price           float64
	PromoPrice      *float64
	PromoText       *string
	PromoEndsAt     *time.Time
	MemberOnly      bool
	ScrapedAt       time.Time

	// Payload is the original wire payload as the adapter received it, kept
	// for raw retention. Empty when the adapter has no wire form.
	Payload []byte
}

// TrimmedSourceProductID returns the stable source identifier, or "" when the
// source exposes none.
func (r RawRecord) TrimmedSourceProductID() string {
	return strings.TrimSpace(r.SourceProductID)
}

// EffectivePackCount treats a missing pack count as a single unit.
func (r RawRecord) EffectivePackCount() int {
	if r.PackCount <= 0 {
		return 1
	}
	return r.PackCount
}

// TotalVolumeML is pack count times unit volume, or 0 when the unit volume
// cannot be parsed.
func (r RawRecord) TotalVolumeML() float64 {
	unit, ok := ParseVolumeML(r.UnitVolume)
	if !ok {
		return 0
	}
	return unit * float64(r.EffectivePackCount())
}

// ParseVolumeML parses source-reported volume strings into millilitres.
// Accepts ml/mL/cl/l/L suffixes with optional whitespace; returns false for
// anything it cannot interpret so callers can degrade instead of failing.
func ParseVolumeML(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(strings.ToLower(raw))
	if trimmed == "" {
		return 0, false
	}

	unit := ""
	switch {
	case strings.HasSuffix(trimmed, "ml"):
		unit = "ml"
		trimmed = strings.TrimSuffix(trimmed, "ml")
	case strings.HasSuffix(trimmed, "cl"):
		unit = "cl"
		trimmed = strings.TrimSuffix(trimmed, "cl")
	case strings.HasSuffix(trimmed, "ltr"):
		unit = "l"
		trimmed = strings.TrimSuffix(trimmed, "ltr")
	case strings.HasSuffix(trimmed, "l"):
		unit = "l"
		trimmed = strings.TrimSuffix(trimmed, "l")
	default:
		// Bare numbers are assumed to already be millilitres.
		unit = "ml"
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(trimmed), 64)
	if err != nil || value <= 0 {
		return 0, false
	}

	switch unit {
	case "cl":
		value *= 10
	case "l":
		value *= 1000
	}
	return value, true
}

// Validate rejects records no stage downstream can use. Anything else is left
// for the matcher/normalizer to handle field by field.
func (r RawRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("listing name is required")
	}
	if strings.TrimSpace(r.SourceStoreID) == "" {
		return fmt.Errorf("listing source_store_id is required")
	}
	if r.Price <= 0 {
		return fmt.Errorf("listing price must be > 0, got %v", r.Price)
	}
	if r.ScrapedAt.IsZero() {
		return fmt.Errorf("listing scraped_at is required")
	}
	return nil
}
