// Package listingschema validates raw listing payloads against the v1 wire
// schema before they enter the pipeline.
package listingschema

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"bottlo.nz/pricefeed/internal/listing"
)

//go:embed raw_listing.schema.json
var rawListingSchemaJSON string

// RawListing is the v1 wire shape of one listing payload.
type RawListing struct {
	PayloadVersion  string   `json:"payload_version"`
	Retailer        string   `json:"retailer"`
	SourceProductID *string  `json:"source_product_id,omitempty"`
	SourceStoreID   string   `json:"source_store_id"`
	Name            string   `json:"name"`
	Brand           *string  `json:"brand,omitempty"`
	Category        *string  `json:"category,omitempty"`
	PackCount       *int     `json:"pack_count,omitempty"`
	UnitVolume      *string  `json:"unit_volume,omitempty"`
	ABVPercent      *float64 `json:"abv_percent,omitempty"`
	Price           float64  `json:"price"`
	PromoPrice      *float64 `json:"promo_price,omitempty"`
	PromoText       *string  `json:"promo_text,omitempty"`
	PromoEndsAt     *string  `json:"promo_ends_at,omitempty"`
	MemberOnly      *bool    `json:"member_only,omitempty"`
	ScrapedAt       string   `json:"scraped_at"`
}

var (
	compileOnce       sync.Once
	compiledSchema    *jsonschema.Schema
	compiledSchemaErr error
)

// ValidateRawListingPayload checks one payload against the schema plus the
// semantic rules the schema cannot express, and returns the decoded listing.
func ValidateRawListingPayload(payload json.RawMessage) (*RawListing, error) {
	value, err := decodeStrictJSON(payload)
	if err != nil {
		return nil, fmt.Errorf("decode payload JSON: %w", err)
	}

	schema, err := loadSchema()
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	if err := schema.Validate(value); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("normalize payload JSON: %w", err)
	}

	var item RawListing
	if err := json.Unmarshal(normalized, &item); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	if err := validateSemantics(&item); err != nil {
		return nil, err
	}

	return &item, nil
}

// ToRawRecord converts a validated payload into the pipeline's record shape.
func (l *RawListing) ToRawRecord() (listing.RawRecord, error) {
	if l == nil {
		return listing.RawRecord{}, fmt.Errorf("listing payload is nil")
	}

	scrapedAt, err := time.Parse(time.RFC3339, strings.TrimSpace(l.ScrapedAt))
	if err != nil {
		return listing.RawRecord{}, fmt.Errorf("scraped_at must be RFC3339: %w", err)
	}

	record := listing.RawRecord{
		RetailerSlug:  strings.TrimSpace(strings.ToLower(l.Retailer)),
		SourceStoreID: strings.TrimSpace(l.SourceStoreID),
		Name:          strings.TrimSpace(l.Name),
		Price:         l.Price,
		PromoPrice:    l.PromoPrice,
		ABVPercent:    l.ABVPercent,
		ScrapedAt:     scrapedAt.UTC(),
	}
	if l.SourceProductID != nil {
		record.SourceProductID = strings.TrimSpace(*l.SourceProductID)
	}
	if l.Brand != nil {
		record.Brand = strings.TrimSpace(*l.Brand)
	}
	if l.Category != nil {
		record.Category = strings.TrimSpace(*l.Category)
	}
	if l.PackCount != nil {
		record.PackCount = *l.PackCount
	}
	if l.UnitVolume != nil {
		record.UnitVolume = strings.TrimSpace(*l.UnitVolume)
	}
	if l.PromoText != nil {
		text := strings.TrimSpace(*l.PromoText)
		if text != "" {
			record.PromoText = &text
		}
	}
	if l.PromoEndsAt != nil {
		endsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(*l.PromoEndsAt))
		if err != nil {
			return listing.RawRecord{}, fmt.Errorf("promo_ends_at must be RFC3339: %w", err)
		}
		utc := endsAt.UTC()
		record.PromoEndsAt = &utc
	}
	if l.MemberOnly != nil {
		record.MemberOnly = *l.MemberOnly
	}
	return record, nil
}

func loadSchema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		compiler.Draft = jsonschema.Draft2020
		compiler.AssertFormat = true

		if err := compiler.AddResource("raw_listing.schema.json", strings.NewReader(rawListingSchemaJSON)); err != nil {
			compiledSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}

		schema, err := compiler.Compile("raw_listing.schema.json")
		if err != nil {
			compiledSchemaErr = fmt.Errorf("compile schema: %w", err)
			return
		}

		compiledSchema = schema
	})

	if compiledSchemaErr != nil {
		return nil, compiledSchemaErr
	}
	if compiledSchema == nil {
		return nil, fmt.Errorf("schema not initialized")
	}
	return compiledSchema, nil
}

func decodeStrictJSON(raw []byte) (any, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.UseNumber()

	var value any
	if err := decoder.Decode(&value); err != nil {
		return nil, err
	}

	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("payload contains trailing content")
	}

	return value, nil
}

func validateSemantics(item *RawListing) error {
	if item == nil {
		return fmt.Errorf("payload is nil")
	}

	if strings.TrimSpace(item.PayloadVersion) != "v1" {
		return fmt.Errorf("payload_version must be v1")
	}
	if strings.TrimSpace(item.Retailer) == "" {
		return fmt.Errorf("retailer must not be empty")
	}
	if strings.TrimSpace(item.SourceStoreID) == "" {
		return fmt.Errorf("source_store_id must not be empty")
	}
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("name must not be empty")
	}
	if _, err := time.Parse(time.RFC3339, strings.TrimSpace(item.ScrapedAt)); err != nil {
		return fmt.Errorf("scraped_at must be RFC3339: %w", err)
	}
	if item.PromoEndsAt != nil {
		if _, err := time.Parse(time.RFC3339, strings.TrimSpace(*item.PromoEndsAt)); err != nil {
			return fmt.Errorf("promo_ends_at must be RFC3339: %w", err)
		}
	}

	return nil
}
