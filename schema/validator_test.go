package listingschema

import (
	"encoding/json"
	"testing"
	"time"
)

const validPayload = `{
	"payload_version": "v1",
	"retailer": "Liquorland",
	"source_product_id": " sku-991 ",
	"source_store_id": "store-1",
	"name": "  Export Gold Bottles 330ml  ",
	"brand": "DB",
	"category": "beer",
	"pack_count": 15,
	"unit_volume": "330ml",
	"abv_percent": 4.0,
	"price": 24.99,
	"promo_price": 21.99,
	"promo_text": "Club deal",
	"promo_ends_at": "2026-09-01T12:00:00+12:00",
	"member_only": true,
	"scraped_at": "2026-08-20T03:00:00Z"
}`

func TestValidateRawListingPayload(t *testing.T) {
	t.Parallel()

	item, err := ValidateRawListingPayload(json.RawMessage(validPayload))
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}
	if item.Retailer != "Liquorland" || item.Price != 24.99 {
		t.Fatalf("decoded payload looks wrong: %+v", item)
	}
	if item.PackCount == nil || *item.PackCount != 15 {
		t.Fatalf("expected pack_count 15, got %v", item.PackCount)
	}
}

func TestValidateRawListingPayloadRejections(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		payload string
	}{
		{"empty", ``},
		{"not an object", `[1, 2, 3]`},
		{"trailing content", validPayload + `{}`},
		{"wrong version", `{"payload_version":"v2","retailer":"x","source_store_id":"s","name":"n","price":1,"scraped_at":"2026-08-20T03:00:00Z"}`},
		{"missing name", `{"payload_version":"v1","retailer":"x","source_store_id":"s","price":1,"scraped_at":"2026-08-20T03:00:00Z"}`},
		{"blank name", `{"payload_version":"v1","retailer":"x","source_store_id":"s","name":"   ","price":1,"scraped_at":"2026-08-20T03:00:00Z"}`},
		{"zero price", `{"payload_version":"v1","retailer":"x","source_store_id":"s","name":"n","price":0,"scraped_at":"2026-08-20T03:00:00Z"}`},
		{"bad scraped_at", `{"payload_version":"v1","retailer":"x","source_store_id":"s","name":"n","price":1,"scraped_at":"yesterday"}`},
		{"abv over 100", `{"payload_version":"v1","retailer":"x","source_store_id":"s","name":"n","abv_percent":120,"price":1,"scraped_at":"2026-08-20T03:00:00Z"}`},
		{"pack_count zero", `{"payload_version":"v1","retailer":"x","source_store_id":"s","name":"n","pack_count":0,"price":1,"scraped_at":"2026-08-20T03:00:00Z"}`},
		{"unknown field", `{"payload_version":"v1","retailer":"x","source_store_id":"s","name":"n","price":1,"scraped_at":"2026-08-20T03:00:00Z","surprise":true}`},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if _, err := ValidateRawListingPayload(json.RawMessage(tc.payload)); err == nil {
				t.Fatalf("expected rejection")
			}
		})
	}
}

func TestToRawRecord(t *testing.T) {
	t.Parallel()

	item, err := ValidateRawListingPayload(json.RawMessage(validPayload))
	if err != nil {
		t.Fatalf("expected valid payload, got %v", err)
	}

	record, err := item.ToRawRecord()
	if err != nil {
		t.Fatalf("convert: %v", err)
	}

	if record.RetailerSlug != "liquorland" {
		t.Fatalf("retailer must be lower-cased, got %q", record.RetailerSlug)
	}
	if record.SourceProductID != "sku-991" {
		t.Fatalf("source product id must be trimmed, got %q", record.SourceProductID)
	}
	if record.Name != "Export Gold Bottles 330ml" {
		t.Fatalf("name must be trimmed, got %q", record.Name)
	}
	if record.ScrapedAt.Location() != time.UTC {
		t.Fatalf("scraped_at must be UTC")
	}
	if record.PromoEndsAt == nil || record.PromoEndsAt.Location() != time.UTC {
		t.Fatalf("promo_ends_at must be converted to UTC, got %v", record.PromoEndsAt)
	}
	if record.PromoEndsAt.Hour() != 0 {
		t.Fatalf("expected +12:00 offset normalized to midnight UTC, got %v", record.PromoEndsAt)
	}
	if !record.MemberOnly {
		t.Fatalf("member_only flag lost in conversion")
	}
}
