package db

import (
	"encoding/json"
	"time"
)

// Retailer maps catalog.retailers. Seeded from static configuration; the
// pipeline never mutates existing rows.
type Retailer struct {
	RetailerID int64     `gorm:"column:retailer_id;primaryKey;autoIncrement"`
	Slug       string    `gorm:"column:slug;type:text;not null;unique"`
	Name       string    `gorm:"column:name;type:text;not null"`
	CreatedAt  time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Retailer) TableName() string { return "catalog.retailers" }

// Store maps catalog.stores. Written by the external store-sync collaborator;
// the pipeline only reads stores to attach prices.
type Store struct {
	StoreID       int64     `gorm:"column:store_id;primaryKey;autoIncrement"`
	StoreUUID     string    `gorm:"column:store_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	RetailerID    int64     `gorm:"column:retailer_id;type:bigint;not null;index"`
	SourceStoreID string    `gorm:"column:source_store_id;type:text;not null"`
	Name          string    `gorm:"column:name;type:text;not null"`
	Address       *string   `gorm:"column:address;type:text"`
	Longitude     *float64  `gorm:"column:longitude;type:double precision"`
	Latitude      *float64  `gorm:"column:latitude;type:double precision"`
	CreatedAt     time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt     time.Time `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (Store) TableName() string { return "catalog.stores" }

// Product maps catalog.products: the deduplicated canonical product.
// Descriptive fields are first-write-wins; only source identifiers accumulate
// after creation.
type Product struct {
	ProductID      int64     `gorm:"column:product_id;primaryKey;autoIncrement"`
	ProductUUID    string    `gorm:"column:product_uuid;type:uuid;not null;default:gen_random_uuid();unique"`
	Fingerprint    string    `gorm:"column:fingerprint;type:text;not null;unique"`
	NormalizedName string    `gorm:"column:normalized_name;type:text;not null"`
	Brand          string    `gorm:"column:brand;type:text;not null;default:''"`
	Category       string    `gorm:"column:category;type:text;not null;default:''"`
	PackCount      int       `gorm:"column:pack_count;type:integer;not null;default:1"`
	UnitVolumeML   *float64  `gorm:"column:unit_volume_ml;type:double precision"`
	ABVPercent     *float64  `gorm:"column:abv_percent;type:double precision"`
	VolumeBucket   int       `gorm:"column:volume_bucket;type:integer;not null;default:-1"`
	CreatedAt      time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (Product) TableName() string { return "catalog.products" }

// ProductSourceID maps catalog.product_source_ids: the monotonic set of
// per-retailer source identifiers attached to a canonical product.
type ProductSourceID struct {
	RetailerID      int64     `gorm:"column:retailer_id;type:bigint;primaryKey"`
	SourceProductID string    `gorm:"column:source_product_id;type:text;primaryKey"`
	ProductID       int64     `gorm:"column:product_id;type:bigint;not null;index"`
	CreatedAt       time.Time `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (ProductSourceID) TableName() string { return "catalog.product_source_ids" }

// PriceRecord maps catalog.price_records: append-only price time series, one
// row per (store, product, source timestamp).
type PriceRecord struct {
	PriceRecordID         int64      `gorm:"column:price_record_id;primaryKey;autoIncrement"`
	StoreID               int64      `gorm:"column:store_id;type:bigint;not null"`
	ProductID             int64      `gorm:"column:product_id;type:bigint;not null"`
	RunID                 int64      `gorm:"column:run_id;type:bigint;not null"`
	Price                 float64    `gorm:"column:price;type:numeric(12,2);not null"`
	PromoPrice            *float64   `gorm:"column:promo_price;type:numeric(12,2)"`
	PromoText             *string    `gorm:"column:promo_text;type:text"`
	PromoEndsAt           *time.Time `gorm:"column:promo_ends_at;type:timestamptz"`
	MemberOnly            bool       `gorm:"column:member_only;type:boolean;not null;default:false"`
	PricePer100ML         *float64   `gorm:"column:price_per_100ml;type:double precision"`
	StandardDrinks        *float64   `gorm:"column:standard_drinks;type:double precision"`
	PricePerStandardDrink *float64   `gorm:"column:price_per_standard_drink;type:double precision"`
	SourceTS              time.Time  `gorm:"column:source_ts;type:timestamptz;not null"`
	CreatedAt             time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (PriceRecord) TableName() string { return "catalog.price_records" }

// IngestionRun maps catalog.ingestion_runs.
type IngestionRun struct {
	RunID           int64      `gorm:"column:run_id;primaryKey;autoIncrement"`
	RunUUID         string     `gorm:"column:run_uuid;type:uuid;not null;unique"`
	RetailerID      int64      `gorm:"column:retailer_id;type:bigint;not null;index"`
	Source          string     `gorm:"column:source;type:text;not null"`
	StartedAt       time.Time  `gorm:"column:started_at;type:timestamptz;not null"`
	FinishedAt      *time.Time `gorm:"column:finished_at;type:timestamptz"`
	Status          string     `gorm:"column:status;type:text;not null;default:running"`
	RecordsFetched  int        `gorm:"column:records_fetched;type:integer;not null;default:0"`
	MatchedStrict   int        `gorm:"column:matched_strict;type:integer;not null;default:0"`
	MatchedFuzzy    int        `gorm:"column:matched_fuzzy;type:integer;not null;default:0"`
	ProductsCreated int        `gorm:"column:products_created;type:integer;not null;default:0"`
	RecordsSkipped  int        `gorm:"column:records_skipped;type:integer;not null;default:0"`
	RecordsErrored  int        `gorm:"column:records_errored;type:integer;not null;default:0"`
	ErrorMessage    *string    `gorm:"column:error_message;type:text"`
	CreatedAt       time.Time  `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
	UpdatedAt       time.Time  `gorm:"column:updated_at;type:timestamptz;not null;default:now()"`
}

func (IngestionRun) TableName() string { return "catalog.ingestion_runs" }

// MatchEvent maps catalog.match_events: the per-record audit trail from
// fingerprint through commit outcome.
type MatchEvent struct {
	MatchEventID    int64           `gorm:"column:match_event_id;primaryKey;autoIncrement"`
	RunID           int64           `gorm:"column:run_id;type:bigint;not null;index"`
	Fingerprint     string          `gorm:"column:fingerprint;type:text;not null"`
	SourceProductID *string         `gorm:"column:source_product_id;type:text"`
	ProductID       *int64          `gorm:"column:product_id;type:bigint"`
	Method          string          `gorm:"column:method;type:text;not null"`
	Confidence      *float64        `gorm:"column:confidence;type:double precision"`
	Outcome         string          `gorm:"column:outcome;type:text;not null"`
	Reasons         json.RawMessage `gorm:"column:reasons;type:jsonb"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (MatchEvent) TableName() string { return "catalog.match_events" }

// RawListing maps catalog.raw_listings. Rows are written only when raw
// payload retention is enabled.
type RawListing struct {
	RawListingID    int64           `gorm:"column:raw_listing_id;primaryKey;autoIncrement"`
	RunID           int64           `gorm:"column:run_id;type:bigint;not null;index"`
	RetailerID      int64           `gorm:"column:retailer_id;type:bigint;not null"`
	SourceProductID *string         `gorm:"column:source_product_id;type:text"`
	Payload         json.RawMessage `gorm:"column:payload;type:jsonb;not null"`
	PayloadHash     []byte          `gorm:"column:payload_hash;type:bytea;not null"`
	FetchedAt       time.Time       `gorm:"column:fetched_at;type:timestamptz;not null"`
	CreatedAt       time.Time       `gorm:"column:created_at;type:timestamptz;not null;default:now()"`
}

func (RawListing) TableName() string { return "catalog.raw_listings" }

func autoMigrateModels() []any {
	return []any{
		&Retailer{},
		&Store{},
		&Product{},
		&ProductSourceID{},
		&PriceRecord{},
		&IngestionRun{},
		&MatchEvent{},
		&RawListing{},
	}
}
