package source

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"bottlo.nz/pricefeed/internal/listing"
	listingschema "bottlo.nz/pricefeed/schema"
)

// storesFileName is reserved for store bootstrap data and skipped by the
// listing iterator.
const storesFileName = "stores.json"

// FixtureAdapter yields listings from JSON fixture files under
// <dir>/<retailer-slug>/. Each *.json file holds one payload object or an
// array of payloads; files are read in name order and every payload is
// schema-validated before it reaches the pipeline.
type FixtureAdapter struct {
	retailerSlug string
	files        []string

	fileIdx  int
	payloads []json.RawMessage
	next     int
}

// NewFixtureAdapter lists the retailer's fixture directory up front; payload
// files are read lazily as the coordinator drains the adapter.
func NewFixtureAdapter(dir, retailerSlug string) (*FixtureAdapter, error) {
	retailerSlug = strings.TrimSpace(strings.ToLower(retailerSlug))
	if retailerSlug == "" {
		return nil, fmt.Errorf("retailer slug is required")
	}

	root := filepath.Join(dir, retailerSlug)
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read fixture dir %s: %w", root, err)
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if name == storesFileName || !strings.HasSuffix(name, ".json") {
			continue
		}
		files = append(files, filepath.Join(root, name))
	}
	sort.Strings(files)

	return &FixtureAdapter{
		retailerSlug: retailerSlug,
		files:        files,
	}, nil
}

// Next returns the next validated record, or io.EOF when all fixture files
// are exhausted.
func (a *FixtureAdapter) Next(ctx context.Context) (listing.RawRecord, error) {
	if a == nil {
		return listing.RawRecord{}, fmt.Errorf("fixture adapter is not initialized")
	}

	for {
		if err := ctx.Err(); err != nil {
			return listing.RawRecord{}, err
		}

		if a.next < len(a.payloads) {
			payload := a.payloads[a.next]
			a.next++
			return a.decode(payload)
		}

		if a.fileIdx >= len(a.files) {
			return listing.RawRecord{}, io.EOF
		}

		path := a.files[a.fileIdx]
		a.fileIdx++

		payloads, err := readPayloadFile(path)
		if err != nil {
			return listing.RawRecord{}, err
		}
		a.payloads = payloads
		a.next = 0
	}
}

func (a *FixtureAdapter) Close() error { return nil }

func (a *FixtureAdapter) decode(payload json.RawMessage) (listing.RawRecord, error) {
	item, err := listingschema.ValidateRawListingPayload(payload)
	if err != nil {
		return listing.RawRecord{}, fmt.Errorf("%w: validate listing payload: %v", ErrBadRecord, err)
	}

	record, err := item.ToRawRecord()
	if err != nil {
		return listing.RawRecord{}, fmt.Errorf("%w: %v", ErrBadRecord, err)
	}
	if record.RetailerSlug != a.retailerSlug {
		return listing.RawRecord{}, fmt.Errorf("%w: payload retailer %q does not match fixture dir %q", ErrBadRecord, record.RetailerSlug, a.retailerSlug)
	}
	record.Payload = payload
	return record, nil
}

// readPayloadFile splits one fixture file into individual payloads. A
// top-level array becomes one payload per element.
func readPayloadFile(path string) ([]json.RawMessage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture file %s: %w", path, err)
	}

	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("fixture file %s is empty", path)
	}

	if trimmed[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decode fixture array %s: %w", path, err)
		}
		return items, nil
	}

	return []json.RawMessage{json.RawMessage(trimmed)}, nil
}

// FixtureStore is one store bootstrap row from a stores.json file.
type FixtureStore struct {
	SourceStoreID string   `json:"source_store_id"`
	Name          string   `json:"name"`
	Address       *string  `json:"address,omitempty"`
	Longitude     *float64 `json:"longitude,omitempty"`
	Latitude      *float64 `json:"latitude,omitempty"`
}

// ReadFixtureStores loads <dir>/<retailer-slug>/stores.json. A missing file
// is not an error; store sync is normally someone else's job.
func ReadFixtureStores(dir, retailerSlug string) ([]FixtureStore, error) {
	path := filepath.Join(dir, strings.TrimSpace(strings.ToLower(retailerSlug)), storesFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var stores []FixtureStore
	if err := json.Unmarshal(data, &stores); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	for i, store := range stores {
		if strings.TrimSpace(store.SourceStoreID) == "" {
			return nil, fmt.Errorf("%s: stores[%d] missing source_store_id", path, i)
		}
		if strings.TrimSpace(store.Name) == "" {
			return nil, fmt.Errorf("%s: stores[%d] missing name", path, i)
		}
	}
	return stores, nil
}
