package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
)

func payloadJSON(retailer, sku, name string) string {
	return fmt.Sprintf(`{
		"payload_version": "v1",
		"retailer": %q,
		"source_product_id": %q,
		"source_store_id": "store-1",
		"name": %q,
		"price": 9.99,
		"scraped_at": "2026-08-20T03:00:00Z"
	}`, retailer, sku, name)
}

func writeFixture(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", name, err)
	}
}

func TestFixtureAdapterReadsFilesInOrder(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "liquorland")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	// b.json is an array, a.json a single object; a sorts first.
	writeFixture(t, dir, "b.json", "["+payloadJSON("liquorland", "sku-2", "Second")+","+payloadJSON("liquorland", "sku-3", "Third")+"]")
	writeFixture(t, dir, "a.json", payloadJSON("liquorland", "sku-1", "First"))
	writeFixture(t, dir, "stores.json", `[{"source_store_id":"store-1","name":"Central"}]`)
	writeFixture(t, dir, "notes.txt", "not a payload")

	adapter, err := NewFixtureAdapter(root, "liquorland")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	defer adapter.Close()

	var skus []string
	for {
		record, err := adapter.Next(context.Background())
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("next: %v", err)
		}
		if len(record.Payload) == 0 {
			t.Fatalf("record %q must carry its wire payload", record.SourceProductID)
		}
		skus = append(skus, record.SourceProductID)
	}

	want := []string{"sku-1", "sku-2", "sku-3"}
	if len(skus) != len(want) {
		t.Fatalf("expected %v, got %v", want, skus)
	}
	for i := range want {
		if skus[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, skus)
		}
	}
}

func TestFixtureAdapterRejectsRetailerMismatch(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "liquorland")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFixture(t, dir, "a.json", payloadJSON("bottleo", "sku-1", "Misplaced"))

	adapter, err := NewFixtureAdapter(root, "liquorland")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	defer adapter.Close()

	if _, err := adapter.Next(context.Background()); !errors.Is(err, ErrBadRecord) {
		t.Fatalf("expected mismatched retailer to be a bad record, got %v", err)
	}
}

func TestFixtureAdapterContinuesPastBadPayload(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "liquorland")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	// The middle payload is missing its price and must fail validation
	// without hiding the one after it.
	bad := `{"payload_version":"v1","retailer":"liquorland","source_store_id":"store-1","name":"No Price","scraped_at":"2026-08-20T03:00:00Z"}`
	writeFixture(t, dir, "a.json", "["+payloadJSON("liquorland", "sku-1", "First")+","+bad+","+payloadJSON("liquorland", "sku-3", "Third")+"]")

	adapter, err := NewFixtureAdapter(root, "liquorland")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	defer adapter.Close()

	first, err := adapter.Next(context.Background())
	if err != nil || first.SourceProductID != "sku-1" {
		t.Fatalf("expected sku-1, got %q / %v", first.SourceProductID, err)
	}

	if _, err := adapter.Next(context.Background()); !errors.Is(err, ErrBadRecord) {
		t.Fatalf("expected the invalid payload to surface as a bad record, got %v", err)
	}

	third, err := adapter.Next(context.Background())
	if err != nil || third.SourceProductID != "sku-3" {
		t.Fatalf("expected sku-3 after the bad record, got %q / %v", third.SourceProductID, err)
	}

	if _, err := adapter.Next(context.Background()); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestFixtureAdapterMissingDir(t *testing.T) {
	t.Parallel()

	if _, err := NewFixtureAdapter(t.TempDir(), "nowhere"); err == nil {
		t.Fatalf("expected error for missing fixture dir")
	}
}

func TestReadFixtureStores(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	dir := filepath.Join(root, "liquorland")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeFixture(t, dir, "stores.json", `[
		{"source_store_id":"store-1","name":"Central","address":"1 Queen St"},
		{"source_store_id":"store-2","name":"Northside"}
	]`)

	stores, err := ReadFixtureStores(root, "liquorland")
	if err != nil {
		t.Fatalf("read stores: %v", err)
	}
	if len(stores) != 2 || stores[0].SourceStoreID != "store-1" || stores[1].Name != "Northside" {
		t.Fatalf("unexpected stores: %+v", stores)
	}

	// Absent file means the retailer has no bootstrap data, not an error.
	missing, err := ReadFixtureStores(root, "bottleo")
	if err != nil || missing != nil {
		t.Fatalf("expected nil for missing stores.json, got %v / %v", missing, err)
	}

	writeFixture(t, dir, "stores.json", `[{"name":"No ID"}]`)
	if _, err := ReadFixtureStores(root, "liquorland"); err == nil {
		t.Fatalf("expected missing source_store_id to be rejected")
	}
}
