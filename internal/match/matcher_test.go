package match

import (
	"context"
	"testing"

	"bottlo.nz/pricefeed/internal/fingerprint"
	"bottlo.nz/pricefeed/internal/listing"
)

type fakeStore struct {
	bySourceID    map[string]*Candidate
	byFingerprint map[string]*Candidate
	fuzzy         []Candidate
}

func (s *fakeStore) FindProductBySourceID(_ context.Context, _ int64, sourceProductID string) (*Candidate, error) {
	return s.bySourceID[sourceProductID], nil
}

func (s *fakeStore) FindProductByFingerprint(_ context.Context, key string) (*Candidate, error) {
	return s.byFingerprint[key], nil
}

func (s *fakeStore) FindFuzzyCandidates(_ context.Context, _ int, _ string) ([]Candidate, error) {
	return s.fuzzy, nil
}

func keyFor(t *testing.T, raw listing.RawRecord) fingerprint.Key {
	t.Helper()
	return fingerprint.Compute(raw, fingerprint.Options{})
}

func TestMatchSourceIDWinsOverEverything(t *testing.T) {
	t.Parallel()

	raw := listing.RawRecord{SourceProductID: "sku-42", Name: "Export Gold", Brand: "DB", UnitVolume: "330ml"}
	key := keyFor(t, raw)
	store := &fakeStore{
		bySourceID:    map[string]*Candidate{"sku-42": {ProductID: 7}},
		byFingerprint: map[string]*Candidate{key.Key: {ProductID: 9}},
	}

	result, err := NewMatcher(store, Options{}).Match(context.Background(), 1, raw, key)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if result.Method != MethodStrict || result.ProductID != 7 {
		t.Fatalf("expected strict match on product 7, got %+v", result)
	}
	if result.Confidence == nil || *result.Confidence != 1.0 {
		t.Fatalf("expected confidence 1.0, got %v", result.Confidence)
	}
}

func TestMatchFingerprintTier(t *testing.T) {
	t.Parallel()

	raw := listing.RawRecord{Name: "Export Gold", Brand: "DB", UnitVolume: "330ml"}
	key := keyFor(t, raw)
	store := &fakeStore{
		byFingerprint: map[string]*Candidate{key.Key: {ProductID: 11}},
	}

	result, err := NewMatcher(store, Options{}).Match(context.Background(), 1, raw, key)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if result.Method != MethodStrict || result.ProductID != 11 {
		t.Fatalf("expected strict fingerprint match, got %+v", result)
	}
	if len(result.Reasons) == 0 || result.Reasons[0] != "fingerprint" {
		t.Fatalf("expected fingerprint reason, got %v", result.Reasons)
	}
}

func TestMatchFuzzyAcceptsHighScore(t *testing.T) {
	t.Parallel()

	raw := listing.RawRecord{Name: "Export Gold Lager", Brand: "DB", UnitVolume: "330ml"}
	key := keyFor(t, raw)
	store := &fakeStore{
		fuzzy: []Candidate{
			{ProductID: 3, NormalizedName: "export gold lager", NormalizedBrand: "db"},
			{ProductID: 4, NormalizedName: "stout dark winter", NormalizedBrand: "other"},
		},
	}

	result, err := NewMatcher(store, Options{}).Match(context.Background(), 1, raw, key)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if result.Method != MethodFuzzy || result.ProductID != 3 {
		t.Fatalf("expected fuzzy match on product 3, got %+v", result)
	}
	if result.Confidence == nil || *result.Confidence <= 0 || *result.Confidence >= 1 {
		t.Fatalf("fuzzy confidence must be in (0,1), got %v", result.Confidence)
	}
}

func TestMatchAmbiguousTieCreatesNew(t *testing.T) {
	t.Parallel()

	raw := listing.RawRecord{Name: "Export Gold Lager", Brand: "DB", UnitVolume: "330ml"}
	key := keyFor(t, raw)
	// Both candidates score identically; the tie band must refuse to guess.
	store := &fakeStore{
		fuzzy: []Candidate{
			{ProductID: 3, NormalizedName: "export gold lager", NormalizedBrand: "db"},
			{ProductID: 4, NormalizedName: "export gold lager", NormalizedBrand: "db"},
		},
	}

	result, err := NewMatcher(store, Options{}).Match(context.Background(), 1, raw, key)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if result.Method != MethodNew {
		t.Fatalf("expected ambiguous tie to resolve to new, got %+v", result)
	}
	if result.Confidence != nil {
		t.Fatalf("new resolutions carry no confidence")
	}
}

func TestMatchBelowThresholdCreatesNew(t *testing.T) {
	t.Parallel()

	raw := listing.RawRecord{Name: "Export Gold Lager", Brand: "DB", UnitVolume: "330ml"}
	key := keyFor(t, raw)
	store := &fakeStore{
		fuzzy: []Candidate{
			{ProductID: 5, NormalizedName: "merlot reserve", NormalizedBrand: "villa maria"},
		},
	}

	result, err := NewMatcher(store, Options{}).Match(context.Background(), 1, raw, key)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if result.Method != MethodNew || result.ProductID != 0 {
		t.Fatalf("expected new product resolution, got %+v", result)
	}
}

func TestMatchDegradedKeySkipsFuzzy(t *testing.T) {
	t.Parallel()

	raw := listing.RawRecord{Name: "Mystery Seltzer", Brand: "Pals"}
	key := keyFor(t, raw)
	if !key.Degraded {
		t.Fatalf("expected degraded key for missing volume")
	}
	store := &fakeStore{
		fuzzy: []Candidate{
			{ProductID: 6, NormalizedName: "mystery seltzer", NormalizedBrand: "pals"},
		},
	}

	result, err := NewMatcher(store, Options{}).Match(context.Background(), 1, raw, key)
	if err != nil {
		t.Fatalf("match failed: %v", err)
	}
	if result.Method != MethodNew {
		t.Fatalf("degraded keys must not fuzzy-match, got %+v", result)
	}
}

func TestTokenJaccard(t *testing.T) {
	t.Parallel()

	if got := tokenJaccard("export gold lager", "export gold lager"); got != 1.0 {
		t.Fatalf("expected 1.0, got %v", got)
	}
	if got := tokenJaccard("export gold", "gold export pale"); got <= 0.5 || got >= 1.0 {
		t.Fatalf("expected partial overlap in (0.5,1.0), got %v", got)
	}
	if got := tokenJaccard("", "anything"); got != 0 {
		t.Fatalf("expected 0 for empty input, got %v", got)
	}
}
