package fingerprint

import (
	"testing"

	"bottlo.nz/pricefeed/internal/listing"
)

func TestComputeSameProductDifferentEncoding(t *testing.T) {
	t.Parallel()

	first := listing.RawRecord{
		Name:       "Export Gold Lager Bottles",
		Brand:      "DB",
		Category:   "beer",
		PackCount:  12,
		UnitVolume: "330ml",
	}
	second := listing.RawRecord{
		Name:       "Bottles Lager EXPORT gold",
		Brand:      "db",
		Category:   "Beer",
		PackCount:  12,
		UnitVolume: "0.33L",
	}

	left := Compute(first, Options{})
	right := Compute(second, Options{})

	if left.Key != right.Key {
		t.Fatalf("expected identical keys, got %q and %q", left.Key, right.Key)
	}
	if left.Degraded || right.Degraded {
		t.Fatalf("expected non-degraded keys")
	}
}

func TestComputeVolumeWithinTolerance(t *testing.T) {
	t.Parallel()

	base := listing.RawRecord{Name: "Pinot Noir", Brand: "Oyster Bay", Category: "wine", UnitVolume: "750ml"}
	near := base
	near.UnitVolume = "745ml"
	far := base
	far.UnitVolume = "1000ml"

	baseKey := Compute(base, Options{})
	nearKey := Compute(near, Options{})
	farKey := Compute(far, Options{})

	if baseKey.Key != nearKey.Key {
		t.Fatalf("expected 745ml and 750ml to share a bucket")
	}
	if baseKey.Key == farKey.Key {
		t.Fatalf("expected 750ml and 1000ml to differ")
	}
}

func TestComputePackCountChangesKey(t *testing.T) {
	t.Parallel()

	single := listing.RawRecord{Name: "IPA", Brand: "Panhead", Category: "beer", PackCount: 1, UnitVolume: "330ml"}
	sixPack := single
	sixPack.PackCount = 6

	if Compute(single, Options{}).Key == Compute(sixPack, Options{}).Key {
		t.Fatalf("expected pack count to be part of the identity")
	}
}

func TestComputeDegradedWithoutVolume(t *testing.T) {
	t.Parallel()

	record := listing.RawRecord{Name: "Mystery Seltzer", Brand: "Pals"}
	key := Compute(record, Options{})

	if !key.Degraded {
		t.Fatalf("expected degraded key without volume")
	}
	if key.VolumeBucket != DegradedBucket {
		t.Fatalf("expected degraded bucket, got %d", key.VolumeBucket)
	}
	if key.Key == "" {
		t.Fatalf("degraded records still need a key")
	}

	// The degraded key stays stable across encodings of the same name.
	other := Compute(listing.RawRecord{Name: "SELTZER mystery", Brand: "pals"}, Options{})
	if key.Key != other.Key {
		t.Fatalf("expected degraded keys to match, got %q and %q", key.Key, other.Key)
	}
}

func TestNormalizeTokensSortsAndStrips(t *testing.T) {
	t.Parallel()

	got := NormalizeTokens("  Gold, EXPORT  (Lager)! ")
	want := "export gold lager"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestVolumeBucketRejectsNonPositive(t *testing.T) {
	t.Parallel()

	if VolumeBucket(0, 0.05) != DegradedBucket {
		t.Fatalf("expected degraded bucket for zero volume")
	}
	if VolumeBucket(-10, 0.05) != DegradedBucket {
		t.Fatalf("expected degraded bucket for negative volume")
	}
}
