package listing

import (
	"testing"
	"time"
)

func TestParseVolumeML(t *testing.T) {
	t.Parallel()

	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"330ml", 330, true},
		{"330 mL", 330, true},
		{"0.33L", 330, true},
		{"1 Ltr", 1000, true},
		{"33cl", 330, true},
		{"750", 750, true},
		{"", 0, false},
		{"twelve", 0, false},
		{"-5ml", 0, false},
		{"0L", 0, false},
	}

	for _, tc := range cases {
		got, ok := ParseVolumeML(tc.in)
		if ok != tc.ok {
			t.Fatalf("%q: expected ok=%t, got %t", tc.in, tc.ok, ok)
		}
		if ok && got != tc.want {
			t.Fatalf("%q: expected %vml, got %v", tc.in, tc.want, got)
		}
	}
}

func TestTotalVolumeML(t *testing.T) {
	t.Parallel()

	r := RawRecord{PackCount: 15, UnitVolume: "330ml"}
	if got := r.TotalVolumeML(); got != 4950 {
		t.Fatalf("expected 4950ml, got %v", got)
	}

	r = RawRecord{UnitVolume: "750ml"}
	if got := r.TotalVolumeML(); got != 750 {
		t.Fatalf("missing pack count should mean one unit, got %v", got)
	}

	r = RawRecord{PackCount: 6}
	if got := r.TotalVolumeML(); got != 0 {
		t.Fatalf("unparseable volume should yield 0, got %v", got)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := RawRecord{
		Name:          "Export Gold",
		SourceStoreID: "store-1",
		Price:         24.99,
		ScrapedAt:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid record, got %v", err)
	}

	invalid := []RawRecord{
		{SourceStoreID: "s", Price: 1, ScrapedAt: valid.ScrapedAt},
		{Name: "x", Price: 1, ScrapedAt: valid.ScrapedAt},
		{Name: "x", SourceStoreID: "s", Price: 0, ScrapedAt: valid.ScrapedAt},
		{Name: "x", SourceStoreID: "s", Price: -2, ScrapedAt: valid.ScrapedAt},
		{Name: "x", SourceStoreID: "s", Price: 1},
	}
	for i, r := range invalid {
		if err := r.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
}
