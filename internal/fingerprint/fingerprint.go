// Package fingerprint computes deterministic identity keys for raw listings.
// Two listings describing the same physical product must produce the same key
// regardless of source-reported encoding noise; the key is the strict
// (non-fuzzy) identity signal for the entity matcher.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"

	"bottlo.nz/pricefeed/internal/listing"
)

const DefaultVolumeTolerance = 0.05

// DegradedBucket marks keys computed without usable size/volume fields.
const DegradedBucket = -1

type Options struct {
	// VolumeTolerance is the fractional bucket width; volumes within roughly
	// this tolerance of each other land in the same bucket.
	VolumeTolerance float64
}

// Key is a composite identity key. Key is the stable hash used for lookups;
// VolumeBucket and the normalized fields are kept alongside for fuzzy
// candidate prefiltering and for first-write product creation.
type Key struct {
	Key             string
	NormalizedName  string
	NormalizedBrand string
	Category        string
	PackCount       int
	UnitVolumeML    float64
	VolumeBucket    int
	Degraded        bool
}

// Compute derives a fingerprint from a raw listing. Pure and total: records
// with missing size/volume fields degrade to a name-only key rather than
// failing.
func Compute(raw listing.RawRecord, opts Options) Key {
	tolerance := opts.VolumeTolerance
	if tolerance <= 0 {
		tolerance = DefaultVolumeTolerance
	}

	name := NormalizeTokens(raw.Name)
	brand := NormalizeTokens(raw.Brand)
	category := strings.TrimSpace(strings.ToLower(raw.Category))

	key := Key{
		NormalizedName:  name,
		NormalizedBrand: brand,
		Category:        category,
		PackCount:       raw.EffectivePackCount(),
	}

	unitML, ok := listing.ParseVolumeML(raw.UnitVolume)
	if !ok {
		key.Degraded = true
		key.VolumeBucket = DegradedBucket
		key.Key = hashParts("degraded", brand, name)
		return key
	}

	key.UnitVolumeML = unitML
	key.VolumeBucket = VolumeBucket(unitML, tolerance)
	key.Key = hashParts("v1", brand, name, strconv.Itoa(key.PackCount), strconv.Itoa(key.VolumeBucket))
	return key
}

// VolumeBucket maps a volume in millilitres onto a log-scale bucket index so
// that source-reported volumes within the tolerance collapse together
// (e.g. 330ml and 0.33L, or a 5% rounding discrepancy).
func VolumeBucket(volumeML, tolerance float64) int {
	if volumeML <= 0 {
		return DegradedBucket
	}
	return int(math.Round(math.Log(volumeML) / math.Log(1+tolerance)))
}

// NormalizeTokens lower-cases, strips punctuation, collapses whitespace, and
// sorts tokens so field ordering noise cannot change the key.
func NormalizeTokens(input string) string {
	tokens := Tokenize(input)
	if len(tokens) == 0 {
		return ""
	}
	sorted := make([]string, len(tokens))
	copy(sorted, tokens)
	sort.Strings(sorted)
	return strings.Join(sorted, " ")
}

// Tokenize splits on any non-letter/non-digit rune after lower-casing.
func Tokenize(input string) []string {
	trimmed := strings.TrimSpace(strings.ToLower(input))
	if trimmed == "" {
		return nil
	}

	parts := strings.FieldsFunc(trimmed, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		tokens = append(tokens, p)
	}
	return tokens
}

// TokenSet returns the distinct tokens of the input.
func TokenSet(input string) map[string]struct{} {
	tokens := Tokenize(input)
	if len(tokens) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(tokens))
	for _, token := range tokens {
		set[token] = struct{}{}
	}
	return set
}

func hashParts(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
