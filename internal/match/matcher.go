// Package match resolves raw listings against the canonical product catalog.
// The strategy is tiered: cheap deterministic checks first (stable source id,
// exact fingerprint), weighted fuzzy scoring only as a fallback, and an
// ambiguity guard that prefers creating a duplicate product over silently
// conflating two distinct ones.
package match

import (
	"context"
	"fmt"
	"strings"

	"bottlo.nz/pricefeed/internal/fingerprint"
	"bottlo.nz/pricefeed/internal/listing"
)

const (
	DefaultAcceptThreshold = 0.85
	DefaultTieBand         = 0.03

	nameWeight  = 0.8
	brandWeight = 0.2

	// Fuzzy confidence is open at 1.0; a perfect score still did not match on
	// a deterministic signal.
	maxFuzzyConfidence = 0.99
)

type Method string

const (
	MethodStrict Method = "strict"
	MethodFuzzy  Method = "fuzzy"
	MethodNew    Method = "new"
)

// Candidate is a canonical product as seen by the matcher.
type Candidate struct {
	ProductID       int64
	NormalizedName  string
	NormalizedBrand string
}

// CandidateStore is the read-only lookup capability over the canonical
// product store.
type CandidateStore interface {
	FindProductBySourceID(ctx context.Context, retailerID int64, sourceProductID string) (*Candidate, error)
	FindProductByFingerprint(ctx context.Context, key string) (*Candidate, error)
	FindFuzzyCandidates(ctx context.Context, volumeBucket int, category string) ([]Candidate, error)
}

// Result is the transient outcome of resolving one raw record.
type Result struct {
	ProductID int64 // 0 when Method == MethodNew
	Method    Method
	// Confidence is 1.0 for strict, in (0, 1) for fuzzy, and nil for new.
	Confidence *float64
	Reasons    []string
}

type Options struct {
	AcceptThreshold float64
	TieBand         float64
}

type Matcher struct {
	store CandidateStore
	opts  Options
}

func NewMatcher(store CandidateStore, opts Options) *Matcher {
	if opts.AcceptThreshold <= 0 {
		opts.AcceptThreshold = DefaultAcceptThreshold
	}
	if opts.TieBand <= 0 {
		opts.TieBand = DefaultTieBand
	}
	return &Matcher{store: store, opts: opts}
}

// Match resolves raw against the canonical store. Tiers are evaluated in
// order and the first hit wins; a fuzzy tie within the tie band degrades to
// new rather than guessing.
func (m *Matcher) Match(ctx context.Context, retailerID int64, raw listing.RawRecord, key fingerprint.Key) (Result, error) {
	if m == nil || m.store == nil {
		return Result{}, fmt.Errorf("matcher is not initialized")
	}

	sourceID := strings.TrimSpace(raw.SourceProductID)
	if sourceID != "" {
		candidate, err := m.store.FindProductBySourceID(ctx, retailerID, sourceID)
		if err != nil {
			return Result{}, fmt.Errorf("lookup by source id: %w", err)
		}
		if candidate != nil {
			return Result{
				ProductID:  candidate.ProductID,
				Method:     MethodStrict,
				Confidence: floatPtr(1.0),
				Reasons:    []string{"source_id"},
			}, nil
		}
	}

	candidate, err := m.store.FindProductByFingerprint(ctx, key.Key)
	if err != nil {
		return Result{}, fmt.Errorf("lookup by fingerprint: %w", err)
	}
	if candidate != nil {
		return Result{
			ProductID:  candidate.ProductID,
			Method:     MethodStrict,
			Confidence: floatPtr(1.0),
			Reasons:    []string{"fingerprint"},
		}, nil
	}

	// Degraded keys carry no volume bucket, so the fuzzy prefilter would scan
	// an unbounded candidate set; those records can only match
	// deterministically.
	if key.Degraded {
		return Result{Method: MethodNew, Reasons: []string{"degraded_fingerprint"}}, nil
	}

	candidates, err := m.store.FindFuzzyCandidates(ctx, key.VolumeBucket, key.Category)
	if err != nil {
		return Result{}, fmt.Errorf("lookup fuzzy candidates: %w", err)
	}

	best, runnerUp, found := scoreCandidates(key, candidates)
	if !found || best.score < m.opts.AcceptThreshold {
		return Result{Method: MethodNew, Reasons: []string{"no_candidate_above_threshold"}}, nil
	}
	if runnerUp != nil && best.score-runnerUp.score < m.opts.TieBand {
		return Result{
			Method: MethodNew,
			Reasons: []string{
				"ambiguous_fuzzy_tie",
				fmt.Sprintf("best=%.3f", best.score),
				fmt.Sprintf("runner_up=%.3f", runnerUp.score),
			},
		}, nil
	}

	confidence := best.score
	if confidence > maxFuzzyConfidence {
		confidence = maxFuzzyConfidence
	}
	reasons := []string{fmt.Sprintf("name_overlap=%.3f", best.nameOverlap)}
	if best.brandEqual {
		reasons = append(reasons, "brand_match")
	}
	return Result{
		ProductID:  best.candidate.ProductID,
		Method:     MethodFuzzy,
		Confidence: floatPtr(confidence),
		Reasons:    reasons,
	}, nil
}

type scoredCandidate struct {
	candidate   Candidate
	score       float64
	nameOverlap float64
	brandEqual  bool
}

// scoreCandidates returns the best and second-best scored candidates.
func scoreCandidates(key fingerprint.Key, candidates []Candidate) (best *scoredCandidate, runnerUp *scoredCandidate, found bool) {
	for _, c := range candidates {
		overlap := tokenJaccard(key.NormalizedName, c.NormalizedName)
		brandEqual := key.NormalizedBrand != "" && key.NormalizedBrand == c.NormalizedBrand
		score := nameWeight * overlap
		if brandEqual {
			score += brandWeight
		}

		scored := scoredCandidate{
			candidate:   c,
			score:       score,
			nameOverlap: overlap,
			brandEqual:  brandEqual,
		}
		switch {
		case best == nil || scored.score > best.score:
			runnerUp = best
			copied := scored
			best = &copied
		case runnerUp == nil || scored.score > runnerUp.score:
			copied := scored
			runnerUp = &copied
		}
	}
	return best, runnerUp, best != nil
}

func tokenJaccard(left, right string) float64 {
	leftSet := fingerprint.TokenSet(left)
	rightSet := fingerprint.TokenSet(right)
	if len(leftSet) == 0 || len(rightSet) == 0 {
		return 0
	}

	intersection := 0
	for token := range leftSet {
		if _, ok := rightSet[token]; ok {
			intersection++
		}
	}
	if intersection == 0 {
		return 0
	}

	union := len(leftSet) + len(rightSet) - intersection
	if union <= 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func floatPtr(v float64) *float64 {
	p := new(float64)
	*p = v
	return p
}
