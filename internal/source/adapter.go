// Package source defines the adapter boundary between per-retailer listing
// sources and the retailer-agnostic pipeline.
package source

import (
	"context"
	"errors"

	"bottlo.nz/pricefeed/internal/listing"
)

// ErrBadRecord marks a per-record decode or validation failure. Adapters wrap
// it so the caller can count the record as errored and keep draining the
// source; a single broken payload must not take down the whole run.
var ErrBadRecord = errors.New("bad source record")

// Adapter yields raw records for one retailer, one at a time. Next returns
// io.EOF when the source is exhausted and wraps ErrBadRecord when one record
// cannot be decoded; any other error is a fetch-level failure that terminates
// the run. Adapters are not safe for concurrent use; the coordinator drains
// each adapter from a single goroutine.
type Adapter interface {
	Next(ctx context.Context) (listing.RawRecord, error)
	Close() error
}

// Opener creates an adapter for a retailer slug. The coordinator calls it
// once per run.
type Opener interface {
	Open(ctx context.Context, retailerSlug string) (Adapter, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, retailerSlug string) (Adapter, error)

func (f OpenerFunc) Open(ctx context.Context, retailerSlug string) (Adapter, error) {
	return f(ctx, retailerSlug)
}
