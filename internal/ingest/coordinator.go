package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bottlo.nz/pricefeed/internal/db"
	"bottlo.nz/pricefeed/internal/fingerprint"
	"bottlo.nz/pricefeed/internal/globaltime"
	"bottlo.nz/pricefeed/internal/keylock"
	"bottlo.nz/pricefeed/internal/listing"
	"bottlo.nz/pricefeed/internal/match"
	"bottlo.nz/pricefeed/internal/pricing"
	"bottlo.nz/pricefeed/internal/source"
)

var (
	ErrRunAlreadyActive = errors.New("a run is already active for this retailer")
	ErrUnknownRetailer  = errors.New("unknown retailer")
)

const (
	maxRunErrorLength = 4000
	finalizeTimeout   = 15 * time.Second
)

// Options tunes one coordinator. Zero values fall back to the defaults the
// configuration layer also uses.
type Options struct {
	Workers            int
	RecordTimeout      time.Duration
	CommitRetries      int
	CommitRetryBackoff time.Duration
	AbortErrorRate     float64
	AbortMinRecords    int
	RetainRawPayloads  bool

	Fingerprint fingerprint.Options
	Match       match.Options
	Pricing     pricing.Options
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.RecordTimeout <= 0 {
		o.RecordTimeout = 10 * time.Second
	}
	if o.CommitRetries <= 0 {
		o.CommitRetries = 3
	}
	if o.CommitRetryBackoff <= 0 {
		o.CommitRetryBackoff = 250 * time.Millisecond
	}
	if o.AbortErrorRate <= 0 || o.AbortErrorRate > 1 {
		o.AbortErrorRate = 0.5
	}
	if o.AbortMinRecords <= 0 {
		o.AbortMinRecords = 20
	}
}

// RunHandle refers to one in-flight run. The run row in the database is the
// source of truth for its outcome; the handle only carries identity and
// cancellation.
type RunHandle struct {
	RunID        int64
	RunUUID      string
	RetailerSlug string

	cancel          context.CancelFunc
	cancelRequested sync.Once
	cancelled       bool
	mu              sync.Mutex
	done            chan struct{}
}

// Cancel asks the run to stop. Dispatch of new records halts; records already
// being committed finish so no transaction is torn in half.
func (h *RunHandle) Cancel() {
	if h == nil {
		return
	}
	h.cancelRequested.Do(func() {
		h.mu.Lock()
		h.cancelled = true
		h.mu.Unlock()
		h.cancel()
	})
}

func (h *RunHandle) wasCancelled() bool {
	if h == nil {
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Done is closed when the run has been finalized.
func (h *RunHandle) Done() <-chan struct{} {
	return h.done
}

// Wait blocks until the run finishes or ctx expires.
func (h *RunHandle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Coordinator owns run lifecycles: one run per retailer at a time, a bounded
// worker pool per run, and exactly one finalization per run.
type Coordinator struct {
	repo    Repository
	opener  source.Opener
	upsert  *UpsertEngine
	matcher *match.Matcher
	audit   *AuditRecorder
	locks   *keylock.Arena
	logger  zerolog.Logger
	opts    Options

	mu     sync.Mutex
	active map[string]*RunHandle
}

func NewCoordinator(repo Repository, opener source.Opener, logger zerolog.Logger, opts Options) *Coordinator {
	opts.applyDefaults()
	return &Coordinator{
		repo:    repo,
		opener:  opener,
		upsert:  NewUpsertEngine(repo),
		matcher: match.NewMatcher(repo, opts.Match),
		audit:   NewAuditRecorder(repo, logger),
		locks:   keylock.NewArena(),
		logger:  logger,
		opts:    opts,
	}
}

// StartRun opens a run for the retailer and processes it in the background.
// Returns ErrUnknownRetailer for unregistered slugs and ErrRunAlreadyActive
// when the retailer's lock is held.
func (c *Coordinator) StartRun(ctx context.Context, retailerSlug, sourceLabel string) (*RunHandle, error) {
	if c == nil || c.repo == nil || c.opener == nil {
		return nil, fmt.Errorf("coordinator is not initialized")
	}

	slug := strings.TrimSpace(strings.ToLower(retailerSlug))
	retailer, err := c.repo.FindRetailerBySlug(ctx, slug)
	if db.IsNoRows(err) {
		return nil, fmt.Errorf("retailer %q: %w", slug, ErrUnknownRetailer)
	}
	if err != nil {
		return nil, fmt.Errorf("resolve retailer %q: %w", slug, err)
	}

	if !c.locks.TryAcquire(retailer.Slug) {
		return nil, fmt.Errorf("retailer %q: %w", retailer.Slug, ErrRunAlreadyActive)
	}

	runUUID := uuid.NewString()
	startedAt := globaltime.UTC()
	runID, err := c.repo.InsertRun(ctx, runUUID, retailer.RetailerID, sourceLabel, startedAt)
	if err != nil {
		c.locks.Release(retailer.Slug)
		return nil, fmt.Errorf("open ingestion run: %w", err)
	}

	// The run must outlive the triggering request; only handle.Cancel stops it.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	handle := &RunHandle{
		RunID:        runID,
		RunUUID:      runUUID,
		RetailerSlug: retailer.Slug,
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	c.mu.Lock()
	if c.active == nil {
		c.active = make(map[string]*RunHandle)
	}
	c.active[runUUID] = handle
	c.mu.Unlock()

	c.logger.Info().
		Int64("run_id", runID).
		Str("run_uuid", runUUID).
		Str("retailer", retailer.Slug).
		Msg("ingestion run started")

	go c.execute(runCtx, handle, retailer, startedAt)

	return handle, nil
}

// CancelRun cancels an in-flight run by its handle UUID. Returns false when
// no such run is active.
func (c *Coordinator) CancelRun(runUUID string) bool {
	c.mu.Lock()
	handle, ok := c.active[strings.TrimSpace(runUUID)]
	c.mu.Unlock()
	if !ok {
		return false
	}
	handle.Cancel()
	return true
}

// runState aggregates worker outcomes and decides when the error rate says
// the source itself is broken.
type runState struct {
	mu     sync.Mutex
	counts db.RunCounts
	// processed counts records that reached a terminal outcome, exactly once
	// each. The match/outcome counters overlap (a matched record is also
	// skipped or updated) so they cannot serve as the abort denominator.
	processed int
	abortMsg  string
}

func (s *runState) addFetched() {
	s.mu.Lock()
	s.counts.RecordsFetched++
	s.mu.Unlock()
}

func (s *runState) recordOutcome(method match.Method, outcome Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed++
	switch outcome {
	case OutcomeCreated:
		s.counts.ProductsCreated++
	case OutcomeDuplicateSkipped:
		s.counts.RecordsSkipped++
	}
	switch method {
	case match.MethodStrict:
		s.counts.MatchedStrict++
	case match.MethodFuzzy:
		s.counts.MatchedFuzzy++
	}
}

// recordError increments the error count and reports whether the run crossed
// the abort threshold. Only records that reached a terminal per-record
// outcome count toward the rate.
func (s *runState) recordError(minRecords int, maxRate float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts.RecordsErrored++
	s.processed++

	if s.processed < minRecords {
		return false
	}
	if float64(s.counts.RecordsErrored)/float64(s.processed) <= maxRate {
		return false
	}
	if s.abortMsg == "" {
		s.abortMsg = fmt.Sprintf("aborted: %d of %d records errored, above the %.0f%% threshold",
			s.counts.RecordsErrored, s.processed, maxRate*100)
	}
	return true
}

func (s *runState) snapshot() (db.RunCounts, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts, s.abortMsg
}

func (c *Coordinator) execute(ctx context.Context, handle *RunHandle, retailer db.RetailerRef, startedAt time.Time) {
	defer close(handle.done)
	defer c.locks.Release(retailer.Slug)
	defer func() {
		c.mu.Lock()
		delete(c.active, handle.RunUUID)
		c.mu.Unlock()
	}()

	state := &runState{}

	adapter, err := c.opener.Open(ctx, retailer.Slug)
	if err != nil {
		c.finalize(ctx, handle, retailer, state, startedAt, fmt.Errorf("open source adapter: %w", err))
		return
	}
	defer func() {
		_ = adapter.Close()
	}()

	jobs := make(chan listing.RawRecord)
	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for record := range jobs {
				c.processRecord(ctx, handle, state, retailer, record)
			}
		}()
	}

	var fetchErr error
dispatch:
	for {
		if ctx.Err() != nil {
			break
		}
		record, err := adapter.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			// A record that fails to decode is errored and skipped; only
			// source-level failures end the run.
			if errors.Is(err, source.ErrBadRecord) {
				state.addFetched()
				c.failRecord(ctx, handle, state, db.MatchEventInsert{RunID: handle.RunID}, err)
				continue
			}
			fetchErr = fmt.Errorf("fetch listings: %w", err)
			break
		}

		state.addFetched()
		select {
		case jobs <- record:
		case <-ctx.Done():
			break dispatch
		}
	}
	close(jobs)
	wg.Wait()

	c.finalize(ctx, handle, retailer, state, startedAt, fetchErr)
}

func (c *Coordinator) processRecord(ctx context.Context, handle *RunHandle, state *runState, retailer db.RetailerRef, raw listing.RawRecord) {
	// A record already dispatched is allowed to finish even after Cancel; the
	// timeout alone bounds it.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.RecordTimeout)
	defer cancel()

	key := fingerprint.Compute(raw, c.opts.Fingerprint)
	event := db.MatchEventInsert{
		RunID:       handle.RunID,
		Fingerprint: key.Key,
	}
	if sourceID := raw.TrimmedSourceProductID(); sourceID != "" {
		event.SourceProductID = &sourceID
	}

	if err := raw.Validate(); err != nil {
		c.failRecord(recordCtx, handle, state, event, fmt.Errorf("malformed listing: %w", err))
		return
	}

	if c.opts.RetainRawPayloads && len(raw.Payload) > 0 {
		rawInsert := db.RawListingInsert{
			RunID:           handle.RunID,
			RetailerID:      retailer.RetailerID,
			SourceProductID: event.SourceProductID,
			Payload:         raw.Payload,
			FetchedAt:       globaltime.UTC(),
		}
		if err := c.repo.InsertRawListing(recordCtx, rawInsert); err != nil {
			c.logger.Warn().Err(err).Int64("run_id", handle.RunID).Msg("failed to retain raw payload")
		}
	}

	storeID, err := c.repo.FindStoreID(recordCtx, retailer.RetailerID, raw.SourceStoreID)
	if db.IsNoRows(err) {
		c.failRecord(recordCtx, handle, state, event, fmt.Errorf("store %q is not synced for retailer %q", raw.SourceStoreID, retailer.Slug))
		return
	}
	if err != nil {
		c.failRecord(recordCtx, handle, state, event, fmt.Errorf("resolve store: %w", err))
		return
	}

	resolution, err := c.matcher.Match(recordCtx, retailer.RetailerID, raw, key)
	if err != nil {
		c.failRecord(recordCtx, handle, state, event, fmt.Errorf("match listing: %w", err))
		return
	}
	event.Method = string(resolution.Method)
	event.Confidence = resolution.Confidence
	event.Reasons = resolution.Reasons

	metrics := pricing.Normalize(raw, c.opts.Pricing)
	if metrics.PromoDiscarded {
		c.logger.Warn().
			Int64("run_id", handle.RunID).
			Str("fingerprint", key.Key).
			Float64("price", raw.Price).
			Msg("promo price not below list price, discarded")
	}

	outcome, result, err := c.commitWithRetry(recordCtx, retailer.RetailerID, handle.RunID, storeID, raw, key, resolution, metrics)
	if err != nil {
		c.failRecord(recordCtx, handle, state, event, fmt.Errorf("commit listing: %w", err))
		return
	}

	event.ProductID = &result.ProductID
	event.Outcome = string(outcome)
	state.recordOutcome(resolution.Method, outcome)
	c.audit.RecordMatch(recordCtx, event)
}

// commitWithRetry demotes transient commit failures to record errors after a
// bounded number of backoff attempts.
func (c *Coordinator) commitWithRetry(
	ctx context.Context,
	retailerID, runID, storeID int64,
	raw listing.RawRecord,
	key fingerprint.Key,
	resolution match.Result,
	metrics pricing.Metrics,
) (Outcome, db.CommitResult, error) {
	var lastErr error
	for attempt := 1; attempt <= c.opts.CommitRetries; attempt++ {
		outcome, result, err := c.upsert.Commit(ctx, retailerID, runID, storeID, raw, key, resolution, metrics)
		if err == nil {
			return outcome, result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < c.opts.CommitRetries {
			select {
			case <-time.After(time.Duration(attempt) * c.opts.CommitRetryBackoff):
			case <-ctx.Done():
				return "", db.CommitResult{}, fmt.Errorf("%w (after %v)", lastErr, ctx.Err())
			}
		}
	}
	return "", db.CommitResult{}, fmt.Errorf("%w (after %d attempts)", lastErr, c.opts.CommitRetries)
}

func (c *Coordinator) failRecord(ctx context.Context, handle *RunHandle, state *runState, event db.MatchEventInsert, cause error) {
	if event.Method == "" {
		event.Method = string(match.MethodNew)
	}
	event.Outcome = db.OutcomeError
	event.Reasons = append(event.Reasons, cause.Error())
	c.audit.RecordMatch(ctx, event)

	if state.recordError(c.opts.AbortMinRecords, c.opts.AbortErrorRate) {
		// Crossing the threshold stops dispatch; in-flight records still land.
		handle.cancel()
	}
}

func (c *Coordinator) finalize(ctx context.Context, handle *RunHandle, retailer db.RetailerRef, state *runState, startedAt time.Time, fetchErr error) {
	counts, abortMsg := state.snapshot()

	var status string
	var errorMessage *string
	switch {
	case fetchErr != nil:
		status = db.RunStatusFailed
		errorMessage = truncatedError(fetchErr.Error())
	case abortMsg != "":
		status = db.RunStatusFailed
		errorMessage = truncatedError(abortMsg)
	case handle.wasCancelled():
		status = db.RunStatusCancelled
	case counts.RecordsErrored > 0:
		status = db.RunStatusPartial
	default:
		status = db.RunStatusSucceeded
	}

	finishedAt := globaltime.UTC()
	finalizeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finalizeTimeout)
	defer cancel()

	if err := c.repo.FinalizeRun(finalizeCtx, handle.RunID, status, counts, errorMessage, finishedAt); err != nil {
		c.logger.Error().Err(err).
			Int64("run_id", handle.RunID).
			Str("status", status).
			Msg("failed to finalize ingestion run")
	}

	c.audit.RunFinished(handle.RunID, handle.RunUUID, retailer.Slug, status, counts, finishedAt.Sub(startedAt))
}

func truncatedError(msg string) *string {
	msg = strings.TrimSpace(msg)
	if len(msg) > maxRunErrorLength {
		msg = msg[:maxRunErrorLength]
	}
	return &msg
}
