// Package resolver drives SeriesScanState transitions by calling out to
// an external metadata catalog through a rate-limited MetadataProvider.
//
// Grounded on spec.md §4.8; rate limiting modeled on the teacher's
// internal/metadata/cacheclient.go retry-on-429 loop, generalized to a
// token bucket via golang.org/x/time/rate.
package resolver

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/arlojansen/mediaforge/internal/ingest/ids"
	"github.com/arlojansen/mediaforge/internal/ingest/pathkey"
	"github.com/arlojansen/mediaforge/internal/ingest/ports"
	"github.com/arlojansen/mediaforge/internal/ingest/queue"
	"github.com/arlojansen/mediaforge/internal/ingest/seriesstate"
	"golang.org/x/time/rate"
)

// SeriesDetailJobKind marks the dependent job spec.md §4.8 step 3 requires
// on a single-match resolution: season/episode fan-out for a newly
// resolved series, picked up downstream of the ingestion core.
const SeriesDetailJobKind = "series_detail_sync"

// SeriesDetailPayload is the payload of a SeriesDetailJobKind job.
type SeriesDetailPayload struct {
	LibraryID      ids.LibraryID
	SeriesRootPath string
	SeriesID       ids.SeriesID
}

// Enqueuer is the queue capability used to fan a resolved series out to
// its season/episode jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, req queue.EnqueueRequest) (queue.EnqueueResult, error)
}

// Request is the payload of a MetadataResolve job.
type Request struct {
	LibraryID      ids.LibraryID
	SeriesRootPath string
	Hint           *ports.SeriesHint
}

// Outcome reports how the resolve attempt concluded, for the caller
// (typically a queue worker) to translate into Complete/Fail.
type Outcome int

const (
	OutcomeCompleted Outcome = iota
	OutcomeRetryable
	OutcomeFatal
)

// Result is returned by Resolve.
type Result struct {
	Outcome Outcome
	Err     error
}

// Resolver is the C8 component.
type Resolver struct {
	states   seriesstate.Store
	provider ports.MetadataProvider
	media    ports.MediaReferenceRepository
	jobs     Enqueuer
	limiter  *rate.Limiter
}

// New builds a Resolver. ratePerSecond/burst configure the shared token
// bucket guarding every outbound provider call. media and jobs may be nil,
// in which case a resolved series is neither persisted to the catalog nor
// fanned out to dependent jobs (used by tests exercising the state machine
// in isolation).
func New(states seriesstate.Store, provider ports.MetadataProvider, media ports.MediaReferenceRepository, jobs Enqueuer, ratePerSecond float64, burst int) *Resolver {
	return &Resolver{
		states:   states,
		provider: provider,
		media:    media,
		jobs:     jobs,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), burst),
	}
}

// Resolve implements spec.md §4.8's four-step procedure.
func (r *Resolver) Resolve(ctx context.Context, req Request) Result {
	state, err := r.states.Get(ctx, req.LibraryID, req.SeriesRootPath)
	if err != nil && err != seriesstate.ErrNotFound {
		return Result{Outcome: OutcomeRetryable, Err: err}
	}
	if err == nil && state.IsResolved() {
		return Result{Outcome: OutcomeCompleted}
	}

	if _, err := r.states.MarkSeeded(ctx, req.LibraryID, req.SeriesRootPath, req.Hint); err != nil {
		return Result{Outcome: OutcomeRetryable, Err: err}
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return Result{Outcome: OutcomeRetryable, Err: err}
	}

	hint := ports.SeriesHint{}
	if req.Hint != nil {
		hint = *req.Hint
	}
	search, err := r.provider.Search(ctx, hint)
	if err != nil {
		return r.classifyProviderError(ctx, req, err)
	}

	switch len(search.Matches) {
	case 0:
		reason := "no match found"
		r.states.MarkFailed(ctx, req.LibraryID, req.SeriesRootPath, reason)
		return Result{Outcome: OutcomeFatal, Err: errors.New(reason)}
	case 1:
		ref := search.Matches[0]
		if _, err := r.states.MarkResolved(ctx, req.LibraryID, req.SeriesRootPath, ref); err != nil {
			return Result{Outcome: OutcomeRetryable, Err: err}
		}
		if err := r.persistAndFanOut(ctx, req, ref); err != nil {
			return Result{Outcome: OutcomeRetryable, Err: err}
		}
		return Result{Outcome: OutcomeCompleted}
	default:
		// Multiple candidate matches: leave as Seeded for manual
		// matching outside the core and complete the job.
		return Result{Outcome: OutcomeCompleted}
	}
}

// persistAndFanOut implements spec.md §4.8 step 3's remainder: upsert the
// resolved series into the media catalog and enqueue the dependent
// season/episode job, fetching the full catalog record first so the
// fanned-out job (and the persisted reference) carry more than the bare
// search match.
func (r *Resolver) persistAndFanOut(ctx context.Context, req Request, ref ports.SeriesRef) error {
	if r.media == nil && r.jobs == nil {
		return nil
	}

	details := ports.SeriesDetails{Ref: ref}
	if fetched, err := r.provider.FetchSeries(ctx, ref); err == nil {
		details = fetched
	}

	if r.media != nil {
		if err := r.media.UpsertSeries(ctx, details); err != nil {
			return err
		}
	}

	if r.jobs == nil {
		return nil
	}
	payload, err := json.Marshal(SeriesDetailPayload{
		LibraryID:      req.LibraryID,
		SeriesRootPath: req.SeriesRootPath,
		SeriesID:       ref.ID,
	})
	if err != nil {
		return err
	}
	_, err = r.jobs.Enqueue(ctx, queue.EnqueueRequest{
		Kind:      SeriesDetailJobKind,
		DedupeKey: pathkey.Hash(SeriesDetailJobKind, req.LibraryID.String(), req.SeriesRootPath),
		Priority:  2,
		Payload:   payload,
	})
	return err
}

func (r *Resolver) classifyProviderError(ctx context.Context, req Request, err error) Result {
	var perr *ports.ProviderError
	if !errors.As(err, &perr) {
		return Result{Outcome: OutcomeRetryable, Err: err}
	}

	switch perr.Kind {
	case ports.ProviderErrTransientNetwork, ports.ProviderErrRateLimited:
		return Result{Outcome: OutcomeRetryable, Err: err}
	case ports.ProviderErrPermanentNotFound, ports.ProviderErrInvalid:
		r.states.MarkFailed(ctx, req.LibraryID, req.SeriesRootPath, err.Error())
		return Result{Outcome: OutcomeFatal, Err: err}
	default:
		return Result{Outcome: OutcomeRetryable, Err: err}
	}
}
