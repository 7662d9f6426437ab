// Package pipeline drives a claimed job through validate, generate, store,
// watermark and finalize, under one wall-clock budget. The generation call is
// the only step that retries; everything else fails the run on first error.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retrato-ai/retrato/internal/config"
	"github.com/retrato-ai/retrato/internal/events"
	"github.com/retrato-ai/retrato/internal/generation"
	"github.com/retrato-ai/retrato/pkg/metrics"
)

// Emitter is the slice of the event producer the pipeline needs.
type Emitter interface {
	Emit(ctx context.Context, kind string, payload any) error
}

// Operation is one attempt of the retried call. The context carries the
// per-attempt timeout.
type Operation func(ctx context.Context) (*generation.Result, error)

// ErrRetriesExhausted marks a retry budget running dry, as opposed to a
// single terminal classification.
type ErrRetriesExhausted struct {
	Attempts       int
	Classification generation.Classification
	err            error
}

func (e *ErrRetriesExhausted) Error() string {
	return fmt.Sprintf("generation gave up after %d attempts: %s", e.Attempts, e.err)
}

func (e *ErrRetriesExhausted) Unwrap() error {
	return e.err
}

// Retrier invokes the generation call with bounded, classified retries.
// Rate limits, provider errors and timeouts are retried on an exponential
// schedule; content-policy and invalid-image verdicts fail fast.
type Retrier struct {
	maxRetries     int
	attemptTimeout time.Duration
	base           time.Duration
	emitter        Emitter
}

func NewRetrier(cfg *config.Config, emitter Emitter) *Retrier {
	return &Retrier{
		maxRetries:     cfg.Service.Pipeline.MaxRetries,
		attemptTimeout: cfg.Service.Pipeline.AttemptTimeout,
		base:           cfg.Service.Pipeline.RetryBackoffBase,
		emitter:        emitter,
	}
}

// Do runs op until it succeeds, fails terminally, or the budget of
// maxRetries+1 attempts is spent. Attempts are numbered from 1. A retry
// event is emitted per retryable failure except after the final attempt,
// which emits a single exhausted event instead. Cancellation of ctx wins
// over everything and emits nothing.
func (r *Retrier) Do(ctx context.Context, jobID uuid.UUID, op Operation) (*generation.Result, error) {
	attempts := r.maxRetries + 1

	for attempt := 1; ; attempt++ {
		result, err := r.attempt(ctx, op)
		if err == nil {
			return result, nil
		}
		if ctx.Err() != nil {
			// The pipeline budget expired mid-attempt or mid-backoff. The
			// deadline guard owns this outcome; surface no retry bookkeeping.
			return nil, ctx.Err()
		}

		genErr := classify(err)
		if !genErr.Retryable() {
			return nil, genErr
		}

		if attempt >= attempts {
			metrics.IncreaseGenerationExhaustedMetric(string(genErr.Classification))
			if eErr := r.emitter.Emit(ctx, events.JobExhaustedKind, events.JobExhaustedEvent{
				JobID:          jobID.String(),
				Attempts:       attempt,
				Classification: string(genErr.Classification),
				Error:          genErr.Error(),
			}); eErr != nil {
				zap.S().Named("pipeline").Errorw("failed to emit exhausted event", "error", eErr, "job_id", jobID)
			}
			return nil, &ErrRetriesExhausted{Attempts: attempt, Classification: genErr.Classification, err: genErr}
		}

		delay := backoffDelay(r.base, attempt+1)
		metrics.IncreaseGenerationRetriesMetric(string(genErr.Classification))
		if eErr := r.emitter.Emit(ctx, events.JobRetryKind, events.JobRetryEvent{
			JobID:          jobID.String(),
			Attempt:        attempt,
			Classification: string(genErr.Classification),
			Delay:          delay,
			Error:          genErr.Error(),
		}); eErr != nil {
			zap.S().Named("pipeline").Errorw("failed to emit retry event", "error", eErr, "job_id", jobID)
		}

		zap.S().Named("pipeline").Infow("retrying generation",
			"job_id", jobID,
			"attempt", attempt,
			"classification", genErr.Classification,
			"delay", delay,
		)

		if err := r.wait(ctx, delay); err != nil {
			return nil, err
		}
	}
}

func (r *Retrier) attempt(ctx context.Context, op Operation) (*generation.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, r.attemptTimeout)
	defer cancel()
	return op(attemptCtx)
}

func (r *Retrier) wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// classify maps a failed attempt to its classification. Errors the
// generation client already tagged pass through; an attempt cut by its own
// timeout counts as TIMEOUT, anything else as API_ERROR.
func classify(err error) *generation.Error {
	var genErr *generation.Error
	if errors.As(err, &genErr) {
		return genErr
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return generation.WrapError(generation.ClassificationTimeout, "generation attempt timed out", err)
	}
	return generation.WrapError(generation.ClassificationAPIError, "generation failed", err)
}

// backoffDelay returns the wait before attempt n. The first attempt runs
// immediately; attempt n>=2 waits base*2^(n-2).
func backoffDelay(base time.Duration, n int) time.Duration {
	return base << (n - 2)
}
