package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retrato-ai/retrato/internal/config"
	"github.com/retrato-ai/retrato/internal/events"
	"github.com/retrato-ai/retrato/internal/generation"
	"github.com/retrato-ai/retrato/internal/store/model"
	"github.com/retrato-ai/retrato/pkg/metrics"
	"github.com/retrato-ai/retrato/pkg/objstore"
	"github.com/retrato-ai/retrato/pkg/reporter"
)

// Stage progress milestones. Finalize writes 100.
const (
	progressValidating   = 5
	progressGenerating   = 25
	progressStoring      = 75
	progressWatermarking = 90
)

// User-facing failure copy. Stable on purpose: clients and support key off
// these strings, raw provider errors never leak into them.
const (
	contentPolicyMessage  = "This photo can't be transformed because it doesn't meet our content guidelines."
	invalidImageMessage   = "We couldn't read this photo. Please upload a different image and try again."
	genericFailureMessage = "Something went wrong while processing your photo. Please try again."
)

// Processor resolves one claimed job end to end, all inside the deadline
// guard: validate the upload, run generation under the retrier, store the
// result, stamp it best-effort, and finalize.
type Processor struct {
	jobs        Jobs
	media       objstore.Store
	gen         generation.Service
	retrier     *Retrier
	guard       *DeadlineGuard
	reporter    reporter.Reporter
	emitter     Emitter
	watermarker Watermarker
}

func NewProcessor(cfg *config.Config, jobs Jobs, media objstore.Store, gen generation.Service, rep reporter.Reporter, emitter Emitter, wm Watermarker) *Processor {
	if wm == nil {
		wm = NoopWatermarker{}
	}
	return &Processor{
		jobs:        jobs,
		media:       media,
		gen:         gen,
		retrier:     NewRetrier(cfg, emitter),
		guard:       NewDeadlineGuard(cfg, jobs, rep, emitter),
		reporter:    rep,
		emitter:     emitter,
		watermarker: wm,
	}
}

// Process claims the job and resolves it to a terminal state. On success the
// final record is returned; a run that outlives its budget returns
// *ErrPipelineTimeout; any other failure is persisted onto the job and
// returned for the boundary layer to map.
func (p *Processor) Process(ctx context.Context, jobID uuid.UUID) (*model.Job, error) {
	runToken := uuid.NewString()

	job, err := p.jobs.StartProcessing(ctx, jobID, runToken)
	if err != nil {
		return nil, err
	}

	logger := zap.S().Named("pipeline")
	logger.Infow("processing started", "job_id", jobID, "preset", job.Preset)

	start := time.Now()
	var final *model.Job

	err = p.guard.Run(ctx, jobID, runToken, func(runCtx context.Context) error {
		result, runErr := p.run(runCtx, job)
		if runErr != nil {
			return runErr
		}
		final = result
		return nil
	})
	if err != nil {
		var timeoutErr *ErrPipelineTimeout
		if errors.As(err, &timeoutErr) {
			return nil, timeoutErr
		}
		return nil, p.fail(jobID, runToken, err, time.Since(start))
	}

	elapsed := time.Since(start)
	metrics.IncreaseJobsCompletedMetric(job.Preset)

	resultKey := ""
	if final.ResultKey != nil {
		resultKey = *final.ResultKey
	}
	if err := p.emitter.Emit(ctx, events.JobCompletedKind, events.JobCompletedEvent{
		JobID:     jobID.String(),
		Preset:    job.Preset,
		ResultKey: resultKey,
		Elapsed:   elapsed,
	}); err != nil {
		logger.Errorw("failed to emit completed event", "error", err, "job_id", jobID)
	}

	logger.Infow("processing completed", "job_id", jobID, "elapsed", elapsed)
	return final, nil
}

func (p *Processor) run(ctx context.Context, job *model.Job) (*model.Job, error) {
	if _, err := p.jobs.UpdateStage(ctx, job.ID, model.StageValidating, progressValidating); err != nil {
		return nil, err
	}
	if err := p.media.Exists(ctx, job.SourceKey); err != nil {
		return nil, err
	}
	sourceURL, err := p.media.SignedURL(ctx, job.SourceKey)
	if err != nil {
		return nil, err
	}

	if _, err := p.jobs.UpdateStage(ctx, job.ID, model.StageGenerating, progressGenerating); err != nil {
		return nil, err
	}
	result, err := p.retrier.Do(ctx, job.ID, func(attemptCtx context.Context) (*generation.Result, error) {
		return p.gen.Generate(attemptCtx, generation.Request{
			SourceURL: sourceURL,
			Preset:    job.Preset,
		})
	})
	if err != nil {
		return nil, err
	}

	if _, err := p.jobs.UpdateStage(ctx, job.ID, model.StageStoring, progressStoring); err != nil {
		return nil, err
	}
	key := resultObjectKey(job.ID, result.MimeType)
	if err := p.media.Put(ctx, key, result.Data, result.MimeType); err != nil {
		return nil, err
	}

	if _, err := p.jobs.UpdateStage(ctx, job.ID, model.StageWatermarking, progressWatermarking); err != nil {
		return nil, err
	}
	if stamped, err := p.watermarker.Apply(ctx, result.Data, result.MimeType); err != nil {
		zap.S().Named("pipeline").Warnw("watermarking skipped", "error", err, "job_id", job.ID)
	} else if err := p.media.Put(ctx, key, stamped, result.MimeType); err != nil {
		zap.S().Named("pipeline").Warnw("failed to store watermarked result", "error", err, "job_id", job.ID)
	}

	return p.jobs.CompleteJob(ctx, job.ID, key)
}

// fail persists a terminal failure onto the job, reports the causes the
// reporter cares about, and hands the original error back for mapping. The
// write self-fences: a job another run took over stays untouched.
func (p *Processor) fail(jobID uuid.UUID, runToken string, cause error, elapsed time.Duration) error {
	message, canRetry, classification := classifyFailure(cause)

	ctx, cancel := context.WithTimeout(context.Background(), expiryBudget)
	defer cancel()

	lastStage := "unknown"
	if current, _, err := p.jobs.GetJob(ctx, jobID); err == nil && current.Stage != nil {
		lastStage = string(*current.Stage)
	}

	failed, err := p.jobs.FailJob(ctx, jobID, runToken, message, canRetry)
	if err != nil {
		zap.S().Named("pipeline").Errorw("failed to persist job failure", "error", err, "job_id", jobID)
	}

	var exhausted *ErrRetriesExhausted
	var genErr *generation.Error
	switch {
	case errors.As(cause, &exhausted):
		p.reporter.Report(cause, map[string]any{
			"job_id":     jobID.String(),
			"last_stage": lastStage,
			"elapsed":    elapsed.String(),
			"attempts":   exhausted.Attempts,
		})
	case errors.As(cause, &genErr) && !genErr.Retryable():
		p.reporter.Report(cause, map[string]any{
			"job_id":         jobID.String(),
			"last_stage":     lastStage,
			"elapsed":        elapsed.String(),
			"classification": string(genErr.Classification),
		})
	}

	if failed != nil && failed.Status == model.JobStatusFailed {
		metrics.IncreaseJobsFailedMetric(classification)
		if err := p.emitter.Emit(ctx, events.JobFailedKind, events.JobFailedEvent{
			JobID:          jobID.String(),
			Stage:          lastStage,
			Classification: classification,
			CanRetry:       canRetry,
			Error:          cause.Error(),
		}); err != nil {
			zap.S().Named("pipeline").Errorw("failed to emit failed event", "error", err, "job_id", jobID)
		}
	}

	return cause
}

// classifyFailure folds any run error into the user-facing message, the
// retry signal, and the classification label. The exhausted check runs first:
// it wraps the classified error it gave up on.
func classifyFailure(cause error) (message string, canRetry bool, classification string) {
	var exhausted *ErrRetriesExhausted
	if errors.As(cause, &exhausted) {
		return genericFailureMessage, exhausted.Classification.Retryable(), string(exhausted.Classification)
	}

	var genErr *generation.Error
	if errors.As(cause, &genErr) {
		switch genErr.Classification {
		case generation.ClassificationContentPolicy:
			return contentPolicyMessage, false, string(genErr.Classification)
		case generation.ClassificationInvalidImage:
			return invalidImageMessage, false, string(genErr.Classification)
		default:
			return genericFailureMessage, true, string(genErr.Classification)
		}
	}

	return genericFailureMessage, true, "internal"
}

func resultObjectKey(id uuid.UUID, mimeType string) string {
	ext := ".jpg"
	switch mimeType {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}
	return "results/" + id.String() + ext
}
