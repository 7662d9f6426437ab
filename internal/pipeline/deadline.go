package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/retrato-ai/retrato/internal/config"
	"github.com/retrato-ai/retrato/internal/events"
	"github.com/retrato-ai/retrato/internal/store/model"
	"github.com/retrato-ai/retrato/pkg/metrics"
	"github.com/retrato-ai/retrato/pkg/reporter"
)

// TimeoutMessage is the user-facing copy written on a deadline expiry. It is
// deliberately distinct from every other failure message so clients can key
// a "try again" affordance off it.
const TimeoutMessage = "Your photo took too long to process. Please try again."

// expiryBudget bounds the store work the expiry handler does once the run
// context is already dead.
const expiryBudget = 10 * time.Second

// Jobs is the job-service surface the pipeline drives.
type Jobs interface {
	StartProcessing(ctx context.Context, id uuid.UUID, runToken string) (*model.Job, error)
	UpdateStage(ctx context.Context, id uuid.UUID, stage model.JobStage, progress int) (*model.Job, error)
	CompleteJob(ctx context.Context, id uuid.UUID, resultKey string) (*model.Job, error)
	FailJob(ctx context.Context, id uuid.UUID, runToken string, message string, canRetry bool) (*model.Job, error)
	GetJob(ctx context.Context, id uuid.UUID) (*model.Job, string, error)
}

// ErrPipelineTimeout is returned when the wall-clock budget of a run expires.
// It preserves how far the job got for user messaging.
type ErrPipelineTimeout struct {
	JobID        uuid.UUID
	LastStage    string
	LastProgress int
	Elapsed      time.Duration
}

func (e *ErrPipelineTimeout) Error() string {
	return fmt.Sprintf("job %s timed out after %s at stage %s", e.JobID, e.Elapsed.Round(time.Millisecond), e.LastStage)
}

// DeadlineGuard bounds a full pipeline run to a fixed wall-clock budget. The
// run races the guard's timer; whichever loses has its outcome discarded,
// with the guarded job writes keeping the record consistent.
type DeadlineGuard struct {
	deadline time.Duration
	jobs     Jobs
	reporter reporter.Reporter
	emitter  Emitter
}

func NewDeadlineGuard(cfg *config.Config, jobs Jobs, rep reporter.Reporter, emitter Emitter) *DeadlineGuard {
	return &DeadlineGuard{
		deadline: cfg.Service.Pipeline.Deadline,
		jobs:     jobs,
		reporter: rep,
		emitter:  emitter,
	}
}

// Run executes fn under the guard's budget. The run is deliberately detached
// from the caller's context: a client that goes away must not leave the job
// parked in processing, so the deadline is the only cancellation. On expiry
// the job is conditionally failed with TimeoutMessage and the returned
// *ErrPipelineTimeout carries the last persisted stage and progress.
func (g *DeadlineGuard) Run(_ context.Context, jobID uuid.UUID, runToken string, fn func(ctx context.Context) error) error {
	runCtx, cancel := context.WithTimeout(context.Background(), g.deadline)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		done <- fn(runCtx)
	}()

	select {
	case err := <-done:
		return err
	case <-runCtx.Done():
		return g.expire(jobID, runToken, start)
	}
}

// expire resolves a run that outlived its budget. It reads the last
// persisted stage and progress best-effort, conditionally fails the job, and
// reports once. A job that turned terminal in the meantime is left exactly
// as the winner wrote it.
func (g *DeadlineGuard) expire(jobID uuid.UUID, runToken string, start time.Time) *ErrPipelineTimeout {
	ctx, cancel := context.WithTimeout(context.Background(), expiryBudget)
	defer cancel()

	lastStage := "unknown"
	lastProgress := 0
	if job, _, err := g.jobs.GetJob(ctx, jobID); err == nil {
		if job.Stage != nil {
			lastStage = string(*job.Stage)
		}
		lastProgress = job.Progress
	} else {
		zap.S().Named("pipeline").Warnw("could not read job state on expiry", "error", err, "job_id", jobID)
	}

	if _, err := g.jobs.FailJob(ctx, jobID, runToken, TimeoutMessage, true); err != nil {
		zap.S().Named("pipeline").Errorw("failed to mark timed out job", "error", err, "job_id", jobID)
	}

	timeoutErr := &ErrPipelineTimeout{
		JobID:        jobID,
		LastStage:    lastStage,
		LastProgress: lastProgress,
		Elapsed:      time.Since(start),
	}

	metrics.IncreasePipelineTimeoutsMetric()
	g.reporter.Report(timeoutErr, map[string]any{
		"job_id":     jobID.String(),
		"last_stage": lastStage,
		"elapsed":    timeoutErr.Elapsed.String(),
	})

	if err := g.emitter.Emit(ctx, events.JobTimeoutKind, events.JobTimeoutEvent{
		JobID:        jobID.String(),
		LastStage:    lastStage,
		LastProgress: lastProgress,
		Elapsed:      timeoutErr.Elapsed,
	}); err != nil {
		zap.S().Named("pipeline").Errorw("failed to emit timeout event", "error", err, "job_id", jobID)
	}

	return timeoutErr
}
