package service

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/retrato-ai/retrato/internal/service/mappers"
	"github.com/retrato-ai/retrato/internal/store"
	"github.com/retrato-ai/retrato/internal/store/model"
	"github.com/retrato-ai/retrato/pkg/objstore"
)

type JobService struct {
	store store.Store
	media objstore.Store
}

func NewJobService(store store.Store, media objstore.Store) *JobService {
	return &JobService{store: store, media: media}
}

func (s *JobService) CreateJob(ctx context.Context, form mappers.JobCreateForm) (*model.Job, error) {
	job, err := s.store.Job().Create(ctx, form.ToJob())
	if err != nil {
		return nil, err
	}

	return job, nil
}

// GetJob returns the job and, when it carries a stored result, a time-limited
// URL for downloading it.
func (s *JobService) GetJob(ctx context.Context, id uuid.UUID) (*model.Job, string, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, "", NewErrJobNotFound(id)
		}
		return nil, "", err
	}

	if job.Status != model.JobStatusCompleted || job.ResultKey == nil {
		return job, "", nil
	}

	url, err := s.media.SignedURL(ctx, *job.ResultKey)
	if err != nil {
		return nil, "", err
	}

	return job, url, nil
}

func (s *JobService) ListJobs(ctx context.Context, filter *JobFilter) (model.JobList, error) {
	storeFilter := store.NewJobQueryFilter()
	if filter != nil && filter.Status != nil {
		storeFilter = storeFilter.ByStatus(*filter.Status)
	}

	return s.store.Job().List(ctx, storeFilter, store.NewJobQueryOptions().WithSortOrder(store.SortByCreatedTime))
}

// StartProcessing claims a pending job for the run identified by runToken.
// Exactly one concurrent caller wins; the losers observe the claimed status
// through the returned conflict.
func (s *JobService) StartProcessing(ctx context.Context, id uuid.UUID, runToken string) (*model.Job, error) {
	job, err := s.store.Job().BeginRun(ctx, id, runToken)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, store.ErrPreconditionFailed) {
		return nil, err
	}

	current, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	return nil, NewErrJobConflict(id, current.Status)
}

// UpdateStage moves the job to stage with the given progress. The write is
// guarded by the stage observed while validating the move; a lost race gets
// one re-validation against the reloaded row.
func (s *JobService) UpdateStage(ctx context.Context, id uuid.UUID, stage model.JobStage, progress int) (*model.Job, error) {
	return s.advance(ctx, id, stage, store.StageUpdate{
		Stage:    stage,
		Progress: model.ClampProgress(progress),
	})
}

// CompleteJob finalizes a successful run: terminal complete stage, full
// progress, the stored result key, run token released.
func (s *JobService) CompleteJob(ctx context.Context, id uuid.UUID, resultKey string) (*model.Job, error) {
	return s.advance(ctx, id, model.StageComplete, store.StageUpdate{
		Stage:         model.StageComplete,
		Progress:      100,
		ResultKey:     &resultKey,
		ClearRunToken: true,
	})
}

// FailJob marks the job failed with a user-safe message and the retry signal.
// A non-empty runToken fences the write to the run that owns the job: when
// the job is already terminal or another run has taken over, the record is
// left untouched and the current row is returned as-is.
func (s *JobService) FailJob(ctx context.Context, id uuid.UUID, runToken string, message string, canRetry bool) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if job.Stage != nil && job.Stage.Terminal() {
			return job, nil
		}
		if runToken != "" && (job.RunToken == nil || *job.RunToken != runToken) {
			return job, nil
		}

		updated, err := s.store.Job().AdvanceStage(ctx, id, job.Stage, store.StageUpdate{
			Stage:         model.StageFailed,
			Status:        model.JobStatusFailed,
			Progress:      job.Progress,
			ErrorMessage:  &message,
			CanRetry:      &canRetry,
			ClearRunToken: true,
		})
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, store.ErrPreconditionFailed) {
			return nil, err
		}
		if attempt > 0 {
			// Lost the guard twice. Whoever moved the job owns it now.
			return job, nil
		}

		job, err = s.store.Job().Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return nil, NewErrJobNotFound(id)
			}
			return nil, err
		}
	}
}

// ResetForRetry returns a failed job to the pending pool. The reset never
// reaches into a run that might still be finishing: the stale run fences
// itself on the cleared token.
func (s *JobService) ResetForRetry(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job, err := s.store.Job().ResetForRetry(ctx, id)
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, store.ErrPreconditionFailed) {
		return nil, err
	}

	current, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	return nil, NewErrInvalidStatus(id, current.Status)
}

func (s *JobService) advance(ctx context.Context, id uuid.UUID, stage model.JobStage, update store.StageUpdate) (*model.Job, error) {
	job, err := s.store.Job().Get(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, NewErrJobNotFound(id)
		}
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		if !model.CanTransition(job.Stage, stage) {
			return nil, NewErrInvalidTransition(id, stage, job.Stage)
		}

		update.Status = model.DeriveStatus(stage, job.Status)
		updated, err := s.store.Job().AdvanceStage(ctx, id, job.Stage, update)
		if err == nil {
			return updated, nil
		}
		if !errors.Is(err, store.ErrPreconditionFailed) {
			return nil, err
		}
		if attempt > 0 {
			return nil, NewErrInvalidTransition(id, stage, job.Stage)
		}

		job, err = s.store.Job().Get(ctx, id)
		if err != nil {
			if errors.Is(err, store.ErrRecordNotFound) {
				return nil, NewErrJobNotFound(id)
			}
			return nil, err
		}
	}
}

type JobFilterFunc func(f *JobFilter)

type JobFilter struct {
	Status *model.JobStatus
}

func NewJobFilter(filters ...JobFilterFunc) *JobFilter {
	f := &JobFilter{}
	for _, fn := range filters {
		fn(f)
	}
	return f
}

func WithStatus(status model.JobStatus) JobFilterFunc {
	return func(f *JobFilter) {
		s := status
		f.Status = &s
	}
}
