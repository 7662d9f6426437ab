package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/retrato-ai/retrato/internal/store/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SortOrder int

const (
	Unsorted SortOrder = iota
	SortByID
	SortByUpdatedTime
	SortByCreatedTime
)

// StageUpdate is the set of columns a single stage transition writes. The
// caller decides the values; the store only guarantees they land atomically
// and only if the guard still holds.
type StageUpdate struct {
	Stage         model.JobStage
	Status        model.JobStatus
	Progress      int
	ErrorMessage  *string
	CanRetry      *bool
	ResultKey     *string
	ClearRunToken bool
}

type Job interface {
	List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error)
	Get(ctx context.Context, id uuid.UUID) (*model.Job, error)
	Create(ctx context.Context, job model.Job) (*model.Job, error)
	BeginRun(ctx context.Context, id uuid.UUID, runToken string) (*model.Job, error)
	AdvanceStage(ctx context.Context, id uuid.UUID, observed *model.JobStage, update StageUpdate) (*model.Job, error)
	ResetForRetry(ctx context.Context, id uuid.UUID) (*model.Job, error)
	Statistics(ctx context.Context) (model.StatusCounts, error)
	InitialMigration(context.Context) error
}

type JobStore struct {
	db *gorm.DB
}

func NewJobStore(db *gorm.DB) Job {
	return &JobStore{db: db}
}

func (j *JobStore) InitialMigration(ctx context.Context) error {
	return j.getDB(ctx).AutoMigrate(&model.Job{})
}

// List lists jobs matching the filter.
func (j *JobStore) List(ctx context.Context, filter *JobQueryFilter, opts *JobQueryOptions) (model.JobList, error) {
	var jobs model.JobList
	tx := j.getDB(ctx)

	if filter != nil {
		for _, fn := range filter.QueryFn {
			tx = fn(tx)
		}
	}

	if opts != nil {
		for _, fn := range opts.QueryFn {
			tx = fn(tx)
		}
	}

	if err := tx.Model(&jobs).Find(&jobs).Error; err != nil {
		return nil, err
	}

	return jobs, nil
}

// Create creates a job.
func (j *JobStore) Create(ctx context.Context, job model.Job) (*model.Job, error) {
	if err := j.getDB(ctx).Create(&job).Error; err != nil {
		return nil, err
	}

	return &job, nil
}

// Get returns a job based on its id.
func (j *JobStore) Get(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job := &model.Job{ID: id}

	if err := j.getDB(ctx).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRecordNotFound
		}
		return nil, err
	}

	return job, nil
}

// BeginRun moves a pending job to processing and stamps the run token, in one
// guarded statement. ErrPreconditionFailed means the job is not pending
// anymore (or never existed); the caller re-reads to tell which.
func (j *JobStore) BeginRun(ctx context.Context, id uuid.UUID, runToken string) (*model.Job, error) {
	job := model.Job{ID: id}

	result := j.getDB(ctx).
		Model(&job).
		Clauses(clause.Returning{}).
		Where("status = ?", model.JobStatusPending).
		Updates(map[string]interface{}{
			"status":    model.JobStatusProcessing,
			"run_token": runToken,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrPreconditionFailed
	}

	return &job, nil
}

// AdvanceStage applies a stage transition guarded by the stage the caller
// observed when it validated the move. A nil observed stage guards on the
// job having no stage yet. All columns of the update land in a single
// statement or not at all.
func (j *JobStore) AdvanceStage(ctx context.Context, id uuid.UUID, observed *model.JobStage, update StageUpdate) (*model.Job, error) {
	job := model.Job{ID: id}

	updates := map[string]interface{}{
		"stage":    update.Stage,
		"status":   update.Status,
		"progress": update.Progress,
	}
	if update.ErrorMessage != nil {
		updates["error_message"] = *update.ErrorMessage
	}
	if update.CanRetry != nil {
		updates["can_retry"] = *update.CanRetry
	}
	if update.ResultKey != nil {
		updates["result_key"] = *update.ResultKey
	}
	if update.ClearRunToken {
		updates["run_token"] = nil
	}

	tx := j.getDB(ctx).Model(&job).Clauses(clause.Returning{})
	if observed == nil {
		tx = tx.Where("stage IS NULL")
	} else {
		tx = tx.Where("stage = ?", *observed)
	}

	result := tx.Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrPreconditionFailed
	}

	return &job, nil
}

// ResetForRetry moves a failed job back to pending and clears everything the
// failed run left behind. The guard makes concurrent resets single-winner.
func (j *JobStore) ResetForRetry(ctx context.Context, id uuid.UUID) (*model.Job, error) {
	job := model.Job{ID: id}

	result := j.getDB(ctx).
		Model(&job).
		Clauses(clause.Returning{}).
		Where("status = ?", model.JobStatusFailed).
		Updates(map[string]interface{}{
			"status":        model.JobStatusPending,
			"stage":         nil,
			"progress":      0,
			"error_message": nil,
			"can_retry":     false,
			"run_token":     nil,
		})
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrPreconditionFailed
	}

	return &job, nil
}

// Statistics returns the job population grouped by status.
func (j *JobStore) Statistics(ctx context.Context) (model.StatusCounts, error) {
	rows := []struct {
		Status model.JobStatus
		Total  int64
	}{}

	if err := j.getDB(ctx).
		Model(&model.Job{}).
		Select("status, COUNT(*) AS total").
		Group("status").
		Find(&rows).Error; err != nil {
		return nil, err
	}

	counts := make(model.StatusCounts)
	for _, s := range model.AllJobStatuses {
		counts[s] = 0
	}
	for _, r := range rows {
		counts[r.Status] = r.Total
	}

	return counts, nil
}

func (j *JobStore) getDB(ctx context.Context) *gorm.DB {
	return j.db.WithContext(ctx)
}
