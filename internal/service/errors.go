package service

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/retrato-ai/retrato/internal/store/model"
)

type ErrJobNotFound struct {
	error
}

func NewErrJobNotFound(id uuid.UUID) *ErrJobNotFound {
	return &ErrJobNotFound{fmt.Errorf("job %s not found", id)}
}

// ErrJobConflict rejects a start on a job that is not pending anymore.
// Status carries what the loser observed.
type ErrJobConflict struct {
	error
	Status model.JobStatus
}

func NewErrJobConflict(id uuid.UUID, status model.JobStatus) *ErrJobConflict {
	return &ErrJobConflict{
		error:  fmt.Errorf("job %s is already %s", id, status),
		Status: status,
	}
}

// ErrInvalidTransition rejects a stage move the pipeline order does not
// allow. Current is nil when the job has no stage assigned yet.
type ErrInvalidTransition struct {
	error
	Attempted model.JobStage
	Current   *model.JobStage
}

func NewErrInvalidTransition(id uuid.UUID, attempted model.JobStage, current *model.JobStage) *ErrInvalidTransition {
	from := "none"
	if current != nil {
		from = string(*current)
	}
	return &ErrInvalidTransition{
		error:     fmt.Errorf("job %s cannot move from stage %s to %s", id, from, attempted),
		Attempted: attempted,
		Current:   current,
	}
}

// ErrInvalidStatus rejects a retry reset on a job that is not failed.
type ErrInvalidStatus struct {
	error
	Status model.JobStatus
}

func NewErrInvalidStatus(id uuid.UUID, status model.JobStatus) *ErrInvalidStatus {
	return &ErrInvalidStatus{
		error:  fmt.Errorf("job %s cannot be retried while %s", id, status),
		Status: status,
	}
}
