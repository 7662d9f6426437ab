package model

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// JobStatus is the coarse lifecycle bucket of a job. It is derived from the
// stage except at creation (pending) and through the guarded start/reset
// transitions.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

var AllJobStatuses = []JobStatus{JobStatusPending, JobStatusProcessing, JobStatusCompleted, JobStatusFailed}

// JobStage is the fine-grained pipeline position. Stages move forward only;
// StageFailed is reachable from any non-terminal stage.
type JobStage string

const (
	StageValidating   JobStage = "validating"
	StageGenerating   JobStage = "generating"
	StageStoring      JobStage = "storing"
	StageWatermarking JobStage = "watermarking"
	StageComplete     JobStage = "complete"
	StageFailed       JobStage = "failed"
)

// stageRank fixes the forward-only pipeline order. StageFailed carries no
// rank: it is not part of the forward chain.
var stageRank = map[JobStage]int{
	StageValidating:   1,
	StageGenerating:   2,
	StageStoring:      3,
	StageWatermarking: 4,
	StageComplete:     5,
}

// Known reports whether s names a stage the pipeline understands.
func (s JobStage) Known() bool {
	if s == StageFailed {
		return true
	}
	_, ok := stageRank[s]
	return ok
}

// Terminal reports whether a job at this stage accepts no further transitions.
func (s JobStage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// Rank returns the position of s in the forward chain, 0 when s has none.
func (s JobStage) Rank() int {
	return stageRank[s]
}

// CanTransition reports whether a job currently at `from` (nil means no stage
// assigned yet) may move to `to`. Forward moves must strictly increase the
// rank; StageFailed is accepted from any non-terminal position.
func CanTransition(from *JobStage, to JobStage) bool {
	if !to.Known() {
		return false
	}
	if from != nil && from.Terminal() {
		return false
	}
	if to == StageFailed {
		return true
	}
	current := 0
	if from != nil {
		current = from.Rank()
	}
	return to.Rank() > current
}

// DeriveStatus computes the status implied by a stage write. Stages other
// than the terminal pair only pull a pending job into processing; any other
// previous status is left untouched.
func DeriveStatus(stage JobStage, previous JobStatus) JobStatus {
	switch stage {
	case StageComplete:
		return JobStatusCompleted
	case StageFailed:
		return JobStatusFailed
	default:
		if previous == JobStatusPending {
			return JobStatusProcessing
		}
		return previous
	}
}

// ClampProgress bounds p to [0,100].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Job is the persisted unit of work for one upload-through-result attempt.
type Job struct {
	gorm.Model
	ID           uuid.UUID `gorm:"primaryKey"`
	Status       JobStatus `gorm:"type:VARCHAR(16);not null;index"`
	Stage        *JobStage `gorm:"type:VARCHAR(16)"`
	Progress     int       `gorm:"not null;default:0"`
	ErrorMessage *string
	CanRetry     bool `gorm:"not null;default:false"`
	RunToken     *string
	SourceKey    string `gorm:"not null"`
	Preset       string `gorm:"not null"`
	ResultKey    *string
}

type JobList []Job

func (j Job) String() string {
	val, _ := json.Marshal(j)
	return string(val)
}

// NewJob returns a freshly created job: pending, no stage, zero progress.
func NewJob(sourceKey, preset string) Job {
	return Job{
		ID:        uuid.New(),
		Status:    JobStatusPending,
		SourceKey: sourceKey,
		Preset:    preset,
	}
}

// StatusCounts is the per-status population of the jobs table, used to feed
// the jobs-by-status gauge.
type StatusCounts map[JobStatus]int64
