// Package v1alpha1 holds the wire types exchanged with API clients.
package v1alpha1

import "time"

// JobStatus is the coarse lifecycle bucket of a job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobStage is the fine-grained pipeline position of a job.
type JobStage string

const (
	JobStageValidating   JobStage = "validating"
	JobStageGenerating   JobStage = "generating"
	JobStageStoring      JobStage = "storing"
	JobStageWatermarking JobStage = "watermarking"
	JobStageComplete     JobStage = "complete"
	JobStageFailed       JobStage = "failed"
)

// Job is a single photo-transformation job as seen by clients.
type Job struct {
	Id           string    `json:"id"`
	Status       JobStatus `json:"status"`
	Stage        *JobStage `json:"stage,omitempty"`
	Progress     int       `json:"progress"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	CanRetry     *bool     `json:"canRetry,omitempty"`
	ResultUrl    *string   `json:"resultUrl,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

type JobList []Job

// CreateJobRequest carries the object-storage key of an uploaded photo and the
// transformation preset the user picked.
type CreateJobRequest struct {
	SourceKey string `json:"sourceKey" validate:"required,max=512,source_key"`
	Preset    string `json:"preset" validate:"required,preset"`
}

// Error is the generic failure reply. Code carries the failure classification
// when one exists, so clients can branch without parsing the message.
type Error struct {
	Message   string  `json:"message"`
	Code      *string `json:"code,omitempty"`
	RequestId *string `json:"requestId,omitempty"`
}

// ProcessingTimeout is returned when the processing pipeline ran out of its
// wall-clock budget. LastStage/LastProgress reflect how far the job got so the
// UI can offer a meaningful "try again".
type ProcessingTimeout struct {
	Message      string  `json:"message"`
	LastStage    string  `json:"lastStage"`
	LastProgress int     `json:"lastProgress"`
	RequestId    *string `json:"requestId,omitempty"`
}

// RateLimitStatus reports the caller's standing against the request limiter.
type RateLimitStatus struct {
	Allowed   bool      `json:"allowed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"resetAt"`
}
