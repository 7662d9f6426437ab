package events

import "time"

// JobRetryEvent is emitted once per retried generation attempt, before the
// backoff delay runs.
type JobRetryEvent struct {
	JobID          string        `json:"job_id"`
	Attempt        int           `json:"attempt"`
	Classification string        `json:"classification"`
	Delay          time.Duration `json:"delay"`
	Error          string        `json:"error"`
}

// JobExhaustedEvent is emitted once when the retry budget runs out.
type JobExhaustedEvent struct {
	JobID          string `json:"job_id"`
	Attempts       int    `json:"attempts"`
	Classification string `json:"classification"`
	Error          string `json:"error"`
}

// JobTimeoutEvent is emitted once when the pipeline deadline guard fires.
type JobTimeoutEvent struct {
	JobID        string        `json:"job_id"`
	LastStage    string        `json:"last_stage"`
	LastProgress int           `json:"last_progress"`
	Elapsed      time.Duration `json:"elapsed"`
}

// JobCompletedEvent is emitted once per successful pipeline run.
type JobCompletedEvent struct {
	JobID     string        `json:"job_id"`
	Preset    string        `json:"preset"`
	ResultKey string        `json:"result_key"`
	Elapsed   time.Duration `json:"elapsed"`
}

// JobFailedEvent is emitted once per terminal pipeline failure that is not a
// deadline expiry.
type JobFailedEvent struct {
	JobID          string `json:"job_id"`
	Stage          string `json:"stage"`
	Classification string `json:"classification"`
	CanRetry       bool   `json:"can_retry"`
	Error          string `json:"error"`
}

// JobRateLimitedEvent is emitted when the limiter denies a request.
type JobRateLimitedEvent struct {
	ClientKey string    `json:"client_key"`
	Path      string    `json:"path"`
	ResetAt   time.Time `json:"reset_at"`
}
