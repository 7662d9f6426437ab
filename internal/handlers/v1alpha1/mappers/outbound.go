package mappers

import (
	api "github.com/retrato-ai/retrato/api/v1alpha1"
	"github.com/retrato-ai/retrato/internal/store/model"
)

// JobToApi shapes one job for the wire. resultURL is the signed download link
// for a stored result; pass empty when there is none.
func JobToApi(job model.Job, resultURL string) api.Job {
	out := api.Job{
		Id:        job.ID.String(),
		Status:    api.JobStatus(job.Status),
		Progress:  job.Progress,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}

	if job.Stage != nil {
		stage := api.JobStage(*job.Stage)
		out.Stage = &stage
	}
	if job.ErrorMessage != nil {
		msg := *job.ErrorMessage
		out.ErrorMessage = &msg
	}
	// CanRetry only means something once the job has failed.
	if job.Status == model.JobStatusFailed {
		canRetry := job.CanRetry
		out.CanRetry = &canRetry
	}
	if resultURL != "" {
		url := resultURL
		out.ResultUrl = &url
	}

	return out
}

func JobListToApi(jobs model.JobList) api.JobList {
	out := make(api.JobList, 0, len(jobs))
	for _, job := range jobs {
		out = append(out, JobToApi(job, ""))
	}
	return out
}
