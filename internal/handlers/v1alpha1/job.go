package v1alpha1

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"go.uber.org/zap"

	api "github.com/retrato-ai/retrato/api/v1alpha1"
	"github.com/retrato-ai/retrato/internal/generation"
	"github.com/retrato-ai/retrato/internal/handlers/v1alpha1/mappers"
	"github.com/retrato-ai/retrato/internal/handlers/validator"
	"github.com/retrato-ai/retrato/internal/pipeline"
	"github.com/retrato-ai/retrato/internal/service"
	"github.com/retrato-ai/retrato/internal/store/model"
	"github.com/retrato-ai/retrato/pkg/requestid"
)

type JobHandler struct {
	jobs      *service.JobService
	processor *pipeline.Processor
	validator *validator.Validator
}

func NewJobHandler(jobs *service.JobService, processor *pipeline.Processor) *JobHandler {
	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules()...)

	return &JobHandler{jobs: jobs, processor: processor, validator: v}
}

// CreateJob handles POST /api/v1/jobs.
func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req api.CreateJobRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		_ = render.Render(w, r, errorReply(r, http.StatusBadRequest, "request body is not valid JSON"))
		return
	}

	if err := h.validator.Struct(req); err != nil {
		_ = render.Render(w, r, errorReply(r, http.StatusBadRequest, validator.Message(err)))
		return
	}

	job, err := h.jobs.CreateJob(r.Context(), mappers.JobFormFromApi(req))
	if err != nil {
		zap.S().Named("job_handler").Errorw("failed to create job", "error", err)
		_ = render.Render(w, r, errorReply(r, http.StatusInternalServerError, "failed to create job"))
		return
	}

	render.Status(r, http.StatusCreated)
	_ = render.Render(w, r, JobReply{mappers.JobToApi(*job, "")})
}

// GetJob handles GET /api/v1/jobs/{id}.
func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = render.Render(w, r, errorReply(r, http.StatusBadRequest, "job id must be a valid UUID"))
		return
	}

	job, resultURL, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			_ = render.Render(w, r, errorReply(r, http.StatusNotFound, err.Error()))
		default:
			zap.S().Named("job_handler").Errorw("failed to get job", "job_id", id, "error", err)
			_ = render.Render(w, r, errorReply(r, http.StatusInternalServerError, "failed to get job"))
		}
		return
	}

	_ = render.Render(w, r, JobReply{mappers.JobToApi(*job, resultURL)})
}

// ListJobs handles GET /api/v1/jobs with an optional ?status= filter.
func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	filter := service.NewJobFilter()
	if status := r.URL.Query().Get("status"); status != "" {
		parsed, ok := api.StringToJobStatus(status)
		if !ok {
			_ = render.Render(w, r, errorReply(r, http.StatusBadRequest, fmt.Sprintf("unknown status %q", status)))
			return
		}
		filter = service.NewJobFilter(service.WithStatus(model.JobStatus(parsed)))
	}

	jobs, err := h.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		zap.S().Named("job_handler").Errorw("failed to list jobs", "error", err)
		_ = render.Render(w, r, errorReply(r, http.StatusInternalServerError, "failed to list jobs"))
		return
	}

	render.JSON(w, r, mappers.JobListToApi(jobs))
}

// ProcessJob handles POST /api/v1/jobs/{id}/process. The pipeline runs
// synchronously; the reply is the job's final state or the mapped failure.
func (h *JobHandler) ProcessJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = render.Render(w, r, errorReply(r, http.StatusBadRequest, "job id must be a valid UUID"))
		return
	}

	job, err := h.processor.Process(r.Context(), id)
	if err != nil {
		h.renderProcessError(w, r, id, err)
		return
	}

	// Re-read to pick up the signed result URL. The completed row we already
	// hold is a good enough reply if the read fails.
	reply := mappers.JobToApi(*job, "")
	if fresh, resultURL, err := h.jobs.GetJob(r.Context(), id); err == nil {
		reply = mappers.JobToApi(*fresh, resultURL)
	} else {
		zap.S().Named("job_handler").Warnw("failed to reload job after processing", "job_id", id, "error", err)
	}

	_ = render.Render(w, r, JobReply{reply})
}

func (h *JobHandler) renderProcessError(w http.ResponseWriter, r *http.Request, id uuid.UUID, err error) {
	var timeout *pipeline.ErrPipelineTimeout
	if errors.As(err, &timeout) {
		_ = render.Render(w, r, TimeoutReply{api.ProcessingTimeout{
			Message:      pipeline.TimeoutMessage,
			LastStage:    timeout.LastStage,
			LastProgress: timeout.LastProgress,
			RequestId:    requestid.FromContextPtr(r.Context()),
		}})
		return
	}

	// A terminal classification is the user's photo being rejected, not the
	// service failing. Exhausted retries wrap a retryable classification and
	// fall through to 500.
	var genErr *generation.Error
	if errors.As(err, &genErr) && !genErr.Retryable() {
		reply := errorReply(r, http.StatusUnprocessableEntity, h.failureMessage(r.Context(), id))
		code := string(genErr.Classification)
		reply.Code = &code
		_ = render.Render(w, r, reply)
		return
	}

	switch err.(type) {
	case *service.ErrJobNotFound:
		_ = render.Render(w, r, errorReply(r, http.StatusNotFound, err.Error()))
	case *service.ErrJobConflict:
		_ = render.Render(w, r, errorReply(r, http.StatusConflict, err.Error()))
	case *service.ErrInvalidTransition:
		_ = render.Render(w, r, errorReply(r, http.StatusConflict, err.Error()))
	default:
		zap.S().Named("job_handler").Errorw("processing failed", "job_id", id, "error", err)
		_ = render.Render(w, r, errorReply(r, http.StatusInternalServerError, "processing failed"))
	}
}

// failureMessage reads back the user-safe message the pipeline persisted on
// the job before the error surfaced.
func (h *JobHandler) failureMessage(ctx context.Context, id uuid.UUID) string {
	job, _, err := h.jobs.GetJob(ctx, id)
	if err == nil && job.ErrorMessage != nil {
		return *job.ErrorMessage
	}
	return "Your photo could not be processed."
}

// RetryJob handles POST /api/v1/jobs/{id}/retry.
func (h *JobHandler) RetryJob(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		_ = render.Render(w, r, errorReply(r, http.StatusBadRequest, "job id must be a valid UUID"))
		return
	}

	job, err := h.jobs.ResetForRetry(r.Context(), id)
	if err != nil {
		switch err.(type) {
		case *service.ErrJobNotFound:
			_ = render.Render(w, r, errorReply(r, http.StatusNotFound, err.Error()))
		case *service.ErrInvalidStatus:
			_ = render.Render(w, r, errorReply(r, http.StatusConflict, err.Error()))
		default:
			zap.S().Named("job_handler").Errorw("failed to reset job", "job_id", id, "error", err)
			_ = render.Render(w, r, errorReply(r, http.StatusInternalServerError, "failed to reset job"))
		}
		return
	}

	_ = render.Render(w, r, JobReply{mappers.JobToApi(*job, "")})
}
