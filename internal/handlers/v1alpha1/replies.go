package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"

	api "github.com/retrato-ai/retrato/api/v1alpha1"
	"github.com/retrato-ai/retrato/pkg/requestid"
)

// JobReply wraps a job for rendering. The handler decides the HTTP status.
type JobReply struct {
	api.Job
}

func (JobReply) Render(w http.ResponseWriter, r *http.Request) error {
	return nil
}

// ErrorReply renders an api.Error with the failure's HTTP status.
type ErrorReply struct {
	api.Error
	status int
}

func (e ErrorReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.status)
	return nil
}

func errorReply(r *http.Request, status int, message string) ErrorReply {
	return ErrorReply{
		Error: api.Error{
			Message:   message,
			RequestId: requestid.FromContextPtr(r.Context()),
		},
		status: status,
	}
}

// TimeoutReply is the 408 payload carrying how far the run got before the
// budget expired.
type TimeoutReply struct {
	api.ProcessingTimeout
}

func (TimeoutReply) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, http.StatusRequestTimeout)
	return nil
}
