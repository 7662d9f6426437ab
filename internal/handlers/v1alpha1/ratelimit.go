package v1alpha1

import (
	"net/http"

	"github.com/go-chi/render"

	api "github.com/retrato-ai/retrato/api/v1alpha1"
	"github.com/retrato-ai/retrato/internal/ratelimit"
	"github.com/retrato-ai/retrato/pkg/middleware"
)

type RateLimitHandler struct {
	limiter *ratelimit.Limiter
}

func NewRateLimitHandler(limiter *ratelimit.Limiter) *RateLimitHandler {
	return &RateLimitHandler{limiter: limiter}
}

// Status handles GET /api/v1/ratelimit. Check is read-only: asking about your
// standing does not consume a request.
func (h *RateLimitHandler) Status(w http.ResponseWriter, r *http.Request) {
	result := h.limiter.Check(middleware.ClientIP(r))

	render.JSON(w, r, api.RateLimitStatus{
		Allowed:   result.Allowed,
		Limit:     result.Limit,
		Remaining: result.Remaining,
		ResetAt:   result.ResetAt,
	})
}
