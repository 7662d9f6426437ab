package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/retrato-ai/retrato/pkg/requestid"
)

// RequestID takes the id from the X-Request-Id header, or from chi's own
// middleware when the header is absent, generating one as the last resort.
// The id is stored in the request context for handlers and logging, and
// echoed back on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestid.Header)
		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}
		if requestID == "" {
			requestID = requestid.Generate()
		}

		w.Header().Set(requestid.Header, requestID)

		ctx := requestid.ToContext(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
