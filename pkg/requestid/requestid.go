package requestid

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// Header is the canonical wire name of the request id. It is accepted on
// requests and echoed on every reply so users can quote it when reporting a
// job that went wrong.
const Header = "X-Request-Id"

type contextKey string

const requestIDKey contextKey = "request_id"

// Generate creates a new unique request ID.
func Generate() string {
	return uuid.New().String()
}

// ToContext adds a request ID to the context.
func ToContext(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// FromContext extracts the request ID from the context. Returns an empty
// string when none is set.
func FromContext(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// FromContextPtr is FromContext for reply structs with optional fields: it
// returns nil instead of an empty string.
func FromContextPtr(ctx context.Context) *string {
	if requestID := FromContext(ctx); requestID != "" {
		return &requestID
	}
	return nil
}

// FromRequest extracts the request ID from the HTTP request context.
func FromRequest(r *http.Request) string {
	return FromContext(r.Context())
}
