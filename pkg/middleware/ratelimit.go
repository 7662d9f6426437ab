package middleware

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	api "github.com/retrato-ai/retrato/api/v1alpha1"
	"github.com/retrato-ai/retrato/internal/events"
	"github.com/retrato-ai/retrato/internal/ratelimit"
	"github.com/retrato-ai/retrato/pkg/metrics"
	"github.com/retrato-ai/retrato/pkg/requestid"
)

// Emitter publishes rate-limit events. Satisfied by events.EventProducer.
type Emitter interface {
	Emit(ctx context.Context, kind string, payload any) error
}

// ParseTrustedNetworks parses CIDR notations into networks whose clients skip
// the rate limiter.
func ParseTrustedNetworks(cidrs []string) ([]*net.IPNet, error) {
	networks := make([]*net.IPNet, 0, len(cidrs))
	for _, cidr := range cidrs {
		_, network, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid trusted network %q", cidr)
		}
		networks = append(networks, network)
	}
	return networks, nil
}

func trustedClient(ip string, trusted []*net.IPNet) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	for _, network := range trusted {
		if network.Contains(parsed) {
			return true
		}
	}
	return false
}

// RateLimit enforces the per-client request limit on the routes it wraps.
// Every response carries the X-RateLimit-* headers so well-behaved clients
// can pace themselves before hitting 429.
func RateLimit(limiter *ratelimit.Limiter, trusted []*net.IPNet, emitter Emitter) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if trustedClient(ip, trusted) {
				next.ServeHTTP(w, r)
				return
			}

			result := limiter.Increment(ip)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if result.Allowed {
				next.ServeHTTP(w, r)
				return
			}

			path := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				path = rctx.RoutePattern()
			}

			metrics.IncreaseRateLimitedMetric(path)
			if emitter != nil {
				if err := emitter.Emit(r.Context(), events.JobRateLimitedKind, events.JobRateLimitedEvent{
					ClientKey: ip,
					Path:      path,
					ResetAt:   result.ResetAt,
				}); err != nil {
					zap.S().Named("ratelimit").Warnw("failed to emit rate limited event", "error", err)
				}
			}

			retryAfter := time.Until(result.ResetAt).Seconds()
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter)))

			render.Status(r, http.StatusTooManyRequests)
			render.JSON(w, r, api.Error{
				Message:   "Too many requests. Please slow down and try again shortly.",
				RequestId: requestid.FromContextPtr(r.Context()),
			})
		})
	}
}
