package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	dErrors "onboarding/pkg/domain-errors"
	"onboarding/pkg/platform/httputil"
	"onboarding/pkg/requestcontext"
)

// MessageTooManyAttempts is returned with 429.
const MessageTooManyAttempts = "Too many registration attempts. Please try again later."

// Middleware limits requests per client IP. A store error lets the request
// through: an unavailable limiter must not block signups.
func Middleware(store Store, limit int, window time.Duration, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ip := requestcontext.ClientIP(ctx)

			result, err := store.Allow(ctx, "ip:"+ip, limit, window)
			if err != nil {
				if logger != nil {
					logger.ErrorContext(ctx, "failed to check registration rate limit",
						"request_id", requestcontext.RequestID(ctx),
						"error", err,
					)
				}
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			if !result.Allowed {
				retry := result.RetryAfter(requestcontext.Now(ctx))
				w.Header().Set("Retry-After", strconv.Itoa(int(retry.Round(time.Second).Seconds())))
				httputil.WriteError(w, dErrors.New(dErrors.CodeRateLimited, MessageTooManyAttempts))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
