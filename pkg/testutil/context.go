package testutil

import (
	"context"
	"net/http"

	id "onboarding/pkg/domain"
	"onboarding/pkg/requestcontext"
)

// WithIdentityID adds an authenticated identity to the request context, as
// the auth middleware would. An invalid UUID leaves the request untouched.
func WithIdentityID(req *http.Request, identityID string) *http.Request {
	parsed, err := id.ParseIdentityID(identityID)
	if err != nil {
		return req
	}
	return req.WithContext(requestcontext.WithIdentityID(req.Context(), parsed))
}

// WithClientMetadata sets the client IP and user agent seen by handlers.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
