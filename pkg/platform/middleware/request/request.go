// Package request assigns a request id to every inbound request.
package request

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"onboarding/pkg/requestcontext"
)

const HeaderRequestID = "X-Request-ID"

// maxInboundIDLength caps ids accepted from the X-Request-ID header.
const maxInboundIDLength = 128

// RequestID reuses a caller-supplied X-Request-ID when present and short
// enough, otherwise generates one. The id is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" || len(requestID) > maxInboundIDLength {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request id from the context.
func GetRequestID(ctx context.Context) string {
	return requestcontext.RequestID(ctx)
}
