package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/molimor/molimor-backend/pkg/logger"
)

const (
	requestIDHeader = "X-Request-Id"
	maxRequestIDLen = 64
)

// RequestID keeps a caller's X-Request-Id when it is short and made of
// [A-Za-z0-9._-], and mints a uuid otherwise. The id lands in the response
// header, the active span and the log context.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if !safeRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set(requestIDHeader, id)

			ctx := r.Context()
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("http.request_id", id))
			if logg != nil {
				ctx = logg.WithRequestID(ctx, id)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func safeRequestID(id string) bool {
	return id != "" && len(id) <= maxRequestIDLen && strings.IndexFunc(id, unsafeIDRune) < 0
}

func unsafeIDRune(r rune) bool {
	switch {
	case 'a' <= r && r <= 'z', 'A' <= r && r <= 'Z', '0' <= r && r <= '9':
		return false
	case r == '-' || r == '_' || r == '.':
		return false
	}
	return true
}
