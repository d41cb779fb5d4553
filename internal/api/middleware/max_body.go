package middleware

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/cloo-solutions/clarify/internal/api"
	"github.com/cloo-solutions/clarify/internal/logger"
)

// MaxBodyBytes caps JSON request bodies. A declared length over the limit is
// refused up front; a chunked body is cut off by http.MaxBytesReader and the
// handler reports the *http.MaxBytesError.
func MaxBodyBytes(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limit <= 0 || r.Body == nil || r.Body == http.NoBody {
				next.ServeHTTP(w, r)
				return
			}

			if r.ContentLength > limit {
				logger.FromContext(r.Context(), nil).Warn("request body too large",
					zap.Int64("content_length", r.ContentLength),
					zap.Int64("limit", limit),
				)
				api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}
