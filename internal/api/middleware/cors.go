package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/cloo-solutions/clarify/internal/api"
	"github.com/cloo-solutions/clarify/internal/domain"
)

const (
	corsAllowMethods = "POST, OPTIONS"
	corsAllowHeaders = "Content-Type"
	corsMaxAge       = "86400"
)

// CORS enforces a fixed origin allow-list. Preflight requests from an allowed
// origin get 204 with CORS headers, any other preflight gets 403. Other requests
// pass through and carry CORS headers only for allowed origins.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	allowed := slices.Clone(allowedOrigins)

	isAllowed := func(origin string) bool {
		return origin != "" && slices.Contains(allowed, origin)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := strings.TrimSpace(r.Header.Get("Origin"))
			ok := isAllowed(origin)

			if r.Method == http.MethodOptions {
				if !ok {
					api.HandleError(w, domain.ErrOriginNotAllowed)
					return
				}
				setCORSHeaders(w, origin)
				w.Header().Set("Access-Control-Max-Age", corsMaxAge)
				w.WriteHeader(http.StatusNoContent)
				return
			}

			if ok {
				setCORSHeaders(w, origin)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func setCORSHeaders(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Add("Vary", "Origin")
}
