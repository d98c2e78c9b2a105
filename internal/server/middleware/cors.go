package middleware

import (
	"net/http"
	"strings"
)

const (
	corsMethods = "GET, PUT, POST, OPTIONS"
	corsHeaders = "Content-Type, Authorization, " + APIKeyHeader
)

// CORS lets the listed operator dashboards call the control API from a
// browser. An empty list or a "*" entry admits any origin. Preflights are
// answered here and never reach auth or rate limiting.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	anyOrigin := len(allowedOrigins) == 0
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.ToLower(strings.TrimSpace(o))
		if o == "*" {
			anyOrigin = true
		}
		origins[o] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("Vary", "Origin")
			if origin := r.Header.Get("Origin"); origin != "" {
				_, listed := origins[strings.ToLower(origin)]
				if anyOrigin || listed {
					h := w.Header()
					h.Set("Access-Control-Allow-Origin", origin)
					h.Set("Access-Control-Allow-Methods", corsMethods)
					h.Set("Access-Control-Allow-Headers", corsHeaders)
					h.Set("Access-Control-Max-Age", "600")
				}
			}
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
