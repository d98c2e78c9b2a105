package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// APIKeyHeader carries the operator key when a Bearer token is not used.
const APIKeyHeader = "X-API-Key"

// Auth guards the control API with a single shared operator key, given either
// as "Authorization: Bearer <key>" or in the X-API-Key header. An empty
// apiKey disables the check.
func Auth(apiKey string) func(http.Handler) http.Handler {
	want := sha256.Sum256([]byte(apiKey))
	return func(next http.Handler) http.Handler {
		if apiKey == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, ok := presentedKey(r)
			if !ok {
				deny(w, "missing api key")
				return
			}
			// Hashing first keeps the compare constant-time across key lengths.
			got := sha256.Sum256([]byte(key))
			if subtle.ConstantTimeCompare(got[:], want[:]) != 1 {
				deny(w, "invalid api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func presentedKey(r *http.Request) (string, bool) {
	if scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " "); found && strings.EqualFold(scheme, "Bearer") {
		if token = strings.TrimSpace(token); token != "" {
			return token, true
		}
	}
	key := strings.TrimSpace(r.Header.Get(APIKeyHeader))
	return key, key != ""
}

func deny(w http.ResponseWriter, msg string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="swaparb"`)
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
