package router

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// extractAPIKey pulls the API key from the configured header first, then
// falls back to a Bearer-prefixed Authorization header.
func extractAPIKey(r *http.Request, headerName string) string {
	if key := r.Header.Get(headerName); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return ""
}

// isAuthorized does a constant-time comparison against the configured API
// key. An empty configured key means auth is disabled entirely.
func isAuthorized(r *http.Request, apiKey, headerName string) bool {
	if apiKey == "" {
		return true
	}
	provided := extractAPIKey(r, headerName)
	if provided == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) == 1
}
