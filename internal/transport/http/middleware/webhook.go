package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// WebhookAPIKey authenticates payment gateway callbacks sent with
// "Authorization: Apikey <key>". An empty key disables the check.
func WebhookAPIKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, got, _ := strings.Cut(r.Header.Get("Authorization"), " ")
			if !strings.EqualFold(scheme, "Apikey") ||
				subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), []byte(key)) != 1 {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid webhook api key")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
