package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// AdminTokenHeader carries the shared secret for operator and webhook calls.
const AdminTokenHeader = "X-Admin-Token"

// AdminToken rejects requests that do not present token, either in
// X-Admin-Token or as an Authorization bearer. An empty token refuses every
// request.
func AdminToken(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(want) == 0 {
				http.Error(w, `{"error":"admin endpoints are disabled"}`, http.StatusForbidden)
				return
			}

			got := r.Header.Get(AdminTokenHeader)
			if got == "" {
				if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
					got = strings.TrimPrefix(auth, "Bearer ")
				}
			}
			if got == "" || subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				slog.Warn("Rejected admin request", "path", r.URL.Path, "remote", r.RemoteAddr)
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
