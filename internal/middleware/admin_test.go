package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAdminToken(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name       string
		configured string
		header     string
		value      string
		want       int
	}{
		{"no credentials", "s3cret", "", "", http.StatusUnauthorized},
		{"wrong token", "s3cret", AdminTokenHeader, "guess", http.StatusUnauthorized},
		{"token header", "s3cret", AdminTokenHeader, "s3cret", http.StatusNoContent},
		{"bearer", "s3cret", "Authorization", "Bearer s3cret", http.StatusNoContent},
		{"wrong bearer", "s3cret", "Authorization", "Bearer s3cre", http.StatusUnauthorized},
		{"disabled", "", AdminTokenHeader, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/api/plan", nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			rec := httptest.NewRecorder()
			AdminToken(tt.configured)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}
