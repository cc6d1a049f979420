// Package api serves the gateway's HTTP surface: chat turns, usage and plan
// tiers, document uploads and health.
package api

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/ashureev/dynamo-gateway/internal/envelope"
)

// JSON encodes v before touching the response, so an encoding failure still
// produces a clean 500 instead of a truncated body behind a success status.
// Responses are per-user and never cached.
func JSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
		status = http.StatusInternalServerError
		buf.Reset()
		buf.WriteString(`{"error":"failed to encode response"}` + "\n")
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// Error writes {"error": message} for the non-chat endpoints.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// EnvelopeError writes an error envelope, the shape chat clients already
// render, so chat failures never need a second response format.
func EnvelopeError(w http.ResponseWriter, status int, message string) {
	JSON(w, status, envelope.Error(message))
}
