package api

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/dynamo-gateway/internal/document"
)

// UploadHandler extracts text from uploaded documents so clients can send it
// back as pdf_context on later chat turns.
type UploadHandler struct {
	budget  int
	maxBody int64
}

// NewUploadHandler creates an UploadHandler keeping at most budget characters.
func NewUploadHandler(budget int, maxBody int64) *UploadHandler {
	if budget <= 0 {
		budget = document.DefaultBudget
	}
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	return &UploadHandler{budget: budget, maxBody: maxBody}
}

// RegisterRoutes registers the upload route.
func (h *UploadHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/upload", h.Upload)
}

// Upload reads the multipart "file" field and returns its text.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)
	file, header, err := r.FormFile("file")
	if err != nil {
		Error(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		Error(w, http.StatusRequestEntityTooLarge, "file too large")
		return
	}

	text, err := document.Extract(header.Filename, data, h.budget)
	switch {
	case errors.Is(err, document.ErrUnsupportedFormat):
		Error(w, http.StatusUnsupportedMediaType, "supported documents: pdf, docx, txt, md, csv, json, log")
		return
	case errors.Is(err, document.ErrUnreadable):
		Error(w, http.StatusUnprocessableEntity, "document could not be read")
		return
	case errors.Is(err, document.ErrEmpty):
		Error(w, http.StatusUnprocessableEntity, "document contains no text")
		return
	case err != nil:
		slog.Error("Document extraction failed", "error", err, "filename", header.Filename)
		Error(w, http.StatusInternalServerError, "failed to read document")
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"filename":    header.Filename,
		"characters":  utf8.RuneCountInString(text),
		"pdf_context": text,
	})
}
