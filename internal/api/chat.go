package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/dynamo-gateway/internal/envelope"
	"github.com/ashureev/dynamo-gateway/internal/identity"
	"github.com/ashureev/dynamo-gateway/internal/orchestrator"
	"github.com/ashureev/dynamo-gateway/internal/quota"
)

const rateLimitedMessage = "Too many requests. Please slow down and try again in a moment."

// Chatter runs one chat turn. orchestrator.Orchestrator satisfies it.
type Chatter interface {
	Handle(ctx context.Context, userID string, req orchestrator.ChatRequest) (envelope.Envelope, error)
}

// ChatHandler serves the chat endpoint.
type ChatHandler struct {
	chat    Chatter
	limiter *RateLimiter
	maxBody int64
	logger  *slog.Logger
}

// NewChatHandler creates a ChatHandler. A nil limiter disables burst limiting.
func NewChatHandler(chat Chatter, limiter *RateLimiter, maxBody int64, logger *slog.Logger) *ChatHandler {
	if maxBody <= 0 {
		maxBody = 2 << 20
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChatHandler{chat: chat, limiter: limiter, maxBody: maxBody, logger: logger}
}

// RegisterRoutes registers the chat routes.
func (h *ChatHandler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.Chat)
	r.Post("/chat", h.Chat)
}

// Chat decodes a ChatRequest and writes the resulting envelope.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		EnvelopeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	if h.limiter != nil && !h.limiter.Allow(userID) {
		EnvelopeError(w, http.StatusTooManyRequests, rateLimitedMessage)
		return
	}

	var req orchestrator.ChatRequest
	body := http.MaxBytesReader(w, r.Body, h.maxBody)
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			EnvelopeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		EnvelopeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	env, err := h.chat.Handle(r.Context(), userID, req)
	if err != nil {
		h.writeError(w, r, userID, err)
		return
	}
	JSON(w, http.StatusOK, env)
}

func (h *ChatHandler) writeError(w http.ResponseWriter, r *http.Request, userID string, err error) {
	var (
		verr     *orchestrator.ValidationError
		exceeded *quota.ExceededError
	)
	switch {
	case errors.As(err, &verr):
		EnvelopeError(w, http.StatusBadRequest, verr.Error())
	case errors.As(err, &exceeded):
		EnvelopeError(w, http.StatusTooManyRequests, exceeded.Error())
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		h.logger.Info("Client went away before the reply was ready",
			"user_id", userID,
			"request_id", chiMiddleware.GetReqID(r.Context()),
		)
	default:
		h.logger.Error("Chat failed", "user_id", userID, "error", err)
		EnvelopeError(w, http.StatusInternalServerError, "internal error")
	}
}
