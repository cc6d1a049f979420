package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"

	"github.com/ashureev/dynamo-gateway/internal/envelope"
	"github.com/ashureev/dynamo-gateway/internal/identity"
	"github.com/ashureev/dynamo-gateway/internal/orchestrator"
	"github.com/ashureev/dynamo-gateway/internal/quota"
)

const (
	writeTimeout = 10 * time.Second
	readLimit    = 2 << 20
	frameBacklog = 8
)

// Chatter runs one chat turn. orchestrator.Orchestrator satisfies it.
type Chatter interface {
	Handle(ctx context.Context, userID string, req orchestrator.ChatRequest) (envelope.Envelope, error)
}

// Limiter throttles bursts per user. api.RateLimiter satisfies it.
type Limiter interface {
	Allow(key string) bool
}

// Handler upgrades requests to chat sockets.
type Handler struct {
	chat           Chatter
	sm             *SessionManager
	limiter        Limiter
	allowedOrigins []string
	isDev          bool
}

// NewHandler creates a WebSocket chat handler. A nil limiter disables throttling.
func NewHandler(chat Chatter, sm *SessionManager, limiter Limiter, allowedOrigins []string, isDev bool) *Handler {
	return &Handler{
		chat:           chat,
		sm:             sm,
		limiter:        limiter,
		allowedOrigins: allowedOrigins,
		isDev:          isDev,
	}
}

// inbound is one client frame: a chat request tagged with a type.
type inbound struct {
	Type string `json:"type"`
	orchestrator.ChatRequest
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	sessionID := identity.SessionIDFromContext(r.Context())
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "user_id", userID)
		return
	}
	ws.SetReadLimit(readLimit)
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "user_id", userID)
		}
	}()

	h.sm.Register(userID, sessionID, ws)
	defer h.sm.Unregister(userID, sessionID, ws)

	h.serve(r.Context(), ws, userID)
}

// serve runs turns one at a time while a separate goroutine keeps reading.
// A read failure (client gone, close frame, server shutdown) cancels the
// connection context, which abandons the in-flight turn.
func (h *Handler) serve(ctx context.Context, ws *websocket.Conn, userID string) {
	ctx, cancel := context.WithCancel(ctx)
	frames := make(chan []byte, frameBacklog)
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		readFrames(ctx, cancel, ws, userID, frames)
	}()
	defer func() {
		cancel()
		<-readerDone
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case data, ok := <-frames:
			if !ok {
				return
			}
			if !h.dispatch(ctx, ws, userID, data) {
				return
			}
		}
	}
}

func readFrames(ctx context.Context, cancel context.CancelFunc, ws *websocket.Conn, userID string, frames chan<- []byte) {
	defer close(frames)
	defer cancel()
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				slog.Debug("WebSocket closed by client", "user_id", userID)
			} else {
				slog.Debug("WebSocket read ended", "error", err, "user_id", userID)
			}
			return
		}
		select {
		case frames <- data:
		case <-ctx.Done():
			return
		}
	}
}

// dispatch handles one frame. It returns false once the connection is gone.
func (h *Handler) dispatch(ctx context.Context, ws *websocket.Conn, userID string, data []byte) bool {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		h.write(ctx, ws, envelope.Error("invalid message"))
		return true
	}

	switch msg.Type {
	case "ping":
		h.write(ctx, ws, map[string]string{"type": "pong"})
	case "chat", "":
		if h.limiter != nil && !h.limiter.Allow(userID) {
			h.write(ctx, ws, envelope.Error("Too many requests. Please slow down and try again in a moment."))
			return true
		}
		env, err := h.chat.Handle(ctx, userID, msg.ChatRequest)
		if err != nil {
			if ctx.Err() != nil {
				slog.Debug("Chat turn abandoned", "user_id", userID)
				return false
			}
			env = errorEnvelope(err)
		}
		h.write(ctx, ws, env)
	default:
		h.write(ctx, ws, envelope.Error("unknown message type"))
	}
	return true
}

func errorEnvelope(err error) envelope.Envelope {
	var (
		verr     *orchestrator.ValidationError
		exceeded *quota.ExceededError
	)
	switch {
	case errors.As(err, &verr):
		return envelope.Error(verr.Error())
	case errors.As(err, &exceeded):
		return envelope.Error(exceeded.Error())
	default:
		slog.Error("Chat over WebSocket failed", "error", err)
		return envelope.Error("internal error")
	}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.allowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	slog.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (h *Handler) write(ctx context.Context, ws *websocket.Conn, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to encode WebSocket message", "error", err)
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := ws.Write(writeCtx, websocket.MessageText, data); err != nil {
		slog.Debug("WebSocket write error", "error", err)
	}
}
