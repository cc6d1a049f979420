package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/ashureev/dynamo-gateway/internal/identity"
	"github.com/ashureev/dynamo-gateway/internal/quota"
)

// StatusReporter reports quota usage. quota.Enforcer satisfies it.
type StatusReporter interface {
	Status(ctx context.Context, userID string) (quota.Status, error)
}

// PlanSetter changes a user's plan tier. store.Repository satisfies it.
type PlanSetter interface {
	SetPlan(ctx context.Context, userID string, plan domain.Plan) error
}

// UsageHandler serves usage and plan endpoints.
type UsageHandler struct {
	status StatusReporter
	plans  PlanSetter
}

// NewUsageHandler creates a UsageHandler.
func NewUsageHandler(status StatusReporter, plans PlanSetter) *UsageHandler {
	return &UsageHandler{status: status, plans: plans}
}

// RegisterRoutes registers the caller-facing usage route.
func (h *UsageHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/usage", h.GetUsage)
}

// RegisterAdminRoutes registers plan changes. The router must authenticate
// the caller; the target user comes from the request body.
func (h *UsageHandler) RegisterAdminRoutes(r chi.Router) {
	r.Post("/api/plan", h.SetPlan)
}

// GetUsage returns today's quota status for the caller.
func (h *UsageHandler) GetUsage(w http.ResponseWriter, r *http.Request) {
	userID := identity.UserIDFromContext(r.Context())
	if userID == "" {
		Error(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	st, err := h.status.Status(r.Context(), userID)
	if err != nil {
		slog.Error("Failed to load usage", "error", err, "user_id", userID)
		Error(w, http.StatusInternalServerError, "failed to load usage")
		return
	}
	JSON(w, http.StatusOK, usageResponse{
		Status:   st,
		Username: identity.UsernameFromContext(r.Context()),
	})
}

type usageResponse struct {
	quota.Status
	Username string `json:"username"`
}

type setPlanRequest struct {
	UserID string `json:"user_id"`
	Plan   string `json:"plan"`
}

// SetPlan records the outcome of a payment for the user named in the body.
// Payment verification happens upstream of this endpoint.
func (h *UsageHandler) SetPlan(w http.ResponseWriter, r *http.Request) {
	var req setPlanRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4096)).Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" || len(userID) > 128 {
		Error(w, http.StatusBadRequest, "user_id is required")
		return
	}
	plan, ok := domain.ParsePlan(req.Plan)
	if !ok {
		Error(w, http.StatusBadRequest, "plan must be free or plus")
		return
	}

	if err := h.plans.SetPlan(r.Context(), userID, plan); err != nil {
		slog.Error("Failed to set plan", "error", err, "user_id", userID, "plan", plan)
		Error(w, http.StatusInternalServerError, "failed to update plan")
		return
	}
	slog.Info("Plan updated", "user_id", userID, "plan", plan)
	JSON(w, http.StatusOK, map[string]string{"user_id": userID, "plan": string(plan)})
}
