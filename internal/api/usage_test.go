package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/ashureev/dynamo-gateway/internal/middleware"
	"github.com/ashureev/dynamo-gateway/internal/quota"
)

type fakeUsage struct {
	status quota.Status
	err    error
	plans  map[string]domain.Plan
}

func (f *fakeUsage) Status(context.Context, string) (quota.Status, error) {
	return f.status, f.err
}

func (f *fakeUsage) SetPlan(_ context.Context, userID string, plan domain.Plan) error {
	if f.err != nil {
		return f.err
	}
	f.plans[userID] = plan
	return nil
}

const testAdminToken = "plan-admin-secret"

// newUsageRouter mirrors the server layout: identified caller routes plus the
// token-guarded plan route.
func newUsageRouter(f *fakeUsage) http.Handler {
	h := NewUsageHandler(f, f)
	r := chi.NewRouter()
	r.Group(func(r chi.Router) {
		r.Use(withUser("user-1"))
		h.RegisterRoutes(r)
	})
	r.Group(func(r chi.Router) {
		r.Use(middleware.AdminToken(testAdminToken))
		h.RegisterAdminRoutes(r)
	})
	return r
}

func planRequest(body, token string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/plan", strings.NewReader(body))
	if token != "" {
		req.Header.Set(middleware.AdminTokenHeader, token)
	}
	return req
}

func TestGetUsage(t *testing.T) {
	f := &fakeUsage{status: quota.Status{Plan: domain.PlanFree, QuotaDate: "2026-03-01", Used: 3, Limit: 10, Remaining: 7}}
	rec := httptest.NewRecorder()
	newUsageRouter(f).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	var got quota.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, f.status, got)

	var named struct {
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &named))
	assert.Equal(t, "user-1", named.Username)
}

func TestGetUsageFailure(t *testing.T) {
	rec := httptest.NewRecorder()
	newUsageRouter(&fakeUsage{err: errors.New("down")}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/usage", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSetPlan(t *testing.T) {
	f := &fakeUsage{plans: map[string]domain.Plan{}}
	h := newUsageRouter(f)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, planRequest(`{"user_id":"user-9","plan":"Plus"}`, testAdminToken))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.PlanPlus, f.plans["user-9"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, planRequest(`{"user_id":"user-9","plan":"gold"}`, testAdminToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, planRequest(`{"plan":"plus"}`, testAdminToken))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetPlanRequiresAdminToken(t *testing.T) {
	f := &fakeUsage{plans: map[string]domain.Plan{}}
	h := newUsageRouter(f)

	// An identified caller without the token cannot upgrade anyone, itself included.
	for _, token := range []string{"", "user-1", "wrong"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, planRequest(`{"user_id":"user-1","plan":"plus"}`, token))
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "token %q", token)
	}
	assert.Empty(t, f.plans)
}

func TestSetPlanDisabledWithoutToken(t *testing.T) {
	f := &fakeUsage{plans: map[string]domain.Plan{}}
	r := chi.NewRouter()
	r.Use(middleware.AdminToken(""))
	NewUsageHandler(f, f).RegisterAdminRoutes(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, planRequest(`{"user_id":"user-1","plan":"plus"}`, ""))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, f.plans)
}
