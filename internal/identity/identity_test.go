package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashureev/dynamo-gateway/internal/domain"
)

type fakeUsers struct {
	mu       sync.Mutex
	users    map[string]*domain.User
	lastSeen map[string]time.Time
	err      error
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{users: map[string]*domain.User{}, lastSeen: map[string]time.Time{}}
}

func (f *fakeUsers) GetUser(_ context.Context, userID string) (*domain.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.users[userID], nil
}

func (f *fakeUsers) UpsertUser(_ context.Context, u *domain.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.users[u.UserID] = u
	return nil
}

func (f *fakeUsers) UpdateLastSeen(_ context.Context, userID string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastSeen[userID] = t
	return nil
}

func serve(t *testing.T, repo UserStore, opts Options, req *http.Request) (*httptest.ResponseRecorder, string, string) {
	t.Helper()
	var gotUser, gotSession string
	h := Middleware(repo, opts)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = UserIDFromContext(r.Context())
		gotSession = SessionIDFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec, gotUser, gotSession
}

func TestMiddlewareIssuesDeviceCookie(t *testing.T) {
	repo := newFakeUsers()
	rec, userID, session := serve(t, repo, Options{IsDev: true}, httptest.NewRequest(http.MethodGet, "/api/usage", nil))

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Regexp(t, `^anon_[a-f0-9]{32}$`, userID)
	assert.Equal(t, DefaultSessionIDValue, session)

	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, AnonCookieName, cookies[0].Name)
	assert.Equal(t, userID, cookies[0].Value)
	assert.False(t, cookies[0].Secure)

	require.Contains(t, repo.users, userID)
	assert.Equal(t, domain.PlanFree, repo.users[userID].Plan)
}

func TestMiddlewareReusesValidCookie(t *testing.T) {
	repo := newFakeUsers()
	id := "anon_0123456789abcdef0123456789abcdef"
	repo.users[id] = &domain.User{UserID: id, Plan: domain.PlanPlus}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.AddCookie(&http.Cookie{Name: AnonCookieName, Value: id})
	req.Header.Set(SessionHeaderName, "tab-1")

	_, userID, session := serve(t, repo, Options{}, req)
	assert.Equal(t, id, userID)
	assert.Equal(t, "tab-1", session)
	assert.Contains(t, repo.lastSeen, id)
	assert.Equal(t, domain.PlanPlus, repo.users[id].Plan)
}

func TestMiddlewareTrustedHeader(t *testing.T) {
	repo := newFakeUsers()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeaderName, "user-42")

	_, userID, _ := serve(t, repo, Options{TrustUserHeader: true}, req)
	assert.Equal(t, "user-42", userID)

	_, userID, _ = serve(t, repo, Options{TrustUserHeader: false}, req)
	assert.NotEqual(t, "user-42", userID, "header ignored unless trusted")
}

func TestMiddlewareRejectsBadHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserHeaderName, "bad id with spaces")

	rec, _, _ := serve(t, newFakeUsers(), Options{TrustUserHeader: true}, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMiddlewareStoreFailure(t *testing.T) {
	repo := newFakeUsers()
	repo.err = errors.New("db down")

	rec, _, _ := serve(t, repo, Options{}, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSanitizeSessionID(t *testing.T) {
	assert.Equal(t, "abc-123", sanitizeSessionID(" abc-123 "))
	assert.Equal(t, DefaultSessionIDValue, sanitizeSessionID("bad session!"))
}
