package provider

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/ashureev/dynamo-gateway/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockRT struct {
	roundTrip func(req *http.Request) (*http.Response, error)
}

func (m *mockRT) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.roundTrip(req)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Status:     http.StatusText(status),
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/json"}},
	}
}

func newTestGroq(t *testing.T, rt func(req *http.Request) (*http.Response, error)) *Groq {
	t.Helper()
	g, err := NewGroq(GroqConfig{
		APIKey:     "gsk-test",
		BaseURL:    "https://api.groq.test/openai/v1",
		HTTPClient: &http.Client{Transport: &mockRT{roundTrip: rt}},
	})
	require.NoError(t, err)
	return g
}

func TestNewGroqRequiresKey(t *testing.T) {
	_, err := NewGroq(GroqConfig{})
	require.ErrorIs(t, err, llm.ErrNotConfigured)
}

func TestGroqGenerateBuildsRoleTaggedMessages(t *testing.T) {
	temp := float32(0.8)
	g := newTestGroq(t, func(req *http.Request) (*http.Response, error) {
		assert.Equal(t, "/openai/v1/chat/completions", req.URL.Path)
		assert.Equal(t, "Bearer gsk-test", req.Header.Get("Authorization"))

		var payload struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			Temperature *float64 `json:"temperature"`
		}
		require.NoError(t, json.NewDecoder(req.Body).Decode(&payload))
		assert.Equal(t, "llama3-70b-8192", payload.Model)
		require.NotNil(t, payload.Temperature)
		assert.InDelta(t, 0.8, *payload.Temperature, 0.0001)

		roles := make([]string, 0, len(payload.Messages))
		for _, m := range payload.Messages {
			roles = append(roles, m.Role)
		}
		assert.Equal(t, []string{"system", "system", "user", "assistant", "user"}, roles)
		assert.Equal(t, "Context: [WEB SEARCH]", payload.Messages[1].Content)
		assert.Equal(t, "and now?", payload.Messages[4].Content)

		return response(http.StatusOK, `{"choices":[{"message":{"content":"hello there"}}]}`), nil
	})

	text, err := g.Generate(context.Background(), llm.Request{
		Model:       "llama3-70b-8192",
		Instruction: "You are Dynamo AI.",
		Context:     "[WEB SEARCH]",
		Transcript: []domain.ChatTurn{
			{Role: domain.RoleUser, Content: "hi"},
			{Role: domain.RoleModel, Content: "hello"},
		},
		Message:     "and now?",
		Temperature: &temp,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", text)
}

func TestGroqGenerateStatusMapping(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, llm.ErrUnauthorized},
		{http.StatusForbidden, llm.ErrUnauthorized},
		{http.StatusTooManyRequests, llm.ErrRateLimited},
		{http.StatusBadGateway, llm.ErrUnavailable},
	}
	for _, tt := range tests {
		calls := 0
		g := newTestGroq(t, func(*http.Request) (*http.Response, error) {
			calls++
			return response(tt.status, `{"error":{"message":"nope"}}`), nil
		})
		_, err := g.Generate(context.Background(), llm.Request{Message: "hi"})
		assert.ErrorIs(t, err, tt.want, "status %d", tt.status)
		assert.Equal(t, 1, calls, "status %d must not be retried", tt.status)
	}
}

func TestGroqGenerateMalformedBody(t *testing.T) {
	g := newTestGroq(t, func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, `not json`), nil
	})
	_, err := g.Generate(context.Background(), llm.Request{Message: "hi"})
	assert.ErrorIs(t, err, llm.ErrMalformedResponse)
}

func TestGroqGenerateNoChoices(t *testing.T) {
	g := newTestGroq(t, func(*http.Request) (*http.Response, error) {
		return response(http.StatusOK, `{"choices":[]}`), nil
	})
	_, err := g.Generate(context.Background(), llm.Request{Message: "hi"})
	assert.ErrorIs(t, err, llm.ErrEmptyResponse)
}

func TestGroqGenerateTransportError(t *testing.T) {
	g := newTestGroq(t, func(*http.Request) (*http.Response, error) {
		return nil, errors.New("connection reset")
	})
	_, err := g.Generate(context.Background(), llm.Request{Message: "hi"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, llm.ErrMalformedResponse)
	assert.Equal(t, llm.ClassUnavailable, llm.Classify(err).Class)
}
