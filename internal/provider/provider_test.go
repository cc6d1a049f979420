package provider

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/dynamo-gateway/internal/llm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	name  string
	model string

	mu       sync.Mutex
	calls    int
	lastReq  llm.Request
	generate func(ctx context.Context, req llm.Request) (string, error)
}

func (f *fakeBackend) Name() string         { return f.name }
func (f *fakeBackend) DefaultModel() string { return f.model }

func (f *fakeBackend) Generate(ctx context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.calls++
	f.lastReq = req
	f.mu.Unlock()
	if f.generate == nil {
		return "ok from " + f.name, nil
	}
	return f.generate(ctx, req)
}

func TestRegistryResolve(t *testing.T) {
	gemini := &fakeBackend{name: NameGemini, model: "gemini-2.0-flash"}
	groq := &fakeBackend{name: NameGroq, model: "llama-3.3-70b-versatile"}
	reg := NewRegistry(NameGemini, gemini, groq)

	tests := []struct {
		name        string
		modelID     string
		wantBackend string
		wantModel   string
	}{
		{"empty uses default", "", NameGemini, "gemini-2.0-flash"},
		{"exact backend name", "groq", NameGroq, "llama-3.3-70b-versatile"},
		{"llama family", "llama3-70b-8192", NameGroq, "llama3-70b-8192"},
		{"gemini family keeps model", "gemini-1.5-pro", NameGemini, "gemini-1.5-pro"},
		{"unknown falls back", "gpt-4o", NameGemini, "gemini-2.0-flash"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, model, ok := reg.Resolve(tt.modelID)
			require.True(t, ok)
			assert.Equal(t, tt.wantBackend, b.Name())
			assert.Equal(t, tt.wantModel, model)
		})
	}
}

func TestRegistryUnconfiguredFamilyFallsBackToDefault(t *testing.T) {
	reg := NewRegistry(NameGemini, &fakeBackend{name: NameGemini, model: "gemini-2.0-flash"})
	reg.Register(nil)

	b, model, ok := reg.Resolve("llama3-70b-8192")
	require.True(t, ok)
	assert.Equal(t, NameGemini, b.Name())
	assert.Equal(t, "gemini-2.0-flash", model)
}

func TestRegistryMissingDefaultUsesAnyBackend(t *testing.T) {
	reg := NewRegistry(NameGemini, &fakeBackend{name: NameGroq, model: "llama"})
	b, _, ok := reg.Resolve("")
	require.True(t, ok)
	assert.Equal(t, NameGroq, b.Name())
}

func TestRegistryEmpty(t *testing.T) {
	reg := NewRegistry(NameGemini)
	_, _, ok := reg.Resolve("anything")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Len())
}

func TestAdapterSuccess(t *testing.T) {
	backend := &fakeBackend{name: NameGemini, model: "gemini-2.0-flash"}
	adapter := NewAdapter(NewRegistry(NameGemini, backend), time.Second, nil)

	res := adapter.Generate(context.Background(), "", llm.Request{Message: "hi"})
	require.True(t, res.OK())
	assert.Equal(t, "ok from gemini", res.Text)
	assert.Equal(t, NameGemini, res.Provider)
	assert.Equal(t, "gemini-2.0-flash", backend.lastReq.Model)
}

func TestAdapterConvertsErrorsToFailures(t *testing.T) {
	backend := &fakeBackend{name: NameGroq, model: "llama", generate: func(context.Context, llm.Request) (string, error) {
		return "", llm.ErrRateLimited
	}}
	adapter := NewAdapter(NewRegistry(NameGroq, backend), time.Second, nil)

	res := adapter.Generate(context.Background(), "groq", llm.Request{Message: "hi"})
	require.False(t, res.OK())
	assert.Equal(t, llm.ClassRateLimited, res.Failure.Class)
	assert.Equal(t, 1, backend.calls, "adapter must not retry")
}

func TestAdapterRecoversPanics(t *testing.T) {
	backend := &fakeBackend{name: NameGemini, generate: func(context.Context, llm.Request) (string, error) {
		panic("boom")
	}}
	adapter := NewAdapter(NewRegistry(NameGemini, backend), time.Second, nil)

	res := adapter.Generate(context.Background(), "", llm.Request{Message: "hi"})
	require.False(t, res.OK())
	assert.Equal(t, llm.ClassUnavailable, res.Failure.Class)
}

func TestAdapterTimesOut(t *testing.T) {
	backend := &fakeBackend{name: NameGemini, generate: func(ctx context.Context, _ llm.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}}
	adapter := NewAdapter(NewRegistry(NameGemini, backend), 20*time.Millisecond, nil)

	res := adapter.Generate(context.Background(), "", llm.Request{Message: "hi"})
	require.False(t, res.OK())
	assert.Equal(t, llm.ClassTimeout, res.Failure.Class)
}

func TestAdapterEmptyTextIsMalformed(t *testing.T) {
	backend := &fakeBackend{name: NameGemini, generate: func(context.Context, llm.Request) (string, error) {
		return "   ", nil
	}}
	adapter := NewAdapter(NewRegistry(NameGemini, backend), time.Second, nil)

	res := adapter.Generate(context.Background(), "", llm.Request{Message: "hi"})
	require.False(t, res.OK())
	assert.Equal(t, llm.ClassMalformed, res.Failure.Class)
}

func TestAdapterNoBackends(t *testing.T) {
	adapter := NewAdapter(NewRegistry(NameGemini), time.Second, nil)

	res := adapter.Generate(context.Background(), "", llm.Request{Message: "hi"})
	require.False(t, res.OK())
	assert.Equal(t, llm.ClassConfiguration, res.Failure.Class)
	assert.True(t, errors.Is(res.Failure, llm.ErrNotConfigured))
}
