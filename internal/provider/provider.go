// Package provider selects and invokes model backends.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/dynamo-gateway/internal/llm"
	"github.com/ashureev/dynamo-gateway/internal/metrics"
)

// Backend is one concrete model provider.
type Backend interface {
	Name() string
	DefaultModel() string
	Generate(ctx context.Context, req llm.Request) (string, error)
}

// family maps a substring of a requested model id onto a backend name.
type family struct {
	token   string
	backend string
}

var defaultFamilies = []family{
	{token: "gemini", backend: NameGemini},
	{token: "llama", backend: NameGroq},
	{token: "mixtral", backend: NameGroq},
	{token: "gemma", backend: NameGroq},
	{token: "qwen", backend: NameGroq},
	{token: "deepseek", backend: NameGroq},
	{token: "groq", backend: NameGroq},
}

// Registry resolves model identifiers to configured backends.
type Registry struct {
	mu          sync.RWMutex
	backends    map[string]Backend
	families    []family
	defaultName string
}

// NewRegistry creates a registry whose fallback is the backend named defaultName.
func NewRegistry(defaultName string, backends ...Backend) *Registry {
	r := &Registry{
		backends:    make(map[string]Backend),
		families:    defaultFamilies,
		defaultName: defaultName,
	}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds a backend. Nil backends are ignored so unconfigured providers
// can be passed through unconditionally.
func (r *Registry) Register(b Backend) {
	if b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backends[b.Name()] = b
}

// Names returns the registered backend names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of configured backends.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.backends)
}

// Resolve picks the backend and model for a requested identifier. Exact backend
// names win, then model-family tokens, then the default backend. ok is false
// only when no backend at all is configured.
func (r *Registry) Resolve(modelID string) (b Backend, model string, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id := strings.ToLower(strings.TrimSpace(modelID))
	if id != "" {
		if b, exists := r.backends[id]; exists {
			return b, b.DefaultModel(), true
		}
		for _, f := range r.families {
			if !strings.Contains(id, f.token) {
				continue
			}
			if b, exists := r.backends[f.backend]; exists {
				return b, strings.TrimSpace(modelID), true
			}
		}
	}

	if b, exists := r.backends[r.defaultName]; exists {
		return b, b.DefaultModel(), true
	}

	// The configured default is missing; any backend beats none.
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil, "", false
	}
	sort.Strings(names)
	b = r.backends[names[0]]
	return b, b.DefaultModel(), true
}

// Adapter is the single entry point for model calls. It never returns an error
// or panics: every outcome is an llm.Result.
type Adapter struct {
	registry *Registry
	timeout  time.Duration
	logger   *slog.Logger
}

// NewAdapter creates an Adapter bounding each call by timeout.
func NewAdapter(registry *Registry, timeout time.Duration, logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Adapter{registry: registry, timeout: timeout, logger: logger}
}

// Generate performs exactly one attempt against the backend selected by providerID.
func (a *Adapter) Generate(ctx context.Context, providerID string, req llm.Request) (res llm.Result) {
	backend, model, ok := a.registry.Resolve(providerID)
	if !ok {
		metrics.ProviderFailures.WithLabelValues("none", string(llm.ClassConfiguration)).Inc()
		return llm.Fail("", "", llm.Classify(llm.ErrNotConfigured))
	}
	if req.Model != "" {
		model = req.Model
	}
	req.Model = model
	name := backend.Name()

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("Provider panicked", "provider", name, "model", model, "panic", p)
			res = llm.Fail(name, model, &llm.Failure{
				Class:  llm.ClassUnavailable,
				Reason: fmt.Sprintf("provider %s panicked", name),
			})
		}
		metrics.ProviderLatency.WithLabelValues(name).Observe(time.Since(start).Seconds())
		if res.Failure != nil {
			metrics.ProviderFailures.WithLabelValues(name, string(res.Failure.Class)).Inc()
		}
	}()

	text, err := backend.Generate(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = llm.ErrEmptyResponse
	}
	if err != nil {
		failure := llm.Classify(err)
		level := slog.LevelError
		if failure.Class.Transient() {
			level = slog.LevelWarn
		}
		a.logger.Log(ctx, level, "Provider call failed",
			"provider", name,
			"model", model,
			"class", failure.Class,
			"error", err,
		)
		return llm.Fail(name, model, failure)
	}
	return llm.Success(name, model, text)
}
