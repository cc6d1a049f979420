// Package orchestrator turns one chat request into one response envelope.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/ashureev/dynamo-gateway/internal/contextblock"
	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/ashureev/dynamo-gateway/internal/envelope"
	"github.com/ashureev/dynamo-gateway/internal/history"
	"github.com/ashureev/dynamo-gateway/internal/imagegen"
	"github.com/ashureev/dynamo-gateway/internal/intent"
	"github.com/ashureev/dynamo-gateway/internal/llm"
	"github.com/ashureev/dynamo-gateway/internal/metrics"
	"github.com/ashureev/dynamo-gateway/internal/prompt"
	"github.com/ashureev/dynamo-gateway/internal/quota"
)

// UsageUnavailable is returned as text when the quota store cannot be reached.
const UsageUnavailable = "Dynamo AI cannot verify your usage right now. Please try again shortly."

// ChatRequest is the inbound chat contract.
type ChatRequest struct {
	Message   string `json:"message"`
	History   []any  `json:"history"`
	UseSearch bool   `json:"use_search"`
	DeepDive  bool   `json:"deep_dive"`
	FactCheck bool   `json:"fact_check"`
	Model     string `json:"model"`
	// DocumentContext is pre-extracted document text; nil or empty means none.
	DocumentContext *string `json:"pdf_context"`
}

func (r ChatRequest) document() string {
	if r.DocumentContext == nil {
		return ""
	}
	return *r.DocumentContext
}

// ValidationError rejects a malformed request before any side effect.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Generator is the provider adapter contract. provider.Adapter satisfies it.
type Generator interface {
	Generate(ctx context.Context, providerID string, req llm.Request) llm.Result
}

// ContextAssembler resolves the context block. contextblock.Assembler satisfies it.
type ContextAssembler interface {
	Assemble(ctx context.Context, in contextblock.Input) contextblock.Block
}

// Admitter is the quota gate. quota.Enforcer satisfies it.
type Admitter interface {
	Admit(ctx context.Context, userID string, flags quota.Flags) (quota.Decision, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Provider  Generator
	Assembler ContextAssembler
	Quota     Admitter
	// Images may be nil, in which case image requests get the busy text.
	Images  imagegen.Generator
	History *history.Builder
	Logger  *slog.Logger
}

// Options bounds request sizes and the image call.
type Options struct {
	ImageTimeout      time.Duration
	MaxMessageChars   int
	MaxHistoryEntries int
	MaxDocumentChars  int
}

func (o Options) withDefaults() Options {
	if o.ImageTimeout <= 0 {
		o.ImageTimeout = 30 * time.Second
	}
	if o.MaxMessageChars <= 0 {
		o.MaxMessageChars = 32000
	}
	if o.MaxHistoryEntries <= 0 {
		o.MaxHistoryEntries = 200
	}
	if o.MaxDocumentChars <= 0 {
		o.MaxDocumentChars = 500000
	}
	return o
}

// Orchestrator runs the chat pipeline.
type Orchestrator struct {
	deps Deps
	opts Options
}

// New creates an Orchestrator.
func New(deps Deps, opts Options) *Orchestrator {
	if deps.History == nil {
		deps.History = history.NewBuilder(history.DefaultWindow)
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Orchestrator{deps: deps, opts: opts.withDefaults()}
}

// Handle processes one request. The only errors returned are *ValidationError,
// *quota.ExceededError and the context error when the caller went away; every
// other failure is folded into the envelope.
func (o *Orchestrator) Handle(ctx context.Context, userID string, req ChatRequest) (envelope.Envelope, error) {
	start := time.Now()
	logger := o.deps.Logger.With("user_id", userID)

	if err := o.validate(req); err != nil {
		return envelope.Envelope{}, err
	}

	in := intent.Classify(req.Message)
	defer func() {
		metrics.RequestDuration.WithLabelValues(string(in.Kind)).Observe(time.Since(start).Seconds())
	}()

	if in.Kind == intent.KindIdentity {
		return o.done(in, envelope.Text(prompt.Identity)), nil
	}

	decision, err := o.deps.Quota.Admit(ctx, userID, quota.Flags{DeepDive: req.DeepDive, UseSearch: req.UseSearch})
	if err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			logger.Info("Quota exceeded", "used", exceeded.Used, "limit", exceeded.Limit)
			return envelope.Envelope{}, err
		}
		logger.Error("Quota check failed", "error", err)
		return o.done(in, envelope.Text(UsageUnavailable)), nil
	}
	if decision.Downgraded {
		logger.Debug("Modes disabled by plan", "plan", decision.Usage.Plan)
	}

	if in.Kind == intent.KindImageGeneration {
		return o.done(in, o.image(ctx, logger, in.ImagePrompt)), nil
	}

	var (
		block      contextblock.Block
		transcript []domain.ChatTurn
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		block = o.deps.Assembler.Assemble(gctx, contextblock.Input{
			Query:           req.Message,
			DocumentContext: req.document(),
			UseSearch:       decision.Flags.UseSearch,
			DeepDive:        decision.Flags.DeepDive,
		})
		return nil
	})
	g.Go(func() error {
		transcript = o.deps.History.Build(req.History)
		return nil
	})
	_ = g.Wait()

	flags := prompt.Flags{DeepDive: decision.Flags.DeepDive, FactCheck: req.FactCheck}
	base := llm.Request{
		Instruction: prompt.Augment(prompt.Base(), flags).String(),
		Context:     block.Format(),
		Transcript:  transcript,
		Message:     req.Message,
	}

	temps := prompt.Fanout(flags)
	results := o.generate(ctx, req.Model, base, temps)
	if err := ctx.Err(); err != nil {
		return envelope.Envelope{}, err
	}

	if !flags.DeepDive {
		return o.done(in, envelope.FromResult(results[0])), nil
	}

	perspectives := make([]string, 0, len(results))
	for _, res := range results {
		if res.OK() {
			perspectives = append(perspectives, res.Text)
		}
	}
	if len(perspectives) == 0 {
		logger.Warn("All deep dive generations failed")
		return o.done(in, envelope.Text(envelope.ProviderApology)), nil
	}
	if len(perspectives) < len(results) {
		logger.Warn("Deep dive partially degraded", "succeeded", len(perspectives), "requested", len(results))
	}
	return o.done(in, envelope.DeepDive(perspectives)), nil
}

// generate issues one provider call per temperature concurrently and returns
// the results in temperature order.
func (o *Orchestrator) generate(ctx context.Context, providerID string, base llm.Request, temps []*float32) []llm.Result {
	results := make([]llm.Result, len(temps))
	if len(temps) == 1 {
		req := base
		req.Temperature = temps[0]
		results[0] = o.deps.Provider.Generate(ctx, providerID, req)
		return results
	}

	var g errgroup.Group
	for i, temp := range temps {
		g.Go(func() error {
			req := base
			req.Temperature = temp
			results[i] = o.deps.Provider.Generate(ctx, providerID, req)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (o *Orchestrator) image(ctx context.Context, logger *slog.Logger, imagePrompt string) envelope.Envelope {
	if o.deps.Images == nil {
		return envelope.Text(envelope.ImageBusy)
	}
	ctx, cancel := context.WithTimeout(ctx, o.opts.ImageTimeout)
	defer cancel()

	ref, err := o.deps.Images.Generate(ctx, imagePrompt)
	if err != nil {
		logger.Warn("Image generation failed", "error", err)
		return envelope.Text(envelope.ImageBusy)
	}
	return envelope.Image(ref)
}

func (o *Orchestrator) validate(req ChatRequest) error {
	if strings.TrimSpace(req.Message) == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if utf8.RuneCountInString(req.Message) > o.opts.MaxMessageChars {
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("exceeds %d characters", o.opts.MaxMessageChars)}
	}
	if len(req.History) > o.opts.MaxHistoryEntries {
		return &ValidationError{Field: "history", Reason: fmt.Sprintf("exceeds %d entries", o.opts.MaxHistoryEntries)}
	}
	if utf8.RuneCountInString(req.document()) > o.opts.MaxDocumentChars {
		return &ValidationError{Field: "pdf_context", Reason: fmt.Sprintf("exceeds %d characters", o.opts.MaxDocumentChars)}
	}
	return nil
}

func (o *Orchestrator) done(in intent.Intent, env envelope.Envelope) envelope.Envelope {
	metrics.RequestCount.WithLabelValues(string(in.Kind), string(env.Type)).Inc()
	return env
}
