// Package llm defines the call contract between the orchestrator and model backends.
package llm

import "github.com/ashureev/dynamo-gateway/internal/domain"

// Request is everything a backend needs to produce one generation.
type Request struct {
	// Model is the backend-specific model identifier. Empty selects the backend default.
	Model string
	// Instruction is the composed system directive.
	Instruction string
	// Context is the formatted context block, or empty.
	Context string
	// Transcript is the windowed conversation history, oldest first.
	Transcript []domain.ChatTurn
	// Message is the final user turn.
	Message string
	// Temperature overrides the backend default when non-nil.
	Temperature *float32
}

// Result is the outcome of one provider call: exactly one of Text or Failure is set.
type Result struct {
	Text     string
	Failure  *Failure
	Provider string
	Model    string
}

// OK reports whether the call produced text.
func (r Result) OK() bool {
	return r.Failure == nil
}

// Success builds a successful Result.
func Success(provider, model, text string) Result {
	return Result{Text: text, Provider: provider, Model: model}
}

// Fail builds a failed Result.
func Fail(provider, model string, f *Failure) Result {
	return Result{Failure: f, Provider: provider, Model: model}
}
