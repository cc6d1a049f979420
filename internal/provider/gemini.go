package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/ashureev/dynamo-gateway/internal/llm"
	"google.golang.org/genai"
)

// NameGemini is the registry name of the Gemini backend.
const NameGemini = "gemini"

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini backend.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Gemini generates text through Google's Gemini API.
type Gemini struct {
	client *genai.Client
	model  string
}

// NewGemini creates a Gemini backend. It returns llm.ErrNotConfigured when no API key is set.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrNotConfigured)
	}

	model := cfg.Model
	if model == "" {
		model = defaultGeminiModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      cfg.APIKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  cfg.HTTPClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: cfg.BaseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &Gemini{client: client, model: model}, nil
}

// Name implements Backend.
func (g *Gemini) Name() string { return NameGemini }

// DefaultModel implements Backend.
func (g *Gemini) DefaultModel() string { return g.model }

// Generate implements Backend. The context block rides along in the system
// instruction; the transcript becomes role-tagged contents.
func (g *Gemini) Generate(ctx context.Context, req llm.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	system := req.Instruction
	if req.Context != "" {
		system += "\n\n" + req.Context
	}

	contents := make([]*genai.Content, 0, len(req.Transcript)+1)
	for _, turn := range req.Transcript {
		role := genai.Role(genai.RoleUser)
		if turn.Role == domain.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Message, genai.RoleUser))

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		Temperature:       req.Temperature,
	}

	resp, err := g.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", mapGeminiError(err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}
	return text, nil
}

func mapGeminiError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	code := geminiStatus(err)
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("gemini: %w: %v", llm.ErrUnauthorized, err)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("gemini: %w: %v", llm.ErrRateLimited, err)
	case code >= 500:
		return fmt.Errorf("gemini: %w: %v", llm.ErrUnavailable, err)
	case code == http.StatusBadRequest && strings.Contains(strings.ToLower(err.Error()), "api key"):
		return fmt.Errorf("gemini: %w: %v", llm.ErrUnauthorized, err)
	default:
		return fmt.Errorf("gemini: %w", err)
	}
}

// geminiStatus extracts the HTTP status carried by a genai error.
func geminiStatus(err error) int {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code
	}
	msg := err.Error()
	for _, code := range []int{401, 403, 429, 500, 502, 503, 504} {
		if strings.Contains(msg, fmt.Sprintf("Error %d,", code)) {
			return code
		}
	}
	if strings.Contains(msg, "RESOURCE_EXHAUSTED") {
		return http.StatusTooManyRequests
	}
	return 0
}
