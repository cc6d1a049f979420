package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/ashureev/dynamo-gateway/internal/domain"
	"github.com/ashureev/dynamo-gateway/internal/llm"
)

// NameGroq is the registry name of the Groq backend.
const NameGroq = "groq"

const (
	defaultGroqBaseURL = "https://api.groq.com/openai/v1/"
	defaultGroqModel   = "llama-3.3-70b-versatile"
)

// GroqConfig configures the Groq backend.
type GroqConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// Groq talks to Groq's OpenAI-compatible chat-completions endpoint.
type Groq struct {
	client openai.Client
	model  string
}

// NewGroq creates a Groq backend. It returns llm.ErrNotConfigured when no API key is set.
func NewGroq(cfg GroqConfig) (*Groq, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("groq: %w", llm.ErrNotConfigured)
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultGroqBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 120 * time.Second}
	}

	// The adapter owns the attempt budget, so the SDK must not retry on its own.
	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
	}

	model := cfg.Model
	if model == "" {
		model = defaultGroqModel
	}
	return &Groq{client: openai.NewClient(opts...), model: model}, nil
}

// Name implements Backend.
func (g *Groq) Name() string { return NameGroq }

// DefaultModel implements Backend.
func (g *Groq) DefaultModel() string { return g.model }

// Generate implements Backend.
func (g *Groq) Generate(ctx context.Context, req llm.Request) (string, error) {
	model := req.Model
	if model == "" {
		model = g.model
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: toGroqMessages(req),
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(float64(*req.Temperature))
	}

	resp, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", mapGroqError(err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("groq: %w", llm.ErrEmptyResponse)
	}
	content := resp.Choices[0].Message.Content
	if strings.TrimSpace(content) == "" {
		return "", fmt.Errorf("groq: %w", llm.ErrEmptyResponse)
	}
	return content, nil
}

// mapGroqError folds SDK errors onto the llm sentinels. Anything that is not
// an API status, a context error, or a transport error failed while decoding.
func mapGroqError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return fmt.Errorf("groq: %w", llm.ErrUnauthorized)
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return fmt.Errorf("groq: %w", llm.ErrRateLimited)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("groq: %w", llm.ErrUnavailable)
		default:
			return fmt.Errorf("groq error: status %d: %w", apiErr.StatusCode, err)
		}
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return err
	}
	return fmt.Errorf("groq: %w: %v", llm.ErrMalformedResponse, err)
}

func toGroqMessages(req llm.Request) []openai.ChatCompletionMessageParamUnion {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Transcript)+3)
	messages = append(messages, openai.SystemMessage(req.Instruction))
	if req.Context != "" {
		messages = append(messages, openai.SystemMessage("Context: "+req.Context))
	}
	for _, turn := range req.Transcript {
		if turn.Role == domain.RoleModel {
			messages = append(messages, openai.AssistantMessage(turn.Content))
			continue
		}
		messages = append(messages, openai.UserMessage(turn.Content))
	}
	messages = append(messages, openai.UserMessage(req.Message))
	return messages
}
