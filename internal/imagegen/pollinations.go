// Package imagegen fetches generated images and returns them as data URIs.
package imagegen

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	defaultBaseURL   = "https://image.pollinations.ai"
	defaultTimeout   = 30 * time.Second
	defaultDimension = 1024
	maxImageBytes    = 16 << 20
)

// ErrEmptyPrompt is returned for a blank prompt.
var ErrEmptyPrompt = errors.New("image prompt is empty")

// Generator turns a text prompt into an image reference (URL or data URI).
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Config configures the Pollinations client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	Width      int
	Height     int
	HTTPClient *http.Client
	// Seed returns the per-request seed. Defaults to a random UUID.
	Seed func() string
}

// Pollinations renders prompts through the Pollinations image endpoint.
type Pollinations struct {
	baseURL string
	timeout time.Duration
	width   int
	height  int
	client  *http.Client
	seed    func() string
}

// NewPollinations creates a Pollinations client with defaults applied.
func NewPollinations(cfg Config) *Pollinations {
	p := &Pollinations{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		width:   cfg.Width,
		height:  cfg.Height,
		client:  cfg.HTTPClient,
		seed:    cfg.Seed,
	}
	if p.baseURL == "" {
		p.baseURL = defaultBaseURL
	}
	if p.timeout <= 0 {
		p.timeout = defaultTimeout
	}
	if p.width <= 0 {
		p.width = defaultDimension
	}
	if p.height <= 0 {
		p.height = defaultDimension
	}
	if p.client == nil {
		p.client = &http.Client{}
	}
	if p.seed == nil {
		p.seed = func() string { return uuid.NewString() }
	}
	return p
}

// URL returns the image URL for prompt.
func (p *Pollinations) URL(prompt string) string {
	q := url.Values{}
	q.Set("nologo", "true")
	q.Set("width", fmt.Sprint(p.width))
	q.Set("height", fmt.Sprint(p.height))
	q.Set("seed", p.seed())
	return p.baseURL + "/prompt/" + url.PathEscape(prompt) + "?" + q.Encode()
}

// Generate implements Generator. The image is downloaded within the configured
// timeout and returned inline as a base64 data URI.
func (p *Pollinations) Generate(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL(prompt), nil)
	if err != nil {
		return "", err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("image endpoint returned %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if len(data) == 0 {
		return "", errors.New("image endpoint returned no data")
	}

	mime := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if !strings.HasPrefix(mime, "image/") {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}
