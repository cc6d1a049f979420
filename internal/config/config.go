// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	GRPCPort    string
	FrontendURL string
	CORSOrigins []string
	LogLevel    string

	// TrustUserHeader accepts X-User-ID from an upstream auth proxy.
	TrustUserHeader bool
	// PlanAdminToken guards plan changes. Empty disables them.
	PlanAdminToken string

	Store    StoreConfig
	Provider ProviderConfig
	Search   SearchConfig
	Image    ImageConfig
	Limits   LimitsConfig
}

// StoreConfig selects and configures the user/quota store.
type StoreConfig struct {
	Backend       string
	DBPath        string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// ProviderConfig holds model provider credentials.
type ProviderConfig struct {
	GeminiAPIKey string
	GeminiModel  string
	GroqAPIKey   string
	GroqModel    string
	Default      string
	Timeout      time.Duration
}

// SearchConfig configures web search.
type SearchConfig struct {
	TavilyAPIKey string
	MaxResults   int
	Timeout      time.Duration
}

// ImageConfig configures image generation.
type ImageConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LimitsConfig bounds usage and request sizes.
type LimitsConfig struct {
	FreeDailyLimit      int
	HistoryWindow       int
	ContextBudgetChars  int
	RateLimitRequests   int
	RateLimitWindow     time.Duration
	MaxRequestBodyBytes int64
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		GRPCPort:    getEnv("GRPC_PORT", "9090"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		CORSOrigins: getEnvList("CORS_ORIGINS", []string{"*"}),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		TrustUserHeader: getEnvBool("TRUST_USER_HEADER", false),
		PlanAdminToken:  getEnv("PLAN_ADMIN_TOKEN", ""),
		Store: StoreConfig{
			Backend:       strings.ToLower(getEnv("STORE_BACKEND", StoreSQLite)),
			DBPath:        getEnv("DB_PATH", "./data/dynamo.db"),
			RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Provider: ProviderConfig{
			GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
			GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
			GroqAPIKey:   getEnv("GROQ_API_KEY", ""),
			GroqModel:    getEnv("GROQ_MODEL", "llama-3.3-70b-versatile"),
			Default:      strings.ToLower(getEnv("DEFAULT_PROVIDER", "gemini")),
			Timeout:      getEnvDuration("PROVIDER_TIMEOUT", 60*time.Second),
		},
		Search: SearchConfig{
			TavilyAPIKey: getEnv("TAVILY_API_KEY", ""),
			MaxResults:   getEnvInt("SEARCH_MAX_RESULTS", 5),
			Timeout:      getEnvDuration("SEARCH_TIMEOUT", 10*time.Second),
		},
		Image: ImageConfig{
			BaseURL: getEnv("IMAGE_BASE_URL", "https://image.pollinations.ai"),
			Timeout: getEnvDuration("IMAGE_TIMEOUT", 30*time.Second),
		},
		Limits: LimitsConfig{
			FreeDailyLimit:      getEnvInt("FREE_DAILY_LIMIT", 10),
			HistoryWindow:       getEnvInt("HISTORY_WINDOW", 5),
			ContextBudgetChars:  getEnvInt("CONTEXT_BUDGET_CHARS", 40000),
			RateLimitRequests:   getEnvInt("RATE_LIMIT_REQUESTS", 20),
			RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
			MaxRequestBodyBytes: int64(getEnvInt("MAX_REQUEST_BODY_BYTES", 2<<20)),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.Store.Backend {
	case StoreSQLite:
		if c.Store.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case StoreRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	default:
		return fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreSQLite, StoreRedis, c.Store.Backend)
	}
	if c.Provider.Default != "gemini" && c.Provider.Default != "groq" {
		return fmt.Errorf("DEFAULT_PROVIDER must be gemini or groq, got %q", c.Provider.Default)
	}
	if c.Provider.Timeout <= 0 || c.Search.Timeout <= 0 || c.Image.Timeout <= 0 {
		return fmt.Errorf("PROVIDER_TIMEOUT, SEARCH_TIMEOUT and IMAGE_TIMEOUT must be > 0")
	}
	if c.Search.MaxResults <= 0 {
		return fmt.Errorf("SEARCH_MAX_RESULTS must be > 0")
	}
	if c.Limits.FreeDailyLimit <= 0 {
		return fmt.Errorf("FREE_DAILY_LIMIT must be > 0")
	}
	if c.Limits.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if c.Limits.ContextBudgetChars <= 0 {
		return fmt.Errorf("CONTEXT_BUDGET_CHARS must be > 0")
	}
	if c.Limits.RateLimitRequests <= 0 || c.Limits.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.Limits.MaxRequestBodyBytes <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_BYTES must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(value) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
