package llm

import (
	"fmt"
	"time"
)

// Config holds all generation and embedding backend configuration.
type Config struct {
	// Provider selects the generation backend.
	// Values: "openai", "anthropic", "gemini", "mock"
	Provider string

	OpenAI    OpenAIConfig
	Anthropic AnthropicConfig
	Gemini    GeminiConfig
	Embedding EmbeddingConfig
	Retry     RetryConfig

	// Timeout bounds a single generation call including retries.
	Timeout time.Duration
}

// OpenAIConfig configures any OpenAI-compatible endpoint (OpenAI, Ollama, OpenRouter).
type OpenAIConfig struct {
	APIKey  string
	Model   string
	BaseURL string

	// ResponseFormat is "json_object" (default), "json_schema" or "none".
	// Local servers commonly support only json_object.
	ResponseFormat string
}

// AnthropicConfig holds Anthropic-specific configuration.
type AnthropicConfig struct {
	APIKey string
	Model  string
}

// GeminiConfig holds Gemini-specific configuration.
type GeminiConfig struct {
	APIKey string
	Model  string
}

// EmbeddingConfig configures the OpenAI-compatible embeddings endpoint.
// Empty BaseURL and APIKey inherit the OpenAI settings.
type EmbeddingConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// RetryConfig configures retry behavior for transient failures.
type RetryConfig struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
	Multiplier  float64
}

// DefaultConfig points at a local Ollama server.
func DefaultConfig() Config {
	return Config{
		Provider: "openai",
		OpenAI: OpenAIConfig{
			APIKey:         "ollama",
			Model:          "llama3.2:3b",
			BaseURL:        "http://localhost:11434/v1",
			ResponseFormat: "json_object",
		},
		Anthropic: AnthropicConfig{
			Model: "claude-haiku",
		},
		Gemini: GeminiConfig{
			Model: "gemini-flash",
		},
		Embedding: EmbeddingConfig{
			Model: "all-minilm",
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			InitialWait: 1 * time.Second,
			MaxWait:     10 * time.Second,
			Multiplier:  2.0,
		},
		Timeout: 120 * time.Second,
	}
}

// Validate checks that the selected provider has what it needs.
func (c Config) Validate() error {
	switch c.Provider {
	case "openai":
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("an API key is required for the openai provider (use any value for local servers)")
		}
		switch c.OpenAI.ResponseFormat {
		case "", "json_object", "json_schema", "none":
		default:
			return fmt.Errorf("unknown response format: %q", c.OpenAI.ResponseFormat)
		}
	case "anthropic":
		if c.Anthropic.APIKey == "" {
			return fmt.Errorf("MENTOR_ANTHROPIC_KEY is required for the anthropic provider")
		}
	case "gemini":
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("MENTOR_GEMINI_KEY is required for the gemini provider")
		}
	case "mock":
		// No API key needed.
	default:
		return fmt.Errorf("unknown LLM provider: %q", c.Provider)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	return nil
}

// embeddingEndpoint resolves the embedding endpoint, inheriting OpenAI settings.
func (c Config) embeddingEndpoint() (baseURL, apiKey string) {
	baseURL, apiKey = c.Embedding.BaseURL, c.Embedding.APIKey
	if baseURL == "" {
		baseURL = c.OpenAI.BaseURL
	}
	if apiKey == "" {
		apiKey = c.OpenAI.APIKey
	}
	return baseURL, apiKey
}

// ModelName returns the model of the selected provider.
func (c Config) ModelName() string {
	switch c.Provider {
	case "anthropic":
		return resolveModel(c.Anthropic.Model, anthropicModels)
	case "gemini":
		return resolveModel(c.Gemini.Model, geminiModels)
	case "mock":
		return "mock"
	default:
		return c.OpenAI.Model
	}
}
