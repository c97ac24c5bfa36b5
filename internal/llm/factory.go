package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// NewProvider builds the configured Provider wrapped as
// caller, timeout, retry, logging, base.
func NewProvider(ctx context.Context, cfg Config, logger *slog.Logger) (Provider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var base Provider
	var err error

	switch cfg.Provider {
	case "openai":
		base, err = NewOpenAIProvider(cfg.OpenAI)
	case "anthropic":
		base, err = NewAnthropicProvider(cfg.Anthropic)
	case "gemini":
		base, err = NewGeminiProvider(ctx, cfg.Gemini)
	case "mock":
		return NewMockProvider(), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("initializing %s provider: %w", cfg.Provider, err)
	}

	return Decorate(base, cfg, logger), nil
}

// Decorate applies the timeout, retry and logging layers configured in cfg
// to base.
func Decorate(base Provider, cfg Config, logger *slog.Logger) Provider {
	return WithTimeout(WithRetry(WithLogging(base, logger), cfg.Retry), cfg.Timeout)
}
