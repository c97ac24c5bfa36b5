package agent

// StageConfig holds generation settings for a single stage.
type StageConfig struct {
	MaxTokens   int
	Temperature float64
}

// Config holds configuration for every stage.
type Config struct {
	Classify StageConfig
	Explain  StageConfig
	Quiz     StageConfig
	Evaluate StageConfig

	// TopK is how many passages the retriever asks for.
	TopK int

	// DefaultQuestions is used when the query does not say "<N>-question".
	DefaultQuestions int

	// MaxQuestions caps a count parsed from the query.
	MaxQuestions int
}

// DefaultConfig returns the stock per-stage settings.
func DefaultConfig() Config {
	return Config{
		Classify:         StageConfig{MaxTokens: 256, Temperature: 0.0},
		Explain:          StageConfig{MaxTokens: 1500, Temperature: 0.7},
		Quiz:             StageConfig{MaxTokens: 2048, Temperature: 0.7},
		Evaluate:         StageConfig{MaxTokens: 512, Temperature: 0.3},
		TopK:             3,
		DefaultQuestions: 5,
		MaxQuestions:     20,
	}
}

// WithDefaults fills unset counts from DefaultConfig. Stage settings,
// including a zero temperature, are kept as given.
func (c Config) WithDefaults() Config {
	d := DefaultConfig()
	if c.TopK <= 0 {
		c.TopK = d.TopK
	}
	if c.DefaultQuestions <= 0 {
		c.DefaultQuestions = d.DefaultQuestions
	}
	if c.MaxQuestions <= 0 {
		c.MaxQuestions = d.MaxQuestions
	}
	if c.DefaultQuestions > c.MaxQuestions {
		c.DefaultQuestions = c.MaxQuestions
	}
	return c
}
