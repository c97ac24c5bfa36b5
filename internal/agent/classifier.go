package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/llm/prompts"
	"github.com/pavelanni/mentor/internal/model"
)

// Classification is the parsed result of intent classification.
type Classification struct {
	Intent     model.Intent
	Topic      string
	Difficulty model.Difficulty
}

// FallbackClassification is used when the reply cannot be used.
func FallbackClassification(query string) Classification {
	return Classification{
		Intent:     model.IntentConcept,
		Topic:      query,
		Difficulty: model.DifficultyMedium,
	}
}

// classificationOutput is the raw LLM response.
type classificationOutput struct {
	Intent     string `json:"intent"`
	Topic      string `json:"topic"`
	Difficulty string `json:"difficulty"`
}

// Classifier extracts intent, topic and difficulty from a learner query.
type Classifier struct {
	provider llm.Provider
	cfg      StageConfig
}

// NewClassifier creates a Classifier.
func NewClassifier(provider llm.Provider, cfg StageConfig) *Classifier {
	return &Classifier{provider: provider, cfg: cfg}
}

// Classify never fails: any error yields FallbackClassification, with the
// reason recorded in the Outcome.
func (c *Classifier) Classify(ctx context.Context, query string) (Classification, Outcome) {
	ctx = llm.WithPurpose(ctx, "classify")

	system, err := prompts.BuildClassify()
	if err != nil {
		slog.Error("build classify prompt", "error", err)
		return FallbackClassification(query), Outcome{Source: SourceFallbackUpstream, Err: err}
	}

	resp, err := c.provider.Generate(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: query}},
		Schema:      ClassificationSchema,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
	})
	if err == nil {
		var raw classificationOutput
		if err = decode(resp, &raw); err == nil {
			out := Classification{
				Intent:     model.ParseIntent(raw.Intent),
				Topic:      strings.TrimSpace(raw.Topic),
				Difficulty: model.ParseDifficulty(raw.Difficulty),
			}
			if out.Topic == "" {
				out.Topic = query
			}
			slog.Info("classified query", "intent", out.Intent, "topic", out.Topic, "difficulty", out.Difficulty)
			return out, modelOutcome
		}
	}

	o := failure(err)
	logFallback("classify", o)
	return FallbackClassification(query), o
}

func logFallback(stage string, o Outcome) {
	if o.Upstream() {
		slog.Error("stage upstream failure, using fallback", "stage", stage, "error", o.Err)
		return
	}
	slog.Warn("could not parse stage reply, using fallback", "stage", stage, "error", o.Err)
}
