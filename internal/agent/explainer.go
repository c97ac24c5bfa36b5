package agent

import (
	"context"
	"log/slog"
	"strings"

	"github.com/pavelanni/mentor/internal/i18n"
	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/llm/prompts"
	"github.com/pavelanni/mentor/internal/model"
)

// QuizModePlaceholder is the explanation for quiz requests. No model call is made.
const QuizModePlaceholder = "Quiz mode activated. Proceeding to quiz generation..."

// Explainer writes the tutoring explanation for a query.
type Explainer struct {
	provider llm.Provider
	cfg      StageConfig
}

// NewExplainer creates an Explainer.
func NewExplainer(provider llm.Provider, cfg StageConfig) *Explainer {
	return &Explainer{provider: provider, cfg: cfg}
}

// Explain returns free text from the model, passed through verbatim.
// material is the retrieved context.
func (e *Explainer) Explain(ctx context.Context, query, material string, intent model.Intent, difficulty model.Difficulty) (string, Outcome) {
	if intent == model.IntentQuiz {
		slog.Info("skipping explanation for quiz intent")
		return QuizModePlaceholder, staticOutcome
	}

	ctx = llm.WithPurpose(ctx, "explain")

	system, err := prompts.BuildExplain(intent, difficulty, material)
	if err != nil {
		slog.Error("build explain prompt", "error", err)
		return i18n.T(ctx, "ExplanationUnavailable"), Outcome{Source: SourceFallbackUpstream, Err: err}
	}

	resp, err := e.provider.Generate(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: query}},
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err != nil {
		o := failure(err)
		logFallback("explain", o)
		return i18n.T(ctx, "ExplanationUnavailable"), o
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		o := Outcome{Source: SourceFallbackMalformed, Err: errEmptyReply}
		logFallback("explain", o)
		return i18n.T(ctx, "ExplanationUnavailable"), o
	}

	slog.Info("generated explanation", "intent", intent, "difficulty", difficulty, "chars", len(text))
	return text, modelOutcome
}
