package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/llm/prompts"
	"github.com/pavelanni/mentor/internal/model"
)

var questionCountRegex = regexp.MustCompile(`(?i)(\d+)\s*-\s*question`)

// QuestionCount extracts N from "<N>-question" in query, clamped to
// [1, limit]. Without a match it returns def.
func QuestionCount(query string, def, limit int) int {
	m := questionCountRegex.FindStringSubmatch(query)
	if m == nil {
		return def
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		// Too many digits to fit an int.
		return limit
	}
	return min(max(n, 1), limit)
}

// FallbackQuiz is the single generic question used when the reply cannot be used.
func FallbackQuiz(topic string) []model.QuestionRecord {
	return []model.QuestionRecord{{
		Question:      fmt.Sprintf("What are the key concepts in %s?", topic),
		Type:          model.QuestionShortAnswer,
		Options:       []string{},
		CorrectAnswer: "Based on the study material...",
		Explanation:   "This tests overall understanding.",
	}}
}

// quizOutput is the raw LLM response.
type quizOutput struct {
	Questions []model.QuestionRecord `json:"questions"`
}

// QuizGenerator writes quiz questions for a topic.
type QuizGenerator struct {
	provider llm.Provider
	cfg      StageConfig
}

// NewQuizGenerator creates a QuizGenerator.
func NewQuizGenerator(provider llm.Provider, cfg StageConfig) *QuizGenerator {
	return &QuizGenerator{provider: provider, cfg: cfg}
}

// Generate asks for numQuestions questions. The returned count is not
// enforced; a short quiz is only logged.
func (g *QuizGenerator) Generate(ctx context.Context, topic, material string, difficulty model.Difficulty, numQuestions int) ([]model.QuestionRecord, Outcome) {
	ctx = llm.WithPurpose(ctx, "quiz")
	if numQuestions < 1 {
		numQuestions = 1
	}

	system, err := prompts.BuildQuiz(topic, material, difficulty, numQuestions)
	if err != nil {
		slog.Error("build quiz prompt", "error", err)
		return FallbackQuiz(topic), Outcome{Source: SourceFallbackUpstream, Err: err}
	}

	resp, err := g.provider.Generate(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompts.QuizTrigger}},
		Schema:      QuizSchema,
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})
	if err == nil {
		var raw quizOutput
		if err = decode(resp, &raw); err == nil {
			quiz := normalizeQuiz(raw.Questions)
			if len(quiz) > 0 {
				if len(quiz) < numQuestions {
					slog.Warn("quiz shorter than requested", "requested", numQuestions, "got", len(quiz))
				}
				slog.Info("generated quiz", "topic", topic, "difficulty", difficulty, "questions", len(quiz))
				return quiz, modelOutcome
			}
			err = &llm.ErrInvalidResponse{Content: resp.Content, Err: errors.New("no usable questions")}
		}
	}

	o := failure(err)
	logFallback("quiz", o)
	return FallbackQuiz(topic), o
}

func normalizeQuiz(in []model.QuestionRecord) []model.QuestionRecord {
	out := make([]model.QuestionRecord, 0, len(in))
	for _, q := range in {
		if strings.TrimSpace(q.Question) == "" {
			continue
		}
		q = q.Normalize()
		if q.Type == model.QuestionMultipleChoice && !hasOption(q.Options, q.CorrectAnswer) {
			// Evaluation compares against the options byte for byte.
			slog.Warn("correct answer is not one of the options", "question", q.Question)
		}
		out = append(out, q)
	}
	return out
}

func hasOption(options []string, answer string) bool {
	for _, o := range options {
		if strings.TrimSpace(o) == strings.TrimSpace(answer) {
			return true
		}
	}
	return false
}
