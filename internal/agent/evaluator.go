package agent

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/pavelanni/mentor/internal/i18n"
	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/llm/prompts"
	"github.com/pavelanni/mentor/internal/model"
)

// FallbackEvaluation is the item used when a short-answer reply cannot be used.
func FallbackEvaluation() model.EvaluationItem {
	return model.EvaluationItem{
		Score:           50,
		IsCorrect:       false,
		Strengths:       []string{"Attempted the question"},
		Weaknesses:      []string{"Unable to fully evaluate"},
		Feedback:        "Please try again with more detail.",
		ImprovementTips: []string{"Review the material", "Practice more examples"},
	}
}

// evaluationOutput is the raw LLM response.
type evaluationOutput struct {
	Score           float64  `json:"score"`
	IsCorrect       bool     `json:"is_correct"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Feedback        string   `json:"feedback"`
	ImprovementTips []string `json:"improvement_tips"`
}

// Evaluator scores student answers.
type Evaluator struct {
	provider llm.Provider
	cfg      StageConfig
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(provider llm.Provider, cfg StageConfig) *Evaluator {
	return &Evaluator{provider: provider, cfg: cfg}
}

// EvaluateAnswer scores one answer. Multiple choice is compared locally;
// short answer is judged by the model. The path follows the declared type
// only. QuestionNumber is left to the caller.
func (e *Evaluator) EvaluateAnswer(ctx context.Context, q model.QuestionRecord, answer, material string) (model.EvaluationItem, Outcome) {
	if model.ParseQuestionType(string(q.Type)) == model.QuestionMultipleChoice {
		return ScoreMultipleChoice(ctx, q, answer), staticOutcome
	}
	return e.judge(ctx, q, answer, material)
}

// ScoreMultipleChoice compares answer with q.CorrectAnswer after trimming
// surrounding whitespace. No case folding, no partial credit.
func ScoreMultipleChoice(ctx context.Context, q model.QuestionRecord, answer string) model.EvaluationItem {
	data := map[string]any{
		"CorrectAnswer": strings.TrimSpace(q.CorrectAnswer),
		"Explanation":   q.Explanation,
	}

	if strings.TrimSpace(answer) == strings.TrimSpace(q.CorrectAnswer) {
		return model.EvaluationItem{
			Score:           100,
			IsCorrect:       true,
			Strengths:       []string{i18n.T(ctx, "MCQStrengthCorrect")},
			Weaknesses:      []string{},
			Feedback:        strings.TrimSpace(i18n.Td(ctx, "MCQCorrectFeedback", data)),
			ImprovementTips: []string{},
		}
	}
	return model.EvaluationItem{
		Score:           0,
		IsCorrect:       false,
		Strengths:       []string{},
		Weaknesses:      []string{i18n.T(ctx, "MCQWeaknessIncorrect")},
		Feedback:        strings.TrimSpace(i18n.Td(ctx, "MCQIncorrectFeedback", data)),
		ImprovementTips: []string{i18n.Td(ctx, "MCQTipIncorrect", data)},
	}
}

func (e *Evaluator) judge(ctx context.Context, q model.QuestionRecord, answer, material string) (model.EvaluationItem, Outcome) {
	ctx = llm.WithPurpose(ctx, "evaluate")

	system, err := prompts.BuildEvaluate(q.Question, q.CorrectAnswer, answer, material)
	if err != nil {
		slog.Error("build evaluate prompt", "error", err)
		return FallbackEvaluation(), Outcome{Source: SourceFallbackUpstream, Err: err}
	}

	resp, err := e.provider.Generate(ctx, llm.Request{
		System:      system,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: prompts.EvaluateTrigger}},
		Schema:      EvaluationSchema,
		MaxTokens:   e.cfg.MaxTokens,
		Temperature: e.cfg.Temperature,
	})
	if err == nil {
		var raw evaluationOutput
		if err = decode(resp, &raw); err == nil {
			item := model.EvaluationItem{
				Score:           clampScore(raw.Score),
				IsCorrect:       raw.IsCorrect,
				Strengths:       nonNil(raw.Strengths),
				Weaknesses:      nonNil(raw.Weaknesses),
				Feedback:        raw.Feedback,
				ImprovementTips: nonNil(raw.ImprovementTips),
			}
			slog.Info("evaluated answer", "score", item.Score, "correct", item.IsCorrect)
			return item, modelOutcome
		}
	}

	o := failure(err)
	logFallback("evaluate", o)
	return FallbackEvaluation(), o
}

// ItemOutcome pairs an evaluated question number with how it was scored.
type ItemOutcome struct {
	QuestionNumber int
	Outcome        Outcome
}

// EvaluateQuiz scores every answer whose index is within quiz, in
// ascending index order. Other indices are skipped silently.
func (e *Evaluator) EvaluateQuiz(ctx context.Context, quiz []model.QuestionRecord, answers map[int]string, material string) (model.EvaluationSummary, []ItemOutcome) {
	keys := make([]int, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	summary := model.EvaluationSummary{Evaluations: []model.EvaluationItem{}}
	var outcomes []ItemOutcome
	var total int

	for _, idx := range keys {
		if idx < 0 || idx >= len(quiz) {
			slog.Debug("skipping answer without a question", "index", idx, "quiz_len", len(quiz))
			continue
		}

		item, o := e.EvaluateAnswer(ctx, quiz[idx], answers[idx], material)
		item.QuestionNumber = idx + 1
		summary.Evaluations = append(summary.Evaluations, item)
		outcomes = append(outcomes, ItemOutcome{QuestionNumber: idx + 1, Outcome: o})

		total += item.Score
		if item.IsCorrect {
			summary.CorrectAnswers++
		} else {
			summary.IncorrectAnswers++
		}
	}

	summary.QuestionsEvaluated = len(summary.Evaluations)
	summary.OverallScore = MeanScore(total, summary.QuestionsEvaluated)
	slog.Info("evaluated quiz", "answers", len(answers), "evaluated", summary.QuestionsEvaluated, "overall", summary.OverallScore)
	return summary, outcomes
}

// MeanScore returns total/n rounded to two decimals, or 0 when n is 0.
func MeanScore(total, n int) float64 {
	if n == 0 {
		return 0
	}
	return math.Round(float64(total)/float64(n)*100) / 100
}

func clampScore(s float64) int {
	if math.IsNaN(s) {
		return 0
	}
	return int(math.Round(math.Max(0, math.Min(100, s))))
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
