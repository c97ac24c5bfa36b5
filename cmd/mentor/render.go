package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/pavelanni/mentor/internal/agent"
	"github.com/pavelanni/mentor/internal/i18n"
	"github.com/pavelanni/mentor/internal/model"
)

const maxContextChars = 1000

// renderState prints a run in reading order: explanation, retrieved
// context, quiz, evaluation.
func renderState(ctx context.Context, w io.Writer, s *model.State) {
	if s.Explanation != "" && s.Explanation != agent.QuizModePlaceholder {
		heading(w, i18n.T(ctx, "HeadingExplanation"))
		fmt.Fprintln(w, strings.TrimSpace(s.Explanation))
		fmt.Fprintln(w)

		if s.Context != "" {
			heading(w, i18n.T(ctx, "HeadingContext"))
			fmt.Fprintln(w, truncate(s.Context, maxContextChars))
			fmt.Fprintln(w)
		}
	}

	if len(s.Quiz) > 0 {
		renderQuiz(ctx, w, s.Quiz, s.Evaluation == nil)
	}
	if s.Evaluation != nil {
		renderEvaluation(ctx, w, s.Evaluation)
	}
}

// renderQuiz lists the questions. Answers are hidden while the learner
// still has to answer.
func renderQuiz(ctx context.Context, w io.Writer, quiz []model.QuestionRecord, hideAnswers bool) {
	heading(w, i18n.T(ctx, "HeadingQuiz"))
	for i, q := range quiz {
		fmt.Fprintf(w, "%s: %s\n", i18n.Td(ctx, "QuestionN", map[string]any{"N": i + 1}), q.Question)
		for j, opt := range q.Options {
			fmt.Fprintf(w, "  %d. %s\n", j+1, opt)
		}
		if !hideAnswers {
			fmt.Fprintf(w, "  %s: %s\n", i18n.T(ctx, "CorrectAnswerLabel"), q.CorrectAnswer)
		}
		fmt.Fprintln(w)
	}
}

func renderEvaluation(ctx context.Context, w io.Writer, e *model.EvaluationSummary) {
	heading(w, i18n.T(ctx, "HeadingEvaluation"))
	fmt.Fprintln(w, i18n.Td(ctx, "OverallScore", map[string]any{"Score": formatScore(e.OverallScore)}))
	fmt.Fprintln(w, i18n.Tp(ctx, "QuestionsEvaluated", e.QuestionsEvaluated))
	fmt.Fprintln(w, i18n.T(ctx, verdict(e.OverallScore)))
	fmt.Fprintln(w)

	for _, item := range e.Evaluations {
		fmt.Fprintln(w, i18n.Td(ctx, "QuestionScore", map[string]any{"N": item.QuestionNumber, "Score": item.Score}))
		bullets(w, i18n.T(ctx, "Strengths"), item.Strengths)
		bullets(w, i18n.T(ctx, "AreasToImprove"), item.Weaknesses)
		if item.Feedback != "" {
			fmt.Fprintf(w, "%s: %s\n", i18n.T(ctx, "Feedback"), item.Feedback)
		}
		bullets(w, i18n.T(ctx, "ImprovementTips"), item.ImprovementTips)
		fmt.Fprintln(w)
	}
}

// verdict returns the message ID for an overall score band.
func verdict(score float64) string {
	switch {
	case score >= 70:
		return "VerdictGreat"
	case score >= 50:
		return "VerdictGood"
	default:
		return "VerdictPractice"
	}
}

func formatScore(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func heading(w io.Writer, title string) {
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", utf8.RuneCountInString(title)))
}

func bullets(w io.Writer, title string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(w, "%s:\n", title)
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// promptAnswers asks for an answer to each question on r. For multiple
// choice an option number selects that option's text. Blank lines skip
// the question.
func promptAnswers(ctx context.Context, r io.Reader, w io.Writer, quiz []model.QuestionRecord) (map[int]string, error) {
	answers := make(map[int]string)
	sc := bufio.NewScanner(r)
	for i, q := range quiz {
		fmt.Fprintf(w, "%s: %s\n", i18n.Td(ctx, "QuestionN", map[string]any{"N": i + 1}), q.Question)
		for j, opt := range q.Options {
			fmt.Fprintf(w, "  %d. %s\n", j+1, opt)
		}
		fmt.Fprint(w, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if n, err := strconv.Atoi(line); err == nil && n >= 1 && n <= len(q.Options) {
			line = q.Options[n-1]
		}
		answers[i] = line
	}
	fmt.Fprintln(w)
	return answers, sc.Err()
}
