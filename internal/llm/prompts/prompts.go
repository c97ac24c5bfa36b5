package prompts

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/mentor/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

// maxAnswerRunes caps how much of a student answer is sent to the model.
const maxAnswerRunes = 10000

// User triggers sent after each system instruction.
const (
	QuizTrigger     = "Generate the quiz now."
	EvaluateTrigger = "Evaluate now."
)

// Template names.
const (
	classifyTemplate = "classify.tmpl"
	explainTemplate  = "explain.tmpl"
	quizTemplate     = "quiz.tmpl"
	evaluateTemplate = "evaluate.tmpl"
)

var intentInstructions = map[model.Intent]string{
	model.IntentConcept:  "Provide a comprehensive explanation of the concept with examples.",
	model.IntentPractice: "Provide practice examples and walk through the solution steps.",
	model.IntentDoubt:    "Address the specific question clearly and concisely.",
	model.IntentQuiz:     "This will be handled by the quiz agent, provide brief overview only.",
}

var (
	loadOnce  sync.Once
	loadErr   error
	templates *template.Template
)

// ExplainData holds template data for explanation prompts.
type ExplainData struct {
	Instruction string
	Difficulty  model.Difficulty
	Context     string
}

// QuizData holds template data for quiz prompts.
type QuizData struct {
	NumQuestions int
	Difficulty   model.Difficulty
	Topic        string
	Context      string
}

// EvaluateData holds template data for short-answer evaluation prompts.
type EvaluateData struct {
	Question      string
	CorrectAnswer string
	Answer        string
	Context       string
}

// Load parses the embedded templates once.
func Load() error {
	loadOnce.Do(func() {
		templates, loadErr = template.ParseFS(templateFS, "templates/*.tmpl")
		if loadErr != nil {
			loadErr = fmt.Errorf("parse prompt templates: %w", loadErr)
		}
	})
	return loadErr
}

// Instruction returns the teaching instruction for intent.
// Unrecognized intents get the concept instruction.
func Instruction(intent model.Intent) string {
	if s, ok := intentInstructions[intent]; ok {
		return s
	}
	return intentInstructions[model.IntentConcept]
}

// BuildClassify returns the intent classification system prompt.
func BuildClassify() (string, error) {
	return execute(classifyTemplate, nil)
}

// BuildExplain returns the teaching system prompt.
func BuildExplain(intent model.Intent, difficulty model.Difficulty, context string) (string, error) {
	return execute(explainTemplate, ExplainData{
		Instruction: Instruction(intent),
		Difficulty:  difficulty,
		Context:     context,
	})
}

// BuildQuiz returns the quiz generation system prompt.
func BuildQuiz(topic, context string, difficulty model.Difficulty, numQuestions int) (string, error) {
	return execute(quizTemplate, QuizData{
		NumQuestions: numQuestions,
		Difficulty:   difficulty,
		Topic:        topic,
		Context:      context,
	})
}

// BuildEvaluate returns the short-answer evaluation system prompt.
func BuildEvaluate(question, correctAnswer, answer, context string) (string, error) {
	return execute(evaluateTemplate, EvaluateData{
		Question:      question,
		CorrectAnswer: correctAnswer,
		Answer:        sanitizeAnswer(answer),
		Context:       context,
	})
}

func execute(name string, data any) (string, error) {
	if err := Load(); err != nil {
		return "", err
	}
	if templates == nil {
		return "", errors.New("prompt templates not loaded")
	}

	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func sanitizeAnswer(answer string) string {
	answer = studentAnswerRegex.ReplaceAllString(answer, "")
	answer = systemInstructionsRegex.ReplaceAllString(answer, "")
	answer = strings.TrimSpace(answer)

	if answer == "" {
		return "[No answer provided]"
	}

	if utf8.RuneCountInString(answer) > maxAnswerRunes {
		runes := []rune(answer)
		answer = string(runes[:maxAnswerRunes]) + "\n\n[Answer truncated due to length]"
	}
	return answer
}
