package model

import (
	"strings"
)

// Intent is the classified purpose of a learner's request.
type Intent string

const (
	IntentConcept  Intent = "concept"
	IntentPractice Intent = "practice"
	IntentQuiz     Intent = "quiz"
	IntentDoubt    Intent = "doubt"
	// IntentUnknown is any reply the classifier could parse but not map.
	IntentUnknown Intent = "unknown"
)

// ParseIntent maps free text onto the closed intent set.
// Unrecognized values become IntentUnknown.
func ParseIntent(s string) Intent {
	switch Intent(strings.ToLower(strings.TrimSpace(s))) {
	case IntentConcept:
		return IntentConcept
	case IntentPractice:
		return IntentPractice
	case IntentQuiz:
		return IntentQuiz
	case IntentDoubt:
		return IntentDoubt
	default:
		return IntentUnknown
	}
}

// Teaches reports whether the intent is routed through the teaching stage.
func (i Intent) Teaches() bool {
	return i == IntentConcept || i == IntentDoubt || i == IntentPractice
}

// WantsQuiz reports whether the intent produces quiz questions.
func (i Intent) WantsQuiz() bool {
	return i == IntentQuiz || i == IntentPractice
}

// Difficulty represents question difficulty level.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty maps free text onto the difficulty set, defaulting to medium.
func ParseDifficulty(s string) Difficulty {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy
	case DifficultyHard:
		return DifficultyHard
	default:
		return DifficultyMedium
	}
}

// QuestionType selects how an answer is scored.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionShortAnswer    QuestionType = "short_answer"
)

// ParseQuestionType accepts "multiple_choice" in a few spellings; anything else is short answer.
func ParseQuestionType(s string) QuestionType {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch norm {
	case "multiple_choice", "mcq", "multiplechoice":
		return QuestionMultipleChoice
	default:
		return QuestionShortAnswer
	}
}

// QuestionRecord is a single generated quiz question.
//
// For multiple choice, CorrectAnswer must equal one of Options byte for byte,
// including any leading label such as "B) ".
type QuestionRecord struct {
	Question      string       `json:"question"`
	Type          QuestionType `json:"type"`
	Options       []string     `json:"options"`
	CorrectAnswer string       `json:"correct_answer"`
	Explanation   string       `json:"explanation"`
}

// Normalize enforces that Options is empty iff the question is short answer.
func (q QuestionRecord) Normalize() QuestionRecord {
	q.Type = ParseQuestionType(string(q.Type))
	if q.Type == QuestionMultipleChoice && len(q.Options) == 0 {
		q.Type = QuestionShortAnswer
	}
	if q.Type == QuestionShortAnswer || q.Options == nil {
		q.Options = []string{}
	}
	return q
}

// EvaluationItem is the assessment of one answered question.
type EvaluationItem struct {
	QuestionNumber  int      `json:"question_number"`
	Score           int      `json:"score"`
	IsCorrect       bool     `json:"is_correct"`
	Strengths       []string `json:"strengths"`
	Weaknesses      []string `json:"weaknesses"`
	Feedback        string   `json:"feedback"`
	ImprovementTips []string `json:"improvement_tips"`
}

// EvaluationSummary aggregates the evaluated items of one quiz submission.
type EvaluationSummary struct {
	OverallScore       float64          `json:"overall_score"`
	QuestionsEvaluated int              `json:"questions_evaluated"`
	CorrectAnswers     int              `json:"correct_answers"`
	IncorrectAnswers   int              `json:"incorrect_answers"`
	Evaluations        []EvaluationItem `json:"evaluations"`
}

// Node names a stage of the tutoring graph.
type Node string

const (
	NodeQueryUnderstanding Node = "query_understanding"
	NodeRetrieval          Node = "retrieval"
	NodeTeaching           Node = "teaching"
	NodeQuizGeneration     Node = "quiz_generation"
	NodeEvaluate           Node = "evaluate"
	// NodeEnd is the terminal marker returned by routers.
	NodeEnd Node = "end"
)

// StageDiagnostic records how a stage produced its output.
type StageDiagnostic struct {
	Node   Node   `json:"node"`
	Source string `json:"source"`
	Error  string `json:"error,omitempty"`
}

// State is the record threaded through every stage of one run.
// Stages only write the fields they own.
type State struct {
	RunID          string             `json:"run_id"`
	Query          string             `json:"query"`
	Intent         Intent             `json:"intent"`
	Topic          string             `json:"topic"`
	Difficulty     Difficulty         `json:"difficulty"`
	Context        string             `json:"context"`
	Explanation    string             `json:"explanation"`
	Quiz           []QuestionRecord   `json:"quiz"`
	StudentAnswers map[int]string     `json:"student_answers"`
	Evaluation     *EvaluationSummary `json:"evaluation"`

	Trace       []Node            `json:"trace"`
	Diagnostics []StageDiagnostic `json:"diagnostics,omitempty"`
}

// NewState returns the initial record for a query.
func NewState(query string, answers map[int]string) *State {
	if answers == nil {
		answers = map[int]string{}
	}
	return &State{
		Query:          query,
		Difficulty:     DifficultyMedium,
		Quiz:           []QuestionRecord{},
		StudentAnswers: answers,
	}
}
