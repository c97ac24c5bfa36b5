package agent

import "github.com/pavelanni/mentor/internal/llm"

// ClassificationSchema is the shape of an intent classification reply.
var ClassificationSchema = &llm.Schema{
	Name:        "intent-classification",
	Description: "Intent, topic and difficulty of a learner request",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"intent": map[string]any{
				"type":        "string",
				"description": "One of concept, practice, quiz, doubt",
			},
			"topic": map[string]any{
				"type":        "string",
				"description": "Main subject mentioned in the request",
			},
			"difficulty": map[string]any{
				"type":        "string",
				"description": "One of easy, medium, hard",
			},
		},
		"required": []any{"intent", "topic"},
	},
}

// QuizSchema is the shape of a quiz generation reply.
var QuizSchema = &llm.Schema{
	Name:        "quiz-generation",
	Description: "A list of quiz questions with answers",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"questions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"question":       map[string]any{"type": "string"},
						"type":           map[string]any{"type": "string"},
						"options":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
						"correct_answer": map[string]any{"type": "string"},
						"explanation":    map[string]any{"type": "string"},
					},
					"required": []any{"question", "correct_answer"},
				},
			},
		},
		"required": []any{"questions"},
	},
}

// EvaluationSchema is the shape of a short-answer evaluation reply.
var EvaluationSchema = &llm.Schema{
	Name:        "answer-evaluation",
	Description: "Score and feedback for one student answer",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"score":            map[string]any{"type": "number", "description": "0 to 100"},
			"is_correct":       map[string]any{"type": "boolean"},
			"strengths":        map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"weaknesses":       map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
			"feedback":         map[string]any{"type": "string"},
			"improvement_tips": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
		},
		"required": []any{"score", "is_correct"},
	},
}
