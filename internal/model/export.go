package model

import "time"

// RunExport is the top-level JSON structure written by `mentor ask --output`.
type RunExport struct {
	GeneratedAt time.Time `json:"generated_at"`
	Provider    string    `json:"provider"`
	Model       string    `json:"model"`
	Index       string    `json:"index"`
	State       *State    `json:"state"`
}

// EvaluationExport is the JSON structure written by `mentor evaluate --output`.
type EvaluationExport struct {
	GeneratedAt time.Time          `json:"generated_at"`
	Provider    string             `json:"provider"`
	Model       string             `json:"model"`
	Quiz        []QuestionRecord   `json:"quiz"`
	Answers     map[int]string     `json:"student_answers"`
	Summary     *EvaluationSummary `json:"evaluation"`
}
