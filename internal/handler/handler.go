package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mentor/internal/graph"
	"github.com/pavelanni/mentor/internal/model"
)

// Assistant is the tutoring entry point served over HTTP.
type Assistant interface {
	ProcessQuery(ctx context.Context, query string, answers map[int]string) (*model.State, error)
	EvaluateQuizDirectly(ctx context.Context, quiz []model.QuestionRecord, answers map[int]string, material string) (model.EvaluationSummary, error)
}

// Info is reported by the health endpoint.
type Info struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Index    string `json:"index"`
}

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	assistant Assistant
	validator *Validator
	info      Info
}

// New creates a new Handler.
func New(a Assistant, v *Validator, info Info) *Handler {
	if v == nil {
		v = NewValidator()
	}
	return &Handler{assistant: a, validator: v, info: info}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Route("/api", func(api chi.Router) {
		api.Post("/query", h.handleQuery)
		api.Post("/evaluate", h.handleEvaluate)
	})
}

// QueryRequest is the body of POST /api/query.
type QueryRequest struct {
	Query   string         `json:"query" validate:"required,max=4000"`
	Answers map[int]string `json:"student_answers" validate:"omitempty,dive,max=10000"`
}

// QuestionInput is a caller-supplied quiz question.
type QuestionInput struct {
	Question      string   `json:"question" validate:"required"`
	Type          string   `json:"type" validate:"omitempty,oneof=multiple_choice short_answer"`
	Options       []string `json:"options" validate:"omitempty,max=10,dive,required"`
	CorrectAnswer string   `json:"correct_answer" validate:"required"`
	Explanation   string   `json:"explanation"`
}

// record converts the input. A question with options and no type is
// multiple choice; an explicit type is kept even without options.
func (q QuestionInput) record() model.QuestionRecord {
	typ := model.ParseQuestionType(q.Type)
	if q.Type == "" && len(q.Options) > 0 {
		typ = model.QuestionMultipleChoice
	}
	options := q.Options
	if options == nil {
		options = []string{}
	}
	return model.QuestionRecord{
		Question:      q.Question,
		Type:          typ,
		Options:       options,
		CorrectAnswer: q.CorrectAnswer,
		Explanation:   q.Explanation,
	}
}

// EvaluateRequest is the body of POST /api/evaluate.
type EvaluateRequest struct {
	Quiz    []QuestionInput `json:"quiz" validate:"required,min=1,max=50,dive"`
	Answers map[int]string  `json:"student_answers" validate:"required,dive,max=10000"`
	Context string          `json:"context" validate:"max=20000"`
}

type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
		Info
	}{"ok", h.info})
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	state, err := h.assistant.ProcessQuery(r.Context(), req.Query, req.Answers)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

func (h *Handler) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := h.validator.DecodeAndValidate(r, &req); err != nil {
		writeRequestError(w, err)
		return
	}

	quiz := make([]model.QuestionRecord, len(req.Quiz))
	for i, q := range req.Quiz {
		quiz[i] = q.record()
	}

	summary, err := h.assistant.EvaluateQuizDirectly(r.Context(), quiz, req.Answers, req.Context)
	if err != nil {
		writeRunError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func writeRequestError(w http.ResponseWriter, err error) {
	var fe *FieldsError
	if errors.As(err, &fe) {
		writeJSON(w, http.StatusUnprocessableEntity, errorResponse{Error: "validation failed", Fields: fe.Fields})
		return
	}
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

func writeRunError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var stageErr *graph.StageError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the body.
		status = 499
	case errors.As(err, &stageErr):
		status = http.StatusBadGateway
	}
	slog.ErrorContext(r.Context(), "request failed", "path", r.URL.Path, "status", status, "error", err)
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
