package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/mentor/internal/graph"
	"github.com/pavelanni/mentor/internal/i18n"
	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/model"
	"github.com/pavelanni/mentor/internal/vectorindex"
)

func newTestServer(t *testing.T, a Assistant) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Use(i18n.Middleware("en"))
	New(a, nil, Info{Provider: "mock", Model: "mock", Index: "static"}).Routes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url, body string, header map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, url, strings.NewReader(body))
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	defer resp.Body.Close()

	var out map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp, out
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, graph.New(llm.NewMockProvider(), nil, graph.DefaultConfig()))

	resp, err := http.Get(srv.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["index"] != "static" {
		t.Errorf("unexpected body: %v", body)
	}
}

func TestQuery(t *testing.T) {
	mock := llm.NewMockProvider(
		llm.Text(`{"intent":"concept","topic":"overfitting","difficulty":"medium"}`),
		llm.Text("Overfitting means memorizing noise."),
	)
	a := graph.New(mock, vectorindex.NewStatic("Regularization reduces overfitting."), graph.DefaultConfig())
	srv := newTestServer(t, a)

	resp, body := post(t, srv.URL+"/api/query", `{"query":"What is overfitting?"}`, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["intent"] != "concept" {
		t.Errorf("expected intent concept, got %v", body["intent"])
	}
	if body["explanation"] != "Overfitting means memorizing noise." {
		t.Errorf("unexpected explanation: %v", body["explanation"])
	}
	if body["context"] != "Regularization reduces overfitting." {
		t.Errorf("unexpected context: %v", body["context"])
	}
	trace, _ := body["trace"].([]any)
	if len(trace) != 3 {
		t.Errorf("expected 3 visited nodes, got %v", body["trace"])
	}
	if body["evaluation"] != nil {
		t.Errorf("expected null evaluation, got %v", body["evaluation"])
	}
}

func TestQueryValidation(t *testing.T) {
	srv := newTestServer(t, graph.New(llm.NewMockProvider(), nil, graph.DefaultConfig()))

	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantField  string
	}{
		{"empty body", ``, http.StatusBadRequest, ""},
		{"not json", `query=hi`, http.StatusBadRequest, ""},
		{"unknown field", `{"query":"hi","mode":"fast"}`, http.StatusBadRequest, ""},
		{"missing query", `{"student_answers":{"0":"a"}}`, http.StatusUnprocessableEntity, "query"},
		{"query too long", `{"query":"` + strings.Repeat("x", 4001) + `"}`, http.StatusUnprocessableEntity, "query"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, srv.URL+"/api/query", tt.body, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %v", tt.wantStatus, resp.StatusCode, body)
			}
			if tt.wantField == "" {
				return
			}
			fields, _ := body["fields"].(map[string]any)
			if _, ok := fields[tt.wantField]; !ok {
				t.Errorf("expected error for field %q, got %v", tt.wantField, body)
			}
		})
	}
}

const evaluateBody = `{
	"quiz": [
		{"question":"Which is supervised?","type":"multiple_choice","options":["A) clustering","B) regression"],"correct_answer":"B) regression","explanation":"Labels."},
		{"question":"Which is unsupervised?","type":"multiple_choice","options":["A) clustering","B) regression"],"correct_answer":"A) clustering"}
	],
	"student_answers": {"0": "B) regression", "1": "B) regression", "9": "ignored"}
}`

func TestEvaluate(t *testing.T) {
	mock := llm.NewMockProvider()
	srv := newTestServer(t, graph.New(mock, nil, graph.DefaultConfig()))

	resp, body := post(t, srv.URL+"/api/evaluate", evaluateBody, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, body)
	}
	if body["questions_evaluated"] != float64(2) {
		t.Errorf("expected 2 evaluated, got %v", body["questions_evaluated"])
	}
	if body["overall_score"] != float64(50) {
		t.Errorf("expected overall 50, got %v", body["overall_score"])
	}
	evals, _ := body["evaluations"].([]any)
	first, _ := evals[0].(map[string]any)
	if first["feedback"] != "Correct! Labels." {
		t.Errorf("unexpected feedback: %v", first["feedback"])
	}
	if mock.CallCount() != 0 {
		t.Errorf("multiple choice must not call the model, got %d calls", mock.CallCount())
	}
}

func TestEvaluateInfersType(t *testing.T) {
	mock := llm.NewMockProvider()
	srv := newTestServer(t, graph.New(mock, nil, graph.DefaultConfig()))

	body := `{
		"quiz": [
			{"question":"Which is supervised?","options":["A) clustering","B) regression"],"correct_answer":"B) regression"},
			{"question":"Which is unsupervised?","type":"multiple_choice","correct_answer":"A) clustering"}
		],
		"student_answers": {"0": "B) regression", "1": "B) regression"}
	}`
	resp, out := post(t, srv.URL+"/api/evaluate", body, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d: %v", resp.StatusCode, out)
	}
	if out["overall_score"] != float64(50) || out["correct_answers"] != float64(1) {
		t.Errorf("expected one exact match out of two, got %v", out)
	}
	if mock.CallCount() != 0 {
		t.Errorf("options without type must be compared locally, got %d model calls", mock.CallCount())
	}
}

func TestQuestionInputRecord(t *testing.T) {
	tests := []struct {
		name string
		in   QuestionInput
		want model.QuestionType
	}{
		{"options without type", QuestionInput{Options: []string{"a", "b"}}, model.QuestionMultipleChoice},
		{"no options no type", QuestionInput{}, model.QuestionShortAnswer},
		{"explicit multiple choice without options", QuestionInput{Type: "multiple_choice"}, model.QuestionMultipleChoice},
		{"explicit short answer with options", QuestionInput{Type: "short_answer", Options: []string{"a"}}, model.QuestionShortAnswer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.record()
			if got.Type != tt.want {
				t.Errorf("type = %s, want %s", got.Type, tt.want)
			}
			if got.Options == nil {
				t.Error("options must not be nil")
			}
		})
	}
}

func TestEvaluateLocalized(t *testing.T) {
	srv := newTestServer(t, graph.New(llm.NewMockProvider(), nil, graph.DefaultConfig()))

	_, body := post(t, srv.URL+"/api/evaluate", evaluateBody, map[string]string{"Accept-Language": "ru-RU,ru;q=0.9"})
	evals, _ := body["evaluations"].([]any)
	if len(evals) != 2 {
		t.Fatalf("expected 2 evaluations, got %v", body)
	}
	second, _ := evals[1].(map[string]any)
	feedback, _ := second["feedback"].(string)
	if !strings.HasPrefix(feedback, "Неверно.") {
		t.Errorf("expected Russian feedback, got %q", feedback)
	}
}

func TestEvaluateValidation(t *testing.T) {
	srv := newTestServer(t, graph.New(llm.NewMockProvider(), nil, graph.DefaultConfig()))

	tests := []struct {
		name      string
		body      string
		wantField string
	}{
		{"empty quiz", `{"quiz":[],"student_answers":{}}`, "quiz"},
		{"missing answers", `{"quiz":[{"question":"Q","correct_answer":"A"}]}`, "student_answers"},
		{"question without text", `{"quiz":[{"correct_answer":"A"}],"student_answers":{}}`, "quiz[0].question"},
		{"bad type", `{"quiz":[{"question":"Q","type":"essay","correct_answer":"A"}],"student_answers":{}}`, "quiz[0].type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := post(t, srv.URL+"/api/evaluate", tt.body, nil)
			if resp.StatusCode != http.StatusUnprocessableEntity {
				t.Fatalf("expected 422, got %d: %v", resp.StatusCode, body)
			}
			fields, _ := body["fields"].(map[string]any)
			if _, ok := fields[tt.wantField]; !ok {
				t.Errorf("expected error for %q, got %v", tt.wantField, fields)
			}
		})
	}
}

type failingAssistant struct{ err error }

func (f failingAssistant) ProcessQuery(context.Context, string, map[int]string) (*model.State, error) {
	return nil, f.err
}

func (f failingAssistant) EvaluateQuizDirectly(context.Context, []model.QuestionRecord, map[int]string, string) (model.EvaluationSummary, error) {
	return model.EvaluationSummary{}, f.err
}

func TestRunErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"upstream stage", &graph.StageError{Node: model.NodeTeaching, Err: &llm.ErrProviderUnavailable{}}, http.StatusBadGateway},
		{"timeout", context.DeadlineExceeded, http.StatusGatewayTimeout},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, failingAssistant{err: tt.err})
			resp, body := post(t, srv.URL+"/api/query", `{"query":"hi"}`, nil)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if body["error"] == "" {
				t.Error("expected error message")
			}
		})
	}
}
