package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

var topicSchema = &Schema{
	Name: "test-topic",
	Definition: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"topic": map[string]any{"type": "string"},
		},
		"required": []string{"topic"},
	},
}

func chatHandler(content, finish string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":      "chatcmpl-test",
			"object":  "chat.completion",
			"created": 1234567890,
			"model":   "llama3.2:3b",
			"choices": []map[string]any{{
				"index":         0,
				"message":       map[string]any{"role": "assistant", "content": content},
				"finish_reason": finish,
			}},
			"usage": map[string]any{"prompt_tokens": 12, "completion_tokens": 7, "total_tokens": 19},
		})
	}
}

func newTestOpenAIProvider(t *testing.T, format string, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	p, err := NewOpenAIProvider(OpenAIConfig{
		APIKey:         "ollama",
		Model:          "llama3.2:3b",
		BaseURL:        server.URL + "/v1",
		ResponseFormat: format,
	})
	if err != nil {
		t.Fatalf("NewOpenAIProvider: %v", err)
	}
	return p
}

func TestOpenAIProviderFreeText(t *testing.T) {
	p := newTestOpenAIProvider(t, "", chatHandler("Machine learning is ...", "stop"))

	resp, err := p.Generate(context.Background(), Request{
		System:   "You are a tutor.",
		Messages: []Message{{Role: RoleUser, Content: "Explain."}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != "Machine learning is ..." {
		t.Errorf("Text() = %q", resp.Text())
	}
	if resp.Usage.TotalTokens != 19 {
		t.Errorf("TotalTokens = %d, want 19", resp.Usage.TotalTokens)
	}
	if resp.StopReason != "end" {
		t.Errorf("StopReason = %q, want end", resp.StopReason)
	}
}

func TestOpenAIProviderSendsJSONObjectFormat(t *testing.T) {
	var got openai.ChatCompletionRequest
	handler := func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		chatHandler(`{"topic":"ml"}`, "stop")(w, r)
	}
	p := newTestOpenAIProvider(t, "json_object", handler)

	_, err := p.Generate(context.Background(), Request{
		System:      "classify",
		Messages:    []Message{{Role: RoleUser, Content: "q"}},
		Schema:      topicSchema,
		Temperature: 0,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ResponseFormat == nil || got.ResponseFormat.Type != openai.ChatCompletionResponseFormatTypeJSONObject {
		t.Errorf("ResponseFormat = %+v, want json_object", got.ResponseFormat)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != openai.ChatMessageRoleSystem {
		t.Errorf("messages = %+v, want system then user", got.Messages)
	}
}

func TestOpenAIProviderExtractsFencedJSON(t *testing.T) {
	p := newTestOpenAIProvider(t, "none", chatHandler("Sure!\n```json\n{\"topic\": \"ml\"}\n```", "stop"))

	resp, err := p.Generate(context.Background(), Request{Schema: topicSchema})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != `{"topic": "ml"}` {
		t.Errorf("Content = %q", resp.Text())
	}
}

func TestOpenAIProviderInvalidJSON(t *testing.T) {
	p := newTestOpenAIProvider(t, "", chatHandler("not json at all", "stop"))

	_, err := p.Generate(context.Background(), Request{Schema: topicSchema})
	var inv *ErrInvalidResponse
	if !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalidResponse, got %v", err)
	}
	if !IsMalformed(err) {
		t.Error("IsMalformed should be true")
	}
}

func TestOpenAIProviderTruncated(t *testing.T) {
	p := newTestOpenAIProvider(t, "", chatHandler(`{"topic":`, "length"))

	_, err := p.Generate(context.Background(), Request{Schema: topicSchema})
	var maxTok *ErrMaxTokensExceeded
	if !errors.As(err, &maxTok) {
		t.Fatalf("expected ErrMaxTokensExceeded, got %v", err)
	}
}

func TestOpenAIProviderRateLimit(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "slow down", "type": "rate_limit"},
		})
	}
	p := newTestOpenAIProvider(t, "", handler)

	_, err := p.Generate(context.Background(), Request{})
	var rl *ErrRateLimit
	if !errors.As(err, &rl) {
		t.Fatalf("expected ErrRateLimit, got %v", err)
	}
	if IsMalformed(err) {
		t.Error("rate limit is an upstream failure, not malformed")
	}
}

func TestOpenAIProviderServerError(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "boom", "type": "server_error"},
		})
	}
	p := newTestOpenAIProvider(t, "", handler)

	_, err := p.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
}

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"plain", `{"a":1}`, `{"a":1}`, true},
		{"fenced", "```json\n{\"a\":1}\n```", `{"a":1}`, true},
		{"prose around", `Here you go: {"a":{"b":2}} hope it helps`, `{"a":{"b":2}}`, true},
		{"brace in string", `{"a":"}{"}`, `{"a":"}{"}`, true},
		{"escaped quote", `{"a":"say \"hi\" }"}`, `{"a":"say \"hi\" }"}`, true},
		{"skips invalid prefix", `{oops} then {"a":1}`, `{"a":1}`, true},
		{"unbalanced", `{"a":1`, "", false},
		{"none", "no json here", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.in)
			if ok != tt.ok || got != tt.want {
				t.Errorf("ExtractJSONObject(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestValidateJSONSchemaViolation(t *testing.T) {
	err := ValidateJSON(topicSchema, json.RawMessage(`{"subject":"ml"}`))
	if !IsMalformed(err) {
		t.Fatalf("expected malformed error, got %v", err)
	}
	if err := ValidateJSON(topicSchema, json.RawMessage(`{"topic":"ml"}`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: time.Millisecond,
		MaxWait:     5 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func TestRetry(t *testing.T) {
	down := &ErrProviderUnavailable{Err: errors.New("down")}
	tests := []struct {
		name      string
		responses []MockResponse
		wantErr   bool
		wantCalls int
	}{
		{"first attempt", []MockResponse{Text("ok")}, false, 1},
		{"transient then success", []MockResponse{Failure(down), Text("ok")}, false, 2},
		{"all attempts fail", []MockResponse{Failure(down), Failure(down), Failure(down)}, true, 3},
		{"max tokens not retried", []MockResponse{Failure(&ErrMaxTokensExceeded{}), Text("ok")}, true, 1},
		{"invalid not retried", []MockResponse{
			Failure(&ErrInvalidResponse{Err: errors.New("bad")}),
			Text("ok"),
		}, true, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider(tt.responses...)
			_, err := WithRetry(mock, retryConfig()).Generate(context.Background(), Request{})
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if mock.CallCount() != tt.wantCalls {
				t.Errorf("calls = %d, want %d", mock.CallCount(), tt.wantCalls)
			}
		})
	}
}

func TestRetryStopsOnCanceledContext(t *testing.T) {
	mock := NewMockProvider(Failure(context.Canceled), Text("ok"))
	_, err := WithRetry(mock, retryConfig()).Generate(context.Background(), Request{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if mock.CallCount() != 1 {
		t.Errorf("calls = %d, want 1", mock.CallCount())
	}
}

type deadlineProvider struct{ deadline time.Time }

func (p *deadlineProvider) Generate(ctx context.Context, _ Request) (*Response, error) {
	p.deadline, _ = ctx.Deadline()
	return &Response{Content: json.RawMessage("ok")}, nil
}

func (p *deadlineProvider) ModelID() string { return "deadline" }

func TestWithTimeout(t *testing.T) {
	inner := &deadlineProvider{}
	if WithTimeout(inner, 0) != Provider(inner) {
		t.Error("zero timeout should return the provider unchanged")
	}

	p := WithTimeout(inner, time.Minute)
	if _, err := p.Generate(context.Background(), Request{}); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if inner.deadline.IsZero() {
		t.Fatal("expected a deadline on the inner context")
	}
	if left := time.Until(inner.deadline); left <= 0 || left > time.Minute {
		t.Errorf("unexpected deadline, %v left", left)
	}
	if p.ModelID() != "deadline" {
		t.Errorf("ModelID = %q", p.ModelID())
	}
}

func TestMockProviderValidatesSchema(t *testing.T) {
	mock := NewMockProvider(Text("```\n{\"topic\":\"go\"}\n```"), Text(`{"nope":1}`))

	resp, err := mock.Generate(context.Background(), Request{Schema: topicSchema})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Text() != `{"topic":"go"}` {
		t.Errorf("Content = %q", resp.Text())
	}

	_, err = mock.Generate(context.Background(), Request{Schema: topicSchema})
	if !IsMalformed(err) {
		t.Errorf("expected malformed error, got %v", err)
	}

	_, err = mock.Generate(context.Background(), Request{})
	var unavail *ErrProviderUnavailable
	if !errors.As(err, &unavail) {
		t.Errorf("empty queue should be unavailable, got %v", err)
	}
}

func TestPurpose(t *testing.T) {
	if got := PurposeFrom(context.Background()); got != "unknown" {
		t.Errorf("PurposeFrom(empty) = %q", got)
	}
	ctx := WithPurpose(context.Background(), "quiz")
	if got := PurposeFrom(ctx); got != "quiz" {
		t.Errorf("PurposeFrom = %q, want quiz", got)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"mock", func(c *Config) { c.Provider = "mock" }, ""},
		{"unknown provider", func(c *Config) { c.Provider = "cohere" }, "unknown LLM provider"},
		{"missing anthropic key", func(c *Config) { c.Provider = "anthropic" }, "MENTOR_ANTHROPIC_KEY"},
		{"bad format", func(c *Config) { c.OpenAI.ResponseFormat = "xml" }, "unknown response format"},
		{"zero attempts", func(c *Config) { c.Retry.MaxAttempts = 0 }, "retry attempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestVectorEncoding(t *testing.T) {
	v := []float32{0, 1.5, -2.25, 3e-7}
	got, err := DecodeVector(EncodeVector(v))
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(got) != len(v) {
		t.Fatalf("len = %d, want %d", len(got), len(v))
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], v[i])
		}
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short blob")
	}
}

func TestOpenAIEmbedder(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		// Reverse order to check the index mapping.
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = map[string]any{"object": "embedding", "index": j, "embedding": []float32{float32(j), 1}}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"object": "list", "model": req.Model, "data": data})
	}))
	t.Cleanup(server.Close)

	cfg := DefaultConfig()
	cfg.OpenAI.BaseURL = server.URL + "/v1"
	e, err := NewEmbedder(cfg)
	if err != nil {
		t.Fatalf("NewEmbedder: %v", err)
	}

	vecs, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i, v := range vecs {
		if v[0] != float32(i) {
			t.Errorf("vecs[%d][0] = %v, want %d", i, v[0], i)
		}
	}

	cached := WithEmbeddingCache(e, newMapCache())
	if _, err := cached.Embed(context.Background(), []string{"x", "y"}); err != nil {
		t.Fatalf("cached Embed: %v", err)
	}
	before := calls
	if _, err := cached.Embed(context.Background(), []string{"y", "x"}); err != nil {
		t.Fatalf("cached Embed: %v", err)
	}
	if calls != before {
		t.Errorf("second embed hit the server, calls %d -> %d", before, calls)
	}
}

type mapCache struct{ m map[string][]byte }

func newMapCache() *mapCache { return &mapCache{m: map[string][]byte{}} }

func (c *mapCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.m[key]
	return v, ok, nil
}

func (c *mapCache) Set(_ context.Context, key string, val []byte) error {
	c.m[key] = val
	return nil
}

func TestStrictDefinition(t *testing.T) {
	def := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"b": map[string]any{"type": "string"},
			"a": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "object", "properties": map[string]any{"x": map[string]any{"type": "integer"}}},
			},
		},
		"required": []string{"a"},
	}

	strict := strictDefinition(def)
	req, _ := strict["required"].([]string)
	if strings.Join(req, ",") != "a,b" {
		t.Errorf("required = %v, want [a b]", req)
	}
	if strict["additionalProperties"] != false {
		t.Error("top-level object should forbid additional properties")
	}
	items := strict["properties"].(map[string]any)["a"].(map[string]any)["items"].(map[string]any)
	if items["additionalProperties"] != false {
		t.Error("nested item objects should forbid additional properties")
	}
	if _, ok := def["additionalProperties"]; ok {
		t.Error("original definition must not be modified")
	}
}
