package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/model"
)

const (
	payloadSourceKey  = "source"
	payloadHashKey    = "sha256"
	payloadSeqKey     = "seq"
	payloadTextKey    = "text"
	maxErrorBodyBytes = 1024
)

var pointIDNamespace = uuid.MustParse("6f1d3c1e-8a4b-4c55-9d7e-2b0a9e6c4f10")

// QdrantConfig selects a Qdrant collection reached over its REST API.
type QdrantConfig struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		URL:        "http://localhost:6333",
		Collection: "mentor",
		Timeout:    10 * time.Second,
	}
}

// Qdrant stores chunks as points with their text and source in the payload.
type Qdrant struct {
	cfg      QdrantConfig
	baseURL  string
	embedder llm.Embedder
	http     *http.Client

	mu       sync.Mutex
	dim      int
	distance string
}

type qdrantEnvelope struct {
	Result json.RawMessage `json:"result"`
	Status json.RawMessage `json:"status"`
	Time   float64         `json:"time"`
}

type qdrantPoint struct {
	ID      json.RawMessage `json:"id"`
	Score   float64         `json:"score"`
	Payload map[string]any  `json:"payload"`
}

// NewQdrant checks that the server is ready and reads the collection's
// vector size when the collection already exists.
func NewQdrant(ctx context.Context, cfg QdrantConfig, embedder llm.Embedder) (*Qdrant, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, opErr("bootstrap", OperationErrorValidation, "qdrant url is required", nil)
	}
	if strings.TrimSpace(cfg.Collection) == "" {
		return nil, opErr("bootstrap", OperationErrorValidation, "qdrant collection is required", nil)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultQdrantConfig().Timeout
	}

	q := &Qdrant{
		cfg:      cfg,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		embedder: embedder,
		http:     &http.Client{Timeout: cfg.Timeout},
	}
	if err := q.verifyReady(ctx); err != nil {
		return nil, err
	}
	if err := q.loadCollection(ctx); err != nil && !IsCode(err, OperationErrorNotFound) {
		return nil, err
	}

	slog.Info("qdrant vector index selected", "url", q.baseURL, "collection", cfg.Collection, "vector_dim", q.dim, "distance", q.distance)
	return q, nil
}

func (q *Qdrant) Search(ctx context.Context, query string, k int) ([]string, error) {
	const op = "search"
	if k <= 0 {
		return nil, nil
	}

	vecs, err := q.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, opErr(op, OperationErrorEmbedFailed, "embed query failed", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, opErr(op, OperationErrorEmbedFailed, "embedder returned no query vector", nil)
	}

	req := map[string]any{
		"vector":       vecs[0],
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	var points []qdrantPoint
	if err := q.doJSON(ctx, op, http.MethodPost, q.collectionPath("/points/search"), req, &points); err != nil {
		if IsCode(err, OperationErrorNotFound) {
			// Nothing ingested yet.
			return nil, nil
		}
		return nil, err
	}

	candidates := make([]scored, 0, len(points))
	for i, p := range points {
		text, _ := p.Payload[payloadTextKey].(string)
		if text == "" {
			continue
		}
		candidates = append(candidates, scored{id: int64(i), text: text, score: p.Score})
	}
	return rank(candidates, k), nil
}

func (q *Qdrant) DocumentHash(ctx context.Context, source string) (string, error) {
	req := map[string]any{
		"filter":       sourceFilter(source),
		"limit":        1,
		"with_payload": true,
		"with_vector":  false,
	}
	var result struct {
		Points []qdrantPoint `json:"points"`
	}
	if err := q.doJSON(ctx, "document_hash", http.MethodPost, q.collectionPath("/points/scroll"), req, &result); err != nil {
		if IsCode(err, OperationErrorNotFound) {
			return "", nil
		}
		return "", err
	}
	if len(result.Points) == 0 {
		return "", nil
	}
	hash, _ := result.Points[0].Payload[payloadHashKey].(string)
	return hash, nil
}

func (q *Qdrant) ReplaceDocument(ctx context.Context, doc model.Document, chunks []model.Chunk) error {
	const op = "replace_document"
	if len(chunks) > 0 {
		if err := q.ensureCollection(ctx, len(chunks[0].Embedding)); err != nil {
			return err
		}
	}

	del := map[string]any{"filter": sourceFilter(doc.Source)}
	if err := q.doJSON(ctx, op, http.MethodPost, q.collectionPath("/points/delete?wait=true"), del, nil); err != nil {
		if !IsCode(err, OperationErrorNotFound) {
			return err
		}
	}
	if len(chunks) == 0 {
		return nil
	}

	q.mu.Lock()
	dim := q.dim
	q.mu.Unlock()

	points := make([]map[string]any, 0, len(chunks))
	for i, c := range chunks {
		if len(c.Embedding) != dim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("chunk %d of %s dimension mismatch: expected=%d got=%d", i, doc.Source, dim, len(c.Embedding)), nil)
		}
		points = append(points, map[string]any{
			"id":     pointID(doc.Source, i),
			"vector": c.Embedding,
			"payload": map[string]any{
				payloadSourceKey: doc.Source,
				payloadHashKey:   doc.SHA256,
				payloadSeqKey:    i,
				payloadTextKey:   c.Text,
			},
		})
	}
	return q.doJSON(ctx, op, http.MethodPut, q.collectionPath("/points?wait=true"), map[string]any{"points": points}, nil)
}

func (q *Qdrant) Close() error {
	q.http.CloseIdleConnections()
	return nil
}

func (q *Qdrant) verifyReady(ctx context.Context) error {
	const op = "bootstrap_verify"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.baseURL+"/readyz", nil)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build ready request failed", err)
	}
	q.authorize(req)
	resp, err := q.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant ready check failed", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant ready check returned status=%d", resp.StatusCode),
		}
	}
	return nil
}

func (q *Qdrant) loadCollection(ctx context.Context) error {
	var result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	}
	if err := q.doJSON(ctx, "collection_info", http.MethodGet, q.collectionPath(""), nil, &result); err != nil {
		return err
	}
	q.mu.Lock()
	q.dim = result.Config.Params.Vectors.Size
	q.distance = result.Config.Params.Vectors.Distance
	q.mu.Unlock()
	return nil
}

// ensureCollection creates the collection with cosine distance when it
// does not exist yet, and rejects vectors of a different size.
func (q *Qdrant) ensureCollection(ctx context.Context, dim int) error {
	const op = "create_collection"
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.dim != 0 {
		if q.dim != dim {
			return opErr(op, OperationErrorValidation,
				fmt.Sprintf("collection %q vector size mismatch: expected=%d got=%d", q.cfg.Collection, q.dim, dim), nil)
		}
		return nil
	}
	if dim == 0 {
		return opErr(op, OperationErrorValidation, "vector size is required", nil)
	}

	req := map[string]any{"vectors": map[string]any{"size": dim, "distance": "Cosine"}}
	if err := q.doJSON(ctx, op, http.MethodPut, q.collectionPath(""), req, nil); err != nil {
		return err
	}
	q.dim = dim
	q.distance = "Cosine"
	slog.Info("created qdrant collection", "collection", q.cfg.Collection, "vector_dim", dim)
	return nil
}

func (q *Qdrant) doJSON(ctx context.Context, op, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		var buf bytes.Buffer
		if err := json.NewEncoder(&buf).Encode(in); err != nil {
			return opErr(op, OperationErrorEncodeFailed, "encode request failed", err)
		}
		body = &buf
	}

	req, err := http.NewRequestWithContext(ctx, method, q.baseURL+path, body)
	if err != nil {
		return opErr(op, OperationErrorTransportFailed, "build request failed", err)
	}
	req.Header.Set("Content-Type", "application/json")
	q.authorize(req)

	resp, err := q.http.Do(req)
	if err != nil {
		return classifyHTTPCallError(op, "qdrant request failed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return opErr(op, OperationErrorDecodeFailed, "read response failed", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return &OperationError{
			Code:       OperationErrorNotFound,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("collection %q not found", q.cfg.Collection),
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("qdrant http status=%d body=%q", resp.StatusCode, truncateBody(raw)),
		}
	}

	var envelope qdrantEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant envelope failed", err)
	}
	if msg := parseEnvelopeStatus(envelope.Status); msg != "" {
		return &OperationError{
			Code:       OperationErrorQueryFailed,
			Operation:  op,
			StatusCode: resp.StatusCode,
			Message:    msg,
		}
	}

	if out == nil || len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return opErr(op, OperationErrorDecodeFailed, "decode qdrant result failed", err)
	}
	return nil
}

func (q *Qdrant) authorize(req *http.Request) {
	if q.cfg.APIKey != "" {
		req.Header.Set("api-key", q.cfg.APIKey)
	}
}

func (q *Qdrant) collectionPath(suffix string) string {
	return "/collections/" + q.cfg.Collection + suffix
}

func sourceFilter(source string) map[string]any {
	return map[string]any{
		"must": []any{
			map[string]any{"key": payloadSourceKey, "match": map[string]any{"value": source}},
		},
	}
}

func pointID(source string, seq int) string {
	return uuid.NewSHA1(pointIDNamespace, []byte(source+"|"+strconv.Itoa(seq))).String()
}

func parseEnvelopeStatus(raw json.RawMessage) string {
	status := strings.TrimSpace(string(raw))
	if status == "" || status == "null" {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if strings.EqualFold(s, "ok") || strings.EqualFold(s, "acknowledged") {
			return ""
		}
		return fmt.Sprintf("qdrant status=%q", s)
	}

	var obj struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && strings.TrimSpace(obj.Error) != "" {
		return strings.TrimSpace(obj.Error)
	}
	return fmt.Sprintf("qdrant status=%s", status)
}

func truncateBody(raw []byte) string {
	if len(raw) <= maxErrorBodyBytes {
		return string(raw)
	}
	return string(raw[:maxErrorBodyBytes]) + "..."
}
