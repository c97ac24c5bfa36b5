package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pavelanni/mentor/internal/agent"
	"github.com/pavelanni/mentor/internal/graph"
	"github.com/pavelanni/mentor/internal/llm"
	"github.com/pavelanni/mentor/internal/vectorindex"
)

func addLogFlags(f *pflag.FlagSet) {
	f.String("log-level", "info", "Log level (debug, info, warn, error)")
	f.String("log-format", "text", "Log format (text, json)")
}

func addLLMFlags(f *pflag.FlagSet) {
	d := llm.DefaultConfig()
	f.String("provider", d.Provider, "Generation backend (openai, anthropic, gemini, mock)")
	f.String("llm-url", d.OpenAI.BaseURL, "OpenAI-compatible API base URL")
	f.String("llm-key", d.OpenAI.APIKey, "API key for the OpenAI-compatible endpoint")
	f.String("llm-model", d.OpenAI.Model, "Model name for the OpenAI-compatible endpoint")
	f.String("response-format", d.OpenAI.ResponseFormat, "Structured output mode (json_object, json_schema, none)")
	f.String("anthropic-key", "", "Anthropic API key")
	f.String("anthropic-model", d.Anthropic.Model, "Anthropic model or alias")
	f.String("gemini-key", "", "Gemini API key")
	f.String("gemini-model", d.Gemini.Model, "Gemini model or alias")
	f.Int("retry-attempts", d.Retry.MaxAttempts, "Attempts per model call on transient errors")
	f.Duration("llm-timeout", d.Timeout, "Timeout for one model call including retries")
}

func addEmbedFlags(f *pflag.FlagSet) {
	d := llm.DefaultConfig()
	f.String("embed-url", "", "Embeddings API base URL (defaults to --llm-url)")
	f.String("embed-key", "", "Embeddings API key (defaults to --llm-key)")
	f.String("embed-model", d.Embedding.Model, "Embedding model name")
	f.String("redis-addr", "", "Redis address for the embedding cache (empty disables it)")
	f.Duration("redis-ttl", 24*time.Hour, "Embedding cache entry lifetime")
}

func addIndexFlags(f *pflag.FlagSet) {
	d := vectorindex.DefaultConfig()
	f.String("index", d.Backend, "Vector index backend (sqlite, qdrant, none)")
	f.String("index-path", d.SQLitePath, "SQLite index file")
	f.String("qdrant-url", d.Qdrant.URL, "Qdrant base URL")
	f.String("qdrant-key", "", "Qdrant API key")
	f.String("qdrant-collection", d.Qdrant.Collection, "Qdrant collection name")
}

func addAssistantFlags(f *pflag.FlagSet) {
	d := agent.DefaultConfig()
	f.Int("top-k", d.TopK, "Passages retrieved per query")
	f.Int("default-questions", d.DefaultQuestions, "Quiz length when the query does not name one")
	f.Int("max-questions", d.MaxQuestions, "Upper bound for a requested quiz length")
	f.Bool("strict-upstream", false, "Fail the run when the model is unreachable instead of using fallbacks")
	f.Duration("timeout", 0, "Timeout for a whole run (0 = none)")
	f.StringP("lang", "l", "en", "Output language for fixed texts (en, ru)")
}

func llmConfig(v *viper.Viper) llm.Config {
	cfg := llm.DefaultConfig()
	cfg.Provider = strings.ToLower(v.GetString("provider"))
	cfg.OpenAI.BaseURL = v.GetString("llm-url")
	cfg.OpenAI.APIKey = v.GetString("llm-key")
	cfg.OpenAI.Model = v.GetString("llm-model")
	cfg.OpenAI.ResponseFormat = v.GetString("response-format")
	cfg.Anthropic.APIKey = v.GetString("anthropic-key")
	cfg.Anthropic.Model = v.GetString("anthropic-model")
	cfg.Gemini.APIKey = v.GetString("gemini-key")
	cfg.Gemini.Model = v.GetString("gemini-model")
	cfg.Embedding.BaseURL = v.GetString("embed-url")
	cfg.Embedding.APIKey = v.GetString("embed-key")
	cfg.Embedding.Model = v.GetString("embed-model")
	if n := v.GetInt("retry-attempts"); n > 0 {
		cfg.Retry.MaxAttempts = n
	}
	cfg.Timeout = v.GetDuration("llm-timeout")
	return cfg
}

func indexConfig(v *viper.Viper) vectorindex.Config {
	cfg := vectorindex.DefaultConfig()
	cfg.Backend = strings.ToLower(v.GetString("index"))
	cfg.SQLitePath = v.GetString("index-path")
	cfg.Qdrant.URL = v.GetString("qdrant-url")
	cfg.Qdrant.APIKey = v.GetString("qdrant-key")
	cfg.Qdrant.Collection = v.GetString("qdrant-collection")
	return cfg
}

func graphConfig(v *viper.Viper) graph.Config {
	cfg := graph.DefaultConfig()
	cfg.Agent.TopK = v.GetInt("top-k")
	cfg.Agent.DefaultQuestions = v.GetInt("default-questions")
	cfg.Agent.MaxQuestions = v.GetInt("max-questions")
	cfg.Agent = cfg.Agent.WithDefaults()
	cfg.StrictUpstream = v.GetBool("strict-upstream")
	cfg.Timeout = v.GetDuration("timeout")
	return cfg
}

// newEmbedder builds the embedder, fronted by the Redis cache when an
// address is configured. The returned cleanup closes the cache.
func newEmbedder(ctx context.Context, v *viper.Viper, cfg llm.Config) (llm.Embedder, func(), error) {
	base, err := llm.NewEmbedder(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create embedder: %w", err)
	}
	addr := v.GetString("redis-addr")
	if addr == "" {
		return base, func() {}, nil
	}
	cache, err := llm.NewRedisCache(ctx, addr, v.GetDuration("redis-ttl"))
	if err != nil {
		return nil, nil, fmt.Errorf("connect embedding cache: %w", err)
	}
	slog.Info("embedding cache enabled", "addr", addr)
	return llm.WithEmbeddingCache(base, cache), func() { _ = cache.Close() }, nil
}

// dependencies are the long-lived objects a run needs.
type dependencies struct {
	assistant *graph.Assistant
	llmCfg    llm.Config
	indexName string
	closers   []func()
}

func (d *dependencies) Close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

// buildAssistant wires provider, index and graph. An index that cannot
// be opened is logged and the assistant runs without retrieval.
func buildAssistant(ctx context.Context, v *viper.Viper) (*dependencies, error) {
	llmCfg := llmConfig(v)
	provider, err := llm.NewProvider(ctx, llmCfg, slog.Default())
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	deps := &dependencies{llmCfg: llmCfg, indexName: vectorindex.BackendNone}

	var searcher agent.Searcher
	idxCfg := indexConfig(v)
	if idxCfg.Backend != vectorindex.BackendNone && idxCfg.Backend != "" {
		idx, err := openIndex(ctx, v, llmCfg, idxCfg, deps)
		switch {
		case vectorindex.IsCode(err, vectorindex.OperationErrorEmptyIndex):
			slog.Warn("vector index is empty, answering without retrieved context", "error", err)
		case err != nil:
			slog.Warn("vector index unavailable, answering without retrieved context", "backend", idxCfg.Backend, "error", err)
		default:
			searcher = idx
			deps.indexName = idxCfg.Backend
			deps.closers = append(deps.closers, func() { _ = idx.Close() })
		}
	}

	deps.assistant = graph.New(provider, searcher, graphConfig(v))
	return deps, nil
}

func openIndex(ctx context.Context, v *viper.Viper, llmCfg llm.Config, idxCfg vectorindex.Config, deps *dependencies) (vectorindex.Index, error) {
	embedder, cleanup, err := newEmbedder(ctx, v, llmCfg)
	if err != nil {
		return nil, err
	}
	idx, err := vectorindex.Open(ctx, idxCfg, embedder)
	if err != nil {
		cleanup()
		return nil, err
	}
	if idx == nil {
		cleanup()
		return nil, errors.New("no index configured")
	}
	deps.closers = append(deps.closers, cleanup)
	return idx, nil
}
