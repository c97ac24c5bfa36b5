package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// VectorCache stores encoded vectors by key.
type VectorCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, val []byte) error
}

// CachedEmbedder consults a VectorCache before calling the inner Embedder.
// Cache errors are logged and treated as misses.
type CachedEmbedder struct {
	inner Embedder
	cache VectorCache
}

// WithEmbeddingCache wraps e with cache.
func WithEmbeddingCache(e Embedder, cache VectorCache) *CachedEmbedder {
	return &CachedEmbedder{inner: e, cache: cache}
}

func (c *CachedEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingIdx []int

	for i, t := range texts {
		raw, ok, err := c.cache.Get(ctx, c.key(t))
		if err != nil {
			slog.Warn("embedding cache read failed", "error", err)
		}
		if ok {
			if v, err := DecodeVector(raw); err == nil {
				out[i] = v
				continue
			}
		}
		missing = append(missing, t)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) == 0 {
		return out, nil
	}

	fresh, err := c.inner.Embed(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, v := range fresh {
		out[missingIdx[j]] = v
		if err := c.cache.Set(ctx, c.key(missing[j]), EncodeVector(v)); err != nil {
			slog.Warn("embedding cache write failed", "error", err)
		}
	}
	return out, nil
}

func (c *CachedEmbedder) ModelID() string {
	return c.inner.ModelID()
}

func (c *CachedEmbedder) key(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "mentor:emb:" + c.inner.ModelID() + ":" + hex.EncodeToString(sum[:])
}

// RedisCache is a VectorCache backed by Redis.
type RedisCache struct {
	rdb *goredis.Client
	ttl time.Duration
}

// NewRedisCache connects to addr and pings it before returning.
func NewRedisCache(ctx context.Context, addr string, ttl time.Duration) (*RedisCache, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisCache{rdb: rdb, ttl: ttl}, nil
}

func (r *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	b, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return b, true, nil
}

func (r *RedisCache) Set(ctx context.Context, key string, val []byte) error {
	return r.rdb.Set(ctx, key, val, r.ttl).Err()
}

// Close releases the connection pool.
func (r *RedisCache) Close() error {
	return r.rdb.Close()
}
