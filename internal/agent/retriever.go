package agent

import (
	"context"
	"log/slog"
	"strings"
)

// ContextSeparator joins retrieved passages.
const ContextSeparator = "\n\n---\n\n"

// NoContextPlaceholder is the context used when nothing was retrieved.
// Generation prompts receive it verbatim.
const NoContextPlaceholder = "No relevant context found."

// Searcher returns up to k passages ranked by similarity to query.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]string, error)
}

// Retriever builds the context string for a topic.
type Retriever struct {
	index Searcher
	k     int
}

// NewRetriever creates a Retriever. A nil index is allowed: every
// retrieval then yields NoContextPlaceholder.
func NewRetriever(index Searcher, k int) *Retriever {
	if k <= 0 {
		k = DefaultConfig().TopK
	}
	return &Retriever{index: index, k: k}
}

// Retrieve returns the joined passages for topic. Index failures are
// treated as "nothing found".
func (r *Retriever) Retrieve(ctx context.Context, topic string) (string, Outcome) {
	if r.index == nil {
		slog.Warn("no vector index available, returning empty context")
		return NoContextPlaceholder, staticOutcome
	}

	passages, err := r.index.Search(ctx, topic, r.k)
	if err != nil {
		slog.Error("retrieval failed", "topic", topic, "error", err)
		return NoContextPlaceholder, Outcome{Source: SourceFallbackUpstream, Err: err}
	}

	joined := JoinPassages(passages, r.k)
	slog.Info("retrieved context", "passages", min(len(passages), r.k), "chars", len(joined))
	return joined, modelOutcome
}

// JoinPassages joins up to k non-blank passages, or returns
// NoContextPlaceholder when there are none.
func JoinPassages(passages []string, k int) string {
	kept := make([]string, 0, min(len(passages), k))
	for _, p := range passages {
		if len(kept) == k {
			break
		}
		if strings.TrimSpace(p) == "" {
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		return NoContextPlaceholder
	}
	return strings.Join(kept, ContextSeparator)
}
