// Package vectorindex stores embedded corpus chunks and answers
// similarity searches over them.
package vectorindex

import (
	"context"
	"math"
	"sort"

	"github.com/pavelanni/mentor/internal/model"
)

// Index is a searchable, writable chunk collection.
type Index interface {
	// Search returns up to k chunk texts ranked by similarity to query.
	// An empty index returns no passages and no error.
	Search(ctx context.Context, query string, k int) ([]string, error)
	// DocumentHash returns the SHA-256 recorded for source, or "".
	DocumentHash(ctx context.Context, source string) (string, error)
	// ReplaceDocument swaps every chunk of doc.Source for chunks.
	ReplaceDocument(ctx context.Context, doc model.Document, chunks []model.Chunk) error
	Close() error
}

type scored struct {
	id    int64
	text  string
	score float64
}

// rank orders candidates by descending score, ties broken by id, and
// keeps the first k.
func rank(candidates []scored, k int) []string {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].id < candidates[j].id
		}
		return candidates[i].score > candidates[j].score
	})
	if k > len(candidates) {
		k = len(candidates)
	}
	out := make([]string, 0, k)
	for _, c := range candidates[:k] {
		out = append(out, c.text)
	}
	return out
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := min(len(a), len(b))
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		av := float64(a[i])
		bv := float64(b[i])
		dot += av * bv
		na += av * av
		nb += bv * bv
	}
	if na <= 0 || nb <= 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
