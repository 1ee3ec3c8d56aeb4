package retrieval

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

const (
	DefaultTopK = 20
	DefaultTopN = 5
)

var (
	ErrRetrieval = errors.New("retrieval failed")
	ErrRerank    = errors.New("rerank failed")
)

// Candidate is one similarity-search hit.
type Candidate struct {
	Text     string         `json:"text"`
	Score    float32        `json:"score"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Index interface {
	Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]Candidate, error)
}

type Retriever struct {
	embedder Embedder
	index    Index
	k        int
}

func NewRetriever(e Embedder, idx Index, k int) *Retriever {
	if k <= 0 {
		k = DefaultTopK
	}
	return &Retriever{embedder: e, index: idx, k: k}
}

// Retrieve returns at most k candidates for query, best first. No hits is an
// empty result, not an error.
func (r *Retriever) Retrieve(ctx context.Context, query string, filters map[string]string) ([]Candidate, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", ErrRetrieval, err)
	}

	hits, err := r.index.Search(ctx, vec, r.k, filters)
	if err != nil {
		return nil, fmt.Errorf("%w: search: %w", ErrRetrieval, err)
	}

	out := slices.Clone(hits)
	slices.SortStableFunc(out, func(a, b Candidate) int { return cmp.Compare(b.Score, a.Score) })
	if len(out) > r.k {
		out = out[:r.k]
	}
	if out == nil {
		out = []Candidate{}
	}
	return out, nil
}
