package retrieval

import (
	"cmp"
	"context"
	"fmt"
	"slices"
)

// Ranked is one rerank score for the document at Index of the request.
type Ranked struct {
	Index int
	Score float64
}

type RerankService interface {
	Rerank(ctx context.Context, query string, docs []string, topN int) ([]Ranked, error)
}

type Reranker struct {
	service RerankService
	topN    int
}

func NewReranker(s RerankService, topN int) *Reranker {
	if topN <= 0 {
		topN = DefaultTopN
	}
	return &Reranker{service: s, topN: topN}
}

// Rerank orders texts by the rerank service's score and keeps the best topN.
// Texts are returned as given; the service only decides their order.
func (r *Reranker) Rerank(ctx context.Context, query string, texts []string) ([]string, error) {
	if len(texts) == 0 {
		return []string{}, nil
	}

	ranked, err := r.service.Rerank(ctx, query, texts, min(r.topN, len(texts)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRerank, err)
	}

	seen := make(map[int]bool, len(ranked))
	valid := make([]Ranked, 0, len(ranked))
	for _, rk := range ranked {
		if rk.Index < 0 || rk.Index >= len(texts) || seen[rk.Index] {
			continue
		}
		seen[rk.Index] = true
		valid = append(valid, rk)
	}
	slices.SortStableFunc(valid, func(a, b Ranked) int { return cmp.Compare(b.Score, a.Score) })

	if len(valid) > r.topN {
		valid = valid[:r.topN]
	}
	out := make([]string, len(valid))
	for i, rk := range valid {
		out[i] = texts[rk.Index]
	}
	return out, nil
}
