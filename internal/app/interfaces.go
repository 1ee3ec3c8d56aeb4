package app

import (
	"context"

	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/retrieval"
)

// VectorStore is implemented by every index backend.
type VectorStore interface {
	EnsureSchema(ctx context.Context) error
	Upsert(ctx context.Context, records []ingest.Record) error
	Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]retrieval.Candidate, error)
	Count(ctx context.Context) (int, error)
	DeleteIndex(ctx context.Context, name string) error
}

// Embedder serves both the batch ingest path and single query embedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type TaskPublisher interface {
	Publish(topic string, body []byte) error
}
