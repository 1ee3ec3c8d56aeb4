package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kdani7777/Soothsayer/internal/race"
)

var ErrEmbedding = errors.New("embedding failed")

// Record is one enriched race chunk ready to be written to a vector index.
type Record struct {
	ID       string
	Vector   []float32
	Metadata race.Record
}

type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Index interface {
	Upsert(ctx context.Context, records []Record) error
}

type IdentityAssigner interface {
	NewID() string
}

// UUIDAssigner issues random v4 ids. Re-ingesting the same text yields a new
// id, so repeated runs append duplicates instead of overwriting.
type UUIDAssigner struct{}

func (UUIDAssigner) NewID() string {
	return uuid.NewString()
}

// BatchError reports one failed upsert batch.
type BatchError struct {
	Batch int
	Size  int
	Err   error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("upload batch %d (%d records): %v", e.Batch, e.Size, e.Err)
}

func (e *BatchError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the cause as its message.
func (e *BatchError) MarshalJSON() ([]byte, error) {
	var cause string
	if e.Err != nil {
		cause = e.Err.Error()
	}
	return json.Marshal(struct {
		Batch int    `json:"batch"`
		Size  int    `json:"size"`
		Error string `json:"error"`
	}{e.Batch, e.Size, cause})
}
