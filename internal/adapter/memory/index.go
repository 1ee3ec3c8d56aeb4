package memory

import (
	"context"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/race"
	"github.com/kdani7777/Soothsayer/internal/retrieval"
)

// Index is a process-local vector index using brute-force cosine similarity.
type Index struct {
	mu      sync.RWMutex
	records map[string]ingest.Record
}

func NewIndex() *Index {
	return &Index{records: make(map[string]ingest.Record)}
}

func (ix *Index) EnsureSchema(ctx context.Context) error {
	return nil
}

func (ix *Index) Upsert(ctx context.Context, records []ingest.Record) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, r := range records {
		r.Vector = slices.Clone(r.Vector)
		ix.records[r.ID] = r
	}
	return nil
}

func (ix *Index) Search(ctx context.Context, vec []float32, k int, filters map[string]string) ([]retrieval.Candidate, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	type hit struct {
		id    string
		score float32
	}
	hits := make([]hit, 0, len(ix.records))
	for id, r := range ix.records {
		if !matches(r.Metadata, filters) {
			continue
		}
		hits = append(hits, hit{id: id, score: cosineSimilarity(vec, r.Vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].id < hits[j].id
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}

	out := make([]retrieval.Candidate, len(hits))
	for i, h := range hits {
		r := ix.records[h.id]
		props := r.Metadata.Properties()
		delete(props, race.KeyText)
		props["id"] = h.id
		out[i] = retrieval.Candidate{Text: r.Metadata.Text, Score: h.score, Metadata: props}
	}
	return out, nil
}

func (ix *Index) Count(ctx context.Context) (int, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records), nil
}

// DeleteIndex drops every record. The name is ignored.
func (ix *Index) DeleteIndex(ctx context.Context, name string) error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	clear(ix.records)
	return nil
}

func matches(rec race.Record, filters map[string]string) bool {
	if len(filters) == 0 {
		return true
	}
	props := rec.StringProperties()
	for k, want := range filters {
		if k == race.KeyDistances {
			if !slices.Contains(rec.Distances, want) {
				return false
			}
			continue
		}
		if got, ok := props[k]; !ok || got != want {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// Snapshot returns a copy of the stored records keyed by id.
func (ix *Index) Snapshot() map[string]ingest.Record {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return maps.Clone(ix.records)
}
