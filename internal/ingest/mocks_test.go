package ingest_test

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/kdani7777/Soothsayer/internal/ingest"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	args := m.Called(ctx, texts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([][]float32), args.Error(1)
}

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Upsert(ctx context.Context, records []ingest.Record) error {
	return m.Called(ctx, records).Error(0)
}

// recordingIndex remembers every batch and fails those selected by failOn.
type recordingIndex struct {
	mu       sync.Mutex
	batches  [][]ingest.Record
	failOn   func(batch []ingest.Record) error
	delay    time.Duration
	inFlight atomic.Int32
	maxSeen  atomic.Int32
}

func (r *recordingIndex) Upsert(ctx context.Context, records []ingest.Record) error {
	n := r.inFlight.Add(1)
	defer r.inFlight.Add(-1)
	for {
		seen := r.maxSeen.Load()
		if n <= seen || r.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	if r.delay > 0 {
		time.Sleep(r.delay)
	}

	r.mu.Lock()
	r.batches = append(r.batches, records)
	r.mu.Unlock()

	if r.failOn != nil {
		return r.failOn(records)
	}
	return nil
}

func (r *recordingIndex) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

type sequenceIDs struct {
	n int
}

func (s *sequenceIDs) NewID() string {
	s.n++
	return "id-" + string(rune('a'+s.n-1))
}
