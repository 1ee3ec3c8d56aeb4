package retrieval_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kdani7777/Soothsayer/internal/middleware"
	"github.com/kdani7777/Soothsayer/internal/retrieval"
)

type MockEmbedder struct{ mock.Mock }

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	args := m.Called(ctx, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]float32), args.Error(1)
}

type MockIndex struct{ mock.Mock }

func (m *MockIndex) Search(ctx context.Context, vector []float32, k int, filters map[string]string) ([]retrieval.Candidate, error) {
	args := m.Called(ctx, vector, k, filters)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.Candidate), args.Error(1)
}

type MockRerankService struct{ mock.Mock }

func (m *MockRerankService) Rerank(ctx context.Context, query string, docs []string, topN int) ([]retrieval.Ranked, error) {
	args := m.Called(ctx, query, docs, topN)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]retrieval.Ranked), args.Error(1)
}

func TestService_Context(t *testing.T) {
	tests := []struct {
		name    string
		filters map[string]string
		setup   func(*MockEmbedder, *MockIndex, *MockRerankService)
		want    []string
		wantErr error
	}{
		{
			name: "Retrieved Then Reranked",
			setup: func(e *MockEmbedder, idx *MockIndex, rr *MockRerankService) {
				e.On("Embed", mock.Anything, "flat marathon").Return([]float32{0.1}, nil)
				idx.On("Search", mock.Anything, []float32{0.1}, 20, map[string]string(nil)).
					Return([]retrieval.Candidate{{Text: "A", Score: 0.9}, {Text: "B", Score: 0.8}}, nil)
				rr.On("Rerank", mock.Anything, "flat marathon", []string{"A", "B"}, 2).
					Return([]retrieval.Ranked{{Index: 1, Score: 0.99}, {Index: 0, Score: 0.2}}, nil)
			},
			want: []string{"B", "A"},
		},
		{
			name:    "Filters Passed To Index",
			filters: map[string]string{"state": "CA"},
			setup: func(e *MockEmbedder, idx *MockIndex, rr *MockRerankService) {
				e.On("Embed", mock.Anything, "flat marathon").Return([]float32{0.1}, nil)
				idx.On("Search", mock.Anything, []float32{0.1}, 20, map[string]string{"state": "CA"}).
					Return([]retrieval.Candidate{{Text: "A", Score: 0.9}}, nil)
				rr.On("Rerank", mock.Anything, "flat marathon", []string{"A"}, 1).
					Return([]retrieval.Ranked{{Index: 0, Score: 0.5}}, nil)
			},
			want: []string{"A"},
		},
		{
			name: "No Candidates Skips Rerank",
			setup: func(e *MockEmbedder, idx *MockIndex, rr *MockRerankService) {
				e.On("Embed", mock.Anything, "flat marathon").Return([]float32{0.1}, nil)
				idx.On("Search", mock.Anything, []float32{0.1}, 20, map[string]string(nil)).
					Return([]retrieval.Candidate{}, nil)
			},
			want: []string{},
		},
		{
			name: "Embed Error",
			setup: func(e *MockEmbedder, idx *MockIndex, rr *MockRerankService) {
				e.On("Embed", mock.Anything, "flat marathon").Return(nil, errors.New("embed error"))
			},
			wantErr: retrieval.ErrRetrieval,
		},
		{
			name: "Index Error",
			setup: func(e *MockEmbedder, idx *MockIndex, rr *MockRerankService) {
				e.On("Embed", mock.Anything, "flat marathon").Return([]float32{0.1}, nil)
				idx.On("Search", mock.Anything, []float32{0.1}, 20, map[string]string(nil)).
					Return(nil, errors.New("index down"))
			},
			wantErr: retrieval.ErrRetrieval,
		},
		{
			name: "Rerank Error",
			setup: func(e *MockEmbedder, idx *MockIndex, rr *MockRerankService) {
				e.On("Embed", mock.Anything, "flat marathon").Return([]float32{0.1}, nil)
				idx.On("Search", mock.Anything, []float32{0.1}, 20, map[string]string(nil)).
					Return([]retrieval.Candidate{{Text: "A", Score: 0.9}}, nil)
				rr.On("Rerank", mock.Anything, "flat marathon", []string{"A"}, 1).
					Return(nil, errors.New("rerank down"))
			},
			wantErr: retrieval.ErrRerank,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := new(MockEmbedder)
			idx := new(MockIndex)
			rr := new(MockRerankService)
			tt.setup(e, idx, rr)

			svc := retrieval.NewService(
				retrieval.NewRetriever(e, idx, 20),
				retrieval.NewReranker(rr, 5),
				nil,
			)

			got, err := svc.Context(context.Background(), "flat marathon", tt.filters)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			e.AssertExpectations(t)
			idx.AssertExpectations(t)
			rr.AssertExpectations(t)
		})
	}
}

func TestService_Context_NoRerankCallOnEmpty(t *testing.T) {
	e := new(MockEmbedder)
	idx := new(MockIndex)
	rr := new(MockRerankService)
	e.On("Embed", mock.Anything, "q").Return([]float32{1}, nil)
	idx.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return([]retrieval.Candidate{}, nil)

	svc := retrieval.NewService(retrieval.NewRetriever(e, idx, 0), retrieval.NewReranker(rr, 0), nil)
	got, err := svc.Context(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, got)
	rr.AssertNotCalled(t, "Rerank", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestService_Context_LogsQuery(t *testing.T) {
	e := new(MockEmbedder)
	idx := new(MockIndex)
	rr := new(MockRerankService)
	e.On("Embed", mock.Anything, "q").Return([]float32{1}, nil)
	idx.On("Search", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return([]retrieval.Candidate{{Text: "A", Score: 1}, {Text: "B", Score: 0.5}}, nil)
	rr.On("Rerank", mock.Anything, "q", []string{"A", "B"}, 2).Return([]retrieval.Ranked{{Index: 0, Score: 1}}, nil)

	var buf bytes.Buffer
	svc := retrieval.NewService(retrieval.NewRetriever(e, idx, 20), retrieval.NewReranker(rr, 5), retrieval.NewQueryLogger(&buf))

	ctx := middleware.WithCorrelationID(context.Background(), "corr-1")
	_, err := svc.Context(ctx, "q", map[string]string{"state": "NV"})
	require.NoError(t, err)

	var entry retrieval.QueryLogEntry
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "q", entry.Query)
	assert.Equal(t, 2, entry.NumCandidates)
	assert.Equal(t, 1, entry.NumResults)
	assert.Equal(t, "corr-1", entry.CorrelationID)
	assert.Equal(t, "NV", entry.Filters["state"])
}
