package ingest_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/race"
	"github.com/kdani7777/Soothsayer/internal/text"
)

const (
	burbank = `Race 1:
{"Race Date": "Saturday - Tentative", "Location": "Burbank, CA", "Distances Available": "5K, 10K"}`
	broken = `Race 2:
{"Race Date": "Saturday - May 3, 2025"`
	pasadena = `Race 3:
{"Race Date": "Sunday - May 4, 2025", "Location": "Pasadena, CA", "Distances Available": "Half Marathon 13.1M"}`
)

func newPipeline(e ingest.Embedder, idx ingest.Index, ids ingest.IdentityAssigner) *ingest.Pipeline {
	return ingest.NewPipeline(
		text.NewChunker(text.ChunkerOptions{}),
		race.NewExtractor(),
		ids,
		e,
		ingest.NewUploader(idx, ingest.UploaderOptions{BatchSize: 100, Workers: 4}),
	)
}

func caDocument() text.Document {
	return text.Document{
		Content:  burbank + "\n\n" + broken + "\n\n" + pasadena + "\n\n",
		Metadata: map[string]string{"source": "s3://races/race-data/CA/CA_race_information.txt"},
	}
}

func TestPipeline_Run(t *testing.T) {
	e := new(MockEmbedder)
	idx := new(MockIndex)
	ids := &sequenceIDs{}

	e.On("EmbedBatch", mock.Anything, []string{burbank, pasadena}).
		Return([][]float32{{0.1, 0.2}, {0.3, 0.4}}, nil).Once()
	idx.On("Upsert", mock.Anything, mock.MatchedBy(func(recs []ingest.Record) bool {
		if len(recs) != 2 {
			return false
		}
		return recs[0].ID == "id-a" && recs[1].ID == "id-b" &&
			recs[0].Metadata.Location.City() == "Burbank" &&
			recs[1].Metadata.Date.Month() == "May" &&
			recs[1].Vector[0] == float32(0.3)
	})).Return(nil).Once()

	report, err := newPipeline(e, idx, ids).Run(context.Background(), caDocument())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Chunks)
	assert.Equal(t, 2, report.Processed)
	assert.Equal(t, 1, report.Skipped)
	require.Len(t, report.Skips, 1)
	assert.Contains(t, report.Skips[0].Reason, "malformed race record")
	assert.Equal(t, "s3://races/race-data/CA/CA_race_information.txt", report.Skips[0].Source)
	assert.Equal(t, 2, report.Upload.Uploaded)

	e.AssertExpectations(t)
	idx.AssertExpectations(t)
}

func TestPipeline_EmbeddingFailureUploadsNothing(t *testing.T) {
	e := new(MockEmbedder)
	idx := new(MockIndex)
	e.On("EmbedBatch", mock.Anything, mock.Anything).Return(nil, errors.New("quota exceeded"))

	report, err := newPipeline(e, idx, nil).Run(context.Background(), caDocument())
	require.Error(t, err)
	assert.ErrorIs(t, err, ingest.ErrEmbedding)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, 2, report.Processed)
	idx.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestPipeline_VectorCountMismatch(t *testing.T) {
	e := new(MockEmbedder)
	idx := new(MockIndex)
	e.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{0.1}}, nil)

	_, err := newPipeline(e, idx, nil).Run(context.Background(), caDocument())
	assert.ErrorIs(t, err, ingest.ErrEmbedding)
	idx.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestPipeline_NothingValid(t *testing.T) {
	e := new(MockEmbedder)
	idx := new(MockIndex)

	report, err := newPipeline(e, idx, nil).Run(context.Background(), text.Document{Content: broken + "\n\nnot a race"})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, 0, report.Processed)
	e.AssertNotCalled(t, "EmbedBatch", mock.Anything, mock.Anything)
	idx.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
}

func TestPipeline_UploadFailureSurfacesReport(t *testing.T) {
	e := new(MockEmbedder)
	idx := new(MockIndex)
	e.On("EmbedBatch", mock.Anything, mock.Anything).Return([][]float32{{0.1}, {0.2}}, nil)
	idx.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("503"))

	report, err := newPipeline(e, idx, nil).Run(context.Background(), caDocument())
	require.Error(t, err)

	var be *ingest.BatchError
	assert.True(t, errors.As(err, &be))
	assert.Len(t, report.Upload.Failed, 1)
	assert.Equal(t, 0, report.Upload.Uploaded)

	rendered, err := json.Marshal(report.Upload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"batches":1,"uploaded":0,"failed":[{"batch":0,"size":2,"error":"503"}]}`, string(rendered))
}

func TestReport_MarshalJSON(t *testing.T) {
	report := ingest.Report{
		Chunks:    3,
		Processed: 3,
		Upload: ingest.UploadReport{
			Batches:  2,
			Uploaded: 2,
			Failed:   []*ingest.BatchError{{Batch: 1, Size: 1, Err: errors.New("weaviate: 503 unavailable")}},
		},
	}

	rendered, err := json.Marshal(report)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"chunks": 3, "processed": 3, "skipped": 0,
		"upload": {
			"batches": 2, "uploaded": 2,
			"failed": [{"batch": 1, "size": 1, "error": "weaviate: 503 unavailable"}]
		}
	}`, string(rendered))
}

func TestPipeline_Extract(t *testing.T) {
	p := newPipeline(new(MockEmbedder), new(MockIndex), nil)

	outcomes := p.Extract(caDocument())
	require.Len(t, outcomes, 3)
	assert.False(t, outcomes[0].Skipped())
	assert.True(t, outcomes[1].Skipped())
	assert.True(t, errors.Is(outcomes[1].Err, race.ErrMalformedRecord))
	assert.False(t, outcomes[2].Skipped())
}
