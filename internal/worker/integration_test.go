package worker_test

import (
	"context"
	"testing"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdani7777/Soothsayer/features/job"
	"github.com/kdani7777/Soothsayer/internal/adapter/memory"
	"github.com/kdani7777/Soothsayer/internal/config"
	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/race"
	"github.com/kdani7777/Soothsayer/internal/testutils"
	"github.com/kdani7777/Soothsayer/internal/text"
	"github.com/kdani7777/Soothsayer/internal/worker"
)

// constantEmbedder returns the same vector for every text.
type constantEmbedder struct{}

func (constantEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range out {
		out[i] = []float32{0.1, 0.2, 0.3}
	}
	return out, nil
}

type staticLoader []text.Document

func (s staticLoader) Load(ctx context.Context, prefix string) ([]text.Document, error) {
	return s, nil
}

func TestIngestIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	s := testutils.NewIntegrationSuite(t)
	s.Setup()
	defer s.Teardown()

	index := memory.NewIndex()
	pipeline := ingest.NewPipeline(
		text.NewChunker(text.ChunkerOptions{}),
		race.NewExtractor(),
		nil,
		constantEmbedder{},
		ingest.NewUploader(index, ingest.UploaderOptions{BatchSize: 1, Workers: 2, Mode: ingest.ModeConcurrent}),
	)
	docs := staticLoader{{
		Content: `{"Race Name": "Burbank 10K", "Race Date": "Tentative", "Location": "Burbank, CA", "Distances Available": "5K, 10K"}` +
			"\n\n" +
			`{"Race Name": "Portland Marathon", "Race Date": "Sunday - October 6, 2024", "Location": "Portland, OR", "Distances Available": "26.2M"}`,
		Metadata: map[string]string{"source": "s3://races/race-data/mixed.txt"},
	}}

	consumer := worker.NewIngestConsumer(docs, pipeline, job.NewMemoryRepo(), "race-data")

	nsqConsumer, err := nsq.NewConsumer(config.TopicIngestRaces, "integration-test", nsq.NewConfig())
	require.NoError(t, err)
	nsqConsumer.AddHandler(consumer)

	// Publish before connecting so the topic exists.
	require.NoError(t, worker.PublishIngestTask(context.Background(), s.NSQ, "race-data"))

	require.NoError(t, nsqConsumer.ConnectToNSQD(s.NSQDAddr))
	defer nsqConsumer.Stop()

	require.Eventually(t, func() bool {
		n, err := index.Count(context.Background())
		return err == nil && n == 2
	}, 10*time.Second, 100*time.Millisecond, "records should be stored")

	res, err := index.Search(context.Background(), []float32{0.1, 0.2, 0.3}, 5, map[string]string{"state": "OR"})
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "October", res[0].Metadata["month"])
	assert.Equal(t, "2024", res[0].Metadata["year"])
}
