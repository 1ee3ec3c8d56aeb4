package gemini

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// MaxBatch is the most texts the API accepts in one batchEmbedContents call.
const MaxBatch = 100

const DefaultEmbeddingModel = "text-embedding-004"

type Embedder struct {
	apiKey     string
	model      string
	clientOpts []option.ClientOption

	mu     sync.Mutex
	client *genai.Client
}

func NewEmbedder(apiKey, model string, opts ...option.ClientOption) *Embedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &Embedder{apiKey: apiKey, model: model, clientOpts: opts}
}

// Embed embeds a search query.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	em, err := e.embeddingModel(ctx, genai.TaskTypeRetrievalQuery)
	if err != nil {
		return nil, err
	}

	slog.DebugContext(ctx, "embedding query", "model", e.model, "length", len(text))
	res, err := em.EmbedContent(ctx, genai.Text(text))
	if err != nil {
		return nil, fmt.Errorf("gemini embed: %w", err)
	}
	if res.Embedding == nil || len(res.Embedding.Values) == 0 {
		return nil, fmt.Errorf("gemini embed: empty embedding received")
	}
	return res.Embedding.Values, nil
}

// EmbedBatch embeds race documents, splitting the request into calls of at
// most MaxBatch texts. Output order matches texts.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em, err := e.embeddingModel(ctx, genai.TaskTypeRetrievalDocument)
	if err != nil {
		return nil, err
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatch {
		end := min(start+MaxBatch, len(texts))

		batch := em.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(genai.Text(t))
		}

		res, err := em.BatchEmbedContents(ctx, batch)
		if err != nil {
			slog.ErrorContext(ctx, "batch embedding failed", "model", e.model, "offset", start, "error", err)
			return nil, fmt.Errorf("gemini batch embed [%d:%d]: %w", start, end, err)
		}
		if len(res.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini batch embed [%d:%d]: got %d embeddings", start, end, len(res.Embeddings))
		}
		for _, emb := range res.Embeddings {
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

func (e *Embedder) embeddingModel(ctx context.Context, task genai.TaskType) (*genai.EmbeddingModel, error) {
	client, err := e.getClient(ctx)
	if err != nil {
		return nil, err
	}
	em := client.EmbeddingModel(e.model)
	em.TaskType = task
	return em, nil
}

func (e *Embedder) getClient(ctx context.Context) (*genai.Client, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client != nil {
		return e.client, nil
	}
	client, err := newClient(ctx, e.apiKey, e.clientOpts)
	if err != nil {
		return nil, err
	}
	e.client = client
	return client, nil
}

func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.client == nil {
		return nil
	}
	err := e.client.Close()
	e.client = nil
	return err
}

func newClient(ctx context.Context, apiKey string, opts []option.ClientOption) (*genai.Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key not configured")
	}
	all := append([]option.ClientOption{option.WithAPIKey(apiKey)}, opts...)
	return genai.NewClient(ctx, all...)
}
