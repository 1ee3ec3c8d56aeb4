package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"

	"github.com/kdani7777/Soothsayer/internal/adapter/memory"
	"github.com/kdani7777/Soothsayer/internal/adapter/qdrant"
	wstore "github.com/kdani7777/Soothsayer/internal/adapter/weaviate"
	"github.com/kdani7777/Soothsayer/internal/config"
)

type Dependencies struct {
	VectorStore VectorStore
	NSQProducer *nsq.Producer

	closers []io.Closer
}

func Bootstrap(ctx context.Context, cfg *config.Config) (*Dependencies, error) {
	deps := &Dependencies{}

	vecStore, closer, err := NewVectorStore(cfg)
	if err != nil {
		return nil, err
	}
	if closer != nil {
		deps.closers = append(deps.closers, closer)
	}

	retryDelay := time.Duration(cfg.BootstrapRetryDelaySeconds) * time.Second
	if err := EnsureSchemaWithRetry(ctx, vecStore, cfg.BootstrapRetryAttempts, retryDelay); err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("%s schema error: %w", cfg.VectorBackend, err)
	}
	deps.VectorStore = vecStore

	producer, err := nsq.NewProducer(cfg.NSQDHost, nsq.NewConfig())
	if err != nil {
		_ = deps.Close()
		return nil, fmt.Errorf("nsq producer error: %w", err)
	}
	deps.NSQProducer = producer

	if cfg.NSQDHTTP != "" {
		createTopics(cfg.NSQDHTTP)
	}

	return deps, nil
}

// NewVectorStore opens the configured index backend. The returned closer is
// nil when the backend holds no connection.
func NewVectorStore(cfg *config.Config) (VectorStore, io.Closer, error) {
	switch cfg.VectorBackend {
	case config.BackendWeaviate:
		wClient, err := weaviate.NewClient(weaviate.Config{Host: cfg.WeaviateHost, Scheme: cfg.WeaviateScheme})
		if err != nil {
			return nil, nil, fmt.Errorf("weaviate client error: %w", err)
		}
		return wstore.NewStore(wClient, cfg.WeaviateClass), nil, nil
	case config.BackendQdrant:
		store, err := qdrant.New(cfg.QdrantAddr, cfg.QdrantCollection, cfg.EmbeddingDimensions)
		if err != nil {
			return nil, nil, fmt.Errorf("qdrant client error: %w", err)
		}
		return store, store, nil
	case config.BackendMemory:
		return memory.NewIndex(), nil, nil
	}
	return nil, nil, fmt.Errorf("%w: VECTOR_BACKEND %q", config.ErrInvalid, cfg.VectorBackend)
}

func (d *Dependencies) Close() error {
	var errs []error
	if d.NSQProducer != nil {
		d.NSQProducer.Stop()
	}
	for _, c := range d.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

func createTopics(nsqdHTTP string) {
	create := func(topic string) {
		endpoint := fmt.Sprintf("http://%s/topic/create?topic=%s", nsqdHTTP, url.QueryEscape(topic))
		resp, err := http.Post(endpoint, "application/json", nil) // #nosec G107 -- URL is built from internal NSQ config, not user input
		if err != nil {
			slog.Warn("failed to create NSQ topic", "topic", topic, "error", err)
			return
		}
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Warn("failed to close NSQ topic creation response body", "error", closeErr)
		}
	}

	go func() {
		time.Sleep(2 * time.Second)
		create(config.TopicIngestRaces)
	}()
}

// EnsureSchemaWithRetry retries schema creation while the index starts up.
func EnsureSchemaWithRetry(ctx context.Context, store VectorStore, attempts int, delay time.Duration) error {
	attempts = max(attempts, 1)
	var err error
	for i := 0; i < attempts; i++ {
		if err = store.EnsureSchema(ctx); err == nil {
			return nil
		}
		slog.Warn("failed to ensure schema, retrying...", "attempt", i+1, "max_attempts", attempts, "error", err)
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
	return err
}
