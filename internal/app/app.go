package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/nsqio/go-nsq"

	"github.com/kdani7777/Soothsayer/features/chat"
	ingestapi "github.com/kdani7777/Soothsayer/features/ingest"
	"github.com/kdani7777/Soothsayer/features/job"
	"github.com/kdani7777/Soothsayer/features/recommendation"
	"github.com/kdani7777/Soothsayer/features/stats"
	"github.com/kdani7777/Soothsayer/internal/adapter/gemini"
	"github.com/kdani7777/Soothsayer/internal/adapter/openai"
	"github.com/kdani7777/Soothsayer/internal/adapter/reranker"
	"github.com/kdani7777/Soothsayer/internal/adapter/s3"
	"github.com/kdani7777/Soothsayer/internal/adapter/strava"
	"github.com/kdani7777/Soothsayer/internal/config"
	"github.com/kdani7777/Soothsayer/internal/ingest"
	"github.com/kdani7777/Soothsayer/internal/middleware"
	"github.com/kdani7777/Soothsayer/internal/race"
	"github.com/kdani7777/Soothsayer/internal/retrieval"
	"github.com/kdani7777/Soothsayer/internal/schedule"
	"github.com/kdani7777/Soothsayer/internal/text"
	"github.com/kdani7777/Soothsayer/internal/worker"
)

// Options replaces provider-backed collaborators, mostly for tests.
type Options struct {
	Embedder Embedder
	Answerer chat.Answerer
	Reranker retrieval.RerankService
	Loader   worker.Loader
	Strava   recommendation.StatsClient
}

type App struct {
	Handler        http.Handler
	Pipeline       *ingest.Pipeline
	Retrieval      *retrieval.Service
	IngestConsumer *worker.IngestConsumer
	Jobs           *job.Service
	Scheduler      *schedule.CronScheduler

	cfg     *config.Config
	loader  worker.Loader
	closers []io.Closer
}

func New(
	cfg *config.Config,
	vecStore VectorStore,
	taskPub TaskPublisher,
	logger *slog.Logger,
	opts *Options,
) (*App, error) {
	if opts == nil {
		opts = &Options{}
	}
	a := &App{cfg: cfg}

	// Adapters
	embedder := opts.Embedder
	if embedder == nil {
		embedder = a.newEmbedder()
	}
	answerer := opts.Answerer
	if answerer == nil {
		g := gemini.NewAnswerer(cfg.GeminiAPIKey, cfg.LLMModel)
		a.closers = append(a.closers, g)
		answerer = g
	}
	rerankService := opts.Reranker
	if rerankService == nil {
		rerankService = reranker.NewClient(cfg.RerankProvider, cfg.RerankAPIKey, cfg.RerankModel)
	}
	statsClient := opts.Strava
	if statsClient == nil {
		statsClient = strava.NewClient(cfg.StravaBaseURL)
	}
	a.loader = opts.Loader
	if a.loader == nil && cfg.S3Bucket != "" {
		l, err := s3.New(context.Background(), s3.Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.AWSAccessID,
			SecretKey: cfg.AWSSecret,
		})
		if err != nil {
			return nil, err
		}
		a.loader = l
	}

	// Ingestion
	chunker := text.NewChunker(text.ChunkerOptions{
		MaxRecordSize: cfg.ChunkMaxRecordSize,
		Splitter:      text.NewRecursiveSplitter(cfg.ChunkSize, cfg.ChunkOverlap),
	})
	uploader := ingest.NewUploader(vecStore, ingest.UploaderOptions{
		BatchSize:     cfg.UploadBatchSize,
		Workers:       cfg.UploadConcurrency,
		Mode:          ingest.Mode(cfg.UploadMode),
		RatePerSecond: cfg.UploadRatePerSecond,
	})
	a.Pipeline = ingest.NewPipeline(chunker, race.NewExtractor(), ingest.UUIDAssigner{}, embedder, uploader)

	// Retrieval
	var queryEmbedder retrieval.Embedder = embedder
	if cfg.QueryCacheSize > 0 {
		cached, err := retrieval.NewCachedEmbedder(embedder, cfg.QueryCacheSize)
		if err != nil {
			return nil, fmt.Errorf("query cache: %w", err)
		}
		queryEmbedder = cached
	}
	queryLogger := retrieval.NewQueryLogger(os.Stdout)
	if cfg.QueryLogPath != "" {
		fileLogger, err := retrieval.NewFileQueryLogger(cfg.QueryLogPath)
		if err != nil {
			slog.Warn("failed to create query logger, falling back to stdout", "error", err)
		} else {
			queryLogger = fileLogger
		}
	}
	a.Retrieval = retrieval.NewService(
		retrieval.NewRetriever(queryEmbedder, vecStore, cfg.RetrieveTopK),
		retrieval.NewReranker(rerankService, cfg.RerankTopN),
		queryLogger,
	)

	// Feature: Job
	jobRepo := job.NewMemoryRepo()
	a.Jobs = job.NewService(jobRepo, taskPub, logger)
	jobHandler := job.NewHandler(a.Jobs)

	// Feature: Stats
	statsHandler := stats.NewHandler(a.Jobs, vecStore)

	// Feature: Chat, Recommendation, Ingest
	chatHandler := chat.NewHandler(a.Retrieval, answerer)
	recHandler := recommendation.NewHandler(statsClient, a.Retrieval)
	ingestHandler := ingestapi.NewHandler(taskPub, cfg.S3Prefix)

	// Worker
	if a.loader != nil {
		a.IngestConsumer = worker.NewIngestConsumer(a.loader, a.Pipeline, jobRepo, cfg.S3Prefix)
	}

	// Scheduler
	if cfg.IngestSchedule != "" {
		a.Scheduler = schedule.NewCronScheduler()
		if err := a.Scheduler.AddJob(schedule.IngestJob{Publisher: taskPub, Prefix: cfg.S3Prefix}, cfg.IngestSchedule); err != nil {
			return nil, fmt.Errorf("%w: INGEST_SCHEDULE: %w", config.ErrInvalid, err)
		}
	}

	// Routes
	mux := http.NewServeMux()

	mux.Handle("POST /chat", middleware.CorrelationID(middleware.CORS(chatHandler.Chat)))
	mux.Handle("POST /recommendations", middleware.CorrelationID(middleware.CORS(recHandler.Recommend)))
	mux.Handle("POST /ingest", middleware.CorrelationID(middleware.CORS(ingestHandler.Trigger)))

	mux.Handle("GET /jobs/failed", middleware.CorrelationID(middleware.CORS(jobHandler.List)))
	mux.Handle("GET /jobs/failed/{id}", middleware.CorrelationID(middleware.CORS(jobHandler.Get)))
	mux.Handle("POST /jobs/{id}/retry", middleware.CorrelationID(middleware.CORS(jobHandler.Retry)))

	mux.Handle("GET /stats", middleware.CorrelationID(middleware.CORS(statsHandler.GetStats)))

	mux.Handle("OPTIONS /", middleware.CORS(func(w http.ResponseWriter, r *http.Request) {}))

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	a.Handler = mux
	return a, nil
}

func (a *App) newEmbedder() Embedder {
	if a.cfg.EmbeddingProvider == config.ProviderOpenAI {
		return openai.NewEmbedder(a.cfg.OpenAIAPIKey, a.cfg.OpenAIBaseURL, a.cfg.EmbeddingModel, a.cfg.EmbeddingDimensions)
	}
	g := gemini.NewEmbedder(a.cfg.GeminiAPIKey, a.cfg.EmbeddingModel)
	a.closers = append(a.closers, g)
	return g
}

// Ingest loads every document under prefix and runs the pipeline once,
// outside the queue.
func (a *App) Ingest(ctx context.Context, prefix string) (ingest.Report, error) {
	if a.loader == nil {
		return ingest.Report{}, fmt.Errorf("%w: S3_BUCKET", config.ErrMissingRequired)
	}
	if prefix == "" {
		prefix = a.cfg.S3Prefix
	}
	docs, err := a.loader.Load(ctx, prefix)
	if err != nil {
		return ingest.Report{}, err
	}
	return a.Pipeline.Run(ctx, docs...)
}

// Run serves the API and consumes ingest tasks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a.cfg.EnableWorker {
		consumer, err := a.startConsumer()
		if err != nil {
			return err
		}
		if consumer != nil {
			defer func() {
				consumer.Stop()
				<-consumer.StopChan
			}()
		}
	}

	if a.Scheduler != nil {
		a.Scheduler.Start(ctx)
		defer a.Scheduler.Stop()
	}

	if !a.cfg.EnableAPI {
		<-ctx.Done()
		return nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.ServerPort),
		Handler:           a.Handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown failed", "error", err)
		}
	}()

	slog.Info("server starting", "port", a.cfg.ServerPort)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *App) startConsumer() (*nsq.Consumer, error) {
	if a.IngestConsumer == nil {
		slog.Warn("ingest worker disabled: no document source configured")
		return nil, nil
	}

	nsqCfg := nsq.NewConfig()
	nsqCfg.MaxAttempts = worker.DefaultMaxAttempts
	consumer, err := nsq.NewConsumer(config.TopicIngestRaces, config.ChannelIngestWorker, nsqCfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer error: %w", err)
	}
	consumer.AddHandler(a.IngestConsumer)

	if a.cfg.NSQLookupd != "" {
		err = consumer.ConnectToNSQLookupd(a.cfg.NSQLookupd)
	} else {
		err = consumer.ConnectToNSQD(a.cfg.NSQDHost)
	}
	if err != nil {
		return nil, fmt.Errorf("nsq connect error: %w", err)
	}
	slog.Info("NSQ ingest consumer connected", "topic", config.TopicIngestRaces)
	return consumer, nil
}

func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
