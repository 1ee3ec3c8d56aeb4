package ingest

import (
	"context"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kdani7777/Soothsayer/internal/race"
	"github.com/kdani7777/Soothsayer/internal/text"
)

const tracerName = "soothsayer/internal/ingest"

// ChunkOutcome is the result of extracting one chunk: either a record or the
// reason the chunk was skipped.
type ChunkOutcome struct {
	Chunk  text.Chunk
	Record race.Record
	Err    error
}

func (o ChunkOutcome) Skipped() bool {
	return o.Err != nil
}

type Skip struct {
	Source string `json:"source,omitempty"`
	Reason string `json:"reason"`
}

type Report struct {
	Chunks    int          `json:"chunks"`
	Processed int          `json:"processed"`
	Skipped   int          `json:"skipped"`
	Skips     []Skip       `json:"skips,omitempty"`
	Upload    UploadReport `json:"upload"`
}

type Pipeline struct {
	chunker   *text.Chunker
	extractor *race.Extractor
	ids       IdentityAssigner
	embedder  Embedder
	uploader  *Uploader
	tracer    trace.Tracer
}

func NewPipeline(chunker *text.Chunker, extractor *race.Extractor, ids IdentityAssigner, embedder Embedder, uploader *Uploader) *Pipeline {
	if ids == nil {
		ids = UUIDAssigner{}
	}
	return &Pipeline{
		chunker:   chunker,
		extractor: extractor,
		ids:       ids,
		embedder:  embedder,
		uploader:  uploader,
		tracer:    otel.Tracer(tracerName),
	}
}

// Extract runs the extractor over every chunk of docs. Malformed chunks come
// back as skipped outcomes and never stop the rest.
func (p *Pipeline) Extract(docs ...text.Document) []ChunkOutcome {
	var outcomes []ChunkOutcome
	for _, doc := range docs {
		for chunk := range p.chunker.Chunks(doc) {
			rec, err := p.extractor.Extract(chunk)
			outcomes = append(outcomes, ChunkOutcome{Chunk: chunk, Record: rec, Err: err})
		}
	}
	return outcomes
}

// Run chunks, extracts, embeds and uploads docs. Embeddings for the whole run
// are computed before the first upsert, so an embedding failure uploads
// nothing.
func (p *Pipeline) Run(ctx context.Context, docs ...text.Document) (Report, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.run", trace.WithAttributes(attribute.Int("documents", len(docs))))
	defer span.End()

	report, records := p.extractStage(ctx, docs)
	span.SetAttributes(attribute.Int("chunks", report.Chunks), attribute.Int("skipped", report.Skipped))
	if len(records) == 0 {
		slog.InfoContext(ctx, "nothing to ingest", "chunks", report.Chunks, "skipped", report.Skipped)
		return report, nil
	}

	embedded, err := p.embedStage(ctx, records)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	upload, err := p.uploadStage(ctx, embedded)
	report.Upload = upload
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return report, err
	}

	slog.InfoContext(ctx, "ingestion complete",
		"chunks", report.Chunks,
		"processed", report.Processed,
		"skipped", report.Skipped,
		"uploaded", upload.Uploaded,
	)
	return report, nil
}

func (p *Pipeline) extractStage(ctx context.Context, docs []text.Document) (Report, []race.Record) {
	_, span := p.tracer.Start(ctx, "ingest.extract")
	defer span.End()

	var (
		report  Report
		records []race.Record
	)
	for _, o := range p.Extract(docs...) {
		report.Chunks++
		if o.Skipped() {
			report.Skipped++
			report.Skips = append(report.Skips, Skip{Source: o.Chunk.Metadata["source"], Reason: o.Err.Error()})
			slog.WarnContext(ctx, "skipping malformed chunk", "source", o.Chunk.Metadata["source"], "error", o.Err)
			continue
		}
		report.Processed++
		records = append(records, o.Record)
	}
	return report, records
}

func (p *Pipeline) embedStage(ctx context.Context, records []race.Record) ([]Record, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.embed", trace.WithAttributes(attribute.Int("texts", len(records))))
	defer span.End()

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}

	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		slog.ErrorContext(ctx, "embedding failed", "texts", len(texts), "error", err)
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbedding, len(vectors), len(texts))
	}

	out := make([]Record, len(records))
	for i, r := range records {
		out[i] = Record{ID: p.ids.NewID(), Vector: vectors[i], Metadata: r}
	}
	return out, nil
}

func (p *Pipeline) uploadStage(ctx context.Context, records []Record) (UploadReport, error) {
	ctx, span := p.tracer.Start(ctx, "ingest.upload", trace.WithAttributes(attribute.Int("records", len(records))))
	defer span.End()
	return p.uploader.Upload(ctx, records)
}
