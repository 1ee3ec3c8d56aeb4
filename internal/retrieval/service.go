package retrieval

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kdani7777/Soothsayer/internal/middleware"
)

type Service struct {
	retriever *Retriever
	reranker  *Reranker
	logger    *QueryLogger
	tracer    trace.Tracer
}

func NewService(ret *Retriever, rr *Reranker, l *QueryLogger) *Service {
	return &Service{
		retriever: ret,
		reranker:  rr,
		logger:    l,
		tracer:    otel.Tracer("soothsayer/internal/retrieval"),
	}
}

// Context retrieves candidates for query and reranks them into the ordered
// texts handed to answer generation. An empty result is not an error.
func (s *Service) Context(ctx context.Context, query string, filters map[string]string) ([]string, error) {
	ctx, span := s.tracer.Start(ctx, "retrieval.context", trace.WithAttributes(attribute.Int("filters", len(filters))))
	defer span.End()

	start := time.Now()
	var (
		candidates []Candidate
		final      []string
		err        error
	)

	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.ErrorContext(ctx, "query failed", "error", err)
			return
		}
		if s.logger != nil {
			s.logger.Log(QueryLogEntry{
				Query:         query,
				Filters:       filters,
				NumCandidates: len(candidates),
				NumResults:    len(final),
				Duration:      time.Since(start),
				CorrelationID: middleware.GetCorrelationID(ctx),
			})
		}
	}()

	candidates, err = s.retriever.Retrieve(ctx, query, filters)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("candidates", len(candidates)))
	if len(candidates) == 0 {
		final = []string{}
		return final, nil
	}

	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Text
	}

	final, err = s.reranker.Rerank(ctx, query, texts)
	if err != nil {
		return nil, err
	}
	return final, nil
}
