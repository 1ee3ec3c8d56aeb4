package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kdani7777/Soothsayer/internal/middleware"
	"github.com/kdani7777/Soothsayer/internal/worker"
)

type Handler struct {
	pub           worker.TaskPublisher
	defaultPrefix string
}

func NewHandler(pub worker.TaskPublisher, defaultPrefix string) *Handler {
	return &Handler{pub: pub, defaultPrefix: defaultPrefix}
}

type Request struct {
	Prefix string `json:"prefix"`
}

// Trigger enqueues an ingest task for the given S3 prefix. An empty body
// ingests the configured default prefix.
func (h *Handler) Trigger(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}
	prefix := strings.TrimSpace(req.Prefix)
	if prefix == "" {
		prefix = h.defaultPrefix
	}

	if err := worker.PublishIngestTask(ctx, h.pub, prefix); err != nil {
		slog.ErrorContext(ctx, "failed to publish ingest task", "error", err, "prefix", prefix, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to enqueue ingest task", http.StatusInternalServerError)
		return
	}

	slog.InfoContext(ctx, "ingest task enqueued", "prefix", prefix, "correlationId", correlationID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(map[string]interface{}{"data": map[string]string{"prefix": prefix, "status": "queued"}}); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, code, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := map[string]interface{}{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
		"correlationId": middleware.GetCorrelationID(ctx),
	}

	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}
