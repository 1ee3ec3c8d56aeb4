package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kdani7777/Soothsayer/internal/middleware"
	"github.com/kdani7777/Soothsayer/internal/prompt"
)

type ContextService interface {
	Context(ctx context.Context, query string, filters map[string]string) ([]string, error)
}

type Answerer interface {
	Answer(ctx context.Context, prompt string) (string, error)
}

type Handler struct {
	contexts ContextService
	answerer Answerer
	now      func() time.Time
}

func NewHandler(c ContextService, a Answerer) *Handler {
	return &Handler{contexts: c, answerer: a, now: time.Now}
}

type Request struct {
	Query   string            `json:"query"`
	Filters map[string]string `json:"filters,omitempty"`
}

type Response struct {
	Query  string `json:"query"`
	Answer string `json:"answer"`
}

// Chat answers a free-text question from the reranked race context.
func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "No query provided", http.StatusBadRequest)
		return
	}

	slog.InfoContext(ctx, "chat query", "query", req.Query, "correlationId", correlationID)

	contexts, err := h.contexts.Context(ctx, req.Query, req.Filters)
	if err != nil {
		slog.ErrorContext(ctx, "context retrieval failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to retrieve context", http.StatusInternalServerError)
		return
	}

	answer, err := h.answerer.Answer(ctx, prompt.Answer(req.Query, contexts, h.now()))
	if err != nil {
		slog.ErrorContext(ctx, "answer generation failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to generate answer", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(Response{Query: req.Query, Answer: answer}); err != nil {
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
