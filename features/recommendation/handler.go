package recommendation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kdani7777/Soothsayer/internal/adapter/strava"
	"github.com/kdani7777/Soothsayer/internal/middleware"
	"github.com/kdani7777/Soothsayer/internal/prompt"
	"github.com/kdani7777/Soothsayer/internal/race"
)

type StatsClient interface {
	AthleteStats(ctx context.Context, accessToken, athleteID string) (*strava.Stats, error)
}

type ContextService interface {
	Context(ctx context.Context, query string, filters map[string]string) ([]string, error)
}

// AthleteID accepts both a JSON number and a JSON string.
type AthleteID string

func (a *AthleteID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = AthleteID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*a = AthleteID(n.String())
	return nil
}

type Request struct {
	ID       AthleteID `json:"id"`
	Location string    `json:"location"`
}

type Response struct {
	Recommendations []map[string]any `json:"recommendations"`
}

type Handler struct {
	strava   StatsClient
	contexts ContextService
	now      func() time.Time
}

func NewHandler(s StatsClient, c ContextService) *Handler {
	return &Handler{strava: s, contexts: c, now: time.Now}
}

// Recommend turns the athlete's Strava totals into a retrieval query and
// returns the matching races as decoded JSON objects.
func (h *Handler) Recommend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	correlationID := middleware.GetCorrelationID(ctx)

	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(ctx, w, "VALIDATION_ERROR", "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		h.writeError(ctx, w, "VALIDATION_ERROR", "Missing athlete id", http.StatusBadRequest)
		return
	}

	token, ok := bearerToken(r)
	if !ok {
		h.writeError(ctx, w, "UNAUTHORIZED", "Missing access token", http.StatusUnauthorized)
		return
	}

	stats, err := h.strava.AthleteStats(ctx, token, string(req.ID))
	if err != nil {
		slog.ErrorContext(ctx, "failed to fetch athlete stats", "error", err, "athlete", req.ID, "correlationId", correlationID)
		status := http.StatusBadGateway
		var se *strava.StatusError
		if errors.As(err, &se) {
			status = se.StatusCode
		}
		h.writeError(ctx, w, "UPSTREAM_ERROR", "Failed to fetch athlete stats", status)
		return
	}

	query := prompt.Recommendation(*stats, req.Location, h.now())
	contexts, err := h.contexts.Context(ctx, query, nil)
	if err != nil {
		slog.ErrorContext(ctx, "context retrieval failed", "error", err, "correlationId", correlationID)
		h.writeError(ctx, w, "INTERNAL_ERROR", "failed to retrieve races", http.StatusInternalServerError)
		return
	}

	resp := Response{Recommendations: make([]map[string]any, 0, len(contexts))}
	for _, c := range contexts {
		fields, err := race.DecodeFields(c)
		if err != nil {
			slog.WarnContext(ctx, "skipping unparseable race context", "error", err)
			continue
		}
		resp.Recommendations = append(resp.Recommendations, fields)
	}

	slog.InfoContext(ctx, "recommendations ready", "athlete", req.ID, "count", len(resp.Recommendations))

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		slog.ErrorContext(ctx, "failed to encode response", "error", err)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(auth, "Bearer ")
	token = strings.TrimSpace(token)
	return token, found && token != ""
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
