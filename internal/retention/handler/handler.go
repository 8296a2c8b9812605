package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"governor/internal/retention"
	dErrors "governor/pkg/domain-errors"
	"governor/pkg/platform/httputil"
	"governor/pkg/requestcontext"
)

// Service defines the interface for memory operations.
type Service interface {
	Append(ctx context.Context, entry retention.Entry) (string, error)
	Query(ctx context.Context, filter retention.Filter, k int) ([]retention.Entry, error)
}

// Handler wires memory endpoints to the retention service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a retention handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts memory endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/memory", h.HandleAppend)
	r.Get("/v1/memory", h.HandleQuery)
}

// AppendRequest is the POST /v1/memory body.
type AppendRequest struct {
	Content   string    `json:"content"`
	Salience  float64   `json:"salience_score"`
	SessionID string    `json:"session_id,omitempty"`
	Embedding []float32 `json:"embedding,omitempty"`
	Policy    string    `json:"retention_policy"`
}

// AppendResponse carries the assigned entry ID.
type AppendResponse struct {
	ID string `json:"id"`
}

// QueryResponse is the envelope for memory query results.
type QueryResponse struct {
	Entries []retention.Entry `json:"entries"`
}

// HandleAppend handles POST /v1/memory requests.
func (h *Handler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.Decode[AppendRequest](w, r, h.logger)
	if !ok {
		return
	}

	id, err := h.service.Append(ctx, retention.Entry{
		Content:   req.Content,
		Salience:  req.Salience,
		SessionID: req.SessionID,
		Embedding: req.Embedding,
		Policy:    req.Policy,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "memory append failed",
			"request_id", requestID,
			"policy", req.Policy,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "memory entry appended",
		"request_id", requestID,
		"entry_id", id,
		"policy", req.Policy,
	)
	httputil.WriteJSON(w, http.StatusCreated, AppendResponse{ID: id})
}

// HandleQuery handles GET /v1/memory requests. Filters come from query
// parameters: session_id, policy, since (RFC 3339), k, and an optional
// comma-separated embedding vector for similarity ranking.
func (h *Handler) HandleQuery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	params := r.URL.Query()

	filter := retention.Filter{
		SessionID: params.Get("session_id"),
		Policy:    params.Get("policy"),
	}

	if raw := params.Get("since"); raw != "" {
		since, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "invalid since timestamp %q", raw))
			return
		}
		filter.Since = since
	}

	if raw := params.Get("embedding"); raw != "" {
		embedding, err := parseEmbedding(raw)
		if err != nil {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid embedding vector"))
			return
		}
		filter.Embedding = embedding
	}

	k := 0
	if raw := params.Get("k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeBadRequest, "invalid k %q", raw))
			return
		}
		k = parsed
	}

	entries, err := h.service.Query(ctx, filter, k)
	if err != nil {
		h.logger.ErrorContext(ctx, "memory query failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, QueryResponse{Entries: entries})
}

func parseEmbedding(raw string) ([]float32, error) {
	parts := strings.Split(raw, ",")
	vec := make([]float32, 0, len(parts))
	for _, part := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 32)
		if err != nil {
			return nil, err
		}
		vec = append(vec, float32(f))
	}
	return vec, nil
}
