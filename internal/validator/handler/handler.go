package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"governor/internal/validator"
	"governor/pkg/platform/httputil"
	"governor/pkg/requestcontext"
)

// Service defines the interface for check operations.
type Service interface {
	Submit(ctx context.Context, req validator.Request) (validator.Result, error)
}

// Handler wires the check endpoint to the validator service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a validator handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts validator endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/check", h.HandleCheck)
}

// HandleCheck handles POST /v1/check requests.
func (h *Handler) HandleCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.Decode[validator.Request](w, r, h.logger)
	if !ok {
		return
	}
	if req.SessionID != "" {
		ctx = requestcontext.WithSessionID(ctx, req.SessionID)
	}

	result, err := h.service.Submit(ctx, req)
	if err != nil {
		h.logger.ErrorContext(ctx, "check failed",
			"request_id", requestID,
			"tier", req.Tier,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}

	h.logger.InfoContext(ctx, "check completed",
		"request_id", requestID,
		"tier", req.Tier,
		"matches", len(result.Matches),
		"partial", result.Partial,
		"cached", result.Cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusOK, result)
}
