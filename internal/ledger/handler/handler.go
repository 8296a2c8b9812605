package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"governor/internal/ledger/service"
	dErrors "governor/pkg/domain-errors"
	"governor/pkg/platform/httputil"
	"governor/pkg/platform/sentinel"
	"governor/pkg/requestcontext"
)

// Service defines the interface for ledger read operations.
type Service interface {
	Get(ctx context.Context, ruleID string) (service.Standing, error)
	Export(ctx context.Context) ([]service.Standing, error)
}

// Handler wires ledger read endpoints to the ledger service.
type Handler struct {
	service Service
	logger  *slog.Logger
}

// New constructs a ledger handler with its dependencies.
func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Register mounts ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/v1/ledger", h.HandleExport)
	r.Get("/v1/ledger/{rule_id}", h.HandleGet)
}

// ExportResponse is the envelope for a full ledger snapshot.
type ExportResponse struct {
	Records []service.Standing `json:"records"`
}

// HandleExport handles GET /v1/ledger requests.
func (h *Handler) HandleExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	standings, err := h.service.Export(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "ledger export failed",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ExportResponse{Records: standings})
}

// HandleGet handles GET /v1/ledger/{rule_id} requests.
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ruleID := chi.URLParam(r, "rule_id")

	standing, err := h.service.Get(ctx, ruleID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			httputil.WriteError(w, dErrors.Newf(dErrors.CodeNotFound, "no violations recorded for rule %q", ruleID))
			return
		}
		h.logger.ErrorContext(ctx, "ledger lookup failed",
			"request_id", requestcontext.RequestID(ctx),
			"rule_id", ruleID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, standing)
}
