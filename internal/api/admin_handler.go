package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/jobsentry/api/internal/task"
)

const defaultFinalizeLimit = 500

// FinalizeResponse is the body of POST /admin/postings/finalize.
type FinalizeResponse struct {
	Purged int `json:"purged"`
}

// AdminHandler serves the operator-only endpoints.
type AdminHandler struct {
	finalizer *task.Finalizer
	logger    *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(finalizer *task.Finalizer, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		finalizer: finalizer,
		logger:    logger,
	}
}

// FinalizePostings handles POST /admin/postings/finalize requests. It purges
// postings older than the retry window; the optional limit query parameter
// bounds one invocation.
func (h *AdminHandler) FinalizePostings(w http.ResponseWriter, r *http.Request) {
	limit := defaultFinalizeLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			RespondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	purged, err := h.finalizer.Finalize(r.Context(), limit)
	if err != nil {
		h.logger.Error("finalize failed", "error", err)
		RespondWithError(w, http.StatusInternalServerError, "failed to finalize postings")
		return
	}

	RespondWithJSON(w, http.StatusOK, FinalizeResponse{Purged: purged})
}
