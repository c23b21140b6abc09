package api

import (
	"log/slog"
	"net/http"

	"github.com/jobsentry/api/internal/domain"
	"github.com/jobsentry/api/internal/govern"
	"github.com/jobsentry/api/internal/store"
)

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Governance govern.Snapshot `json:"governance"`
	Postings   map[string]int  `json:"postings"`
}

// StatusHandler serves the health and status endpoints.
type StatusHandler struct {
	governor govern.Governor
	store    store.PostingStore
	logger   *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(governor govern.Governor, postingStore store.PostingStore, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		governor: governor,
		store:    postingStore,
		logger:   logger,
	}
}

// GetHealth handles GET /healthz requests.
func (h *StatusHandler) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("OK")); err != nil {
		h.logger.Error("failed to write health response", "error", err)
	}
}

// GetStatus handles GET /status requests. Polling this endpoint while
// governed calls are active also drives the opportunistic validator, via
// the governor's snapshot hook.
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := h.governor.Snapshot()

	counts := make(map[string]int)
	for _, status := range []domain.PostingStatus{
		domain.PostingStatusNew,
		domain.PostingStatusQueued,
		domain.PostingStatusInFlight,
		domain.PostingStatusAnalyzed,
		domain.PostingStatusSkipped,
		domain.PostingStatusFailed,
		domain.PostingStatusPurged,
	} {
		n, err := h.store.CountByStatus(r.Context(), status)
		if err != nil {
			h.logger.Error("failed to count postings", "status", status, "error", err)
			RespondWithError(w, http.StatusInternalServerError, "failed to read posting counts")
			return
		}
		counts[string(status)] = n
	}

	RespondWithJSON(w, http.StatusOK, StatusResponse{
		Governance: snapshot,
		Postings:   counts,
	})
}
