package api

import (
	"context"
	"net/http"

	"github.com/prajain321/tct-feature-tracker/internal/domain/types"
)

// StatusProvider defines the interface for reporting what is being served.
type StatusProvider interface {
	Status(ctx context.Context) types.Status
}

// StatusHandler handles status requests.
type StatusHandler struct {
	provider StatusProvider
}

// NewStatusHandler creates a new status handler.
func NewStatusHandler(provider StatusProvider) *StatusHandler {
	return &StatusHandler{provider: provider}
}

// HandleStatus handles GET /status requests.
func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.provider.Status(r.Context()))
}
