package api

import (
	"context"
	"errors"
	"net/http"

	service "github.com/prajain321/tct-feature-tracker/internal/app"
	"github.com/prajain321/tct-feature-tracker/internal/domain/types"
)

// RefreshDependencies defines the interface for triggering a refresh.
type RefreshDependencies interface {
	Refresh(ctx context.Context) (types.RefreshResult, error)
}

// RefreshHandler handles manual refresh requests.
type RefreshHandler struct {
	deps RefreshDependencies
}

// NewRefreshHandler creates a new refresh handler.
func NewRefreshHandler(deps RefreshDependencies) *RefreshHandler {
	return &RefreshHandler{deps: deps}
}

// HandlePostRefresh handles POST /refresh requests. The run is not tied to
// the client connection: a disconnect does not abort a replace midway.
func (h *RefreshHandler) HandlePostRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.NotFound(w, r)
		return
	}
	res, err := h.deps.Refresh(context.WithoutCancel(r.Context()))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, service.ErrAlreadyRunning):
		writeError(w, http.StatusConflict, "already_running", err)
	case errors.Is(err, service.ErrCorrupt):
		writeError(w, http.StatusInternalServerError, "store_corrupt", err)
	default:
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", err)
	}
}
