package api

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/prajain321/tct-feature-tracker/internal/domain/types"
)

// FeatureDependencies defines the interface for feature summaries.
type FeatureDependencies interface {
	Features(ctx context.Context) ([]types.FeatureSummary, error)
	Feature(ctx context.Context, featureID string) (types.FeatureSummary, error)
}

// FeaturesHandler handles feature summary requests.
type FeaturesHandler struct {
	deps FeatureDependencies
}

// NewFeaturesHandler creates a new features handler.
func NewFeaturesHandler(deps FeatureDependencies) *FeaturesHandler {
	return &FeaturesHandler{deps: deps}
}

// HandleListFeatures handles GET /features requests.
func (h *FeaturesHandler) HandleListFeatures(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	sums, err := h.deps.Features(r.Context())
	if err != nil {
		writeReadError(w, "api.list_features", err)
		return
	}
	writeJSON(w, http.StatusOK, sums)
}

// HandleGetFeature handles GET /features/{feature_id} requests.
func (h *FeaturesHandler) HandleGetFeature(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_feature"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	// Feature ids may contain "/", which clients send as %2F; only an
	// unescaped slash starts a nested path.
	raw := strings.TrimPrefix(r.URL.EscapedPath(), "/features/")
	if raw == "" || strings.Contains(raw, "/") {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	id, err := url.PathUnescape(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	sum, err := h.deps.Feature(r.Context(), id)
	if err != nil {
		writeReadError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}
