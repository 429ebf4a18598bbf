package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
)

// AggregateDependencies defines the interface for aggregate queries.
type AggregateDependencies interface {
	Aggregates(ctx context.Context, f Filter) (AggregatePage, error)
}

// Paging headers set on every GET /aggregates response.
const (
	headerTotalCount = "X-Total-Count"
	headerNextOffset = "X-Next-Offset"
)

// AggregatesHandler handles aggregate queries.
type AggregatesHandler struct {
	deps     AggregateDependencies
	maxLimit int
}

// NewAggregatesHandler creates a new aggregates handler.
func NewAggregatesHandler(deps AggregateDependencies, maxLimit int) *AggregatesHandler {
	return &AggregatesHandler{
		deps:     deps,
		maxLimit: maxLimit,
	}
}

// HandleGetAggregates handles GET /aggregates?feature_id=X&bucket=Y&offset=O&limit=N requests.
// All parameters are optional; without limit at most maxLimit rows are returned.
// X-Total-Count carries the number of matching rows; when rows remain,
// X-Next-Offset and a rel="next" Link point at the following page.
func (h *AggregatesHandler) HandleGetAggregates(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_aggregates"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	q := r.URL.Query()
	f := Filter{
		FeatureID: q.Get("feature_id"),
		Bucket:    q.Get("bucket"),
		Limit:     h.maxLimit,
	}
	if limitStr := q.Get("limit"); limitStr != "" {
		n, err := strconv.Atoi(limitStr)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		if n > h.maxLimit {
			writeError(w, http.StatusBadRequest, "limit_exceeded", NewKind(op, ErrLimitExceeded))
			return
		}
		f.Limit = n
	}
	if offsetStr := q.Get("offset"); offsetStr != "" {
		n, err := strconv.Atoi(offsetStr)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
			return
		}
		f.Offset = n
	}

	page, err := h.deps.Aggregates(r.Context(), f)
	if err != nil {
		writeReadError(w, op, err)
		return
	}

	w.Header().Set(headerTotalCount, strconv.Itoa(page.Total))
	if page.More() {
		next := f.Offset + len(page.Aggregates)
		w.Header().Set(headerNextOffset, strconv.Itoa(next))

		nextQuery := r.URL.Query()
		nextQuery.Set("offset", strconv.Itoa(next))
		nextQuery.Set("limit", strconv.Itoa(f.Limit))
		w.Header().Set("Link", fmt.Sprintf(`<%s?%s>; rel="next"`, r.URL.Path, nextQuery.Encode()))
	}
	writeJSON(w, http.StatusOK, page.Aggregates)
}

// writeReadError translates read-side errors into HTTP responses.
func writeReadError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repository.ErrNoAggregate):
		writeError(w, http.StatusServiceUnavailable, "unavailable", WrapKind(op, ErrUnavailable, err))
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, repository.ErrInvalidLimit), errors.Is(err, repository.ErrInvalidOffset):
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
