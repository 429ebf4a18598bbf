// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/prajain321/tct-feature-tracker/internal/adapters/repository"
	"github.com/prajain321/tct-feature-tracker/internal/domain/types"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	AggregateDependencies
	FeatureDependencies
	StatusProvider
	RefreshDependencies
}

// Aggregate mirrors the read shape returned by aggregate queries.
type Aggregate = types.Aggregate

// AggregatePage is one window of an aggregate query.
type AggregatePage = types.AggregatePage

// Server wires HTTP routes for the read API.
type Server struct {
	healthHandler     *HealthHandler
	statusHandler     *StatusHandler
	aggregatesHandler *AggregatesHandler
	featuresHandler   *FeaturesHandler
	refreshHandler    *RefreshHandler
}

// NewServer creates a new API server with all handlers. maxLimit caps the
// limit parameter of GET /aggregates.
func NewServer(deps Dependencies, maxLimit int, checks ...HealthCheck) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(checks...),
		statusHandler:     NewStatusHandler(deps),
		aggregatesHandler: NewAggregatesHandler(deps, maxLimit),
		featuresHandler:   NewFeaturesHandler(deps),
		refreshHandler:    NewRefreshHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	// Specific paths first (most specific to least specific)
	mux.HandleFunc("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.Handle("/metrics", MetricsHandler())
	mux.HandleFunc("/status", MetricsMiddleware(s.statusHandler.HandleStatus, "status"))
	mux.HandleFunc("/refresh", MetricsMiddleware(s.refreshHandler.HandlePostRefresh, "refresh"))
	mux.HandleFunc("/aggregates", MetricsMiddleware(s.aggregatesHandler.HandleGetAggregates, "aggregates"))
	mux.HandleFunc("/features", MetricsMiddleware(s.featuresHandler.HandleListFeatures, "features"))
	mux.HandleFunc("/features/", MetricsMiddleware(s.featuresHandler.HandleGetFeature, "feature"))
}

// Filter is the query accepted by GET /aggregates.
type Filter = repository.Filter

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}
