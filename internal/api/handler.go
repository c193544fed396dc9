// Package api implements the SampleForge REST API.
// It exposes best-of-N generation, strategy discovery and cache management.
package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/app"
)

// Handler is the top-level API handler for the SampleForge service.
type Handler struct {
	app    *app.App
	logger *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(a *app.App, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{app: a, logger: logger}
}

// RegisterRoutes registers all API routes on the given ServeMux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	// Write endpoints (auth-protected)
	mux.HandleFunc("POST /api/v1/generate", h.handleGenerate)
	mux.HandleFunc("DELETE /api/v1/cache", h.handleInvalidate)

	// Read endpoints
	mux.HandleFunc("GET /api/v1/strategies", h.handleListStrategies)
	mux.HandleFunc("GET /api/v1/results/{kind}/{sessionID}", h.handleGetResult)
	mux.HandleFunc("GET /api/v1/contentgen", h.handleContentGenStatus)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
