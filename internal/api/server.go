package api

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sampleforge/sampleforge/internal/app"
)

// ServerOptions configures NewServer.
type ServerOptions struct {
	APIKey  string        // empty disables authentication
	Limiter *rate.Limiter // nil disables rate limiting
	Metrics http.Handler  // served at /metrics when set
}

// NewServer assembles the full HTTP surface: the authenticated and
// rate-limited API plus unauthenticated health and metrics endpoints.
func NewServer(a *app.App, logger *zap.Logger, opts ServerOptions) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	apiMux := http.NewServeMux()
	NewHandler(a, logger).RegisterRoutes(apiMux)

	var apiHandler http.Handler = apiMux
	apiHandler = RateLimit(opts.Limiter)(apiHandler)
	apiHandler = APIKeyAuth(opts.APIKey)(apiHandler)

	mux := http.NewServeMux()
	mux.Handle("/api/", apiHandler)
	mux.HandleFunc("GET /healthz", healthHandler(a))
	if opts.Metrics != nil {
		mux.Handle("GET /metrics", opts.Metrics)
	}
	return RequestLogger(logger)(CORS(mux))
}

func healthHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.Cache.Ping(ctx); err != nil {
			writeError(w, http.StatusServiceUnavailable, "cache unreachable")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}
