package api

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sampleforge/sampleforge/internal/pipeline"
	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/scoring"
	"github.com/sampleforge/sampleforge/pkg/surface"
)

// generateRequest is the JSON body for POST /api/v1/generate. Zero-valued
// options fall back to the service configuration.
type generateRequest struct {
	Context        artifact.Context            `json:"context"`
	Strategies     []string                    `json:"strategies,omitempty"`
	CandidateCount *int                        `json:"candidate_count,omitempty"`
	Criteria       map[string]scoring.Override `json:"criteria,omitempty"`
	Constraints    sampling.Constraints        `json:"constraints"`
	TTLSeconds     int                         `json:"ttl_seconds,omitempty"`
	BypassCache    bool                        `json:"bypass_cache,omitempty"`
	Truncate       string                      `json:"truncate,omitempty"`
}

type failureResponse struct {
	Error     string            `json:"error"`
	Requested []string          `json:"requested,omitempty"`
	Failures  map[string]string `json:"failures,omitempty"`
	TimedOut  bool              `json:"timed_out,omitempty"`
}

// handleGenerate runs the pipeline for one context. The result is JSON
// unless ?format=markdown asks for the rendered summary.
func (h *Handler) handleGenerate(w http.ResponseWriter, r *http.Request) {
	// Support gzip-compressed request bodies
	var body io.Reader = r.Body
	if r.Header.Get("Content-Encoding") == "gzip" {
		gz, err := gzip.NewReader(r.Body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid gzip body: "+err.Error())
			return
		}
		defer gz.Close()
		body = gz
	}

	var req generateRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	format := r.URL.Query().Get("format")
	if format != "" && format != "json" && format != "markdown" {
		writeError(w, http.StatusBadRequest, "format must be json or markdown")
		return
	}

	kind, err := artifact.ParseKind(string(req.Context.Kind))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Context.Kind = kind

	opts, err := h.options(kind, req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	res, err := h.app.Orchestrator.GenerateBest(r.Context(), req.Context, opts)
	if err != nil {
		h.writeGenerateError(w, err)
		return
	}

	if format == "markdown" {
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		if err := (&surface.MarkdownRenderer{}).Render(w, res); err != nil {
			h.logger.Warn("rendering markdown response", zap.Error(err))
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// options layers the request over the configured defaults for kind.
func (h *Handler) options(kind artifact.Kind, req generateRequest) (pipeline.Options, error) {
	opts, err := h.app.Defaults(kind)
	if err != nil {
		return opts, err
	}
	if len(req.Strategies) > 0 {
		opts.Strategies = req.Strategies
	}
	if req.CandidateCount != nil {
		if *req.CandidateCount < 0 {
			return opts, errors.New("candidate_count must not be negative")
		}
		opts.CandidateCount = *req.CandidateCount
	}
	if len(req.Criteria) > 0 {
		if opts.Criteria, err = scoring.Apply(opts.Criteria, req.Criteria); err != nil {
			return opts, err
		}
	}
	if req.TTLSeconds < 0 {
		return opts, errors.New("ttl_seconds must not be negative")
	}
	if req.TTLSeconds > 0 {
		opts.TTL = time.Duration(req.TTLSeconds) * time.Second
	}
	if req.Truncate != "" {
		if opts.Truncate, err = pipeline.ParseTruncation(req.Truncate); err != nil {
			return opts, err
		}
	}
	opts.Constraints = req.Constraints
	opts.BypassCache = req.BypassCache
	return opts, nil
}

// writeGenerateError maps pipeline failures to status codes: invalid input
// is 400, a generation outcome is 422 and anything else is 500.
func (h *Handler) writeGenerateError(w http.ResponseWriter, err error) {
	var nc *sampling.NoCandidatesError
	switch {
	case errors.As(err, &nc):
		resp := failureResponse{
			Error:     err.Error(),
			Requested: nc.Requested,
			TimedOut:  nc.TimedOut,
			Failures:  make(map[string]string, len(nc.Failures)),
		}
		for name, cause := range nc.Failures {
			resp.Failures[name] = cause.Error()
		}
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	case errors.Is(err, sampling.ErrNoSuitableCandidate):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, pipeline.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.Error("generate failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
