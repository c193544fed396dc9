package api

import (
	"net/http"

	"github.com/sampleforge/sampleforge/internal/resultcache"
	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/strategy"
)

// handleListStrategies handles GET /api/v1/strategies, optionally filtered
// by ?kind=.
func (h *Handler) handleListStrategies(w http.ResponseWriter, r *http.Request) {
	var list []strategy.Strategy
	if k := r.URL.Query().Get("kind"); k != "" {
		kind, err := artifact.ParseKind(k)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		list = h.app.Registry.ForKind(kind)
	} else {
		for _, name := range h.app.Registry.Names() {
			s, _ := h.app.Registry.Get(name)
			list = append(list, s)
		}
	}

	infos := make([]strategy.Info, 0, len(list))
	for _, s := range list {
		infos = append(infos, s.Describe())
	}
	writeJSON(w, http.StatusOK, map[string]any{"strategies": infos})
}

// handleGetResult returns a cached result without running the pipeline.
func (h *Handler) handleGetResult(w http.ResponseWriter, r *http.Request) {
	kind, err := artifact.ParseKind(r.PathValue("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, ok := h.app.Cache.Get(r.Context(), kind, r.PathValue("sessionID"))
	if !ok {
		writeError(w, http.StatusNotFound, "no cached result")
		return
	}
	res.Metadata.FromCache = true
	writeJSON(w, http.StatusOK, res)
}

// handleInvalidate handles DELETE /api/v1/cache. Exactly one selector is
// used: ?pattern= (a raw glob), or ?session= and/or ?kind=.
func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	pattern := q.Get("pattern")
	session, k := q.Get("session"), q.Get("kind")

	if pattern != "" && (session != "" || k != "") {
		writeError(w, http.StatusBadRequest, "pattern cannot be combined with session or kind")
		return
	}
	if pattern == "" {
		var (
			kind artifact.Kind
			err  error
		)
		if k != "" {
			if kind, err = artifact.ParseKind(k); err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
		}
		if pattern, err = resultcache.Pattern(kind, session); err != nil {
			writeError(w, http.StatusBadRequest, "one of pattern, session or kind is required")
			return
		}
	}
	if _, err := resultcache.GlobRegexp(pattern); err != nil {
		writeError(w, http.StatusBadRequest, "invalid pattern: "+err.Error())
		return
	}

	n, err := h.app.Cache.Invalidate(r.Context(), pattern)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "invalidation failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"pattern": pattern, "removed": n})
}

// handleContentGenStatus reports the content service circuit state.
func (h *Handler) handleContentGenStatus(w http.ResponseWriter, r *http.Request) {
	if h.app.ContentGen == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "enabled",
		"circuit": h.app.ContentGen.Breaker().State().String(),
	})
}
