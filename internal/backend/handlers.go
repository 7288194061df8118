package backend

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hpungsan/topicnav/internal/errors"
	"github.com/hpungsan/topicnav/internal/topic"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 1 << 20

// Handlers serves the REST API.
type Handlers struct {
	svc    *Service
	logger *zap.Logger
}

type postsBody struct {
	Posts []topic.Post `json:"posts"`
}

type pathBody struct {
	Path []topic.Domain `json:"path"`
}

type positionsBody struct {
	Positions map[string]json.RawMessage `json:"positions"`
}

// HandleList serves GET /api/domains[?parentId=].
func (h *Handlers) HandleList(w http.ResponseWriter, r *http.Request) {
	var parent *string
	if p := strings.TrimSpace(r.URL.Query().Get("parentId")); p != "" {
		parent = &p
	}
	out, err := h.svc.ListDomains(r.Context(), parent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

// HandleGet serves GET /api/domains/{id}.
func (h *Handlers) HandleGet(w http.ResponseWriter, r *http.Request) {
	d, err := h.svc.GetDomain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandlePath serves GET /api/domains/{id}/path.
func (h *Handlers) HandlePath(w http.ResponseWriter, r *http.Request) {
	path, err := h.svc.Path(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pathBody{Path: path})
}

// HandleCreate serves POST /api/domains.
func (h *Handlers) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := decodeBody(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.svc.CreateDomain(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

// HandleUpdate serves PUT /api/domains/{id}.
func (h *Handlers) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var in UpdateInput
	if err := decodeBody(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	d, err := h.svc.UpdateDomain(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// HandleDelete serves DELETE /api/domains/{id}.
func (h *Handlers) HandleDelete(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.DeleteDomain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": n})
}

// HandlePositions serves POST /api/domains/positions. Layout positions are
// acknowledged but not stored.
func (h *Handlers) HandlePositions(w http.ResponseWriter, r *http.Request) {
	var in positionsBody
	if err := decodeBody(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	if len(in.Positions) == 0 {
		h.writeError(w, r, errors.NewInvalidRequest("No positions provided"))
		return
	}
	h.logger.Info("positions update received", zap.Int("domains", len(in.Positions)))
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("Updated positions for %d domains", len(in.Positions)),
	})
}

// HandlePosts serves GET /api/domains/{id}/x-posts.
func (h *Handlers) HandlePosts(w http.ResponseWriter, r *http.Request) {
	posts, err := h.svc.Posts(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, postsBody{Posts: posts})
}

// HandleSummarize serves POST /api/domains/{id}/x-posts/summarize.
func (h *Handlers) HandleSummarize(w http.ResponseWriter, r *http.Request) {
	var in postsBody
	if err := decodeBody(w, r, &in); err != nil {
		h.writeError(w, r, err)
		return
	}
	out, err := h.svc.Summarize(r.Context(), chi.URLParam(r, "id"), in.Posts)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errors.NewInvalidRequest("invalid JSON body: " + err.Error())
	}
	return nil
}

func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	navErr, ok := errors.As(err)
	if !ok {
		navErr = errors.NewInternal(err)
	}
	if navErr.Status >= 500 {
		h.logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	writeJSON(w, navErr.Status, map[string]any{
		"error": navErr.Message,
		"code":  navErr.Code,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
