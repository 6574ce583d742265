// internal/server/handlers.go
package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/models"

	"github.com/go-chi/chi/v5"
)

const (
	DefaultLimit = 50
	MaxLimit     = 500
)

// writeJSON writes the envelope {"status", "message", ...payload}.
func writeJSON(w http.ResponseWriter, status int, message string, payload map[string]interface{}) {
	body := map[string]interface{}{
		"status":  status,
		"message": message,
	}
	for k, v := range payload {
		body[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// parseLimit reads ?limit=N: default DefaultLimit, positive, capped at MaxLimit.
func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return DefaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, apperrors.NewValidationError(fmt.Sprintf("limit must be a positive integer, got %q", raw))
	}
	return min(n, MaxLimit), nil
}

func decodeBody(r *http.Request, into interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(into); err != nil {
		return apperrors.NewValidationError("invalid request body: " + err.Error())
	}
	return nil
}

// --- Status ---

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "crowd monitor running", map[string]interface{}{
		"app":     s.config.AppName,
		"version": s.config.AppVersion,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, "healthy", map[string]interface{}{
		"time": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready.Ping(r.Context()); err != nil {
			s.errors.WriteError(w, apperrors.NewStoreError("ping", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, "ready", map[string]interface{}{
		"time": time.Now().Format(time.RFC3339),
	})
}

// --- Active queries ---

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var d models.QueryDraft
	if err := decodeBody(r, &d); err != nil {
		s.errors.WriteError(w, err)
		return
	}
	q, err := s.queries.Create(r.Context(), d)
	if err != nil {
		s.errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, "query created", map[string]interface{}{"query": q})
}

func (s *Server) handleGetActive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	q, ok := s.queries.LookupActive(id)
	if !ok {
		s.errors.WriteError(w, apperrors.NewNotFoundError("query", id))
		return
	}
	writeJSON(w, http.StatusOK, "query found", map[string]interface{}{"query": q})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var d models.QueryDraft
	if err := decodeBody(r, &d); err != nil {
		s.errors.WriteError(w, err)
		return
	}
	q, err := s.queries.Update(r.Context(), chi.URLParam(r, "id"), d)
	if err != nil {
		s.errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "query updated", map[string]interface{}{"query": q})
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queries.Remove(r.Context(), id); err != nil {
		s.errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "query removed", map[string]interface{}{"id": id})
}

func (s *Server) handleArchive(w http.ResponseWriter, r *http.Request) {
	aq, err := s.queries.Archive(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "query archived", map[string]interface{}{"query": aq})
}

func (s *Server) handleActivePosts(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, r, func(limit int) ([]models.ScoredPost, error) {
		return s.queries.TopPostsActive(r.Context(), chi.URLParam(r, "id"), limit)
	})
}

// --- Archived queries ---

func (s *Server) handleGetArchived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	aq, ok := s.queries.LookupArchived(id)
	if !ok {
		s.errors.WriteError(w, apperrors.NewNotFoundError("archived query", id))
		return
	}
	writeJSON(w, http.StatusOK, "archived query found", map[string]interface{}{"query": aq})
}

func (s *Server) handleRemoveArchived(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.queries.RemoveArchived(r.Context(), id); err != nil {
		s.errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "archived query removed", map[string]interface{}{"id": id})
}

func (s *Server) handleSetPublic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IsPublic *bool `json:"isPublic"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.errors.WriteError(w, err)
		return
	}
	if req.IsPublic == nil {
		s.errors.WriteError(w, apperrors.NewValidationError("isPublic: boolean is required"))
		return
	}
	aq, err := s.queries.SetPublic(r.Context(), chi.URLParam(r, "id"), *req.IsPublic)
	if err != nil {
		s.errors.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, "visibility updated", map[string]interface{}{"query": aq})
}

func (s *Server) handleArchivedPosts(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, r, func(limit int) ([]models.ScoredPost, error) {
		return s.queries.TopPostsArchived(r.Context(), chi.URLParam(r, "id"), limit)
	})
}

func (s *Server) handleQueryPosts(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, r, func(limit int) ([]models.ScoredPost, error) {
		return s.queries.TopPosts(r.Context(), chi.URLParam(r, "id"), limit)
	})
}

// --- Lists ---

func (s *Server) handleListActive(w http.ResponseWriter, r *http.Request) {
	qs := s.queries.ListActive()
	writeJSON(w, http.StatusOK, "active queries", map[string]interface{}{"queries": qs, "count": len(qs)})
}

func (s *Server) handleListArchived(w http.ResponseWriter, r *http.Request) {
	qs := s.queries.ListArchived()
	writeJSON(w, http.StatusOK, "archived queries", map[string]interface{}{"queries": qs, "count": len(qs)})
}

func (s *Server) handleListPublic(w http.ResponseWriter, r *http.Request) {
	qs := s.queries.ListPublicArchived()
	writeJSON(w, http.StatusOK, "public archived queries", map[string]interface{}{"queries": qs, "count": len(qs)})
}

func (s *Server) handleAllActivePosts(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, r, func(limit int) ([]models.ScoredPost, error) {
		return s.queries.TopPostsAllActive(r.Context(), limit)
	})
}

func (s *Server) handleAllArchivedPosts(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, r, func(limit int) ([]models.ScoredPost, error) {
		return s.queries.TopPostsAllArchived(r.Context(), limit)
	})
}

func (s *Server) handleAllPublicPosts(w http.ResponseWriter, r *http.Request) {
	s.writePosts(w, r, func(limit int) ([]models.ScoredPost, error) {
		return s.queries.TopPostsAllPublic(r.Context(), limit)
	})
}

func (s *Server) writePosts(w http.ResponseWriter, r *http.Request, read func(limit int) ([]models.ScoredPost, error)) {
	limit, err := parseLimit(r)
	if err != nil {
		s.errors.WriteError(w, err)
		return
	}
	posts, err := read(limit)
	if err != nil {
		s.errors.WriteError(w, err)
		return
	}
	if posts == nil {
		posts = []models.ScoredPost{}
	}
	writeJSON(w, http.StatusOK, "posts found", map[string]interface{}{
		"tweets": posts,
		"count":  len(posts),
		"limit":  limit,
	})
}
