package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/scrypster/keeper/internal/graph"
	"github.com/scrypster/keeper/internal/storage"
	"github.com/scrypster/keeper/pkg/types"
)

// handlers exposes the knowledge graph manager over HTTP. Every response
// is JSON; operation failures surface as structured results with
// success=false rather than bare status codes, matching the manager's
// report types.
type handlers struct {
	manager *graph.Manager
}

type ingestRequest struct {
	Text   string `json:"text"`
	Source string `json:"source,omitempty"`
}

type queryRequest struct {
	Query               string                `json:"query"`
	Mode                types.SearchMode      `json:"mode,omitempty"`
	MaxResults          int                   `json:"max_results,omitempty"`
	IncludeRelated      bool                  `json:"include_related,omitempty"`
	ConfidenceThreshold types.ConfidenceLevel `json:"confidence_threshold,omitempty"`
}

type destinationsRequest struct {
	EntityIDs []string `json:"entity_ids"`
}

type documentRequest struct {
	ID      string `json:"id,omitempty"`
	Title   string `json:"title,omitempty"`
	Content string `json:"content"`
	Mode    string `json:"mode,omitempty"` // new, append, or update
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

func readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func (h *handlers) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if !readJSON(w, r, &req) {
		return
	}

	report := h.manager.Ingest(r.Context(), req.Text, req.Source)
	status := http.StatusOK
	if !report.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, report)
}

func (h *handlers) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !readJSON(w, r, &req) {
		return
	}

	result := h.manager.Query(r.Context(), types.QueryContext{
		Query:               req.Query,
		Mode:                req.Mode,
		MaxResults:          req.MaxResults,
		IncludeRelated:      req.IncludeRelated,
		ConfidenceThreshold: req.ConfidenceThreshold,
	})
	status := http.StatusOK
	if !result.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, result)
}

func (h *handlers) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing q parameter")
		return
	}
	mode := types.SearchMode(r.URL.Query().Get("mode"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	results, err := h.manager.Search(r.Context(), query, mode, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"results": results,
	})
}

func (h *handlers) listEntities(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	opts := storage.ListOptions{
		Page:       page,
		Limit:      limit,
		EntityType: types.EntityType(r.URL.Query().Get("type")),
	}

	result, err := h.manager.Entities(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *handlers) getEntity(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	ent, err := h.manager.Entity(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "entity not found: "+id)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (h *handlers) resolveConflicts(w http.ResponseWriter, r *http.Request) {
	report := h.manager.ResolveConflicts(r.Context(), r.PathValue("id"))
	status := http.StatusOK
	if !report.Success {
		status = http.StatusNotFound
	}
	writeJSON(w, status, report)
}

func (h *handlers) destinations(w http.ResponseWriter, r *http.Request) {
	var req destinationsRequest
	if !readJSON(w, r, &req) {
		return
	}
	if len(req.EntityIDs) == 0 {
		writeError(w, http.StatusBadRequest, "entity_ids is required")
		return
	}

	report := h.manager.CanonicalDestinations(r.Context(), req.EntityIDs)
	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func (h *handlers) saveDocument(w http.ResponseWriter, r *http.Request) {
	var req documentRequest
	if !readJSON(w, r, &req) {
		return
	}

	doc, err := h.manager.SaveDocument(r.Context(), req.ID, req.Title, req.Content, graph.SaveMode(req.Mode))
	switch {
	case errors.Is(err, storage.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

type exportRequest struct {
	Path string `json:"path"`
}

func (h *handlers) export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	report := h.manager.ExportVault(r.Context(), req.Path)
	status := http.StatusOK
	if !report.Success {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func (h *handlers) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.manager.Stats(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
