package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/danielolaszy/hierview/internal/jira"
	"github.com/danielolaszy/hierview/internal/logging"
	"github.com/danielolaszy/hierview/pkg/models"
)

// handleIndex serves the embedded viewer page.
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(viewerHTML)
}

// handleHealth reports whether the process and the adapter credential are
// usable.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.gateway != nil && s.gateway.Ready() {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
}

// handleStream runs one assembler run and publishes its events over SSE.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	// At most one active stream per connection; a second request is a
	// usage error, rejected rather than queued.
	guard, _ := r.Context().Value(connStreamKey{}).(*atomic.Bool)
	if guard != nil {
		if !guard.CompareAndSwap(false, true) {
			writeJSON(w, http.StatusConflict, map[string]string{
				"error": "a hierarchy stream is already active on this connection",
				"code":  "invalid_request",
			})
			return
		}
		defer guard.Store(false)
	}

	filter := models.Filter{
		Component: r.URL.Query().Get("component"),
		TopLevel:  models.TypeRFE,
	}
	switch r.URL.Query().Get("top_level") {
	case "", string(models.TypeRFE):
	case string(models.TypeStrat):
		filter.TopLevel = models.TypeStrat
	default:
		writeTaxonomyError(w, fmt.Errorf("%w: top_level must be rfe or strat", jira.ErrInvalidRequest))
		return
	}
	if filter.Component == "" {
		filter.Component = s.cfg.Jira.DefaultComponent
	}

	logging.Info("starting hierarchy stream",
		"component", filter.Component,
		"top_level", filter.TopLevel,
		"remote", r.RemoteAddr)

	// Client disconnect cancels r.Context(); a write failure cancels
	// explicitly. Either way the assembler stops emitting and issuing
	// new tracker calls at its next scheduling point.
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	events := s.assembler.Stream(ctx, filter)
	if err := publish(w, flusher, events); err != nil {
		logging.Warn("stream aborted", "error", err, "remote", r.RemoteAddr)
		cancel()
	}
}

// handleCreateEpic creates a new epic and links it to a strategic initiative.
func (s *Server) handleCreateEpic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.CreateEpicRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTaxonomyError(w, fmt.Errorf("%w: %v", jira.ErrInvalidRequest, err))
		return
	}
	if req.Summary == "" || req.StratKey == "" {
		writeTaxonomyError(w, fmt.Errorf("%w: summary and strat_key are required", jira.ErrInvalidRequest))
		return
	}

	epic, err := s.gateway.CreateEpic(r.Context(), req)
	if err != nil {
		logging.Error("failed to create epic", "strat", req.StratKey, "error", err)
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "epic": epic})
}

// handleCreateTask creates a new task and links it to an epic.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req models.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTaxonomyError(w, fmt.Errorf("%w: %v", jira.ErrInvalidRequest, err))
		return
	}
	if req.Summary == "" || req.EpicKey == "" {
		writeTaxonomyError(w, fmt.Errorf("%w: summary and epic_key are required", jira.ErrInvalidRequest))
		return
	}

	task, err := s.gateway.CreateTask(r.Context(), req)
	if err != nil {
		logging.Error("failed to create task", "epic", req.EpicKey, "error", err)
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

// handleAddComment appends a comment to an issue.
func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		IssueKey string `json:"issue_key"`
		Comment  string `json:"comment"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTaxonomyError(w, fmt.Errorf("%w: %v", jira.ErrInvalidRequest, err))
		return
	}
	if req.IssueKey == "" || req.Comment == "" {
		writeTaxonomyError(w, fmt.Errorf("%w: issue_key and comment are required", jira.ErrInvalidRequest))
		return
	}

	if err := s.gateway.AddComment(r.Context(), req.IssueKey, req.Comment); err != nil {
		logging.Error("failed to add comment", "issue", req.IssueKey, "error", err)
		writeTaxonomyError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// writeJSON sends a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logging.Warn("failed to write response", "error", err)
	}
}

// writeTaxonomyError maps an error onto its taxonomy code and HTTP status.
func writeTaxonomyError(w http.ResponseWriter, err error) {
	code := jira.ErrorCode(err)
	writeJSON(w, statusFor(err), map[string]string{
		"error": err.Error(),
		"code":  code,
	})
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, jira.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, jira.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, jira.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, jira.ErrRemoteRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, jira.ErrRemoteUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
