package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"segrun-orchestrator/core/diagnostics"
	"segrun-orchestrator/core/models"
	"segrun-orchestrator/core/monitoring"
	"segrun-orchestrator/core/repository"
	"segrun-orchestrator/core/scheduler"
	"segrun-orchestrator/core/spec"
)

// RunHandler handles run-related HTTP requests
type RunHandler struct {
	scheduler *scheduler.Scheduler
	cache     *diagnostics.Cache
	compute   diagnostics.ComputeFunc
	monitor   *monitoring.Monitor
	deadline  time.Duration
	eventRepo *repository.EventRepository
	log       *slog.Logger
}

// NewRunHandler creates a new run handler. eventRepo may be nil when the
// event ledger is not configured.
func NewRunHandler(
	sched *scheduler.Scheduler,
	cache *diagnostics.Cache,
	compute diagnostics.ComputeFunc,
	monitor *monitoring.Monitor,
	deadline time.Duration,
	eventRepo *repository.EventRepository,
	logger *slog.Logger,
) *RunHandler {
	return &RunHandler{
		scheduler: sched,
		cache:     cache,
		compute:   compute,
		monitor:   monitor,
		deadline:  deadline,
		eventRepo: eventRepo,
		log:       logger,
	}
}

// CreateRunRequest represents the request to initialize a run
type CreateRunRequest struct {
	Root           string `json:"root"`
	FirstStartTime string `json:"first_start_time"` // RFC 3339
	ConfigYAML     string `json:"config_yaml"`
}

// CreateRun handles POST /v1/runs
func (h *RunHandler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var req CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Root == "" {
		http.Error(w, "root is required", http.StatusBadRequest)
		return
	}
	firstStart, err := time.Parse(time.RFC3339, req.FirstStartTime)
	if err != nil {
		http.Error(w, "Invalid first_start_time: "+err.Error(), http.StatusBadRequest)
		return
	}

	cfg, err := spec.Parse([]byte(req.ConfigYAML))
	if err != nil {
		h.writeError(w, err)
		return
	}
	if err := h.scheduler.Create(r.Context(), req.Root, cfg, firstStart); err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"root":             req.Root,
		"first_start_time": firstStart.UTC().Format(time.RFC3339),
	})
}

// AppendRequest represents the request to append one segment
type AppendRequest struct {
	Root string `json:"root"`
}

// AppendSegment handles POST /v1/runs/append
func (h *RunHandler) AppendSegment(w http.ResponseWriter, r *http.Request) {
	var req AppendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Root == "" {
		http.Error(w, "root is required", http.StatusBadRequest)
		return
	}

	label, err := h.scheduler.Append(r.Context(), req.Root)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"root":    req.Root,
		"segment": label,
	})
}

// GetSegments handles GET /v1/runs/segments?root=...
func (h *RunHandler) GetSegments(w http.ResponseWriter, r *http.Request) {
	root := r.URL.Query().Get("root")
	if root == "" {
		http.Error(w, "root is required", http.StatusBadRequest)
		return
	}

	segments, err := h.scheduler.Segments(r.Context(), root)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"root":     root,
		"segments": segments,
	})
}

// DiagnosticsRequest represents the request to compute diagnostics
type DiagnosticsRequest struct {
	Root string `json:"root"`
}

// ComputeDiagnostics handles POST /v1/diagnostics
func (h *RunHandler) ComputeDiagnostics(w http.ResponseWriter, r *http.Request) {
	var req DiagnosticsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Root == "" {
		http.Error(w, "root is required", http.StatusBadRequest)
		return
	}

	artifacts, err := h.cache.GetOrCompute(r.Context(), req.Root, h.compute)
	if err != nil {
		h.writeError(w, err)
		return
	}

	names := make([]string, 0, len(artifacts))
	for name := range artifacts {
		names = append(names, name)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"root":      req.Root,
		"key":       h.cache.Key(req.Root),
		"artifacts": names,
	})
}

// MonitorRequest represents the request to monitor a job to completion
type MonitorRequest struct {
	ID        string `json:"id"`
	Namespace string `json:"namespace,omitempty"`
	Deadline  string `json:"deadline,omitempty"` // Go duration, e.g. "6h"
}

// MonitorJob handles POST /v1/jobs/monitor
func (h *RunHandler) MonitorJob(w http.ResponseWriter, r *http.Request) {
	var req MonitorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.ID == "" {
		http.Error(w, "id is required", http.StatusBadRequest)
		return
	}

	deadline := h.deadline
	if req.Deadline != "" {
		d, err := time.ParseDuration(req.Deadline)
		if err != nil {
			http.Error(w, "Invalid deadline: "+err.Error(), http.StatusBadRequest)
			return
		}
		deadline = d
	}

	ref := models.JobRef{ID: req.ID, Namespace: req.Namespace}
	outcome, err := h.monitor.Wait(r.Context(), ref, deadline)
	if err != nil {
		h.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"job":     ref.String(),
		"outcome": string(outcome),
	})
}

// GetRunEvents handles GET /v1/runs/events?root=...
func (h *RunHandler) GetRunEvents(w http.ResponseWriter, r *http.Request) {
	if h.eventRepo == nil {
		http.Error(w, "Event ledger not configured", http.StatusNotFound)
		return
	}
	root := r.URL.Query().Get("root")
	if root == "" {
		http.Error(w, "root is required", http.StatusBadRequest)
		return
	}

	events, err := h.eventRepo.GetRunEvents(r.Context(), root, 100)
	if err != nil {
		http.Error(w, "Failed to fetch events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"root":   root,
		"events": events,
	})
}

// writeError maps the run error taxonomy to HTTP statuses.
func (h *RunHandler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	switch {
	case errors.Is(err, models.ErrConfiguration):
		status, code = http.StatusUnprocessableEntity, "configuration_error"
	case errors.Is(err, models.ErrAlreadyInitialized):
		status, code = http.StatusConflict, "already_initialized"
	case errors.Is(err, models.ErrNotInitialized):
		status, code = http.StatusPreconditionFailed, "not_initialized"
	case errors.Is(err, models.ErrChunkAlignment):
		status, code = http.StatusUnprocessableEntity, "chunk_alignment_error"
	case errors.Is(err, models.ErrSegmentExecution):
		status, code = http.StatusBadGateway, "segment_execution_error"
	case errors.Is(err, models.ErrJobFailed):
		status, code = http.StatusBadGateway, "job_failed"
	case errors.Is(err, models.ErrJobAmbiguous):
		status, code = http.StatusGatewayTimeout, "job_ambiguous"
	}
	h.log.Error("request failed", "code", code, "error", err)
	writeJSON(w, status, map[string]interface{}{
		"code":  code,
		"error": err.Error(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
