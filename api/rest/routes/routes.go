package routes

import (
	"segrun-orchestrator/api/rest/handlers"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(r *mux.Router, runHandler *handlers.RunHandler) {
	api := r.PathPrefix("/v1").Subrouter()

	// Run endpoints
	api.HandleFunc("/runs", runHandler.CreateRun).Methods("POST")
	api.HandleFunc("/runs/append", runHandler.AppendSegment).Methods("POST")
	api.HandleFunc("/runs/segments", runHandler.GetSegments).Methods("GET")
	api.HandleFunc("/runs/events", runHandler.GetRunEvents).Methods("GET")

	// Diagnostics endpoints
	api.HandleFunc("/diagnostics", runHandler.ComputeDiagnostics).Methods("POST")

	// Job endpoints
	api.HandleFunc("/jobs/monitor", runHandler.MonitorJob).Methods("POST")
}
