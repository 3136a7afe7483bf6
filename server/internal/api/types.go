package api

import (
	"github.com/sensorcal/sensorcal/pkg/types"
	"github.com/sensorcal/sensorcal/server/internal/report"
	"github.com/sensorcal/sensorcal/server/internal/runner"
	"github.com/sensorcal/sensorcal/server/internal/store"
)

// StatusResponse is the payload for GET /api/v1/status and the websocket
// "status" event.
type StatusResponse struct {
	// State is the alert level of the latest reading, or "unknown" before
	// the first run.
	State        string           `json:"state"`
	Status       *types.Status    `json:"status,omitempty"`
	Latest       *store.Row       `json:"latest,omitempty"`
	RunID        string           `json:"run_id,omitempty"`
	RunRows      int              `json:"run_rows"`
	Alerts       []report.Count   `json:"alerts"`
	Maintenance  []report.Count   `json:"maintenance"`
	Anomalies    []report.Count   `json:"anomalies"`
	Diagnostics  []DiagnosticHint `json:"diagnostics"`
	FiringAlerts int              `json:"firing_alerts"`
	GeneratedAt  string           `json:"generated_at"` // RFC3339
}

// RunResponse is the payload for POST /api/v1/upload and /api/v1/readings.
type RunResponse struct {
	*runner.Result

	// Downloads maps each report kind to its /api/v1/reports URL.
	Downloads map[string]string `json:"downloads,omitempty"`
}

// RunRowsResponse is the payload for GET /api/v1/runs/:id.
type RunRowsResponse struct {
	RunID       string           `json:"run_id"`
	Rows        []store.Row      `json:"rows"`
	Diagnostics []DiagnosticHint `json:"diagnostics"`
}

// errorResponse is a generic JSON error body. Kind is set for rejected runs.
type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}
