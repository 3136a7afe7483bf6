package api

import (
	"context"
	"fmt"
	"time"

	"github.com/sensorcal/sensorcal/pkg/types"
	"github.com/sensorcal/sensorcal/server/internal/report"
	"github.com/sensorcal/sensorcal/server/internal/store"
)

// AlertSource reports how many alerts are currently firing.
type AlertSource interface {
	Firing() int
}

// BuildStatus assembles the live status from the latest stored run.
// alerts may be nil.
func BuildStatus(ctx context.Context, st store.Store, alerts AlertSource) (StatusResponse, error) {
	resp := StatusResponse{
		State:       "unknown",
		Alerts:      []report.Count{},
		Maintenance: []report.Count{},
		Anomalies:   []report.Count{},
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
	}
	if alerts != nil {
		resp.FiringAlerts = alerts.Firing()
	}

	latest, ok, err := st.Latest(ctx)
	if err != nil {
		return resp, fmt.Errorf("api: latest reading: %w", err)
	}
	if !ok {
		resp.Diagnostics = computeDiagnostics(nil)
		return resp, nil
	}

	run, err := st.Run(ctx, latest.RunID)
	if err != nil {
		return resp, fmt.Errorf("api: load run %s: %w", latest.RunID, err)
	}
	rows := readings(run)

	status := latest.Status()
	resp.State = latest.Alert.String()
	resp.Status = &status
	resp.Latest = &latest
	resp.RunID = latest.RunID
	resp.RunRows = len(rows)
	resp.Alerts = report.CountAlerts(rows)
	resp.Maintenance = report.CountMaintenance(rows)
	resp.Anomalies = report.CountAnomalies(rows)
	resp.Diagnostics = computeDiagnostics(rows)
	return resp, nil
}

func readings(rows []store.Row) []types.EnrichedReading {
	out := make([]types.EnrichedReading, len(rows))
	for i, r := range rows {
		out[i] = r.EnrichedReading
	}
	return out
}
