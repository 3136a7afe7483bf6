package pipeline

import "github.com/sensorcal/sensorcal/pkg/types"

// Maintenance thresholds.
const (
	RecalibrateHealth  = 50.0
	RecalibrateRULDays = 7.0
	MonitorHealth      = 70.0
)

type alertRule struct {
	level types.AlertLevel
	match func(th Thresholds, r *types.EnrichedReading) bool
}

// alertRules re-checks the range itself instead of trusting the anomaly
// label, so the alert stays correct for any detector rule order.
var alertRules = []alertRule{
	{types.AlertCritical, func(th Thresholds, r *types.EnrichedReading) bool {
		return th.outOfRange(r.Measured)
	}},
	{types.AlertWarning, func(_ Thresholds, r *types.EnrichedReading) bool {
		return r.Anomaly != types.AnomalyNormal
	}},
}

type maintenanceRule struct {
	action types.Maintenance
	match  func(r *types.EnrichedReading) bool
}

var maintenanceRules = []maintenanceRule{
	{types.MaintenanceRecalibrate, func(r *types.EnrichedReading) bool {
		return r.Health < RecalibrateHealth || r.RULDays < RecalibrateRULDays
	}},
	{types.MaintenanceMonitor, func(r *types.EnrichedReading) bool {
		return r.Health < MonitorHealth
	}},
}

// AlertFor returns the alert level for r. Only Measured and Anomaly are read.
func AlertFor(th Thresholds, r *types.EnrichedReading) types.AlertLevel {
	for _, rule := range alertRules {
		if rule.match(th, r) {
			return rule.level
		}
	}
	return types.AlertNormal
}

// MaintenanceFor returns the recommendation for r. Only Health and RULDays
// are read.
func MaintenanceFor(r *types.EnrichedReading) types.Maintenance {
	for _, rule := range maintenanceRules {
		if rule.match(r) {
			return rule.action
		}
	}
	return types.MaintenanceNone
}
