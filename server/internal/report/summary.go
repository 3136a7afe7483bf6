package report

import (
	"fmt"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// Count is one bar of a label summary.
type Count struct {
	Label string `json:"label"`
	N     int    `json:"count"`
}

// Latest returns the live status of the last reading. ok is false when rows
// is empty.
func Latest(rows []types.EnrichedReading) (status types.Status, ok bool) {
	if len(rows) == 0 {
		return types.Status{}, false
	}
	return rows[len(rows)-1].Status(), true
}

// CountAlerts counts readings per alert level, NORMAL first. Every level is
// present, including those with zero readings.
func CountAlerts(rows []types.EnrichedReading) []Count {
	return countBy(rows, types.AlertLevels, func(r types.EnrichedReading) types.AlertLevel { return r.Alert })
}

// CountMaintenance counts readings per recommendation, least urgent first.
func CountMaintenance(rows []types.EnrichedReading) []Count {
	return countBy(rows, types.Maintenances, func(r types.EnrichedReading) types.Maintenance { return r.Maintenance })
}

// CountAnomalies counts readings per anomaly kind in declaration order.
func CountAnomalies(rows []types.EnrichedReading) []Count {
	return countBy(rows, types.Anomalies, func(r types.EnrichedReading) types.Anomaly { return r.Anomaly })
}

func countBy[T interface {
	~uint8
	fmt.Stringer
}](rows []types.EnrichedReading, all []T, label func(types.EnrichedReading) T) []Count {
	n := make([]int, len(all))
	for _, r := range rows {
		if v := int(label(r)); v < len(n) {
			n[v]++
		}
	}
	out := make([]Count, len(all))
	for i, v := range all {
		out[i] = Count{Label: v.String(), N: n[i]}
	}
	return out
}
