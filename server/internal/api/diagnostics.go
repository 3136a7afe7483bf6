package api

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// DiagnosticHint is one human-readable insight about a run. The UI shows
// these as chips next to the live status; Detail is the longer explanation.
type DiagnosticHint struct {
	// Key is a stable machine-readable identifier.
	Key string `json:"key"`
	// Level is "ok" | "info" | "warning" | "critical"
	Level string `json:"level"`
	// Title is a short label shown on the chip.
	Title string `json:"title"`
	// Detail is the full explanation shown on click/hover.
	Detail string `json:"detail"`
	// Value is an optional number associated with the hint (count, days).
	Value *float64 `json:"value,omitempty"`
}

var levelRank = map[string]int{"critical": 0, "warning": 1, "info": 2, "ok": 3}

// driftGrowth is the rise in |drift| across a run worth pointing out.
const driftGrowth = 0.5

// computeDiagnostics derives hints from the rows of one run, ordered
// critical first, then warnings, then info. A run with nothing to report
// gets a single "ok" hint.
func computeDiagnostics(rows []types.EnrichedReading) []DiagnosticHint {
	if len(rows) == 0 {
		return []DiagnosticHint{{
			Key:    "no_data",
			Level:  "info",
			Title:  "No readings yet",
			Detail: "Upload a CSV with measured and ideal columns to start calibrating.",
		}}
	}

	counts := make(map[types.Anomaly]int)
	for _, r := range rows {
		counts[r.Anomaly]++
	}
	last := rows[len(rows)-1]

	var hints []DiagnosticHint

	// ── Anomalies ────────────────────────────────────────────────────────────
	if n := counts[types.AnomalyOutOfRange]; n > 0 {
		hints = append(hints, countHint("out_of_range", "critical",
			"%d out of range", n,
			"%d of %d readings fell outside the configured operating range. "+
				"Every one of them raised a CRITICAL alert. Check the process itself "+
				"before blaming the sensor: a real excursion looks the same.",
			len(rows)))
	}
	if n := counts[types.AnomalyStuck]; n > 0 {
		hints = append(hints, countHint("stuck", "warning",
			"Sensor looks stuck", n,
			"%d of %d readings repeated the previous two values exactly. "+
				"A healthy sensor always shows some noise, so a flat line usually means "+
				"a frozen transmitter, a disconnected probe or a logger replaying cached data.",
			len(rows)))
	}
	if n := counts[types.AnomalySpike]; n > 0 {
		hints = append(hints, countHint("spikes", "warning",
			"%d spikes", n,
			"%d of %d readings jumped further from the previous one than the spike threshold. "+
				"Isolated spikes are often electrical interference; repeated ones point "+
				"at a loose connection.",
			len(rows)))
	}
	if n := counts[types.AnomalyNoisy]; n > 0 {
		hints = append(hints, countHint("noisy", "info",
			"Noisy signal", n,
			"%d of %d readings reversed direction around a local extreme. "+
				"Some jitter is normal; a lot of it lowers confidence in the drift estimate.",
			len(rows)))
	}

	// ── Maintenance ──────────────────────────────────────────────────────────
	switch last.Maintenance {
	case types.MaintenanceRecalibrate:
		v := last.RULDays
		hints = append(hints, DiagnosticHint{
			Key:   "recalibrate",
			Level: "critical",
			Title: "Recalibrate this week",
			Detail: fmt.Sprintf(
				"Health is %.0f/100 with about %.1f days of useful life left at the current drift of %+.2f. "+
					"Schedule a recalibration within the next week.",
				last.Health, last.RULDays, last.Drift),
			Value: &v,
		})
	case types.MaintenanceMonitor:
		v := last.Health
		hints = append(hints, DiagnosticHint{
			Key:   "monitor",
			Level: "warning",
			Title: "Monitor closely",
			Detail: fmt.Sprintf(
				"Health has dropped to %.0f/100 (drift %+.2f). No action is needed yet, "+
					"but plan a recalibration soon.",
				last.Health, last.Drift),
			Value: &v,
		})
	}

	// ── Drift trend ──────────────────────────────────────────────────────────
	if grow := math.Abs(last.Drift) - math.Abs(rows[0].Drift); len(rows) > 1 && grow >= driftGrowth {
		v := last.Drift
		hints = append(hints, DiagnosticHint{
			Key:   "drift_growing",
			Level: "info",
			Title: "Drift growing",
			Detail: fmt.Sprintf(
				"Drift grew from %+.2f to %+.2f over this run. If the trend continues, "+
					"remaining useful life will keep shrinking by 10 days per unit of drift.",
				rows[0].Drift, last.Drift),
			Value: &v,
		})
	}

	// ── All clear ────────────────────────────────────────────────────────────
	if len(hints) == 0 {
		v := last.Health
		hints = append(hints, DiagnosticHint{
			Key:   "healthy",
			Level: "ok",
			Title: "All clear",
			Detail: fmt.Sprintf(
				"All %d readings were normal and health is %.0f/100 with %.1f days of useful life left.",
				len(rows), last.Health, last.RULDays),
			Value: &v,
		})
	}

	sort.SliceStable(hints, func(i, j int) bool {
		return levelRank[hints[i].Level] < levelRank[hints[j].Level]
	})
	return hints
}

// countHint builds an anomaly-count hint. title may carry one %d verb for n;
// detail takes n and total.
func countHint(key, level, title string, n int, detail string, total int) DiagnosticHint {
	v := float64(n)
	if strings.Contains(title, "%d") {
		title = fmt.Sprintf(title, n)
	}
	return DiagnosticHint{
		Key:    key,
		Level:  level,
		Title:  title,
		Detail: fmt.Sprintf(detail, n, total),
		Value:  &v,
	}
}
