// Package metrics exposes run counters and the latest reading's gauges in
// the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// Metric names.
const (
	nameRuns      = "sensorcal_runs_total"
	nameReadings  = "sensorcal_readings_total"
	nameRejected  = "sensorcal_runs_rejected_total"
	nameAnomalies = "sensorcal_anomalies_total"
	nameAlerts    = "sensorcal_alerts_total"
	nameDrift     = "sensorcal_latest_drift"
	nameHealth    = "sensorcal_latest_health"
	nameRUL       = "sensorcal_latest_rul_days"
	nameMeasured  = "sensorcal_latest_measured"
)

// Rejection kinds passed to ObserveRejected.
const (
	RejectSchema      = "schema"
	RejectComputation = "computation"
	RejectInternal    = "internal"
)

// Registry accumulates counters across runs. It is safe for concurrent use.
type Registry struct {
	mu        sync.Mutex
	runs      float64
	readings  float64
	rejected  map[string]float64
	anomalies [5]float64
	alerts    [3]float64
	latest    *types.EnrichedReading
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{rejected: make(map[string]float64)}
}

// ObserveRun records one accepted run.
func (r *Registry) ObserveRun(rows []types.EnrichedReading) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
	r.readings += float64(len(rows))
	for _, row := range rows {
		if int(row.Anomaly) < len(r.anomalies) {
			r.anomalies[row.Anomaly]++
		}
		if int(row.Alert) < len(r.alerts) {
			r.alerts[row.Alert]++
		}
	}
	if len(rows) > 0 {
		last := rows[len(rows)-1]
		r.latest = &last
	}
}

// ObserveRejected records a run rejected with the given kind.
func (r *Registry) ObserveRejected(kind string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rejected[kind]++
}

// Families returns the current metric families sorted by name.
func (r *Registry) Families() []*dto.MetricFamily {
	r.mu.Lock()
	defer r.mu.Unlock()

	mfs := []*dto.MetricFamily{
		family(nameRuns, "Runs accepted by the pipeline.", dto.MetricType_COUNTER, counter(r.runs)),
		family(nameReadings, "Readings enriched across all runs.", dto.MetricType_COUNTER, counter(r.readings)),
	}

	kinds := make([]string, 0, len(r.rejected))
	for k := range r.rejected {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	rejected := make([]*dto.Metric, 0, len(kinds))
	for _, k := range kinds {
		rejected = append(rejected, labelled(counter(r.rejected[k]), "kind", k))
	}
	if len(rejected) > 0 {
		mfs = append(mfs, family(nameRejected, "Runs rejected before persistence, by error kind.", dto.MetricType_COUNTER, rejected...))
	}

	anomalies := make([]*dto.Metric, len(types.Anomalies))
	for i, a := range types.Anomalies {
		anomalies[i] = labelled(counter(r.anomalies[a]), "kind", a.String())
	}
	mfs = append(mfs, family(nameAnomalies, "Readings classified per anomaly kind.", dto.MetricType_COUNTER, anomalies...))

	alerts := make([]*dto.Metric, len(types.AlertLevels))
	for i, l := range types.AlertLevels {
		alerts[i] = labelled(counter(r.alerts[l]), "level", l.String())
	}
	mfs = append(mfs, family(nameAlerts, "Readings per alert level.", dto.MetricType_COUNTER, alerts...))

	if r.latest != nil {
		mfs = append(mfs,
			family(nameDrift, "Drift of the most recent reading.", dto.MetricType_GAUGE, gauge(r.latest.Drift)),
			family(nameHealth, "Health score of the most recent reading.", dto.MetricType_GAUGE, gauge(r.latest.Health)),
			family(nameRUL, "Remaining useful life of the most recent reading, in days.", dto.MetricType_GAUGE, gauge(r.latest.RULDays)),
			family(nameMeasured, "Measured value of the most recent reading.", dto.MetricType_GAUGE, gauge(r.latest.Measured)),
		)
	}

	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })
	return mfs
}

// Write encodes every family to w in the text exposition format.
func (r *Registry) Write(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Families() {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// ServeHTTP serves the exposition.
func (r *Registry) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	if err := r.Write(w); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func family(name, help string, typ dto.MetricType, ms ...*dto.Metric) *dto.MetricFamily {
	return &dto.MetricFamily{
		Name:   proto.String(name),
		Help:   proto.String(help),
		Type:   typ.Enum(),
		Metric: ms,
	}
}

func counter(v float64) *dto.Metric {
	return &dto.Metric{Counter: &dto.Counter{Value: proto.Float64(v)}}
}

func gauge(v float64) *dto.Metric {
	return &dto.Metric{Gauge: &dto.Gauge{Value: proto.Float64(v)}}
}

func labelled(m *dto.Metric, name, value string) *dto.Metric {
	m.Label = append(m.Label, &dto.LabelPair{Name: proto.String(name), Value: proto.String(value)})
	return m
}
