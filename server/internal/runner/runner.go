// Package runner sequences one calibration run end to end: validation and
// the pipeline, persistence, report generation, artifact upload, alert
// evaluation, live-status notification and metrics.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sensorcal/sensorcal/pkg/pipeline"
	"github.com/sensorcal/sensorcal/pkg/types"
	"github.com/sensorcal/sensorcal/server/internal/artifacts"
	"github.com/sensorcal/sensorcal/server/internal/config"
	"github.com/sensorcal/sensorcal/server/internal/ingest"
	"github.com/sensorcal/sensorcal/server/internal/metrics"
	"github.com/sensorcal/sensorcal/server/internal/report"
	"github.com/sensorcal/sensorcal/server/internal/store"
)

// Evaluator receives the latest reading of every accepted run.
type Evaluator interface {
	Evaluate(runID string, r types.EnrichedReading)
}

// Publisher uploads generated report files.
type Publisher interface {
	Publish(ctx context.Context, runID string, files []string) ([]artifacts.Object, error)
}

// Notifier is told when a run has been stored.
type Notifier interface {
	Notify()
}

// Result describes one accepted run.
type Result struct {
	RunID       string                  `json:"run_id"`
	Stored      int                     `json:"stored"`
	Status      types.Status            `json:"status"`
	Alerts      []report.Count          `json:"alerts"`
	Maintenance []report.Count          `json:"maintenance"`
	Reports     report.Files            `json:"reports"`
	Artifacts   []artifacts.Object      `json:"artifacts,omitempty"`
	Rows        []types.EnrichedReading `json:"rows"`
	FinishedAt  time.Time               `json:"finished_at"`
}

// Option configures a Runner.
type Option func(*Runner)

// WithEvaluator sets the alert evaluator.
func WithEvaluator(e Evaluator) Option { return func(r *Runner) { r.alerts = e } }

// WithPublisher enables artifact upload.
func WithPublisher(p Publisher) Option { return func(r *Runner) { r.publisher = p } }

// WithNotifier sets the live-status notifier.
func WithNotifier(n Notifier) Option { return func(r *Runner) { r.notifier = n } }

// WithMetrics sets the metrics registry.
func WithMetrics(m *metrics.Registry) Option { return func(r *Runner) { r.metrics = m } }

// WithClock overrides the clock used for missing timestamps and FinishedAt.
func WithClock(now func() time.Time) Option { return func(r *Runner) { r.now = now } }

// WithIDs overrides run ID generation.
func WithIDs(newID func() string) Option { return func(r *Runner) { r.newID = newID } }

// Runner is safe for concurrent use. Runs are persisted and reported one at
// a time so the latest report always matches the latest stored run.
type Runner struct {
	store     store.Store
	reports   config.ReportsConfig
	alerts    Evaluator
	publisher Publisher
	notifier  Notifier
	metrics   *metrics.Registry
	now       func() time.Time
	newID     func() string

	mu   sync.RWMutex
	pipe *pipeline.Pipeline

	runMu sync.Mutex
}

// New returns a Runner that stores into st and writes reports per rc.
func New(st store.Store, th pipeline.Thresholds, rc config.ReportsConfig, opts ...Option) (*Runner, error) {
	r := &Runner{
		store:   st,
		reports: rc,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, o := range opts {
		o(r)
	}
	if err := r.SetThresholds(th); err != nil {
		return nil, err
	}
	return r, nil
}

// SetThresholds swaps the pipeline configuration used by subsequent runs.
// Runs already in progress keep the thresholds they started with.
func (r *Runner) SetThresholds(th pipeline.Thresholds) error {
	p, err := pipeline.New(th, pipeline.WithClock(r.now))
	if err != nil {
		return fmt.Errorf("runner: %w", err)
	}
	r.mu.Lock()
	r.pipe = p
	r.mu.Unlock()
	return nil
}

// Thresholds returns the thresholds currently in effect.
func (r *Runner) Thresholds() pipeline.Thresholds {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pipe.Thresholds()
}

func (r *Runner) current() *pipeline.Pipeline {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.pipe
}

// RunCSV decodes a CSV upload and runs it.
func (r *Runner) RunCSV(ctx context.Context, rd io.Reader) (*Result, error) {
	records, err := ingest.ReadCSV(rd)
	if err != nil {
		r.reject(err)
		return nil, err
	}
	return r.RunRecords(ctx, records)
}

// RunJSON decodes a JSON array of readings and runs it.
func (r *Runner) RunJSON(ctx context.Context, rd io.Reader) (*Result, error) {
	records, err := ingest.ReadJSON(rd)
	if err != nil {
		r.reject(err)
		return nil, err
	}
	return r.RunRecords(ctx, records)
}

// RunRecords validates untyped records (CSV rows, JSON objects) and runs them.
func (r *Runner) RunRecords(ctx context.Context, records []pipeline.Record) (*Result, error) {
	p := r.current()
	return r.process(ctx, func() ([]types.EnrichedReading, error) {
		return p.RunRecords(records)
	})
}

// Run processes already-typed readings.
func (r *Runner) Run(ctx context.Context, readings []types.Reading) (*Result, error) {
	p := r.current()
	return r.process(ctx, func() ([]types.EnrichedReading, error) {
		return p.Run(readings)
	})
}

func (r *Runner) process(ctx context.Context, enrich func() ([]types.EnrichedReading, error)) (*Result, error) {
	rows, err := enrich()
	if err != nil {
		r.reject(err)
		return nil, err
	}

	runID := r.newID()
	res := &Result{
		RunID:       runID,
		Rows:        rows,
		Alerts:      report.CountAlerts(rows),
		Maintenance: report.CountMaintenance(rows),
	}
	res.Status, _ = report.Latest(rows)

	r.runMu.Lock()
	defer r.runMu.Unlock()

	n, err := r.store.Append(ctx, runID, rows)
	if err != nil {
		r.observeRejected(metrics.RejectInternal)
		return nil, fmt.Errorf("runner: store run %s: %w", runID, err)
	}
	res.Stored = n

	// From here on the run is accepted; later failures are reported but the
	// stored rows stay. Reports are written before anyone is told about the run.
	files, reportErr := report.Generate(r.reports.Dir, r.reports.Prefix, rows)
	if reportErr == nil {
		res.Reports = files
		if r.publisher != nil {
			objs, err := r.publisher.Publish(ctx, runID, files.Paths())
			if err != nil {
				slog.Error("runner: artifact upload failed", "run_id", runID, "err", err)
			} else {
				res.Artifacts = objs
			}
		}
	}

	if r.alerts != nil {
		r.alerts.Evaluate(runID, rows[len(rows)-1])
	}
	if r.notifier != nil {
		r.notifier.Notify()
	}
	if r.metrics != nil {
		r.metrics.ObserveRun(rows)
	}

	if reportErr != nil {
		return res, fmt.Errorf("runner: reports for run %s: %w", runID, reportErr)
	}

	res.FinishedAt = r.now().UTC()
	slog.Info("runner: run complete",
		"run_id", runID,
		"rows", n,
		"alert", res.Status.Alert,
		"maintenance", res.Status.Maintenance,
	)
	return res, nil
}

func (r *Runner) reject(err error) {
	kind := Kind(err)
	slog.Warn("runner: run rejected", "kind", kind, "err", err)
	r.observeRejected(kind)
}

func (r *Runner) observeRejected(kind string) {
	if r.metrics != nil {
		r.metrics.ObserveRejected(kind)
	}
}

// Kind classifies a run error for metrics and HTTP status mapping.
func Kind(err error) string {
	var se *pipeline.SchemaError
	var ce *pipeline.ComputationError
	switch {
	case errors.As(err, &se):
		return metrics.RejectSchema
	case errors.As(err, &ce):
		return metrics.RejectComputation
	default:
		return metrics.RejectInternal
	}
}
