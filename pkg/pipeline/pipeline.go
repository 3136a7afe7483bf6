package pipeline

import (
	"fmt"
	"time"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// Pipeline sequences Corrector → Detector → Estimator → Policy over an input
// sequence. It holds configuration only; all per-run state lives inside Run.
//
// All exported methods are safe for concurrent use.
type Pipeline struct {
	th  Thresholds
	now func() time.Time
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the clock used to stamp readings that carry no
// timestamp. Tests use it to stay deterministic.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

// New returns a Pipeline using th. It fails if th does not validate.
func New(th Thresholds, opts ...Option) (*Pipeline, error) {
	if err := th.Validate(); err != nil {
		return nil, err
	}
	p := &Pipeline{th: th, now: time.Now}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Thresholds returns the thresholds the pipeline was built with.
func (p *Pipeline) Thresholds() Thresholds { return p.th }

// RunRecords validates untyped records and runs the pipeline over them.
func (p *Pipeline) RunRecords(records []Record) ([]types.EnrichedReading, error) {
	readings, err := Validate(records, p.now())
	if err != nil {
		return nil, err
	}
	return p.Run(readings)
}

// Run enriches readings in order. The input is checked in full first: an
// empty sequence or a non-finite measured/ideal value returns a *SchemaError
// before any stage runs. A non-finite intermediate result returns a
// *ComputationError. On error no output is returned.
func (p *Pipeline) Run(readings []types.Reading) ([]types.EnrichedReading, error) {
	if err := precheck(readings); err != nil {
		return nil, err
	}

	now := p.now()
	det := NewDetector(p.th)
	est := NewEstimator()
	out := make([]types.EnrichedReading, len(readings))

	for i, in := range readings {
		r := types.EnrichedReading{Reading: in}
		if r.Timestamp.IsZero() {
			r.Timestamp = now
		}

		r.Offset, r.Corrected = Correct(in.Measured, in.Ideal)
		if !finite(r.Offset) {
			return nil, &ComputationError{Row: i, Field: "offset", Value: r.Offset}
		}

		r.Anomaly = det.Next(in.Measured)

		e, err := est.Next(r.Offset)
		if err != nil {
			return nil, err
		}
		r.Drift, r.RULDays, r.Health = e.Drift, e.RULDays, e.Health

		r.Alert = AlertFor(p.th, &r)
		r.Maintenance = MaintenanceFor(&r)

		out[i] = r
	}
	return out, nil
}

// precheck rejects input the stages must never see.
func precheck(readings []types.Reading) error {
	if len(readings) == 0 {
		return &SchemaError{Row: -1, Reason: ErrEmptyInput.Error(), Err: ErrEmptyInput}
	}
	for i, r := range readings {
		if !finite(r.Measured) {
			return &SchemaError{Row: i, Column: ColumnMeasured, Reason: fmt.Sprintf("value %v is not finite", r.Measured)}
		}
		if !finite(r.Ideal) {
			return &SchemaError{Row: i, Column: ColumnIdeal, Reason: fmt.Sprintf("value %v is not finite", r.Ideal)}
		}
	}
	return nil
}
