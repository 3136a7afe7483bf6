package pipeline

import (
	"errors"
	"math"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// baseTime is a fixed reference point so all test timings are deterministic.
var baseTime = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

// almostEqual returns true if a and b are within epsilon of each other.
func almostEqual(a, b, epsilon float64) bool {
	return math.Abs(a-b) < epsilon
}

func newTestPipeline(t *testing.T, th Thresholds) *Pipeline {
	t.Helper()
	p, err := New(th, WithClock(func() time.Time { return baseTime }))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

// series builds readings from parallel measured/ideal slices.
func series(measured []float64, ideal ...float64) []types.Reading {
	out := make([]types.Reading, len(measured))
	for i, m := range measured {
		id := ideal[0]
		if len(ideal) == len(measured) {
			id = ideal[i]
		}
		out[i] = types.Reading{Timestamp: baseTime.Add(time.Duration(i) * time.Minute), Measured: m, Ideal: id}
	}
	return out
}

func run(t *testing.T, readings []types.Reading) []types.EnrichedReading {
	t.Helper()
	out, err := newTestPipeline(t, DefaultThresholds()).Run(readings)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(out) != len(readings) {
		t.Fatalf("Run returned %d rows, want %d", len(out), len(readings))
	}
	return out
}

func anomalies(rows []types.EnrichedReading) []types.Anomaly {
	out := make([]types.Anomaly, len(rows))
	for i, r := range rows {
		out[i] = r.Anomaly
	}
	return out
}

func equalAnomalies(a, b []types.Anomaly) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// --- worked scenarios -------------------------------------------------------

func TestRun_ScenarioA_StuckAtIdeal(t *testing.T) {
	out := run(t, series([]float64{100, 100, 100}, 100))

	wantAnom := []types.Anomaly{types.AnomalyNormal, types.AnomalyNormal, types.AnomalyStuck}
	if got := anomalies(out); !equalAnomalies(got, wantAnom) {
		t.Errorf("anomalies = %v, want %v", got, wantAnom)
	}
	for i, r := range out {
		if r.Offset != 0 || r.Drift != 0 {
			t.Errorf("row %d: offset=%v drift=%v, want 0/0", i, r.Offset, r.Drift)
		}
		if r.Health != 100 || r.RULDays != 30 {
			t.Errorf("row %d: health=%v rul=%v, want 100/30", i, r.Health, r.RULDays)
		}
		wantAlert := types.AlertNormal
		if i == 2 {
			wantAlert = types.AlertWarning
		}
		if r.Alert != wantAlert {
			t.Errorf("row %d: alert=%v, want %v", i, r.Alert, wantAlert)
		}
		if r.Maintenance != types.MaintenanceNone {
			t.Errorf("row %d: maintenance=%v, want none", i, r.Maintenance)
		}
	}
}

func TestRun_ScenarioB_OutOfRangeIsCritical(t *testing.T) {
	out := run(t, series([]float64{100, 108}, 100))

	if out[1].Anomaly != types.AnomalyOutOfRange {
		t.Errorf("row 1 anomaly = %v, want Out-of-Range", out[1].Anomaly)
	}
	if out[1].Alert != types.AlertCritical {
		t.Errorf("row 1 alert = %v, want CRITICAL", out[1].Alert)
	}
	// drift = mean(0, 8) = 4 → health 20, RUL max(0, -10) = 0.
	if out[1].Drift != 4 || out[1].Health != 20 || out[1].RULDays != 0 {
		t.Errorf("row 1 drift/health/rul = %v/%v/%v, want 4/20/0", out[1].Drift, out[1].Health, out[1].RULDays)
	}
	if out[1].Maintenance != types.MaintenanceRecalibrate {
		t.Errorf("row 1 maintenance = %v, want recalibrate", out[1].Maintenance)
	}
}

func TestRun_ScenarioC_SpikeIsWarning(t *testing.T) {
	out := run(t, series([]float64{100, 100.5, 103}, 100))

	want := []types.Anomaly{types.AnomalyNormal, types.AnomalyNormal, types.AnomalySpike}
	if got := anomalies(out); !equalAnomalies(got, want) {
		t.Errorf("anomalies = %v, want %v", got, want)
	}
	if out[2].Alert != types.AlertWarning {
		t.Errorf("row 2 alert = %v, want WARNING", out[2].Alert)
	}
	// drift = (0 + 0.5 + 3) / 3
	wantDrift := 3.5 / 3
	if !almostEqual(out[2].Drift, wantDrift, 1e-9) {
		t.Errorf("row 2 drift = %.6f, want %.6f", out[2].Drift, wantDrift)
	}
	if !almostEqual(out[2].Health, 100-20*wantDrift, 1e-9) {
		t.Errorf("row 2 health = %.6f", out[2].Health)
	}
}

func TestRun_ScenarioD_DirectionReversalIsNoisy(t *testing.T) {
	out := run(t, series([]float64{100, 102, 100}, 100))

	// |±2| is not strictly greater than the 2.0 spike threshold.
	want := []types.Anomaly{types.AnomalyNormal, types.AnomalyNormal, types.AnomalyNoisy}
	if got := anomalies(out); !equalAnomalies(got, want) {
		t.Errorf("anomalies = %v, want %v", got, want)
	}
}

// --- properties -------------------------------------------------------------

func TestRun_CorrectedEqualsIdeal(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	readings := make([]types.Reading, 200)
	for i := range readings {
		readings[i] = types.Reading{Measured: 90 + rng.Float64()*20, Ideal: 95 + rng.Float64()*10}
	}
	for i, r := range run(t, readings) {
		if !almostEqual(r.Corrected, r.Ideal, 1e-9) {
			t.Errorf("row %d: corrected %.12f != ideal %.12f", i, r.Corrected, r.Ideal)
		}
		if r.Offset != r.Measured-r.Ideal {
			t.Errorf("row %d: offset %v != measured-ideal", i, r.Offset)
		}
	}
}

func TestRun_ScoresStayInRange(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	readings := make([]types.Reading, 500)
	for i := range readings {
		readings[i] = types.Reading{Measured: rng.NormFloat64()*15 + 100, Ideal: 100}
	}
	for i, r := range run(t, readings) {
		if r.Health < 0 || r.Health > 100 {
			t.Errorf("row %d: health %.4f out of [0,100]", i, r.Health)
		}
		if r.RULDays < 0 {
			t.Errorf("row %d: rul_days %.4f negative", i, r.RULDays)
		}
	}
}

func TestRun_DriftWindow(t *testing.T) {
	out := run(t, series([]float64{101, 102, 103, 104, 90}, 100))

	// offsets 1,2,3,4,-10
	want := []float64{1, 1.5, 2, 3, (3 + 4 - 10) / 3.0}
	for i, w := range want {
		if !almostEqual(out[i].Drift, w, 1e-9) {
			t.Errorf("drift[%d] = %.6f, want %.6f", i, out[i].Drift, w)
		}
	}
}

func TestRun_RulePrecedence(t *testing.T) {
	tests := []struct {
		name     string
		measured []float64
		want     types.Anomaly
	}{
		{"out-of-range beats spike", []float64{100, 106}, types.AnomalyOutOfRange},
		{"out-of-range beats stuck", []float64{94, 94, 94}, types.AnomalyOutOfRange},
		{"spike beats noisy", []float64{100, 102, 99}, types.AnomalySpike},
		{"low out-of-range", []float64{100, 99, 94.9}, types.AnomalyOutOfRange},
		{"upper bound is in range", []float64{105}, types.AnomalyNormal},
		{"lower bound is in range", []float64{95}, types.AnomalyNormal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out := run(t, series(tc.measured, 100))
			if got := out[len(out)-1].Anomaly; got != tc.want {
				t.Errorf("last anomaly = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRun_OrderSensitive(t *testing.T) {
	fwd := series([]float64{100, 101, 103, 102}, 100)
	rev := make([]types.Reading, len(fwd))
	for i, r := range fwd {
		rev[len(fwd)-1-i] = r
	}

	fwdAnom := anomalies(run(t, fwd))
	revAnom := anomalies(run(t, rev))

	mirrored := make([]types.Anomaly, len(fwdAnom))
	for i, a := range fwdAnom {
		mirrored[len(fwdAnom)-1-i] = a
	}
	if equalAnomalies(revAnom, mirrored) {
		t.Errorf("reversed input produced the mirror classification %v", revAnom)
	}
}

func TestRun_Deterministic(t *testing.T) {
	in := series([]float64{100, 103, 99, 99, 99, 104, 96, 101}, 100)
	a := run(t, in)
	b := run(t, in)
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("row %d differs between runs: %+v vs %+v", i, a[i], b[i])
		}
	}
}

func TestRun_PreservesOrderAndTimestamps(t *testing.T) {
	in := series([]float64{100, 101, 102}, 100)
	out := run(t, in)
	for i := range in {
		if !out[i].Timestamp.Equal(in[i].Timestamp) {
			t.Errorf("row %d timestamp = %v, want %v", i, out[i].Timestamp, in[i].Timestamp)
		}
	}
}

func TestRun_ZeroTimestampUsesClock(t *testing.T) {
	out := run(t, []types.Reading{{Measured: 100, Ideal: 100}})
	if !out[0].Timestamp.Equal(baseTime) {
		t.Errorf("timestamp = %v, want injected clock %v", out[0].Timestamp, baseTime)
	}
}

func TestRun_CustomThresholds(t *testing.T) {
	p := newTestPipeline(t, Thresholds{Min: 0, Max: 50, Spike: 0.5})
	out, err := p.Run(series([]float64{20, 21, 60}, 20))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []types.Anomaly{types.AnomalyNormal, types.AnomalySpike, types.AnomalyOutOfRange}
	if got := anomalies(out); !equalAnomalies(got, want) {
		t.Errorf("anomalies = %v, want %v", got, want)
	}
}

// --- errors -----------------------------------------------------------------

func TestRun_EmptyInputRejected(t *testing.T) {
	out, err := newTestPipeline(t, DefaultThresholds()).Run(nil)
	if out != nil {
		t.Errorf("expected no output, got %d rows", len(out))
	}
	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SchemaError", err)
	}
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("err should wrap ErrEmptyInput: %v", err)
	}
}

func TestRun_NonFiniteInputRejectedBeforeAnyStage(t *testing.T) {
	tests := []struct {
		name    string
		in      []types.Reading
		wantRow int
		wantCol string
	}{
		{"NaN measured", []types.Reading{{Measured: 100, Ideal: 100}, {Measured: math.NaN(), Ideal: 100}}, 1, ColumnMeasured},
		{"Inf ideal", []types.Reading{{Measured: 100, Ideal: math.Inf(-1)}}, 0, ColumnIdeal},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := newTestPipeline(t, DefaultThresholds()).Run(tc.in)
			if out != nil {
				t.Errorf("expected no partial output, got %d rows", len(out))
			}
			var se *SchemaError
			if !errors.As(err, &se) {
				t.Fatalf("err = %v, want *SchemaError", err)
			}
			if se.Row != tc.wantRow || se.Column != tc.wantCol {
				t.Errorf("SchemaError row/column = %d/%q, want %d/%q", se.Row, se.Column, tc.wantRow, tc.wantCol)
			}
		})
	}
}

func TestRun_OverflowIsComputationError(t *testing.T) {
	tests := []struct {
		name      string
		in        []types.Reading
		wantRow   int
		wantField string
	}{
		{
			name:      "offset overflows",
			in:        []types.Reading{{Measured: math.MaxFloat64, Ideal: -math.MaxFloat64}},
			wantRow:   0,
			wantField: "offset",
		},
		{
			name:      "drift sum overflows",
			in:        []types.Reading{{Measured: 1e308, Ideal: -5e307}, {Measured: 1e308, Ideal: -5e307}},
			wantRow:   1,
			wantField: "drift",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := newTestPipeline(t, DefaultThresholds()).Run(tc.in)
			if out != nil {
				t.Errorf("expected no output, got %d rows", len(out))
			}
			var ce *ComputationError
			if !errors.As(err, &ce) {
				t.Fatalf("err = %v, want *ComputationError", err)
			}
			if ce.Row != tc.wantRow || ce.Field != tc.wantField {
				t.Errorf("ComputationError row/field = %d/%q, want %d/%q", ce.Row, ce.Field, tc.wantRow, tc.wantField)
			}
		})
	}
}

func TestNew_RejectsBadThresholds(t *testing.T) {
	if _, err := New(Thresholds{Min: 105, Max: 95, Spike: 2}); err == nil {
		t.Error("New with min > max: expected error")
	}
}

// --- RunRecords -------------------------------------------------------------

func TestRunRecords_ValidatesThenRuns(t *testing.T) {
	p := newTestPipeline(t, DefaultThresholds())
	out, err := p.RunRecords([]Record{
		{"measured": "100", "ideal": "100"},
		{"measured": "108", "ideal": "100", "timestamp": "2026-01-02 10:00:00"},
	})
	if err != nil {
		t.Fatalf("RunRecords: %v", err)
	}
	if !out[0].Timestamp.Equal(baseTime) {
		t.Errorf("row 0 timestamp = %v, want clock default", out[0].Timestamp)
	}
	if out[1].Alert != types.AlertCritical {
		t.Errorf("row 1 alert = %v, want CRITICAL", out[1].Alert)
	}
}

func TestRunRecords_MissingFieldRejectsWholeRun(t *testing.T) {
	p := newTestPipeline(t, DefaultThresholds())
	out, err := p.RunRecords([]Record{
		{"measured": "100", "ideal": "100"},
		{"measured": "101"},
	})
	if out != nil {
		t.Errorf("expected no output, got %d rows", len(out))
	}
	var se *SchemaError
	if !errors.As(err, &se) || se.Column != ColumnIdeal || se.Row != 1 {
		t.Fatalf("err = %v, want SchemaError for ideal at row 1", err)
	}
}

// --- concurrency ------------------------------------------------------------

func TestPipeline_ConcurrentRunsAreIndependent(t *testing.T) {
	p := newTestPipeline(t, DefaultThresholds())
	inputs := [][]types.Reading{
		series([]float64{100, 100, 100}, 100),
		series([]float64{100, 108}, 100),
		series([]float64{100, 100.5, 103}, 100),
		series([]float64{100, 102, 100}, 100),
	}
	want := make([][]types.EnrichedReading, len(inputs))
	for i, in := range inputs {
		want[i] = run(t, in)
	}

	var wg sync.WaitGroup
	errs := make(chan string, 100)
	for n := 0; n < 25; n++ {
		for i, in := range inputs {
			wg.Add(1)
			go func(i int, in []types.Reading) {
				defer wg.Done()
				got, err := p.Run(in)
				if err != nil {
					errs <- err.Error()
					return
				}
				for j := range got {
					if got[j] != want[i][j] {
						errs <- "concurrent run diverged"
						return
					}
				}
			}(i, in)
		}
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
}
