package pipeline

import "math"

// Linear decay constants for the drift-derived scores.
const (
	rulBaselineDays = 30.0
	rulDaysPerDrift = 10.0

	healthFull     = 100.0
	healthPerDrift = 20.0
)

// Estimate is the estimator output for one reading.
type Estimate struct {
	Drift   float64
	RULDays float64
	Health  float64
}

// Estimator keeps the trailing offsets needed for drift. The window widens
// over the first two readings and then slides with a fixed size of three.
//
// An Estimator is not safe for concurrent use.
type Estimator struct {
	offsets window
	seen    int
}

// NewEstimator returns an Estimator with no history.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Next records offset and returns drift, RUL and health for the reading.
// A drift that overflows to ±Inf returns a *ComputationError whose Row is
// the number of readings seen before this one.
func (e *Estimator) Next(offset float64) (Estimate, error) {
	row := e.seen
	e.seen++
	e.offsets.push(offset)
	drift := e.offsets.mean()
	if !finite(drift) {
		return Estimate{}, &ComputationError{Row: row, Field: "drift", Value: drift}
	}
	return Estimate{
		Drift:   drift,
		RULDays: RUL(drift),
		Health:  Health(drift),
	}, nil
}

// Reset discards the offset history.
func (e *Estimator) Reset() {
	e.offsets.reset()
	e.seen = 0
}

// RUL returns the remaining useful life in days: max(0, 30 − 10·|drift|).
func RUL(drift float64) float64 {
	return math.Max(0, rulBaselineDays-rulDaysPerDrift*math.Abs(drift))
}

// Health returns the health score: clamp(100 − 20·|drift|, 0, 100).
func Health(drift float64) float64 {
	return clamp(healthFull-healthPerDrift*math.Abs(drift), 0, healthFull)
}

// clamp restricts v to the range [lo, hi].
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
