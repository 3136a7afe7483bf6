package pipeline

import (
	"math"

	"github.com/sensorcal/sensorcal/pkg/types"
)

// anomalyRule is one link of the detector chain. hist holds the current
// measured value at hist.at(0) and up to two predecessors behind it.
type anomalyRule struct {
	outcome types.Anomaly
	match   func(th Thresholds, hist *window) bool
}

// anomalyRules is evaluated in order; the first match wins. Out-of-Range is
// first so an out-of-range reading is never reported as a Spike.
var anomalyRules = []anomalyRule{
	{types.AnomalyOutOfRange, func(th Thresholds, h *window) bool {
		return th.outOfRange(h.at(0))
	}},
	{types.AnomalySpike, func(th Thresholds, h *window) bool {
		return h.len() >= 2 && math.Abs(h.at(0)-h.at(1)) > th.Spike
	}},
	{types.AnomalyStuck, func(_ Thresholds, h *window) bool {
		return h.len() >= 3 && h.at(0) == h.at(1) && h.at(1) == h.at(2)
	}},
	{types.AnomalyNoisy, func(_ Thresholds, h *window) bool {
		return h.len() >= 3 && (h.at(0)-h.at(1))*(h.at(1)-h.at(2)) < 0
	}},
}

// Detector classifies a stream of measured values one at a time. Rules only
// look backwards, so classification depends on arrival order.
//
// A Detector is not safe for concurrent use; Pipeline.Run builds one per call.
type Detector struct {
	th   Thresholds
	hist window
}

// NewDetector returns a Detector with empty history.
func NewDetector(th Thresholds) *Detector {
	return &Detector{th: th}
}

// Next records measured and returns its classification.
func (d *Detector) Next(measured float64) types.Anomaly {
	d.hist.push(measured)
	for _, r := range anomalyRules {
		if r.match(d.th, &d.hist) {
			return r.outcome
		}
	}
	return types.AnomalyNormal
}

// Reset clears the history so the next value is treated as reading 0.
func (d *Detector) Reset() { d.hist.reset() }
