package pipeline

import (
	"fmt"
	"math"
)

// Default thresholds for a 100° reference sensor.
const (
	DefaultMinVal         = 95.0
	DefaultMaxVal         = 105.0
	DefaultSpikeThreshold = 2.0
)

// Thresholds configures the detector and the alert policy. Both read the same
// Min/Max so an Out-of-Range reading always raises a CRITICAL alert.
type Thresholds struct {
	Min   float64 `yaml:"min_val" json:"min_val"`
	Max   float64 `yaml:"max_val" json:"max_val"`
	Spike float64 `yaml:"spike_threshold" json:"spike_threshold"`
}

// DefaultThresholds returns Min=95, Max=105, Spike=2.0.
func DefaultThresholds() Thresholds {
	return Thresholds{Min: DefaultMinVal, Max: DefaultMaxVal, Spike: DefaultSpikeThreshold}
}

// Validate rejects thresholds that would make the rule chains meaningless.
func (th Thresholds) Validate() error {
	for _, f := range []struct {
		name string
		v    float64
	}{{"min_val", th.Min}, {"max_val", th.Max}, {"spike_threshold", th.Spike}} {
		if math.IsNaN(f.v) || math.IsInf(f.v, 0) {
			return fmt.Errorf("pipeline: %s must be finite, got %v", f.name, f.v)
		}
	}
	if th.Min >= th.Max {
		return fmt.Errorf("pipeline: min_val %v must be below max_val %v", th.Min, th.Max)
	}
	if th.Spike < 0 {
		return fmt.Errorf("pipeline: spike_threshold must not be negative, got %v", th.Spike)
	}
	return nil
}

// outOfRange reports whether v lies outside [Min, Max].
func (th Thresholds) outOfRange(v float64) bool {
	return v < th.Min || v > th.Max
}
