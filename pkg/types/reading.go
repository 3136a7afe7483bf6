package types

import "time"

// Reading is one input sample. Timestamp defaults to ingestion time when the
// source does not carry one.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Measured  float64   `json:"measured"`
	Ideal     float64   `json:"ideal"`
}

// EnrichedReading is the pipeline output for one Reading. It is a value:
// collaborators may copy it but never modify it in place.
type EnrichedReading struct {
	Reading

	Offset    float64 `json:"offset"`    // Measured - Ideal
	Corrected float64 `json:"corrected"` // Measured - Offset

	Anomaly Anomaly `json:"anomaly"`

	Drift   float64 `json:"drift"`    // trailing mean of up to 3 offsets
	RULDays float64 `json:"rul_days"` // >= 0
	Health  float64 `json:"health"`   // 0–100

	Alert       AlertLevel  `json:"alert"`
	Maintenance Maintenance `json:"maintenance"`
}

// Status is the single-record "latest status" summary shown on dashboards.
type Status struct {
	Measured    float64     `json:"measured"`
	Anomaly     Anomaly     `json:"anomaly"`
	Alert       AlertLevel  `json:"alert"`
	Maintenance Maintenance `json:"maintenance"`
}

// Status projects r onto the latest-status fields.
func (r EnrichedReading) Status() Status {
	return Status{
		Measured:    r.Measured,
		Anomaly:     r.Anomaly,
		Alert:       r.Alert,
		Maintenance: r.Maintenance,
	}
}
