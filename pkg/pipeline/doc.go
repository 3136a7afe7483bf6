// Package pipeline turns an ordered sequence of sensor readings into enriched
// readings: calibration correction, anomaly classification, drift / health /
// RUL estimation and the alert and maintenance recommendation.
//
// correct.go holds the stateless Corrector.
//
// detect.go holds the Detector: an ordered first-match-wins rule chain
// (Out-of-Range, Spike, Stuck, Noisy, else Normal) evaluated over a
// capacity-3 ring of measured values.
//
// estimate.go holds the Estimator: drift is the trailing mean of up to three
// offsets; RUL and health decay linearly with |drift|.
//
// policy.go maps detector and estimator output to AlertLevel and Maintenance.
//
// pipeline.go sequences the stages. Every Run is a fresh fold over its input,
// so one Pipeline may be shared by concurrent callers. Input is validated in
// full before any stage runs: a malformed sequence yields a *SchemaError and
// no output at all.
package pipeline
