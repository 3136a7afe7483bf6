// Package types defines the canonical Go types shared by the pipeline and every
// collaborator around it: the input Reading, the EnrichedReading produced per
// input record, and the label enums (Anomaly, AlertLevel, Maintenance).
//
// The enums are small integers in memory and their label strings on the wire:
// JSON, YAML, CSV and SQL columns all carry "Out-of-Range", "CRITICAL",
// "Recalibrate within 1 week" and so on, via MarshalText / UnmarshalText.
package types
