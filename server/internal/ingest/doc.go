// Package ingest decodes uploaded reading files into untyped pipeline
// records. It only shapes the input; numeric parsing and range checks belong
// to pipeline.Validate so every entry point rejects the same rows.
//
// Two formats are accepted:
//   - CSV with a header row (column names trimmed and lower-cased)
//   - a JSON array of objects whose values are numbers or strings
package ingest
