// Package report renders enriched readings into the artifacts operators
// download after a run:
//
//   - <prefix>.csv        tabular export, one row per reading
//   - <prefix>.xlsx       the same table plus a summary sheet
//   - <prefix>_drift.png  drift over the sequence
//   - <prefix>_rul.png    RUL and health over the sequence
//   - <prefix>.pdf        first rows as a table, then every chart
//
// All writers take an io.Writer so the API can stream them; Generate writes
// the full set into a directory.
package report
