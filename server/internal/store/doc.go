// Package store persists enriched readings so history survives restarts.
//
// Two implementations satisfy Store:
//   - Memory: thread-safe in-process slice, used by tests and the "memory" backend
//   - SQL: gorm-backed table temperature_readings on sqlite or postgres
//
// Every Append is one run. Rows receive monotonically increasing IDs, and
// History returns the newest rows in chronological (ascending ID) order.
// RunRetention prunes rows older than the configured window in the background.
package store
