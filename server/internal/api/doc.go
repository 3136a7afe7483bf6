// Package api implements the sensorcal REST API on gin.
//
// Routes:
//
//	POST /api/v1/upload         multipart "file" CSV → run result
//	POST /api/v1/readings       JSON array of readings → run result
//	GET  /api/v1/history        newest rows, oldest first (?limit=, default 200)
//	GET  /api/v1/status         live status + diagnostics of the latest run
//	GET  /api/v1/runs/:id       rows of one run
//	GET  /api/v1/alerts         firing and recently resolved alerts
//	GET  /api/v1/reports/:name  download a generated report file
//	GET  /metrics               Prometheus exposition
//	GET  /ws/stream             websocket live status
//	GET  /health                liveness
//
// Rejected input (schema or computation errors) returns 422 with the error
// kind; nothing from a rejected run is stored. The /api group is guarded by
// the API-key middleware from package auth.
package api
