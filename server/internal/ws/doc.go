// Package ws implements the WebSocket live-status hub for sensorcal-server.
//
// Hub manages a set of connected clients and broadcasts the current status
// (the same payload as GET /api/v1/status) to all of them on a configurable
// interval and whenever a run completes.
//
// New(store, alerts, interval) creates a Hub.
// Hub.Run(ctx) starts the broadcast loop and blocks until ctx is cancelled,
// then closes all active connections.
// Hub.Notify() asks for an immediate broadcast without blocking.
// Hub.ServeHTTP upgrades an HTTP connection to WebSocket, sends the current
// status immediately on connect, then streams updates.
//
// Message format sent to clients:
//
//	{
//	  "event": "status",
//	  "data":  { /* same schema as GET /api/v1/status */ }
//	}
//
// The endpoint is mounted at /ws/stream by the server.
package ws
