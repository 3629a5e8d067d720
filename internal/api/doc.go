// Package api implements the HTTP REST API and WebSocket server for the
// Gray Logic State Store.
//
// This package provides:
//   - REST endpoints for listing, matching, reading, and writing state
//   - WebSocket hub broadcasting every accepted change on "state.changed"
//   - JWT bearer authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The server reads and writes a single statestore.Table. Writes go through
// Table.Update, so HTTP clients, MQTT commands, and local callers share one
// change-detection path and one stream of notifications.
//
// # WebSocket Protocol
//
// Frames are JSON WSMessage envelopes. Clients send:
//
//	{"type":"subscribe","id":"1","payload":{"channels":["state.changed"],"filter":"^display:"}}
//	{"type":"query","id":"2","payload":{"match":["SourceLevel","zoom"]}}
//	{"type":"ping","id":"3"}
//
// and receive "response", "error", "pong" and "event" frames. The optional
// filter uses the same case-insensitive regular expressions as
// GET /api/v1/states?filter=.
//
// # Security
//
// When security.jwt.secret is set, writes require an operator token scoped
// to this room, and WebSocket connections require a single-use ticket from
// POST /api/v1/auth/ws-ticket so tokens never appear in URLs. Reads remain
// open. With no secret configured every route is open.
package api
