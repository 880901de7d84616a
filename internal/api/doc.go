// Package api implements the HTTP REST API and WebSocket server of the
// Tellstick gateway.
//
// This package provides:
//   - Read endpoints for the session, bridge entities, seen transmitters,
//     the capture journal and scheduled commands
//   - A JWT-protected command endpoint
//   - A WebSocket hub relaying received events in real time
//   - Prometheus metrics on /metrics
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Routes
//
//	GET  /api/v1/health             session state and counters
//	GET  /api/v1/system             runtime and component metrics
//	GET  /api/v1/devices            bridge entities with last state
//	GET  /api/v1/devices/seen       latest event per transmitter
//	GET  /api/v1/devices/{ref}      one entity by unique id or name
//	GET  /api/v1/packets?limit=N    capture journal, newest first
//	GET  /api/v1/schedules          scheduled commands
//	POST /api/v1/commands           send a command (bearer token)
//	POST /api/v1/auth/ws-ticket     WebSocket ticket (bearer token)
//	GET  /api/v1/ws?ticket=T        WebSocket
//	GET  /metrics                   Prometheus exposition
//
// # Security
//
// Bearer tokens are HS256 JWTs signed with security.jwt.secret; the
// tellstick token command issues them. WebSocket connections use
// single-use tickets to keep tokens out of URLs.
package api
