// Package api implements the HTTP control plane on a raw TCP listener.
//
// The server deliberately avoids net/http. Every connection carries at most
// one request: the head and body are read with a single absolute deadline,
// the request runs through a fixed validation pipeline, and the response is
// written in one buffered Write with Connection: close. No keep-alive, no
// chunked encoding, no implicit behavior inherited from a framework.
//
// # Pipeline
//
// Each request passes the stages below in order. The first stage that
// rejects writes its error envelope and the connection is closed; later
// stages never observe a request an earlier stage refused.
//
//  1. Request target screening (traversal patterns, length, shape)
//  2. Header size screening and proxy-header detection
//  3. Origin screening when an Origin header is present and CORS is enabled
//  4. OPTIONS preflight divert
//  5. Per-client rate limiting
//  6. Route and method resolution against the fixed table
//  7. Content-Type and body schema validation
//  8. Handler execution
//
// Rate limiting runs before routing on purpose: unknown paths burn quota,
// so probing the route space is as expensive as using it.
//
// # Routes
//
//	GET  /processes        recordable process listing
//	POST /recording/start  begin a capture session
//	POST /recording/stop   end the capture session
//	GET  /recording/status current lifecycle state
//	GET  /docs             human- and machine-readable API description
//
// # Errors
//
// Every rejection and failure is encoded as
//
//	{"error": {"code": "...", "message": "...", "details": {...}}}
//
// with a stable machine-readable code. Unexpected internal failures are
// reported as a generic internal_error; raw error text never reaches the
// wire.
package api
