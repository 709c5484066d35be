// Package security implements the request validation checks that gate every
// request before routing.
//
// # Overview
//
// This package rejects malformed or hostile requests before any handler
// logic runs:
//   - Path traversal attempts (CWE-22), including percent-encoded variants
//   - Oversized header values (request smuggling / resource abuse)
//   - Cross-origin requests outside the configured allow-list
//   - Request bodies that violate the per-route field schema
//
// # Checks
//
// Path check: rejects traversal markers, over-long paths, and targets that
// do not start with "/".
//
//	if cerr := security.CheckPath(target); cerr != nil {
//	    // reject with cerr.Code / cerr.Message
//	}
//
// Header check: any single header value above MaxHeaderValueBytes rejects
// the request. Proxy-identification headers never block; DetectProxyHeaders
// reports them so the caller can log their presence.
//
// Origin check: MatchOrigin implements the allow-list policy and returns the
// Access-Control-Allow-Origin value to echo, so the allow decision and the
// response header can never disagree.
//
// Body check: ValidateStartBody enforces the /recording/start schema
// field by field. Failures carry a FieldError with the offending field and
// a machine-readable reason.
//
// # Design Philosophy
//
//   - Fail-secure: when in doubt, reject
//   - Pure functions: no package state, no I/O, no logging; every check is
//     trivially testable and safe to call concurrently
//   - Stable codes: rejection codes are part of the wire contract and never
//     carry internal details
//
// Unlike validators that log and return, these checks only return. The
// request pipeline is the single place with connection context (client
// address, request line), so it owns the security audit log; keeping the
// checks pure avoids double-reporting the same event.
//
// # Testing
//
// Each check has table tests covering accepted inputs, attack vectors, and
// boundary lengths, plus fuzz coverage for the path and body parsers.
package security
