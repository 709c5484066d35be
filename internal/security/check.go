package security

import "fmt"

// CheckError is a request rejection with a stable machine-readable code.
// Code and Message are both safe to send to clients; neither ever contains
// internal details.
type CheckError struct {
	Code    string
	Message string
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Rejection codes surfaced on the wire.
const (
	CodePathTraversal  = "path_traversal_detected"
	CodePathTooLong    = "path_too_long"
	CodePathMalformed  = "malformed_path"
	CodeHeaderTooLarge = "header_too_large"
	CodeOriginDenied   = "origin_not_allowed"
)
