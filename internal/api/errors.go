package api

import (
	"errors"
	"net/http"

	"github.com/soundtap/tapd/internal/audio"
	"github.com/soundtap/tapd/internal/recording"
	"github.com/soundtap/tapd/internal/security"
)

// Wire error codes. Clients switch on these, so they are part of the
// public contract and must not change meaning between releases.
const (
	codeMalformedRequest   = "malformed_request"
	codeHeadTooLarge       = "request_head_too_large"
	codeInvalidLength      = "invalid_content_length"
	codeInvalidEncoding    = "invalid_encoding"
	codeBodyTooLarge       = "request_body_too_large"
	codeUnsupportedMedia   = "unsupported_content_type"
	codeRouteNotFound      = "route_not_found"
	codeMethodNotAllowed   = "method_not_allowed"
	codeRateLimited        = "rate_limit_exceeded"
	codeTooManyConnections = "too_many_connections"

	codeAlreadyRecording  = "already_recording"
	codeNotRecording      = "not_recording"
	codeProcessNotFound   = "process_not_found"
	codeProcessInactive   = "process_inactive"
	codePermissionDenied  = "permission_denied"
	codeFileSystemError   = "file_system_error"
	codeStartFailed       = "recording_start_failed"
	codeStopFailed        = "recording_stop_failed"
	codeProcessListFailed = "process_list_failed"
	codeInvalidState      = "invalid_recording_state"
	codeInternal          = "internal_error"
)

// errorEnvelope is the wire shape of every non-2xx response body.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

// wireError pairs an HTTP status with the envelope content that explains
// it. Handlers and pipeline stages return it when they already know the
// exact transport outcome.
type wireError struct {
	status  int
	code    string
	message string
	details map[string]string
}

func (e *wireError) Error() string {
	return e.code + ": " + e.message
}

func (e *wireError) envelope() errorEnvelope {
	return errorEnvelope{Error: errorBody{Code: e.code, Message: e.message, Details: e.details}}
}

func protocolError(code, message string) *wireError {
	return &wireError{status: http.StatusBadRequest, code: code, message: message}
}

func internalError() *wireError {
	return &wireError{
		status:  http.StatusInternalServerError,
		code:    codeInternal,
		message: "an internal error occurred",
	}
}

func capacityError(limit string) *wireError {
	return &wireError{
		status:  http.StatusServiceUnavailable,
		code:    codeTooManyConnections,
		message: "server is at its connection limit",
		details: map[string]string{"limit": limit},
	}
}

// fromCheckError translates a security screening failure. Origin denials
// are permission problems; everything else is a bad request.
func fromCheckError(cerr *security.CheckError) *wireError {
	status := http.StatusBadRequest
	if cerr.Code == security.CodeOriginDenied {
		status = http.StatusForbidden
	}
	return &wireError{status: status, code: cerr.Code, message: cerr.Message}
}

// fromFieldError translates a body schema failure. The offending field
// travels in details so clients can surface it without parsing messages.
func fromFieldError(ferr *security.FieldError) *wireError {
	var code string
	switch ferr.Reason {
	case security.FieldMissing:
		code = "missing_required_field"
	case security.FieldEmpty:
		code = "empty_field"
	case security.FieldFormat:
		code = "invalid_field_format"
	case security.FieldRange:
		code = "field_out_of_range"
	case security.FieldJSON:
		code = "invalid_json"
	case security.FieldUnknown:
		code = "unknown_field"
	default:
		code = "invalid_field_format"
	}
	return &wireError{
		status:  http.StatusBadRequest,
		code:    code,
		message: ferr.Error(),
		details: map[string]string{"field": ferr.Field},
	}
}

// fromServiceError maps recording service failures onto the wire. Unknown
// errors degrade to a generic internal_error so internals never leak.
func fromServiceError(err error) *wireError {
	var werr *wireError
	if errors.As(err, &werr) {
		return werr
	}

	switch {
	case errors.Is(err, recording.ErrAlreadyRecording):
		return &wireError{status: http.StatusConflict, code: codeAlreadyRecording, message: "a recording session is already in progress"}
	case errors.Is(err, recording.ErrNotRecording):
		return &wireError{status: http.StatusConflict, code: codeNotRecording, message: "no recording session is in progress"}
	case errors.Is(err, recording.ErrProcessNotFound):
		return &wireError{status: http.StatusNotFound, code: codeProcessNotFound, message: "process not found"}
	case errors.Is(err, recording.ErrProcessInactive):
		return &wireError{status: http.StatusBadRequest, code: codeProcessInactive, message: "process has no recordable audio"}
	case errors.Is(err, recording.ErrPermissionDenied):
		return &wireError{status: http.StatusForbidden, code: codePermissionDenied, message: "audio capture permission denied"}
	case errors.Is(err, recording.ErrInvalidState):
		return &wireError{status: http.StatusInternalServerError, code: codeInvalidState, message: "recording state is inconsistent"}
	}

	var startErr *recording.StartError
	if errors.As(err, &startErr) {
		switch startErr.Class {
		case audio.FailurePermission:
			return &wireError{status: http.StatusForbidden, code: codePermissionDenied, message: "audio capture permission denied"}
		case audio.FailureFileSystem:
			return &wireError{status: http.StatusInternalServerError, code: codeFileSystemError, message: "could not write the capture file"}
		default:
			return &wireError{status: http.StatusInternalServerError, code: codeStartFailed, message: "failed to start recording"}
		}
	}

	return internalError()
}
