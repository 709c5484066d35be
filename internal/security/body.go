package security

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// FieldReason classifies why a body field was rejected. Each reason maps to
// a distinct wire code at the response layer.
type FieldReason string

const (
	FieldMissing FieldReason = "missing" // required field absent
	FieldEmpty   FieldReason = "empty"   // present but empty
	FieldFormat  FieldReason = "format"  // wrong type or pattern
	FieldRange   FieldReason = "range"   // outside the allowed length or set
	FieldJSON    FieldReason = "json"    // body is not a JSON object
	FieldUnknown FieldReason = "unknown" // field not in the schema
)

// FieldError reports a single schema violation. Validation stops at the
// first violation; clients fix one problem at a time.
type FieldError struct {
	Field  string
	Reason FieldReason
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("field %q rejected: %s", e.Field, e.Reason)
}

// MaxProcessIDLength bounds the processId digit string. Ten digits covers
// every PID a kernel hands out with headroom.
const MaxProcessIDLength = 10

// processIDPattern accepts positive decimal integers without leading
// zeros. "0" is never a recordable process.
var processIDPattern = regexp.MustCompile(`^[1-9][0-9]*$`)

// Output formats the capture engine can encode to.
var validOutputFormats = []string{"wav", "aac", "flac"}

// StartRequest is the decoded and validated /recording/start payload.
type StartRequest struct {
	// ProcessID is the validated digit string. Parsing to an integer is
	// the caller's concern; the pattern and length checks here guarantee
	// it fits in an int64.
	ProcessID string

	// OutputFormat is lowercased, or empty when the client omitted it.
	OutputFormat string
}

// ValidateStartBody enforces the /recording/start body schema:
//
//	{"processId": "<digits>", "outputFormat": "wav|aac|flac"}
//
// processId is required and must match ^[1-9][0-9]*$ with at most
// MaxProcessIDLength digits. outputFormat is optional. Unknown top-level
// keys are rejected so client typos fail loudly instead of silently
// falling back to defaults.
func ValidateStartBody(body []byte) (*StartRequest, *FieldError) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, &FieldError{Field: "body", Reason: FieldJSON}
	}
	if fields == nil {
		// "null" parses into a nil map.
		return nil, &FieldError{Field: "body", Reason: FieldJSON}
	}

	for key := range fields {
		if key != "processId" && key != "outputFormat" {
			return nil, &FieldError{Field: key, Reason: FieldUnknown}
		}
	}

	raw, present := fields["processId"]
	if !present {
		return nil, &FieldError{Field: "processId", Reason: FieldMissing}
	}

	var processID string
	if err := json.Unmarshal(raw, &processID); err != nil {
		return nil, &FieldError{Field: "processId", Reason: FieldFormat}
	}
	if processID == "" {
		return nil, &FieldError{Field: "processId", Reason: FieldEmpty}
	}
	if len(processID) > MaxProcessIDLength {
		return nil, &FieldError{Field: "processId", Reason: FieldRange}
	}
	if !processIDPattern.MatchString(processID) {
		return nil, &FieldError{Field: "processId", Reason: FieldFormat}
	}

	req := &StartRequest{ProcessID: processID}

	if raw, present := fields["outputFormat"]; present {
		var format string
		if err := json.Unmarshal(raw, &format); err != nil {
			return nil, &FieldError{Field: "outputFormat", Reason: FieldFormat}
		}
		format = strings.ToLower(strings.TrimSpace(format))
		if format == "" {
			return nil, &FieldError{Field: "outputFormat", Reason: FieldEmpty}
		}
		valid := false
		for _, f := range validOutputFormats {
			if format == f {
				valid = true
				break
			}
		}
		if !valid {
			return nil, &FieldError{Field: "outputFormat", Reason: FieldRange}
		}
		req.OutputFormat = format
	}

	return req, nil
}
