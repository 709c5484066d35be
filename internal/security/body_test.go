package security

import "testing"

func TestValidateStartBody_Accepted(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantPID    string
		wantFormat string
	}{
		{
			name:    "process id only",
			body:    `{"processId": "1234"}`,
			wantPID: "1234",
		},
		{
			name:       "with output format",
			body:       `{"processId": "1", "outputFormat": "aac"}`,
			wantPID:    "1",
			wantFormat: "aac",
		},
		{
			name:       "format case-insensitive",
			body:       `{"processId": "42", "outputFormat": "WAV"}`,
			wantPID:    "42",
			wantFormat: "wav",
		},
		{
			name:    "ten digit pid at limit",
			body:    `{"processId": "1234567890"}`,
			wantPID: "1234567890",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ferr := ValidateStartBody([]byte(tt.body))
			if ferr != nil {
				t.Fatalf("ValidateStartBody() error = %v, want nil", ferr)
			}
			if req.ProcessID != tt.wantPID {
				t.Errorf("ProcessID = %q, want %q", req.ProcessID, tt.wantPID)
			}
			if req.OutputFormat != tt.wantFormat {
				t.Errorf("OutputFormat = %q, want %q", req.OutputFormat, tt.wantFormat)
			}
		})
	}
}

func TestValidateStartBody_Rejected(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantField  string
		wantReason FieldReason
	}{
		{
			name:       "not json",
			body:       `this is not json`,
			wantField:  "body",
			wantReason: FieldJSON,
		},
		{
			name:       "empty body",
			body:       ``,
			wantField:  "body",
			wantReason: FieldJSON,
		},
		{
			name:       "json array",
			body:       `["processId"]`,
			wantField:  "body",
			wantReason: FieldJSON,
		},
		{
			name:       "json null",
			body:       `null`,
			wantField:  "body",
			wantReason: FieldJSON,
		},
		{
			name:       "missing processId",
			body:       `{"outputFormat": "wav"}`,
			wantField:  "processId",
			wantReason: FieldMissing,
		},
		{
			name:       "empty processId",
			body:       `{"processId": ""}`,
			wantField:  "processId",
			wantReason: FieldEmpty,
		},
		{
			name:       "zero pid",
			body:       `{"processId": "0"}`,
			wantField:  "processId",
			wantReason: FieldFormat,
		},
		{
			name:       "negative pid",
			body:       `{"processId": "-5"}`,
			wantField:  "processId",
			wantReason: FieldFormat,
		},
		{
			name:       "alphabetic pid",
			body:       `{"processId": "abc"}`,
			wantField:  "processId",
			wantReason: FieldFormat,
		},
		{
			name:       "leading zero pid",
			body:       `{"processId": "0123"}`,
			wantField:  "processId",
			wantReason: FieldFormat,
		},
		{
			name:       "numeric pid wrong type",
			body:       `{"processId": 1234}`,
			wantField:  "processId",
			wantReason: FieldFormat,
		},
		{
			name:       "eleven digit pid",
			body:       `{"processId": "12345678901"}`,
			wantField:  "processId",
			wantReason: FieldRange,
		},
		{
			name:       "unknown top-level key",
			body:       `{"processId": "1234", "procesId": "5"}`,
			wantField:  "procesId",
			wantReason: FieldUnknown,
		},
		{
			name:       "unsupported format",
			body:       `{"processId": "1234", "outputFormat": "mp3"}`,
			wantField:  "outputFormat",
			wantReason: FieldRange,
		},
		{
			name:       "empty format",
			body:       `{"processId": "1234", "outputFormat": ""}`,
			wantField:  "outputFormat",
			wantReason: FieldEmpty,
		},
		{
			name:       "format wrong type",
			body:       `{"processId": "1234", "outputFormat": 3}`,
			wantField:  "outputFormat",
			wantReason: FieldFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, ferr := ValidateStartBody([]byte(tt.body))
			if ferr == nil {
				t.Fatalf("ValidateStartBody() = %+v, want rejection", req)
			}
			if ferr.Field != tt.wantField {
				t.Errorf("Field = %q, want %q", ferr.Field, tt.wantField)
			}
			if ferr.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", ferr.Reason, tt.wantReason)
			}
		})
	}
}
