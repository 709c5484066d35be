package audio

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"
)

func TestClassifyStartError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want FailureClass
	}{
		{
			name: "nil error",
			err:  nil,
			want: FailureGeneric,
		},
		{
			name: "wrapped permission sentinel",
			err:  fmt.Errorf("starting capture for pid 42: %w", ErrPermission),
			want: FailurePermission,
		},
		{
			name: "fs permission error",
			err:  fmt.Errorf("open output: %w", fs.ErrPermission),
			want: FailurePermission,
		},
		{
			name: "path error is filesystem",
			err:  &fs.PathError{Op: "open", Path: "/captures/out.wav", Err: errors.New("disk offline")},
			want: FailureFileSystem,
		},
		{
			name: "path error wrapping EACCES classifies as permission",
			err:  &fs.PathError{Op: "open", Path: "/captures/out.wav", Err: fs.ErrPermission},
			want: FailurePermission,
		},
		{
			name: "permission by message",
			err:  errors.New("tap refused: not authorized for system audio"),
			want: FailurePermission,
		},
		{
			name: "filesystem by message",
			err:  errors.New("write failed: no space left on device"),
			want: FailureFileSystem,
		},
		{
			name: "read-only filesystem by message",
			err:  errors.New("create: read-only file system"),
			want: FailureFileSystem,
		},
		{
			name: "opaque engine fault is generic",
			err:  errors.New("core audio stream interrupted"),
			want: FailureGeneric,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyStartError(tt.err); got != tt.want {
				t.Errorf("ClassifyStartError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
