package audio

import (
	"errors"
	"io/fs"
	"strings"
)

// ErrPermission is returned (possibly wrapped) by engines when the system
// denies audio capture permission.
var ErrPermission = errors.New("audio capture permission denied")

// FailureClass buckets engine start failures for status mapping. The class
// decides the HTTP status and wire code; the raw error is only logged.
type FailureClass int

const (
	// FailureGeneric is any engine fault with no more specific class.
	FailureGeneric FailureClass = iota

	// FailurePermission means the OS or the user denied capture.
	FailurePermission

	// FailureFileSystem means the capture file could not be created or
	// written.
	FailureFileSystem
)

// ClassifyStartError inspects an Engine.Start failure and assigns its
// class. Wrapped sentinels are checked first; message sniffing is the
// fallback for engines that only surface opaque errors.
func ClassifyStartError(err error) FailureClass {
	if err == nil {
		return FailureGeneric
	}

	if errors.Is(err, ErrPermission) || errors.Is(err, fs.ErrPermission) {
		return FailurePermission
	}

	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return FailureFileSystem
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "permission") || strings.Contains(msg, "not authorized"):
		return FailurePermission
	case strings.Contains(msg, "no such file") ||
		strings.Contains(msg, "directory") ||
		strings.Contains(msg, "no space") ||
		strings.Contains(msg, "read-only file system"):
		return FailureFileSystem
	default:
		return FailureGeneric
	}
}
