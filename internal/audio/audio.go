// Package audio defines the boundary to the audio capture engine.
//
// The engine owns everything platform-specific: enumerating processes that
// emit audio, permission state, and the actual capture-to-file machinery.
// The rest of the daemon only sees the Engine interface, so the recording
// state machine and the HTTP layer test against in-process fakes and the
// daemon runs against SimEngine when no real engine is wired in.
package audio

import (
	"context"
	"time"
)

// Format identifies the container/encoding for captured audio.
type Format string

const (
	FormatWAV  Format = "wav"
	FormatAAC  Format = "aac"
	FormatFLAC Format = "flac"
)

// DefaultFormat is used when a client does not request one.
const DefaultFormat = FormatWAV

// ParseFormat maps a validated format string to a Format. The empty string
// selects the default.
func ParseFormat(s string) Format {
	switch s {
	case "aac":
		return FormatAAC
	case "flac":
		return FormatFLAC
	case "", "wav":
		return FormatWAV
	default:
		return FormatWAV
	}
}

// Process is an OS process as the capture engine sees it.
type Process struct {
	ID       int32
	Name     string
	HasAudio bool // currently emitting audio the engine can tap
}

// Tap is a live capture handle. Created by Engine.Start, consumed exactly
// once by Engine.Stop.
type Tap struct {
	ProcessID    int32
	FilePath     string
	ChannelCount int
	SampleRate   int

	// started is stamped by the engine that created the tap.
	started time.Time
}

// Started returns the time the capture began.
func (t *Tap) Started() time.Time { return t.started }

// CaptureStats describes a finished capture.
type CaptureStats struct {
	FilePath      string
	FileSizeBytes int64
	ChannelCount  int
	SampleRate    int
}

// Engine is the capture collaborator contract. All methods may block on
// the underlying audio stack, so each takes a context.
type Engine interface {
	// Authorized reports whether the daemon holds the system permission
	// required to tap other processes' audio.
	Authorized(ctx context.Context) (bool, error)

	// Processes returns a fresh snapshot of recordable processes.
	Processes(ctx context.Context) ([]Process, error)

	// Start begins capturing the given process into a new file and
	// returns the live tap. The caller is responsible for validating the
	// process beforehand; Start failures are engine-level faults.
	Start(ctx context.Context, pid int32, format Format) (*Tap, error)

	// Stop ends the capture and returns final file statistics.
	Stop(ctx context.Context, tap *Tap) (CaptureStats, error)
}
