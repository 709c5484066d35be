// Package recording owns the daemon's single recording slot.
//
// At most one capture is live at any time. The slot and everything that
// guards it sit behind one mutex held across engine calls, so concurrent
// starts against an idle slot admit exactly one winner and every reader
// observes a linearizable view of "is a recording active". The slot is
// written in exactly two places: session creation on a successful start
// and session clearing on stop.
package recording

import (
	"errors"
	"fmt"
	"time"

	"github.com/soundtap/tapd/internal/audio"
)

var (
	// ErrAlreadyRecording rejects a start while a session is live.
	ErrAlreadyRecording = errors.New("a recording is already in progress")

	// ErrNotRecording rejects a stop while the slot is idle.
	ErrNotRecording = errors.New("no recording is in progress")

	// ErrProcessNotFound means the requested process is not in the
	// current process snapshot.
	ErrProcessNotFound = errors.New("process not found")

	// ErrProcessInactive means the process exists but currently emits no
	// recordable audio.
	ErrProcessInactive = errors.New("process has no active audio")

	// ErrPermissionDenied means the engine reports no capture permission.
	ErrPermissionDenied = errors.New("audio capture permission not granted")

	// ErrInvalidState flags an internal invariant violation, such as a
	// live session without a tap or a negative duration.
	ErrInvalidState = errors.New("recording state is invalid")
)

// Status enumerates the recording slot states. StatusStopping is part of
// the wire vocabulary; with stops serialized under the slot mutex it is
// never stored, but clients of other server versions may still see it.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusRecording Status = "recording"
	StatusStopping  Status = "stopping"
)

// Session describes a live recording. Values handed out by the service
// are copies; mutating them never touches the slot.
type Session struct {
	ID          string
	ProcessID   int32
	ProcessName string
	StartTime   time.Time
	FilePath    string
	Status      Status
}

// Metadata describes a finished recording. It is returned from Stop and
// never retained: the daemon keeps no recording history.
type Metadata struct {
	SessionID     string
	FilePath      string
	Duration      time.Duration
	ChannelCount  int
	SampleRate    int
	FileSizeBytes int64
	EndTime       time.Time
}

// State is a point-in-time snapshot of the slot.
type State struct {
	Status  Status
	Session *Session       // copy of the live session, nil when idle
	Elapsed *time.Duration // time since start; nil when idle or when the clock ran backwards
}

// StartError wraps an engine start failure with its failure class so the
// transport layer can map it to a status code without inspecting the
// underlying error.
type StartError struct {
	Class audio.FailureClass
	Err   error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("engine start failed: %v", e.Err)
}

func (e *StartError) Unwrap() error { return e.Err }
