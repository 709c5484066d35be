package recording

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/soundtap/tapd/internal/audio"
)

// Sane bounds for engine-reported audio parameters. Values outside are
// replaced with the defaults and logged; metadata must never carry garbage
// to clients because an engine misreported.
const (
	defaultChannelCount = 2
	maxChannelCount     = 32

	defaultSampleRate = 48000
	minSampleRate     = 8000
	maxSampleRate     = 192000
)

// Service drives the exclusive recording lifecycle against an engine.
type Service struct {
	engine audio.Engine
	logger *slog.Logger
	now    func() time.Time

	// mu is the single serialization point for the slot. It is held
	// across engine calls so start exclusivity holds under race, at the
	// cost of readers briefly blocking during start/stop.
	mu      sync.Mutex
	session *Session
	tap     *audio.Tap
}

// NewService creates a recording service.
func NewService(engine audio.Engine, logger *slog.Logger) *Service {
	return NewServiceWithClock(engine, logger, time.Now)
}

// NewServiceWithClock creates a service with an injected time source.
func NewServiceWithClock(engine audio.Engine, logger *slog.Logger, now func() time.Time) *Service {
	return &Service{
		engine: engine,
		logger: logger,
		now:    now,
	}
}

// Start begins recording the given process. The checks run in a fixed
// order and each failure keeps its own error so clients can tell apart a
// conflict, a permission problem, a vanished process, and a silent one:
//
//  1. slot must be idle
//  2. engine must hold capture permission
//  3. process must exist in a fresh snapshot
//  4. process must currently emit audio
//
// The session is created only after the engine start itself succeeds; a
// failed start never occupies the slot.
func (s *Service) Start(ctx context.Context, pid int64, format audio.Format) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session != nil {
		return nil, ErrAlreadyRecording
	}

	authorized, err := s.engine.Authorized(ctx)
	if err != nil {
		return nil, &StartError{Class: audio.FailureGeneric, Err: fmt.Errorf("permission check: %w", err)}
	}
	if !authorized {
		return nil, ErrPermissionDenied
	}

	// No OS hands out pids beyond int32; anything larger cannot name a
	// real process, so it gets the same answer a vanished process would.
	if pid < 1 || pid > math.MaxInt32 {
		return nil, ErrProcessNotFound
	}

	procs, err := s.engine.Processes(ctx)
	if err != nil {
		return nil, &StartError{Class: audio.FailureGeneric, Err: fmt.Errorf("process snapshot: %w", err)}
	}
	var proc *audio.Process
	for i := range procs {
		if procs[i].ID == int32(pid) {
			proc = &procs[i]
			break
		}
	}
	if proc == nil {
		return nil, ErrProcessNotFound
	}
	if !proc.HasAudio {
		return nil, ErrProcessInactive
	}

	tap, err := s.engine.Start(ctx, int32(pid), format)
	if err != nil {
		return nil, &StartError{Class: audio.ClassifyStartError(err), Err: err}
	}

	session := &Session{
		ID:          uuid.NewString(),
		ProcessID:   int32(pid),
		ProcessName: proc.Name,
		StartTime:   s.now(),
		FilePath:    tap.FilePath,
		Status:      StatusRecording,
	}
	s.session = session
	s.tap = tap

	s.logger.Info("recording started",
		"session_id", session.ID,
		"process_id", session.ProcessID,
		"process_name", session.ProcessName,
		"file_path", session.FilePath,
		"format", string(format))

	dup := *session
	return &dup, nil
}

// Stop ends the live recording and returns its metadata. The slot is
// cleared once the engine stop succeeds, even if the metadata turns out
// inconsistent; a dead tap must never keep the slot occupied.
func (s *Service) Stop(ctx context.Context) (Metadata, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return Metadata{}, ErrNotRecording
	}
	if s.tap == nil {
		return Metadata{}, fmt.Errorf("%w: live session without a tap", ErrInvalidState)
	}

	stats, err := s.engine.Stop(ctx, s.tap)
	if err != nil {
		// The tap may still be live; keep the slot so the client can
		// retry the stop.
		return Metadata{}, fmt.Errorf("engine stop failed: %w", err)
	}

	session := s.session
	s.session = nil
	s.tap = nil

	endTime := s.now()
	duration := endTime.Sub(session.StartTime)
	if duration < 0 {
		return Metadata{}, fmt.Errorf("%w: end time precedes start time", ErrInvalidState)
	}

	channels := stats.ChannelCount
	if channels < 1 || channels > maxChannelCount {
		s.logger.Warn("engine reported out-of-range channel count, using default",
			"reported", channels, "default", defaultChannelCount)
		channels = defaultChannelCount
	}
	sampleRate := stats.SampleRate
	if sampleRate < minSampleRate || sampleRate > maxSampleRate {
		s.logger.Warn("engine reported out-of-range sample rate, using default",
			"reported", sampleRate, "default", defaultSampleRate)
		sampleRate = defaultSampleRate
	}

	filePath := stats.FilePath
	if filePath == "" {
		filePath = session.FilePath
	}
	fileSize := stats.FileSizeBytes
	if fileSize < 0 {
		s.logger.Warn("engine reported negative file size, using zero", "reported", fileSize)
		fileSize = 0
	}

	meta := Metadata{
		SessionID:     session.ID,
		FilePath:      filePath,
		Duration:      duration,
		ChannelCount:  channels,
		SampleRate:    sampleRate,
		FileSizeBytes: fileSize,
		EndTime:       endTime,
	}

	s.logger.Info("recording stopped",
		"session_id", meta.SessionID,
		"file_path", meta.FilePath,
		"duration", meta.Duration,
		"file_size_bytes", meta.FileSizeBytes)

	return meta, nil
}

// Status reports the slot state. It takes the slot mutex, so the answer
// is linearizable with respect to starts and stops.
func (s *Service) Status() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return State{Status: StatusIdle}, nil
	}
	if s.tap == nil {
		return State{}, fmt.Errorf("%w: live session without a tap", ErrInvalidState)
	}

	st := State{Status: StatusRecording}
	if elapsed := s.now().Sub(s.session.StartTime); elapsed >= 0 {
		st.Elapsed = &elapsed
	}

	dup := *s.session
	st.Session = &dup
	return st, nil
}

// Processes returns a fresh snapshot of recordable processes from the
// engine. It does not touch the slot.
func (s *Service) Processes(ctx context.Context) ([]audio.Process, error) {
	procs, err := s.engine.Processes(ctx)
	if err != nil {
		return nil, fmt.Errorf("process snapshot: %w", err)
	}
	return procs, nil
}

// Authorized reports the engine permission state. It does not touch the
// slot.
func (s *Service) Authorized(ctx context.Context) (bool, error) {
	return s.engine.Authorized(ctx)
}
