package recording

import (
	"context"
	"errors"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundtap/tapd/internal/audio"
	"github.com/soundtap/tapd/internal/log"
)

// stubEngine is a controllable Engine for state machine tests.
type stubEngine struct {
	mu         sync.Mutex
	authorized bool
	authErr    error
	procs      []audio.Process
	procsErr   error
	startErr   error
	stopErr    error
	stopStats  audio.CaptureStats

	startCalls int
	stopCalls  int
}

func newStubEngine() *stubEngine {
	return &stubEngine{
		authorized: true,
		procs: []audio.Process{
			{ID: 100, Name: "Music", HasAudio: true},
			{ID: 200, Name: "Notes", HasAudio: false},
		},
		stopStats: audio.CaptureStats{
			FilePath:      "/captures/music.wav",
			FileSizeBytes: 4096,
			ChannelCount:  2,
			SampleRate:    48000,
		},
	}
}

func (e *stubEngine) Authorized(ctx context.Context) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authorized, e.authErr
}

func (e *stubEngine) Processes(ctx context.Context) ([]audio.Process, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.procsErr != nil {
		return nil, e.procsErr
	}
	return append([]audio.Process(nil), e.procs...), nil
}

func (e *stubEngine) Start(ctx context.Context, pid int32, format audio.Format) (*audio.Tap, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.startCalls++
	if e.startErr != nil {
		return nil, e.startErr
	}
	return &audio.Tap{
		ProcessID:    pid,
		FilePath:     "/captures/music." + string(format),
		ChannelCount: 2,
		SampleRate:   48000,
	}, nil
}

func (e *stubEngine) Stop(ctx context.Context, tap *audio.Tap) (audio.CaptureStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopCalls++
	if e.stopErr != nil {
		return audio.CaptureStats{}, e.stopErr
	}
	return e.stopStats, nil
}

func newTestService(e audio.Engine) *Service {
	return NewService(e, log.NewNop())
}

func TestStart_Succeeds(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	sess, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, int32(100), sess.ProcessID)
	assert.Equal(t, "Music", sess.ProcessName)
	assert.Equal(t, StatusRecording, sess.Status)
	assert.Equal(t, "/captures/music.wav", sess.FilePath)
	assert.False(t, sess.StartTime.IsZero())
}

func TestStart_ConflictWhenLive(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	_, err = svc.Start(context.Background(), 100, audio.FormatWAV)
	assert.ErrorIs(t, err, ErrAlreadyRecording)
	assert.Equal(t, 1, engine.startCalls, "conflicting start must not reach the engine")
}

func TestStart_PermissionDenied(t *testing.T) {
	engine := newStubEngine()
	engine.authorized = false
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, engine.startCalls)
}

func TestStart_ProcessNotFound(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), 9999, audio.FormatWAV)
	assert.ErrorIs(t, err, ErrProcessNotFound)
	assert.Zero(t, engine.startCalls)
}

func TestStart_PidBeyondInt32IsNotFound(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), int64(1)<<40, audio.FormatWAV)
	assert.ErrorIs(t, err, ErrProcessNotFound)
}

func TestStart_ProcessInactive(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), 200, audio.FormatWAV)
	assert.ErrorIs(t, err, ErrProcessInactive)
	assert.Zero(t, engine.startCalls)
}

func TestStart_EngineFailureClassified(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantClass audio.FailureClass
	}{
		{"permission", audio.ErrPermission, audio.FailurePermission},
		{"filesystem", &fs.PathError{Op: "open", Path: "/captures/x.wav", Err: errors.New("boom")}, audio.FailureFileSystem},
		{"generic", errors.New("stream died"), audio.FailureGeneric},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newStubEngine()
			engine.startErr = tt.err
			svc := newTestService(engine)

			_, err := svc.Start(context.Background(), 100, audio.FormatWAV)
			require.Error(t, err)

			var startErr *StartError
			require.ErrorAs(t, err, &startErr)
			assert.Equal(t, tt.wantClass, startErr.Class)

			// A failed start must leave the slot idle.
			state, serr := svc.Status()
			require.NoError(t, serr)
			assert.Equal(t, StatusIdle, state.Status)
		})
	}
}

func TestStop_ReturnsMetadataAndClearsSlot(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	sess, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	meta, err := svc.Stop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, sess.ID, meta.SessionID)
	assert.Equal(t, "/captures/music.wav", meta.FilePath)
	assert.Equal(t, int64(4096), meta.FileSizeBytes)
	assert.Equal(t, 2, meta.ChannelCount)
	assert.Equal(t, 48000, meta.SampleRate)
	assert.GreaterOrEqual(t, meta.Duration, time.Duration(0))
	assert.False(t, meta.EndTime.IsZero())

	state, err := svc.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusIdle, state.Status)
}

func TestStop_IdempotentRejection(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	_, err = svc.Stop(context.Background())
	require.NoError(t, err)

	_, err = svc.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)
	assert.Equal(t, 1, engine.stopCalls, "second stop must not reach the engine")
}

func TestStop_WhileIdle(t *testing.T) {
	svc := newTestService(newStubEngine())

	_, err := svc.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotRecording)
}

func TestStop_EngineFailureKeepsSlot(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	engine.mu.Lock()
	engine.stopErr = errors.New("tap wedged")
	engine.mu.Unlock()

	_, err = svc.Stop(context.Background())
	require.Error(t, err)

	// The slot stays live so the client can retry.
	state, serr := svc.Status()
	require.NoError(t, serr)
	assert.Equal(t, StatusRecording, state.Status)

	engine.mu.Lock()
	engine.stopErr = nil
	engine.mu.Unlock()

	_, err = svc.Stop(context.Background())
	assert.NoError(t, err, "retry after engine recovery should succeed")
}

func TestStop_OutOfRangeStatsDefaulted(t *testing.T) {
	engine := newStubEngine()
	engine.stopStats = audio.CaptureStats{
		FilePath:      "/captures/music.wav",
		FileSizeBytes: -10,
		ChannelCount:  0,
		SampleRate:    1_000_000,
	}
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	meta, err := svc.Stop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, defaultChannelCount, meta.ChannelCount)
	assert.Equal(t, defaultSampleRate, meta.SampleRate)
	assert.Equal(t, int64(0), meta.FileSizeBytes)
}

func TestStatus_Idle(t *testing.T) {
	svc := newTestService(newStubEngine())

	state, err := svc.Status()
	require.NoError(t, err)

	assert.Equal(t, StatusIdle, state.Status)
	assert.Nil(t, state.Session)
	assert.Nil(t, state.Elapsed)
}

func TestStatus_Recording(t *testing.T) {
	engine := newStubEngine()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc := NewServiceWithClock(engine, log.NewNop(), func() time.Time { return current })

	sess, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	current = base.Add(90 * time.Second)
	state, err := svc.Status()
	require.NoError(t, err)

	assert.Equal(t, StatusRecording, state.Status)
	require.NotNil(t, state.Session)
	assert.Equal(t, sess.ID, state.Session.ID)
	require.NotNil(t, state.Elapsed)
	assert.Equal(t, 90*time.Second, *state.Elapsed)
}

func TestStatus_NegativeElapsedSuppressed(t *testing.T) {
	engine := newStubEngine()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	current := base
	svc := NewServiceWithClock(engine, log.NewNop(), func() time.Time { return current })

	_, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	// Clock stepped backwards (NTP correction).
	current = base.Add(-time.Hour)
	state, err := svc.Status()
	require.NoError(t, err)
	assert.Equal(t, StatusRecording, state.Status)
	assert.Nil(t, state.Elapsed)
}

func TestStatus_SessionIsACopy(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	_, err := svc.Start(context.Background(), 100, audio.FormatWAV)
	require.NoError(t, err)

	state, err := svc.Status()
	require.NoError(t, err)
	state.Session.ProcessName = "mutated"

	again, err := svc.Status()
	require.NoError(t, err)
	assert.Equal(t, "Music", again.Session.ProcessName)
}

func TestStart_ExactlyOneWinnerUnderRace(t *testing.T) {
	engine := newStubEngine()
	svc := newTestService(engine)

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)

	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = svc.Start(context.Background(), 100, audio.FormatWAV)
		}(i)
	}
	close(start)
	wg.Wait()

	winners, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, ErrAlreadyRecording):
			conflicts++
		default:
			t.Errorf("unexpected error under race: %v", err)
		}
	}

	assert.Equal(t, 1, winners, "exactly one concurrent start must win")
	assert.Equal(t, n-1, conflicts)
	assert.Equal(t, 1, engine.startCalls, "losers must not reach the engine")
}
