package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const (
	simChannels   = 2
	simSampleRate = 48000

	// simMaxBytes bounds the silence written on Stop so a long-running
	// simulated capture cannot fill the disk.
	simMaxBytes = 8 << 20
)

// SimEngine is a deterministic in-process Engine. It fabricates a process
// table and writes placeholder capture files under outputDir, sized by
// elapsed capture time. The daemon runs on it with --simulate; tests use
// it as an end-to-end fixture.
type SimEngine struct {
	outputDir string
	now       func() time.Time

	mu         sync.Mutex
	authorized bool
	procs      []Process
}

// NewSimEngine creates a simulated engine writing under outputDir.
func NewSimEngine(outputDir string) *SimEngine {
	return &SimEngine{
		outputDir:  outputDir,
		now:        time.Now,
		authorized: true,
		procs: []Process{
			{ID: 501, Name: "Music", HasAudio: true},
			{ID: 742, Name: "Safari", HasAudio: true},
			{ID: 1203, Name: "Notes", HasAudio: false},
		},
	}
}

// SetAuthorized flips the simulated permission state.
func (e *SimEngine) SetAuthorized(ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.authorized = ok
}

// SetProcesses replaces the simulated process table.
func (e *SimEngine) SetProcesses(procs []Process) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.procs = append([]Process(nil), procs...)
}

// Authorized implements Engine.
func (e *SimEngine) Authorized(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.authorized, nil
}

// Processes implements Engine.
func (e *SimEngine) Processes(ctx context.Context) ([]Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Process(nil), e.procs...), nil
}

// Start implements Engine. It creates the capture file immediately so
// filesystem problems surface at start time, the way a real engine fails.
func (e *SimEngine) Start(ctx context.Context, pid int32, format Format) (*Tap, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	authorized := e.authorized
	var proc *Process
	for i := range e.procs {
		if e.procs[i].ID == pid {
			proc = &e.procs[i]
			break
		}
	}
	e.mu.Unlock()

	if !authorized {
		return nil, fmt.Errorf("starting capture for pid %d: %w", pid, ErrPermission)
	}
	if proc == nil {
		return nil, fmt.Errorf("pid %d is not in the capture table", pid)
	}

	if err := os.MkdirAll(e.outputDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	now := e.now()
	name := fmt.Sprintf("%s-%d-%s.%s",
		sanitizeFileName(proc.Name), pid, now.Format("20060102-150405"), format)
	path := filepath.Join(e.outputDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("creating capture file: %w", err)
	}
	if format == FormatWAV {
		if _, err := f.Write(wavHeader(simChannels, simSampleRate, 0)); err != nil {
			_ = f.Close()
			return nil, fmt.Errorf("writing capture header: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing capture file: %w", err)
	}

	return &Tap{
		ProcessID:    pid,
		FilePath:     path,
		ChannelCount: simChannels,
		SampleRate:   simSampleRate,
		started:      now,
	}, nil
}

// Stop implements Engine. It appends silence proportional to the elapsed
// capture time, fixes up the WAV header, and reports final statistics.
func (e *SimEngine) Stop(ctx context.Context, tap *Tap) (CaptureStats, error) {
	if err := ctx.Err(); err != nil {
		return CaptureStats{}, err
	}
	if tap == nil {
		return CaptureStats{}, fmt.Errorf("stop of a nil tap")
	}

	elapsed := e.now().Sub(tap.started)
	dataBytes := int64(elapsed.Seconds() * float64(tap.SampleRate*tap.ChannelCount*2))
	if dataBytes < 0 {
		dataBytes = 0
	}
	if dataBytes > simMaxBytes {
		dataBytes = simMaxBytes
	}

	f, err := os.OpenFile(tap.FilePath, os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return CaptureStats{}, fmt.Errorf("reopening capture file: %w", err)
	}

	silence := make([]byte, 64<<10)
	remaining := dataBytes
	for remaining > 0 {
		chunk := silence
		if remaining < int64(len(chunk)) {
			chunk = silence[:remaining]
		}
		n, err := f.Write(chunk)
		if err != nil {
			_ = f.Close()
			return CaptureStats{}, fmt.Errorf("writing capture data: %w", err)
		}
		remaining -= int64(n)
	}
	if err := f.Close(); err != nil {
		return CaptureStats{}, fmt.Errorf("closing capture file: %w", err)
	}

	if strings.HasSuffix(tap.FilePath, "."+string(FormatWAV)) {
		if err := patchWAVSizes(tap.FilePath, dataBytes); err != nil {
			return CaptureStats{}, err
		}
	}

	info, err := os.Stat(tap.FilePath)
	if err != nil {
		return CaptureStats{}, fmt.Errorf("reading capture file size: %w", err)
	}

	return CaptureStats{
		FilePath:      tap.FilePath,
		FileSizeBytes: info.Size(),
		ChannelCount:  tap.ChannelCount,
		SampleRate:    tap.SampleRate,
	}, nil
}

// wavHeader builds a canonical 44-byte PCM RIFF header.
func wavHeader(channels, sampleRate int, dataLen uint32) []byte {
	h := make([]byte, 44)
	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+dataLen)
	copy(h[8:12], "WAVE")
	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM
	binary.LittleEndian.PutUint16(h[22:24], uint16(channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(sampleRate*channels*2))
	binary.LittleEndian.PutUint16(h[32:34], uint16(channels*2))
	binary.LittleEndian.PutUint16(h[34:36], 16) // bits per sample
	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], dataLen)
	return h
}

// patchWAVSizes rewrites the RIFF and data chunk lengths after appending.
func patchWAVSizes(path string, dataLen int64) error {
	f, err := os.OpenFile(path, os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("reopening capture file for header fixup: %w", err)
	}
	defer func() { _ = f.Close() }()

	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], uint32(36+dataLen))
	if _, err := f.WriteAt(buf[:], 4); err != nil {
		return fmt.Errorf("patching RIFF size: %w", err)
	}
	binary.LittleEndian.PutUint32(buf[:], uint32(dataLen))
	if _, err := f.WriteAt(buf[:], 40); err != nil {
		return fmt.Errorf("patching data size: %w", err)
	}
	return nil
}

// sanitizeFileName keeps letters, digits, dot, and dash; everything else
// becomes an underscore. Process names are attacker-adjacent input and end
// up in a filesystem path.
func sanitizeFileName(name string) string {
	if name == "" {
		return "capture"
	}
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
