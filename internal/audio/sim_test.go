package audio

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSimEngine_Processes(t *testing.T) {
	e := NewSimEngine(t.TempDir())

	procs, err := e.Processes(context.Background())
	if err != nil {
		t.Fatalf("Processes() error = %v", err)
	}
	if len(procs) == 0 {
		t.Fatal("Processes() returned an empty table")
	}

	// The returned slice is a copy.
	procs[0].Name = "mutated"
	again, err := e.Processes(context.Background())
	if err != nil {
		t.Fatalf("Processes() error = %v", err)
	}
	if again[0].Name == "mutated" {
		t.Error("Processes() shares its backing array with callers")
	}
}

func TestSimEngine_StartStop_WAV(t *testing.T) {
	dir := t.TempDir()
	e := NewSimEngine(dir)

	tap, err := e.Start(context.Background(), 501, FormatWAV)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if tap.ChannelCount != simChannels || tap.SampleRate != simSampleRate {
		t.Errorf("tap = %d ch / %d Hz, want %d ch / %d Hz",
			tap.ChannelCount, tap.SampleRate, simChannels, simSampleRate)
	}
	if !strings.HasPrefix(tap.FilePath, dir) {
		t.Errorf("capture file %q is outside the output directory", tap.FilePath)
	}

	stats, err := e.Stop(context.Background(), tap)
	if err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if stats.FilePath != tap.FilePath {
		t.Errorf("stats.FilePath = %q, want %q", stats.FilePath, tap.FilePath)
	}
	if stats.FileSizeBytes < 44 {
		t.Errorf("FileSizeBytes = %d, want at least the WAV header", stats.FileSizeBytes)
	}

	// The header must declare the actual data length.
	data, err := os.ReadFile(tap.FilePath)
	if err != nil {
		t.Fatalf("reading capture file: %v", err)
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("capture file is not a RIFF/WAVE container")
	}
	declared := binary.LittleEndian.Uint32(data[40:44])
	if int64(declared) != int64(len(data)-44) {
		t.Errorf("declared data length = %d, file holds %d", declared, len(data)-44)
	}
}

func TestSimEngine_Start_Unauthorized(t *testing.T) {
	e := NewSimEngine(t.TempDir())
	e.SetAuthorized(false)

	_, err := e.Start(context.Background(), 501, FormatWAV)
	if !errors.Is(err, ErrPermission) {
		t.Fatalf("Start() error = %v, want ErrPermission", err)
	}
	if got := ClassifyStartError(err); got != FailurePermission {
		t.Errorf("ClassifyStartError() = %v, want FailurePermission", got)
	}
}

func TestSimEngine_Start_UnknownProcess(t *testing.T) {
	e := NewSimEngine(t.TempDir())

	_, err := e.Start(context.Background(), 99999, FormatWAV)
	if err == nil {
		t.Fatal("Start() with unknown pid succeeded, want error")
	}
	if got := ClassifyStartError(err); got != FailureGeneric {
		t.Errorf("ClassifyStartError() = %v, want FailureGeneric", got)
	}
}

func TestSimEngine_Start_UnwritableOutputDir(t *testing.T) {
	dir := t.TempDir()
	// A regular file where the output directory should be makes MkdirAll fail.
	blocked := filepath.Join(dir, "occupied")
	if err := os.WriteFile(blocked, []byte("x"), 0o600); err != nil {
		t.Fatalf("setup: %v", err)
	}

	e := NewSimEngine(blocked)
	_, err := e.Start(context.Background(), 501, FormatWAV)
	if err == nil {
		t.Fatal("Start() succeeded with an unusable output directory")
	}
	if got := ClassifyStartError(err); got != FailureFileSystem {
		t.Errorf("ClassifyStartError() = %v, want FailureFileSystem", got)
	}
}

func TestSimEngine_FileNameSanitized(t *testing.T) {
	e := NewSimEngine(t.TempDir())
	e.SetProcesses([]Process{{ID: 7, Name: "My App/2 *loud*", HasAudio: true}})

	tap, err := e.Start(context.Background(), 7, FormatAAC)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	base := filepath.Base(tap.FilePath)
	if strings.ContainsAny(base, "/*: ") {
		t.Errorf("capture file name %q contains unsanitized characters", base)
	}
	if !strings.HasSuffix(base, ".aac") {
		t.Errorf("capture file name %q missing format extension", base)
	}
}

func TestSimEngine_ContextCancelled(t *testing.T) {
	e := NewSimEngine(t.TempDir())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Processes(ctx); err == nil {
		t.Error("Processes() with cancelled context succeeded")
	}
	if _, err := e.Start(ctx, 501, FormatWAV); err == nil {
		t.Error("Start() with cancelled context succeeded")
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in   string
		want Format
	}{
		{"", FormatWAV},
		{"wav", FormatWAV},
		{"aac", FormatAAC},
		{"flac", FormatFLAC},
		{"ogg", FormatWAV},
	}
	for _, tt := range tests {
		if got := ParseFormat(tt.in); got != tt.want {
			t.Errorf("ParseFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
