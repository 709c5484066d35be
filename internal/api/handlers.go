package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/soundtap/tapd/internal/audio"
	"github.com/soundtap/tapd/internal/recording"
)

// Wire payload shapes. Field names are part of the public contract;
// timestamps are RFC 3339 and durations are fractional seconds.

type processEntry struct {
	ID                 int32  `json:"id"`
	Name               string `json:"name"`
	HasAudioCapability bool   `json:"hasAudioCapability"`
}

type processesResponse struct {
	Processes []processEntry `json:"processes"`
	Timestamp time.Time      `json:"timestamp"`
}

type sessionPayload struct {
	SessionID   string    `json:"sessionId"`
	ProcessID   int32     `json:"processId"`
	ProcessName string    `json:"processName"`
	StartTime   time.Time `json:"startTime"`
	FilePath    string    `json:"filePath"`
	Status      string    `json:"status"`
}

type stopResponse struct {
	SessionID    string    `json:"sessionId"`
	FilePath     string    `json:"filePath"`
	Duration     float64   `json:"duration"`
	ChannelCount int       `json:"channelCount"`
	SampleRate   int       `json:"sampleRate"`
	FileSize     int64     `json:"fileSize"`
	EndTime      time.Time `json:"endTime"`
}

// statusResponse keeps currentSession and elapsedTime present-but-null
// when idle, so clients can bind to a stable shape.
type statusResponse struct {
	Status         string          `json:"status"`
	CurrentSession *sessionPayload `json:"currentSession"`
	ElapsedTime    *float64        `json:"elapsedTime"`
}

func sessionToPayload(sess *recording.Session) *sessionPayload {
	return &sessionPayload{
		SessionID:   sess.ID,
		ProcessID:   sess.ProcessID,
		ProcessName: sess.ProcessName,
		StartTime:   sess.StartTime,
		FilePath:    sess.FilePath,
		Status:      string(sess.Status),
	}
}

func (s *Server) handleProcesses(ctx context.Context, _ *Request) (int, any, error) {
	procs, err := s.svc.Processes(ctx)
	if err != nil {
		s.logger.Error("process enumeration failed", "error", err)
		return 0, nil, &wireError{
			status:  http.StatusInternalServerError,
			code:    codeProcessListFailed,
			message: "failed to enumerate audio processes",
		}
	}

	// Engines occasionally report placeholder rows. Dropping them here is
	// logged, not an error: one garbage row should not hide the rest.
	entries := make([]processEntry, 0, len(procs))
	for _, p := range procs {
		if p.ID <= 0 || strings.TrimSpace(p.Name) == "" {
			s.logger.Warn("dropping malformed process entry", "pid", p.ID, "name", p.Name)
			continue
		}
		entries = append(entries, processEntry{
			ID:                 p.ID,
			Name:               p.Name,
			HasAudioCapability: p.HasAudio,
		})
	}
	return http.StatusOK, processesResponse{Processes: entries, Timestamp: time.Now().UTC()}, nil
}

func (s *Server) handleStart(ctx context.Context, req *Request) (int, any, error) {
	pid, err := strconv.ParseInt(req.Start.ProcessID, 10, 64)
	if err != nil {
		// Schema validation bounds the field to ten digits, so this does
		// not happen; guard anyway rather than panic on a future change.
		return 0, nil, internalError()
	}

	sess, err := s.svc.Start(ctx, pid, audio.ParseFormat(req.Start.OutputFormat))
	if err != nil {
		return 0, nil, err
	}
	return http.StatusCreated, sessionToPayload(sess), nil
}

func (s *Server) handleStop(ctx context.Context, _ *Request) (int, any, error) {
	meta, err := s.svc.Stop(ctx)
	if err != nil {
		if errors.Is(err, recording.ErrNotRecording) || errors.Is(err, recording.ErrInvalidState) {
			return 0, nil, err
		}
		// Engine-level stop failures keep the session alive for a retry;
		// report them under their own code rather than a generic 500.
		s.logger.Error("recording stop failed", "error", err)
		return 0, nil, &wireError{
			status:  http.StatusInternalServerError,
			code:    codeStopFailed,
			message: "failed to stop recording",
		}
	}

	return http.StatusOK, stopResponse{
		SessionID:    meta.SessionID,
		FilePath:     meta.FilePath,
		Duration:     meta.Duration.Seconds(),
		ChannelCount: meta.ChannelCount,
		SampleRate:   meta.SampleRate,
		FileSize:     meta.FileSizeBytes,
		EndTime:      meta.EndTime,
	}, nil
}

func (s *Server) handleStatus(_ context.Context, _ *Request) (int, any, error) {
	state, err := s.svc.Status()
	if err != nil {
		return 0, nil, err
	}

	resp := statusResponse{Status: string(state.Status)}
	if state.Session != nil {
		resp.CurrentSession = sessionToPayload(state.Session)
	}
	if state.Elapsed != nil {
		secs := state.Elapsed.Seconds()
		resp.ElapsedTime = &secs
	}
	return http.StatusOK, resp, nil
}
