package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"strings"
	"testing"
)

// captureStdout runs fn with os.Stdout redirected to a pipe and returns
// everything it printed.
func captureStdout(t *testing.T, fn func() error) string {
	t.Helper()

	oldStdout := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("failed to create pipe: %v", err)
	}
	os.Stdout = w

	fnErr := fn()

	_ = w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, r)
	_ = r.Close()

	if fnErr != nil {
		t.Fatalf("unexpected error: %v", fnErr)
	}
	return buf.String()
}

func TestRunStatus_Idle(t *testing.T) {
	startTestDaemon(t)

	output := captureStdout(t, func() error {
		return runStatus(context.Background())
	})

	if !strings.Contains(output, "idle") {
		t.Errorf("expected idle status, got: %s", output)
	}
}

func TestRunProcesses_Table(t *testing.T) {
	startTestDaemon(t)

	output := captureStdout(t, func() error {
		return runProcesses(context.Background())
	})

	for _, expected := range []string{"PID", "NAME", "AUDIO"} {
		if !strings.Contains(output, expected) {
			t.Errorf("expected column header %q in output:\n%s", expected, output)
		}
	}
	if len(strings.Split(strings.TrimSpace(output), "\n")) < 2 {
		t.Errorf("expected at least one process row:\n%s", output)
	}
}
