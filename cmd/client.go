package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundtap/tapd/internal/config"
)

const (
	clientTimeout = 10 * time.Second

	// maxClientResponseBytes bounds how much of a response the client will
	// buffer. The daemon's largest payload is the process list.
	maxClientResponseBytes = 1 << 20
)

// daemonAddr overrides the configured daemon address when --addr is set.
var daemonAddr string

func addDaemonFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&daemonAddr, "addr", "",
		"daemon address (host:port, default from config)")
}

// resolveDaemonAddr returns the address client subcommands talk to. The
// --addr flag wins; otherwise the configured bind address applies.
func resolveDaemonAddr() (string, error) {
	if daemonAddr != "" {
		if err := validateAddr(daemonAddr); err != nil {
			return "", fmt.Errorf("invalid address %q: %w", daemonAddr, err)
		}
		return daemonAddr, nil
	}

	manager, err := config.NewManager(configDir)
	if err != nil {
		return "", err
	}
	cfg, err := manager.Load()
	if err != nil {
		return "", err
	}
	return cfg.Addr(), nil
}

// validateAddr validates a daemon address in host:port format.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be in host:port format: %w", err)
	}

	if host != "" && host != "localhost" {
		if ip := net.ParseIP(host); ip == nil {
			if strings.ContainsAny(host, " \t\n") {
				return fmt.Errorf("invalid host: %s", host)
			}
		}
	}

	if port == "" {
		return fmt.Errorf("port is required")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric: %w", err)
	}
	if portNum < 1 || portNum > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", portNum)
	}

	return nil
}

// callDaemon performs one GET against the running daemon and decodes the
// JSON body into out. Non-2xx responses come back as errors carrying the
// daemon's error message.
func callDaemon(ctx context.Context, path string, out any) error {
	addr, err := resolveDaemonAddr()
	if err != nil {
		return err
	}

	status, body, err := getJSON(ctx, addr, path)
	if err != nil {
		return err
	}

	if status < 200 || status > 299 {
		return fmt.Errorf("daemon returned %d: %s", status, apiErrorMessage(body))
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// getJSON performs a single GET over a fresh connection. The daemon
// answers one request per connection and closes, so the response is
// everything up to EOF.
func getJSON(ctx context.Context, addr, path string) (int, []byte, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return 0, nil, fmt.Errorf("connecting to daemon at %s (is it running? try 'tapd serve'): %w", addr, err)
	}
	defer func() { _ = conn.Close() }()

	if err := conn.SetDeadline(time.Now().Add(clientTimeout)); err != nil {
		return 0, nil, err
	}

	var req bytes.Buffer
	fmt.Fprintf(&req, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&req, "Host: %s\r\n", addr)
	req.WriteString("Accept: application/json\r\n")
	req.WriteString("Connection: close\r\n\r\n")
	if _, err := conn.Write(req.Bytes()); err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}

	raw, err := io.ReadAll(io.LimitReader(conn, maxClientResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("reading response: %w", err)
	}

	return parseClientResponse(raw)
}

// parseClientResponse splits a raw HTTP response into status code and body.
func parseClientResponse(raw []byte) (int, []byte, error) {
	head, body, found := bytes.Cut(raw, []byte("\r\n\r\n"))
	if !found {
		return 0, nil, fmt.Errorf("malformed response from daemon")
	}

	statusLine, _, _ := bytes.Cut(head, []byte("\r\n"))
	parts := strings.SplitN(string(statusLine), " ", 3)
	if len(parts) < 2 || !strings.HasPrefix(parts[0], "HTTP/1.") {
		return 0, nil, fmt.Errorf("malformed status line from daemon: %q", statusLine)
	}
	status, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, nil, fmt.Errorf("malformed status code from daemon: %q", parts[1])
	}

	return status, body, nil
}

// apiErrorMessage extracts a readable message from the daemon's error
// envelope, falling back to the raw body.
func apiErrorMessage(body []byte) string {
	var envelope struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		return fmt.Sprintf("%s (%s)", envelope.Error.Message, envelope.Error.Code)
	}
	return strings.TrimSpace(string(body))
}
