package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/soundtap/tapd/internal/config"
	"github.com/soundtap/tapd/internal/ratelimit"
	"github.com/soundtap/tapd/internal/recording"
)

// Server accepts TCP connections and serves one HTTP request per
// connection. It owns an immutable snapshot of the configuration it was
// built with; applying new configuration means building a new server.
type Server struct {
	cfg     *config.Config
	svc     *recording.Service
	logger  *slog.Logger
	limiter *ratelimit.Limiter
	tracer  trace.Tracer

	routeTable []route
	docsPage   []byte
	docsJSON   []byte

	// proxyLog and denialLog throttle the noisy repeat-offender logs. The
	// events still count; they just stop flooding the journal.
	proxyLog  rate.Sometimes
	denialLog rate.Sometimes

	mu       sync.Mutex
	listener net.Listener
	conns    map[net.Conn]struct{}
	wg       sync.WaitGroup
}

// NewServer builds a server over the given recording service. The config
// is cloned; later mutations by the caller do not reach a running server.
func NewServer(cfg *config.Config, svc *recording.Service, logger *slog.Logger) *Server {
	s := &Server{
		cfg:       cfg.Clone(),
		svc:       svc,
		logger:    logger,
		limiter:   ratelimit.New(cfg.MaxRequestsPerMinute, ratelimit.DefaultWindow),
		tracer:    otel.Tracer("tapd/api"),
		proxyLog:  rate.Sometimes{First: 1, Interval: time.Minute},
		denialLog: rate.Sometimes{First: 3, Interval: 10 * time.Second},
		conns:     make(map[net.Conn]struct{}),
	}
	s.docsPage, s.docsJSON = buildDocs(logger)
	s.routeTable = s.routes()
	return s
}

// Start binds the listener and begins accepting connections. It returns
// once the socket is ready. Calling Start on a running server is a no-op;
// a bind failure is fatal to the caller, not retried here.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return nil
	}

	addr := s.cfg.Addr()
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding %s: %w", addr, err)
	}
	s.listener = l

	s.wg.Add(1)
	go s.acceptLoop(l)

	s.logger.Info("server listening",
		"addr", l.Addr().String(),
		"local_only", s.cfg.LocalOnly)
	return nil
}

// Addr reports the bound address, or nil when the server is not running.
// With port 0 in the config this is how the chosen port is discovered.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop closes the listener and every tracked connection, then waits for
// in-flight handlers to finish. Safe to call on a stopped server.
func (s *Server) Stop() error {
	s.mu.Lock()
	l := s.listener
	s.listener = nil
	open := make([]net.Conn, 0, len(s.conns))
	for c := range s.conns {
		open = append(open, c)
	}
	s.mu.Unlock()

	if l != nil {
		_ = l.Close()
	}
	for _, c := range open {
		_ = c.Close()
	}
	s.wg.Wait()

	if l != nil {
		s.logger.Info("server stopped")
	}
	return nil
}

func (s *Server) acceptLoop(l net.Listener) {
	defer s.wg.Done()

	for {
		conn, err := l.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		s.mu.Lock()
		over := len(s.conns) >= s.cfg.MaxConcurrentConnections
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handleConn(conn, over)
	}
}

// handleConn serves exactly one request. A single absolute deadline covers
// the read and the write, so a stalled peer cannot hold the connection
// past the configured timeout.
func (s *Server) handleConn(conn net.Conn, overCapacity bool) {
	defer s.wg.Done()
	defer func() {
		_ = conn.Close()
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
	}()

	start := time.Now()
	remote := conn.RemoteAddr().String()
	_ = conn.SetDeadline(start.Add(time.Duration(s.cfg.RequestTimeoutSeconds) * time.Second))

	if overCapacity {
		s.logger.Warn("connection rejected, at capacity",
			"remote_addr", remote,
			"limit", s.cfg.MaxConcurrentConnections)
		s.writeError(conn, capacityError(strconv.Itoa(s.cfg.MaxConcurrentConnections)), nil)
		return
	}

	req, werr, err := readRequest(conn, s.cfg.MaxRequestBodyBytes)
	if err != nil {
		// Timed out or torn mid-request. There is no one to answer, so
		// the connection just closes.
		s.logger.Debug("connection read failed", "remote_addr", remote, "error", err)
		return
	}

	var status int
	switch {
	case werr != nil:
		var hdrs []headerKV
		if req != nil {
			req.RemoteAddr = remote
			hdrs = corsHeaders(s.cfg, req.Header("origin"))
		}
		s.writeError(conn, werr, hdrs)
		status = werr.status
	default:
		req.RemoteAddr = remote
		status = s.dispatch(context.Background(), conn, req)
	}

	attrs := []any{
		"status", status,
		"duration_ms", time.Since(start).Milliseconds(),
		"remote_addr", remote,
	}
	if req != nil {
		attrs = append(attrs, "method", req.Method, "target", truncate(req.Target, 200))
	}
	s.logger.Info("request handled", attrs...)
}
