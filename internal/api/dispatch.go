package api

import (
	"context"
	"math"
	"mime"
	"net"
	"net/http"
	"strconv"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/soundtap/tapd/internal/security"
)

// dispatch runs one parsed request through the validation pipeline and
// writes exactly one response. It returns the status sent, for the access
// log.
func (s *Server) dispatch(ctx context.Context, conn net.Conn, req *Request) int {
	ctx, span := s.tracer.Start(ctx, "api.request", trace.WithAttributes(
		attribute.String("http.method", req.Method),
		attribute.String("http.target", truncate(req.Target, 200)),
	))
	defer span.End()

	status := s.runPipeline(ctx, conn, req)

	span.SetAttributes(attribute.Int("http.status_code", status))
	if status >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(status))
	}
	return status
}

func (s *Server) runPipeline(ctx context.Context, conn net.Conn, req *Request) int {
	hdrs := corsHeaders(s.cfg, req.Header("origin"))

	reject := func(werr *wireError) int {
		s.writeError(conn, werr, hdrs)
		return werr.status
	}

	// 1. Request target screening. The raw target is checked, query
	// string included, so traversal sequences cannot hide after a '?'.
	if cerr := security.CheckPath(req.Target); cerr != nil {
		s.logSecurityEvent(cerr.Code, req, "target", truncate(req.Target, 200))
		return reject(fromCheckError(cerr))
	}

	// 2. Header screening. Proxy headers never reject, but a loopback
	// service seeing one means something is forwarding to it.
	if cerr := security.CheckHeaders(req.Headers); cerr != nil {
		s.logSecurityEvent(cerr.Code, req)
		return reject(fromCheckError(cerr))
	}
	if proxies := security.DetectProxyHeaders(req.Headers); len(proxies) > 0 {
		s.proxyLog.Do(func() {
			s.logger.Warn("proxy headers on a local endpoint",
				"security_event", "proxy_headers_detected",
				"headers", proxies,
				"remote_addr", req.RemoteAddr)
		})
	}

	// 3. Origin screening, only when the request declares an origin and
	// an allow-list is actually configured.
	if origin := req.Header("origin"); origin != "" && s.cfg.EnableCORS && len(s.cfg.AllowedOrigins) > 0 {
		if cerr := security.CheckOrigin(origin, s.cfg.AllowedOrigins); cerr != nil {
			s.logSecurityEvent(cerr.Code, req, "origin", truncate(origin, 200))
			return reject(fromCheckError(cerr))
		}
	}

	// 4. Preflight divert. With CORS disabled OPTIONS is just an
	// unsupported method.
	if req.Method == http.MethodOptions {
		if !s.cfg.EnableCORS {
			return reject(&wireError{
				status:  http.StatusMethodNotAllowed,
				code:    codeMethodNotAllowed,
				message: "method not allowed for this path",
			})
		}
		s.writePreflight(conn, hdrs)
		return http.StatusOK
	}

	// 5. Rate limiting, before routing: probing unknown paths burns quota
	// like real requests do.
	decision := s.limiter.Allow(clientIP(req.RemoteAddr))
	hdrs = append(hdrs,
		headerKV{"X-RateLimit-Limit", strconv.Itoa(decision.Limit)},
		headerKV{"X-RateLimit-Remaining", strconv.Itoa(decision.Remaining)})
	if !decision.Allowed {
		retry := int(math.Ceil(decision.RetryAfter.Seconds()))
		if retry < 1 {
			retry = 1
		}
		hdrs = append(hdrs, headerKV{"Retry-After", strconv.Itoa(retry)})
		s.denialLog.Do(func() {
			s.logSecurityEvent(codeRateLimited, req, "path", req.Path)
		})
		return reject(&wireError{
			status:  http.StatusTooManyRequests,
			code:    codeRateLimited,
			message: "rate limit exceeded, retry later",
		})
	}

	// 6. Route resolution.
	rt, werr := s.findRoute(req.Method, req.Path)
	if werr != nil {
		return reject(werr)
	}

	// 7. Content-Type on every POST, schema validation on routes that
	// define a body. Bodies sent to schemaless routes are ignored.
	if req.Method == http.MethodPost {
		mediaType, _, err := mime.ParseMediaType(req.Header("content-type"))
		if err != nil || mediaType != "application/json" {
			return reject(protocolError(codeUnsupportedMedia, "content-type must be application/json"))
		}
	}
	if rt.hasBody {
		start, ferr := security.ValidateStartBody(req.Body)
		if ferr != nil {
			return reject(fromFieldError(ferr))
		}
		req.Start = start
	}

	// 8. Handler.
	status, payload, err := rt.handle(ctx, req)
	if err != nil {
		werr := fromServiceError(err)
		if werr.status >= http.StatusInternalServerError {
			s.logger.Error("request failed",
				"method", req.Method,
				"path", req.Path,
				"code", werr.code,
				"error", err)
		}
		return reject(werr)
	}

	switch body := payload.(type) {
	case htmlPage:
		s.writeHTML(conn, status, []byte(body), hdrs)
	case rawJSON:
		s.send(conn, buildResponse(status, "application/json; charset=utf-8", []byte(body), hdrs))
	default:
		s.writeJSON(conn, status, payload, hdrs)
	}
	return status
}

// logSecurityEvent records a pipeline rejection worth auditing. Extra
// key-value pairs follow the fixed fields.
func (s *Server) logSecurityEvent(code string, req *Request, kv ...any) {
	attrs := append([]any{
		"security_event", code,
		"method", req.Method,
		"remote_addr", req.RemoteAddr,
	}, kv...)
	s.logger.Warn("request rejected", attrs...)
}

// clientIP extracts the host part of a remote address. Only the socket
// peer is trusted; forwarding headers are never consulted.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
