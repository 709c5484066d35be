package api

import (
	"bytes"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
)

// headerKV is a response header in emission order. A slice keeps the
// output deterministic; maps would shuffle headers between runs.
type headerKV struct {
	key   string
	value string
}

// buildResponse assembles a complete HTTP/1.1 response. Every response
// closes the connection and pins its content type against sniffing.
func buildResponse(status int, contentType string, body []byte, extra []headerKV) []byte {
	var b bytes.Buffer
	b.Grow(len(body) + 256)
	b.WriteString("HTTP/1.1 ")
	b.WriteString(strconv.Itoa(status))
	b.WriteString(" ")
	b.WriteString(http.StatusText(status))
	b.WriteString("\r\n")
	writeHeader(&b, "Content-Type", contentType)
	writeHeader(&b, "Content-Length", strconv.Itoa(len(body)))
	writeHeader(&b, "Connection", "close")
	writeHeader(&b, "X-Content-Type-Options", "nosniff")
	for _, h := range extra {
		writeHeader(&b, h.key, h.value)
	}
	b.WriteString("\r\n")
	b.Write(body)
	return b.Bytes()
}

func writeHeader(b *bytes.Buffer, key, value string) {
	b.WriteString(key)
	b.WriteString(": ")
	b.WriteString(value)
	b.WriteString("\r\n")
}

// writeJSON marshals data and sends it in a single Write. Encoding is done
// up front so a failure can still produce a well-formed 500 instead of a
// torn response.
func (s *Server) writeJSON(conn net.Conn, status int, data any, extra []headerKV) {
	body, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("encoding response failed", "error", err)
		s.writeError(conn, internalError(), extra)
		return
	}
	s.send(conn, buildResponse(status, "application/json; charset=utf-8", body, extra))
}

func (s *Server) writeError(conn net.Conn, werr *wireError, extra []headerKV) {
	body, err := json.Marshal(werr.envelope())
	if err != nil {
		// Unreachable with the static envelope type, but a response must
		// still go out.
		body = []byte(`{"error":{"code":"internal_error","message":"an internal error occurred"}}`)
	}
	s.send(conn, buildResponse(werr.status, "application/json; charset=utf-8", body, extra))
}

func (s *Server) writeHTML(conn net.Conn, status int, page []byte, extra []headerKV) {
	s.send(conn, buildResponse(status, "text/html; charset=utf-8", page, extra))
}

func (s *Server) writeEmpty(conn net.Conn, status int, extra []headerKV) {
	s.send(conn, buildResponse(status, "text/plain; charset=utf-8", nil, extra))
}

// send performs the single Write for a response. Failures are logged at
// debug level only; the client tearing down mid-response is routine, not
// an operational problem.
func (s *Server) send(conn net.Conn, raw []byte) {
	if _, err := conn.Write(raw); err != nil {
		s.logger.Debug("writing response failed",
			"remote_addr", conn.RemoteAddr().String(),
			"error", err)
	}
}
