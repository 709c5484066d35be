package api

import (
	"bytes"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/soundtap/tapd/internal/security"
)

const (
	// maxHeadBytes caps the request line plus headers. Anything larger is
	// rejected before parsing; legitimate clients stay well under this.
	maxHeadBytes = 16 << 10

	readChunkSize = 4 << 10
)

var headTerminator = []byte("\r\n\r\n")

// Request is one fully read HTTP request. Header names are lowercased at
// parse time and a repeated header collapses to its last value, so lookups
// never worry about case or multiplicity.
type Request struct {
	Method     string
	Target     string // raw request target, query string included
	Path       string // target up to the first '?'
	Proto      string // recorded as sent, never validated
	Headers    map[string]string
	Body       []byte
	RemoteAddr string

	// Start is the validated /recording/start payload, populated by the
	// pipeline once schema validation passes. Nil on every other route.
	Start *security.StartRequest
}

// Header returns the value of a header, or "" when absent.
func (r *Request) Header(name string) string {
	return r.Headers[strings.ToLower(name)]
}

// readRequest reads and parses one request from conn. The caller is
// expected to have set an absolute deadline already.
//
// Three outcomes are possible: a parsed request, a wire rejection to send
// back (req is non-nil alongside it when the head parsed far enough to be
// useful for response headers), or a transport error meaning the
// connection is dead and nothing should be written.
func readRequest(conn net.Conn, maxBody int64) (*Request, *wireError, error) {
	buf := make([]byte, 0, readChunkSize)
	chunk := make([]byte, readChunkSize)

	tooLarge := &wireError{
		status:  http.StatusRequestHeaderFieldsTooLarge,
		code:    codeHeadTooLarge,
		message: "request head exceeds the size limit",
	}

	headEnd := -1
	for headEnd < 0 {
		if i := bytes.Index(buf, headTerminator); i >= 0 {
			if i > maxHeadBytes {
				return nil, tooLarge, nil
			}
			headEnd = i
			break
		}
		if len(buf) > maxHeadBytes {
			return nil, tooLarge, nil
		}
		n, err := conn.Read(chunk)
		if n > 0 {
			buf = append(buf, chunk[:n]...)
			continue
		}
		if err != nil {
			// A peer that connects and goes away without sending a single
			// byte gets a 400. A timer-cancelled connection gets nothing,
			// and neither does one torn down mid-request.
			if len(buf) == 0 && !isTimeout(err) {
				return nil, protocolError(codeMalformedRequest, "empty request"), nil
			}
			return nil, nil, fmt.Errorf("reading request head: %w", err)
		}
	}

	req, werr := parseHead(buf[:headEnd])
	if werr != nil {
		return nil, werr, nil
	}

	// Reject transfer codings outright; this server speaks Content-Length
	// or nothing.
	if req.Header("transfer-encoding") != "" {
		return req, protocolError(codeMalformedRequest, "transfer codings are not supported"), nil
	}

	rest := buf[headEnd+len(headTerminator):]

	if cl, ok := req.Headers["content-length"]; ok {
		length, err := strconv.ParseInt(cl, 10, 64)
		if err != nil || length < 0 {
			return req, protocolError(codeInvalidLength, "content-length is not a valid size"), nil
		}
		if length > maxBody {
			return req, &wireError{
				status:  http.StatusRequestEntityTooLarge,
				code:    codeBodyTooLarge,
				message: "request body exceeds the size limit",
				details: map[string]string{"limit_bytes": strconv.FormatInt(maxBody, 10)},
			}, nil
		}
		body := make([]byte, 0, length)
		if int64(len(rest)) > length {
			rest = rest[:length]
		}
		body = append(body, rest...)
		for int64(len(body)) < length {
			n, err := conn.Read(chunk)
			if n > 0 {
				take := chunk[:n]
				if int64(len(body)+n) > length {
					take = chunk[:length-int64(len(body))]
				}
				body = append(body, take...)
			}
			if err != nil && int64(len(body)) < length {
				return nil, nil, fmt.Errorf("reading request body: %w", err)
			}
		}
		req.Body = body
	}
	// Without a content-length there is no body; stray pipelined bytes are
	// ignored.

	if len(req.Body) > 0 && !utf8.Valid(req.Body) {
		return req, protocolError(codeInvalidEncoding, "request body is not valid UTF-8"), nil
	}

	return req, nil, nil
}

// parseHead splits the request line and header block. It is strict about
// structure: CRLF line endings, a three-part request line, no obs-folding,
// no whitespace in header names. Anything looser invites request smuggling.
// The protocol version is recorded but deliberately not validated.
func parseHead(head []byte) (*Request, *wireError) {
	if !utf8.Valid(head) {
		return nil, protocolError(codeInvalidEncoding, "request head is not valid UTF-8")
	}

	lines := strings.Split(string(head), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return nil, protocolError(codeMalformedRequest, "empty request line")
	}

	parts := strings.Split(lines[0], " ")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return nil, protocolError(codeMalformedRequest, "malformed request line")
	}
	method, target, proto := parts[0], parts[1], parts[2]

	headers := make(map[string]string, len(lines)-1)
	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		if line[0] == ' ' || line[0] == '\t' {
			return nil, protocolError(codeMalformedRequest, "folded header lines are not supported")
		}
		idx := strings.IndexByte(line, ':')
		if idx <= 0 {
			return nil, protocolError(codeMalformedRequest, "malformed header line")
		}
		name := line[:idx]
		if strings.ContainsAny(name, " \t") {
			return nil, protocolError(codeMalformedRequest, "whitespace in header name")
		}
		// Last value wins on repeats.
		headers[strings.ToLower(name)] = strings.Trim(line[idx+1:], " \t")
	}

	path := target
	if i := strings.IndexByte(target, '?'); i >= 0 {
		path = target[:i]
	}

	return &Request{
		Method:  method,
		Target:  target,
		Path:    path,
		Proto:   proto,
		Headers: headers,
	}, nil
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}
