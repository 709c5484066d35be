package api

import (
	"context"
	"net/http"
)

// handlerFunc runs a routed request and returns the status plus a payload
// to encode. An error return supersedes both.
type handlerFunc func(ctx context.Context, req *Request) (int, any, error)

// route is one entry in the fixed routing table. hasBody marks routes
// whose request body is schema-validated before the handler runs.
type route struct {
	method  string
	path    string
	hasBody bool
	handle  handlerFunc
}

func (s *Server) routes() []route {
	return []route{
		{http.MethodGet, "/processes", false, s.handleProcesses},
		{http.MethodPost, "/recording/start", true, s.handleStart},
		{http.MethodPost, "/recording/stop", false, s.handleStop},
		{http.MethodGet, "/recording/status", false, s.handleStatus},
		{http.MethodGet, "/docs", false, s.handleDocs},
	}
}

// findRoute resolves method and path against the table. A known path with
// the wrong method is 405; an unknown path is 404. The distinction leaks
// nothing useful: the route table is published on /docs anyway.
func (s *Server) findRoute(method, path string) (*route, *wireError) {
	pathKnown := false
	for i := range s.routeTable {
		rt := &s.routeTable[i]
		if rt.path != path {
			continue
		}
		if rt.method == method {
			return rt, nil
		}
		pathKnown = true
	}
	if pathKnown {
		return nil, &wireError{
			status:  http.StatusMethodNotAllowed,
			code:    codeMethodNotAllowed,
			message: "method not allowed for this path",
		}
	}
	return nil, &wireError{
		status:  http.StatusNotFound,
		code:    codeRouteNotFound,
		message: "no such route",
	}
}
