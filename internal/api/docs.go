package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
)

// htmlPage and rawJSON mark handler payloads that bypass the default JSON
// marshalling: one is served as HTML, the other is already encoded.
type (
	htmlPage []byte
	rawJSON  []byte
)

// startRequestBody mirrors the /recording/start body for documentation.
type startRequestBody struct {
	ProcessID    string `json:"processId"`
	OutputFormat string `json:"outputFormat,omitempty"`
}

// docsRoute is one route entry in the machine-readable API description.
type docsRoute struct {
	Method      string `json:"method"`
	Path        string `json:"path"`
	Success     int    `json:"success"`
	Description string `json:"description"`
	Request     string `json:"requestSchema,omitempty"`
	Response    string `json:"responseSchema,omitempty"`
}

type docsDocument struct {
	Service string                        `json:"service"`
	Routes  []docsRoute                   `json:"routes"`
	Schemas map[string]*jsonschema.Schema `json:"schemas"`
}

var docsRoutes = []docsRoute{
	{"GET", "/processes", 200, "List processes with recordable audio", "", "ProcessList"},
	{"POST", "/recording/start", 201, "Begin an exclusive capture session", "StartRequest", "Session"},
	{"POST", "/recording/stop", 200, "End the capture session and return its metadata", "", "RecordingMetadata"},
	{"GET", "/recording/status", 200, "Current lifecycle state", "", "RecordingStatus"},
	{"GET", "/docs", 200, "This document", "", ""},
}

// buildDocs renders the /docs payloads once at startup: an HTML page for
// people and a JSON document for tooling, both carrying generated schemas
// for every wire payload. A schema that fails to generate is dropped with
// a log line; the endpoint keeps serving.
func buildDocs(logger *slog.Logger) (html, machine []byte) {
	schemas := make(map[string]*jsonschema.Schema, 6)
	order := make([]string, 0, 6)
	add := func(name, description string, schema *jsonschema.Schema, err error) {
		if err != nil {
			logger.Error("schema generation failed", "schema", name, "error", err)
			return
		}
		schema.Description = description
		schemas[name] = schema
		order = append(order, name)
	}

	startSchema, err := jsonschema.For[startRequestBody](nil)
	add("StartRequest", "POST /recording/start request body", startSchema, err)
	sessionSchema, err := jsonschema.For[sessionPayload](nil)
	add("Session", "POST /recording/start response body", sessionSchema, err)
	stopSchema, err := jsonschema.For[stopResponse](nil)
	add("RecordingMetadata", "POST /recording/stop response body", stopSchema, err)
	statusSchema, err := jsonschema.For[statusResponse](nil)
	add("RecordingStatus", "GET /recording/status response body", statusSchema, err)
	processesSchema, err := jsonschema.For[processesResponse](nil)
	add("ProcessList", "GET /processes response body", processesSchema, err)
	errorSchema, err := jsonschema.For[errorEnvelope](nil)
	add("Error", "body of every non-2xx response", errorSchema, err)

	doc := docsDocument{Service: "tapd", Routes: docsRoutes, Schemas: schemas}
	machine, err = json.Marshal(doc)
	if err != nil {
		logger.Error("docs document encoding failed", "error", err)
		machine = []byte(`{"service":"tapd"}`)
	}

	var b bytes.Buffer
	b.WriteString(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>tapd API</title>
<style>
body { font-family: ui-monospace, monospace; max-width: 56rem; margin: 2rem auto; padding: 0 1rem; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 0.4rem 0.6rem; text-align: left; }
pre { background: #f5f5f5; padding: 0.8rem; overflow-x: auto; }
code { background: #f5f5f5; padding: 0 0.2rem; }
</style>
</head>
<body>
<h1>tapd API</h1>
<p>Local audio capture control plane. One request per connection, JSON in
and out, <code>Connection: close</code> on every response. Request this
page with <code>Accept: application/json</code> for a machine-readable
version.</p>
<h2>Routes</h2>
<table>
<tr><th>Method</th><th>Path</th><th>Success</th><th>Description</th></tr>
`)
	for _, rt := range docsRoutes {
		fmt.Fprintf(&b, "<tr><td>%s</td><td>%s</td><td>%d</td><td>%s</td></tr>\n",
			rt.Method, rt.Path, rt.Success, rt.Description)
	}
	b.WriteString(`</table>
<h2>Errors</h2>
<p>Non-2xx responses carry <code>{"error":{"code","message","details?"}}</code>.
The <code>code</code> values are stable; messages are advisory.</p>
<h2>Schemas</h2>
`)
	for _, name := range order {
		raw, err := json.MarshalIndent(schemas[name], "", "  ")
		if err != nil {
			logger.Error("schema encoding failed", "schema", name, "error", err)
			continue
		}
		fmt.Fprintf(&b, "<h3>%s</h3>\n<pre>%s</pre>\n", name, raw)
	}
	b.WriteString("</body>\n</html>\n")

	return b.Bytes(), machine
}

// handleDocs negotiates on Accept: JSON for tooling, HTML for everyone
// else.
func (s *Server) handleDocs(_ context.Context, req *Request) (int, any, error) {
	if strings.Contains(req.Header("accept"), "application/json") {
		return http.StatusOK, rawJSON(s.docsJSON), nil
	}
	return http.StatusOK, htmlPage(s.docsPage), nil
}
