package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindRoute(t *testing.T) {
	s := &Server{}
	s.routeTable = s.routes()

	tests := []struct {
		name     string
		method   string
		path     string
		wantHit  bool
		wantStat int
	}{
		{"processes", http.MethodGet, "/processes", true, 0},
		{"start", http.MethodPost, "/recording/start", true, 0},
		{"stop", http.MethodPost, "/recording/stop", true, 0},
		{"status", http.MethodGet, "/recording/status", true, 0},
		{"docs", http.MethodGet, "/docs", true, 0},
		{"wrong method on processes", http.MethodPost, "/processes", false, http.StatusMethodNotAllowed},
		{"wrong method on start", http.MethodGet, "/recording/start", false, http.StatusMethodNotAllowed},
		{"delete is never allowed", http.MethodDelete, "/processes", false, http.StatusMethodNotAllowed},
		{"unknown path", http.MethodGet, "/recording", false, http.StatusNotFound},
		{"root", http.MethodGet, "/", false, http.StatusNotFound},
		{"near miss", http.MethodGet, "/processes/", false, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt, werr := s.findRoute(tt.method, tt.path)
			if tt.wantHit {
				require.Nil(t, werr)
				require.NotNil(t, rt)
				assert.Equal(t, tt.path, rt.path)
				return
			}
			require.Nil(t, rt)
			require.NotNil(t, werr)
			assert.Equal(t, tt.wantStat, werr.status)
		})
	}
}

func TestStartRouteValidatesBody(t *testing.T) {
	s := &Server{}
	for _, rt := range s.routes() {
		wantBody := rt.path == "/recording/start"
		assert.Equal(t, wantBody, rt.hasBody, rt.path)
	}
}
