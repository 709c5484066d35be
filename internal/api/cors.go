package api

import (
	"net"

	"github.com/soundtap/tapd/internal/config"
	"github.com/soundtap/tapd/internal/security"
)

// corsHeaders computes the CORS response headers for a request. The echo
// value comes from the same match that gates the request, so the header
// and the allow decision can never disagree. Returns nil when CORS is
// disabled or the origin is not allowed.
func corsHeaders(cfg *config.Config, origin string) []headerKV {
	if !cfg.EnableCORS {
		return nil
	}
	echo, ok := security.MatchOrigin(origin, cfg.AllowedOrigins)
	if !ok {
		return nil
	}
	hdrs := []headerKV{{"Access-Control-Allow-Origin", echo}}
	if echo != "*" {
		// Caches must key on the origin when the echo varies with it.
		hdrs = append(hdrs, headerKV{"Vary", "Origin"})
	}
	return hdrs
}

// preflightHeaders advertises the full, fixed API surface. The route table
// never changes at runtime, so neither does this.
var preflightHeaders = []headerKV{
	{"Access-Control-Allow-Methods", "GET, POST, OPTIONS"},
	{"Access-Control-Allow-Headers", "Content-Type"},
	{"Access-Control-Max-Age", "600"},
}

// writePreflight answers an OPTIONS request with an empty 200.
func (s *Server) writePreflight(conn net.Conn, hdrs []headerKV) {
	s.writeEmpty(conn, 200, append(hdrs, preflightHeaders...))
}
