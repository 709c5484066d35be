package config

import (
	"fmt"
	"net"
	"strings"
)

// Sanitize clamps out-of-range values in place and returns a human-readable
// description of every adjustment. The caller decides how to surface them;
// Manager logs each at Warn level.
//
// Sanitize never rejects: anything it cannot repair is left for Validate.
func (c *Config) Sanitize() []string {
	if c == nil {
		return nil
	}

	var adjustments []string
	note := func(format string, args ...any) {
		adjustments = append(adjustments, fmt.Sprintf(format, args...))
	}

	if c.Port < MinPort {
		note("port %d below minimum, clamped to %d", c.Port, MinPort)
		c.Port = MinPort
	} else if c.Port > MaxPort {
		note("port %d above maximum, clamped to %d", c.Port, MaxPort)
		c.Port = MaxPort
	}

	if c.RequestTimeoutSeconds < MinRequestTimeoutSeconds {
		note("request timeout %ds below minimum, clamped to %ds", c.RequestTimeoutSeconds, MinRequestTimeoutSeconds)
		c.RequestTimeoutSeconds = MinRequestTimeoutSeconds
	} else if c.RequestTimeoutSeconds > MaxRequestTimeoutSeconds {
		note("request timeout %ds above maximum, clamped to %ds", c.RequestTimeoutSeconds, MaxRequestTimeoutSeconds)
		c.RequestTimeoutSeconds = MaxRequestTimeoutSeconds
	}

	if c.MaxRequestBodyBytes < MinMaxRequestBodyBytes {
		note("max request body %d below minimum, clamped to %d", c.MaxRequestBodyBytes, MinMaxRequestBodyBytes)
		c.MaxRequestBodyBytes = MinMaxRequestBodyBytes
	} else if c.MaxRequestBodyBytes > MaxMaxRequestBodyBytes {
		note("max request body %d above maximum, clamped to %d", c.MaxRequestBodyBytes, MaxMaxRequestBodyBytes)
		c.MaxRequestBodyBytes = MaxMaxRequestBodyBytes
	}

	if c.MaxConcurrentConnections < MinMaxConcurrentConnections {
		note("max concurrent connections %d below minimum, clamped to %d", c.MaxConcurrentConnections, MinMaxConcurrentConnections)
		c.MaxConcurrentConnections = MinMaxConcurrentConnections
	} else if c.MaxConcurrentConnections > MaxMaxConcurrentConnections {
		note("max concurrent connections %d above maximum, clamped to %d", c.MaxConcurrentConnections, MaxMaxConcurrentConnections)
		c.MaxConcurrentConnections = MaxMaxConcurrentConnections
	}

	if c.MaxRequestsPerMinute < MinMaxRequestsPerMinute {
		note("rate limit %d/min below minimum, clamped to %d/min", c.MaxRequestsPerMinute, MinMaxRequestsPerMinute)
		c.MaxRequestsPerMinute = MinMaxRequestsPerMinute
	} else if c.MaxRequestsPerMinute > MaxMaxRequestsPerMinute {
		note("rate limit %d/min above maximum, clamped to %d/min", c.MaxRequestsPerMinute, MaxMaxRequestsPerMinute)
		c.MaxRequestsPerMinute = MaxMaxRequestsPerMinute
	}

	c.BindAddress = strings.TrimSpace(c.BindAddress)
	if c.BindAddress == "" {
		note("bind address empty, defaulted to %s", DefaultBindAddress)
		c.BindAddress = DefaultBindAddress
	}

	// Localhost enforcement: a parseable non-loopback address is rewritten.
	// An unparseable address is left alone so Validate reports it as an
	// error instead of silently binding somewhere the user did not ask for.
	if c.LocalOnly {
		if ip := net.ParseIP(c.BindAddress); ip != nil && !ip.IsLoopback() {
			note("bind address %s is not loopback with local_only enabled, rewrote to %s", c.BindAddress, DefaultBindAddress)
			c.BindAddress = DefaultBindAddress
		}
	}

	// A blank output directory is left for Validate: there is no safe
	// directory to invent here without the Manager's base dir in scope.
	c.OutputDirectory = strings.TrimSpace(c.OutputDirectory)

	return adjustments
}

// Validate checks the values Sanitize cannot repair.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// The bind address must be an IP literal. Hostnames are rejected:
	// resolution at bind time would make the effective interface depend on
	// the resolver, which defeats localhost enforcement.
	if net.ParseIP(c.BindAddress) == nil {
		return fmt.Errorf("%w: %q is not an IP literal", ErrInvalidBindAddress, c.BindAddress)
	}

	if c.OutputDirectory == "" {
		return fmt.Errorf("%w: output_directory cannot be empty", ErrInvalidOutputDirectory)
	}

	return nil
}
