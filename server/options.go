package server

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/ftxfer/ft/internal/ratelimit"
)

// Option is a functional option for configuring a Server.
type Option func(*Server) error

// WithDriver sets the storage backend. This option is required and can
// only be set once.
//
//	driver, _ := server.NewFSDriver("/srv/files")
//	s, _ := server.NewServer(":30021", server.WithDriver(driver))
func WithDriver(driver Driver) Option {
	return func(s *Server) error {
		if s.driver != nil {
			return fmt.Errorf("driver already set")
		}
		s.driver = driver
		return nil
	}
}

// WithLogger sets a custom logger for the server.
// If not specified, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) error {
		s.logger = logger
		return nil
	}
}

// WithTimeout sets the deadline applied to every control read, the
// dial-back and every data write. If 0, no timeout is applied.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Server) error {
		s.timeout = timeout
		return nil
	}
}

// WithResponseCodeWidth pads the response code with NUL bytes to width.
// The client must read the same width.
func WithResponseCodeWidth(width int) Option {
	return func(s *Server) error {
		if width < 3 {
			return fmt.Errorf("response code width %d is shorter than a code", width)
		}
		s.codeWidth = width
		return nil
	}
}

// WithTokenDelimiter makes the server split control tokens on delim
// instead of taking one token per read.
func WithTokenDelimiter(delim byte) Option {
	return func(s *Server) error {
		s.delimiter = &delim
		return nil
	}
}

// WithMaxConnections sets the maximum number of simultaneous control
// connections. If 0, there is no limit. This is the default.
func WithMaxConnections(max int) Option {
	return func(s *Server) error {
		s.maxConnections = max
		return nil
	}
}

// WithBandwidthLimit caps the data connection write rate of each session,
// in bytes per second. Zero means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Server) error {
		s.bandwidthLimit = bytesPerSecond
		return nil
	}
}

// WithGlobalBandwidthLimit caps the combined write rate of all sessions.
func WithGlobalBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Server) error {
		s.globalLimiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithMetricsCollector sets a collector for request and connection metrics.
func WithMetricsCollector(collector MetricsCollector) Option {
	return func(s *Server) error {
		s.metricsCollector = collector
		return nil
	}
}
