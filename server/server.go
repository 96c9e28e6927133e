package server

import (
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ftxfer/ft/internal/ratelimit"
)

// Server answers list and fetch requests from ft clients.
//
// Each control connection runs in its own goroutine and is served once:
// one request, one data connection, then both connections are closed.
//
// Lifecycle:
//  1. Create server with NewServer()
//  2. Start with ListenAndServe() or Serve()
//  3. Stop with Shutdown() from another goroutine
type Server struct {
	// addr is the TCP address to listen on (e.g., ":30021").
	addr string

	// driver is the storage backend.
	driver Driver

	// logger is the logger instance.
	logger *slog.Logger

	// timeout bounds each read, dial and write. If 0, no timeout is applied.
	timeout time.Duration

	// codeWidth is the padded width of the response code on the wire.
	codeWidth int

	// delimiter, when set, terminates control tokens.
	delimiter *byte

	// maxConnections is the maximum number of simultaneous connections.
	// If 0, there is no limit.
	maxConnections int

	// bandwidthLimit is the per-session data write rate in bytes/second.
	bandwidthLimit int64

	// globalLimiter is shared by all sessions.
	globalLimiter *ratelimit.Limiter

	metricsCollector MetricsCollector

	// dialer opens data connections back to clients.
	dialer *net.Dialer

	activeConns atomic.Int32

	// Shutdown handling
	mu         sync.Mutex
	listener   net.Listener
	conns      map[net.Conn]struct{}
	inShutdown atomic.Bool
}

// ErrServerClosed is returned by Serve and ListenAndServe after a call to
// Shutdown.
var ErrServerClosed = errors.New("ft: Server closed")

// NewServer creates a new server with the given address and options.
// The driver must be provided via the WithDriver option.
//
// Default values:
//   - Logger: slog.Default()
//   - Timeout: 0 (none)
//   - Response code width: 3
//   - Token delimiter: none (one token per read)
//   - MaxConnections: 0 (unlimited)
func NewServer(addr string, options ...Option) (*Server, error) {
	s := &Server{
		addr:      addr,
		logger:    slog.Default(),
		codeWidth: 3,
		conns:     make(map[net.Conn]struct{}),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if s.driver == nil {
		return nil, fmt.Errorf("driver is required (use WithDriver option)")
	}

	s.dialer = &net.Dialer{Timeout: s.timeout}
	return s, nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	s.logger.Info("server listening", "addr", ln.Addr().String())
	return s.Serve(ln)
}

// Shutdown stops the server.
//
// It closes the listener and immediately closes all active control and
// data connections, cutting off any transfer in progress.
func (s *Server) Shutdown() error {
	s.inShutdown.Store(true)

	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	conns := s.conns
	s.conns = make(map[net.Conn]struct{})
	s.mu.Unlock()

	var err error
	if ln != nil {
		err = ln.Close()
	}

	for conn := range maps.Keys(conns) {
		conn.Close()
	}

	return err
}

// Serve accepts incoming connections on the listener l.
// It blocks until the listener is closed or Shutdown is called.
func (s *Server) Serve(l net.Listener) error {
	s.mu.Lock()
	if s.inShutdown.Load() {
		s.mu.Unlock()
		l.Close()
		return ErrServerClosed
	}
	s.listener = l
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		if s.listener == l {
			s.listener = nil
		}
		s.mu.Unlock()
		l.Close()
	}()

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Error("accept error", "error", err)
			continue
		}

		go s.handleConnection(conn)
	}
}

// handleConnection serves one control connection.
func (s *Server) handleConnection(conn net.Conn) {
	if !s.trackConnection(conn, true) {
		return
	}
	defer s.trackConnection(conn, false)
	defer conn.Close()

	if s.maxConnections > 0 && s.activeConns.Load() >= int32(s.maxConnections) {
		s.logger.Warn("connection_rejected",
			"remote_addr", conn.RemoteAddr().String(),
			"reason", "global_limit_reached",
			"limit", s.maxConnections,
		)
		if s.metricsCollector != nil {
			s.metricsCollector.RecordConnection(false, "global_limit_reached")
		}
		return
	}
	s.activeConns.Add(1)
	defer s.activeConns.Add(-1)

	if s.metricsCollector != nil {
		s.metricsCollector.RecordConnection(true, "accepted")
	}

	newSession(s, conn).serve()
}

// trackConnection returns false if we're shutting down.
func (s *Server) trackConnection(conn net.Conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !add {
		delete(s.conns, conn)
		return true
	}
	if s.inShutdown.Load() {
		conn.Close()
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}
