package ft

import (
	"context"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// dataListener owns the passive endpoint the server connects back to and
// the single connection accepted on it.
type dataListener struct {
	// raw is the bound TCP listener
	raw net.Listener

	conn    net.Conn
	port    int
	timeout time.Duration
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// bindData binds port on all local interfaces and starts listening.
// Port 0 picks a free port; Port reports the one actually bound.
func bindData(ctx context.Context, port int, timeout time.Duration, logger *slog.Logger) (*dataListener, error) {
	var lc net.ListenConfig

	raw, err := lc.Listen(ctx, "tcp", net.JoinHostPort("", strconv.Itoa(port)))
	if err != nil {
		return nil, &BindError{Port: port, Err: err}
	}

	bound := port
	if tcpAddr, ok := raw.Addr().(*net.TCPAddr); ok {
		bound = tcpAddr.Port
	}

	logger.Debug("data listener bound", "port", bound)

	return &dataListener{
		raw:     raw,
		port:    bound,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Port returns the bound port number.
func (d *dataListener) Port() int {
	return d.port
}

// acceptOnce blocks until the server connects, then stops listening so no
// second data connection can arrive. Cancelling ctx unblocks the accept.
func (d *dataListener) acceptOnce(ctx context.Context) (net.Conn, error) {
	stop := context.AfterFunc(ctx, func() { _ = d.raw.Close() })
	defer stop()

	if d.timeout > 0 {
		if tl, ok := d.raw.(*net.TCPListener); ok {
			_ = tl.SetDeadline(time.Now().Add(d.timeout))
		}
	}

	conn, err := d.raw.Accept()

	// One data connection per session.
	_ = d.raw.Close()

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = ctxErr
		}
		return nil, &ProtocolError{Op: "accept data connection", Err: err}
	}

	d.logger.Debug("data connection accepted", "remote_addr", conn.RemoteAddr().String())

	if err := applyUserTimeout(conn, d.timeout); err != nil {
		d.logger.Debug("tcp user timeout not applied", "error", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		conn.Close()
		return nil, &ProtocolError{Op: "accept data connection", Err: net.ErrClosed}
	}
	d.conn = withDeadline(conn, d.timeout)
	return d.conn, nil
}

// Close releases the accepted connection, if any, and the listener.
func (d *dataListener) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true

	var connErr error
	if d.conn != nil {
		connErr = d.conn.Close()
	}
	// The listener may already be closed by acceptOnce.
	_ = d.raw.Close()
	return connErr
}
