package ft

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"time"
)

// Dialer establishes the control connection. *net.Dialer satisfies it, as
// do the SOCKS5 dialers of golang.org/x/net/proxy.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// controlConn owns the control connection. It carries exactly two writes:
// the request and the data-port announcement.
type controlConn struct {
	conn      net.Conn
	addr      string
	delimiter []byte
	logger    *slog.Logger

	closeOnce sync.Once
	closeErr  error
}

// openControl resolves addr and connects to it. Any failure is a
// *ConnectError and is not retried.
func openControl(ctx context.Context, d Dialer, addr string, timeout time.Duration, logger *slog.Logger) (*controlConn, error) {
	logger.Debug("connecting to server", "addr", addr)

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, &ConnectError{Addr: addr, Err: err}
	}

	logger.Debug("control connection established",
		"addr", addr,
		"local_addr", conn.LocalAddr().String(),
	)

	return &controlConn{
		conn:   withDeadline(conn, timeout),
		addr:   addr,
		logger: logger,
	}, nil
}

// sendRequest writes the encoded request in full.
func (c *controlConn) sendRequest(req Request) error {
	c.logger.Debug("sending request", "request", req.String())
	if err := c.writeToken(EncodeRequest(req)); err != nil {
		return fmt.Errorf("ft: send request: %w", err)
	}
	return nil
}

// announceDataPort tells the server which port to connect back to. The
// listener must already be accepting when this is called.
func (c *controlConn) announceDataPort(port int) error {
	c.logger.Debug("announcing data port", "port", port)
	if err := c.writeToken([]byte(strconv.Itoa(port))); err != nil {
		return fmt.Errorf("ft: announce data port: %w", err)
	}
	return nil
}

func (c *controlConn) writeToken(tok []byte) error {
	if len(c.delimiter) > 0 {
		tok = append(tok[:len(tok):len(tok)], c.delimiter...)
	}
	return writeFull(c.conn, tok)
}

// Close releases the control connection. It is safe to call more than once.
func (c *controlConn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}

// writeFull writes all of p, retrying after partial writes.
func writeFull(w io.Writer, p []byte) error {
	for len(p) > 0 {
		n, err := w.Write(p)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		p = p[n:]
	}
	return nil
}
