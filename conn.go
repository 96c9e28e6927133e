package ft

import (
	"net"
	"time"
)

// deadlineConn refreshes a read/write deadline before every operation so a
// stalled peer fails the session instead of blocking it forever.
type deadlineConn struct {
	net.Conn
	timeout time.Duration
}

// withDeadline wraps conn when timeout is positive; a zero timeout keeps
// the blocking behavior of the plain connection.
func withDeadline(conn net.Conn, timeout time.Duration) net.Conn {
	if timeout <= 0 {
		return conn
	}
	return &deadlineConn{Conn: conn, timeout: timeout}
}

func (c *deadlineConn) Read(b []byte) (n int, err error) {
	if err := c.Conn.SetReadDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Read(b)
}

func (c *deadlineConn) Write(b []byte) (n int, err error) {
	if err := c.Conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		return 0, err
	}
	return c.Conn.Write(b)
}

// applyUserTimeout sets TCP_USER_TIMEOUT on an accepted connection. Dialed
// connections get it from the dialer's Control hook instead.
func applyUserTimeout(conn net.Conn, timeout time.Duration) error {
	tc, ok := conn.(*net.TCPConn)
	if !ok || timeout <= 0 {
		return nil
	}
	rc, err := tc.SyscallConn()
	if err != nil {
		return err
	}
	return setUserTimeout(rc, timeout)
}
