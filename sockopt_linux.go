//go:build linux

package ft

import (
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// userTimeoutControl returns a dialer hook that sets TCP_USER_TIMEOUT, or
// nil when timeout is not positive.
func userTimeoutControl(timeout time.Duration) func(network, address string, c syscall.RawConn) error {
	if timeout <= 0 {
		return nil
	}
	return func(_, _ string, c syscall.RawConn) error {
		return setUserTimeout(c, timeout)
	}
}

// setUserTimeout bounds how long written data may stay unacknowledged
// before the kernel drops the connection. Read deadlines alone cannot
// detect a peer that vanished while our send queue is full.
func setUserTimeout(c syscall.RawConn, timeout time.Duration) error {
	if timeout <= 0 {
		return nil
	}
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_USER_TIMEOUT, int(timeout.Milliseconds()))
	})
	if err != nil {
		return err
	}
	return sockErr
}
