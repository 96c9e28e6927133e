//go:build !linux

package ft

import (
	"syscall"
	"time"
)

func userTimeoutControl(time.Duration) func(network, address string, c syscall.RawConn) error {
	return nil
}

func setUserTimeout(syscall.RawConn, time.Duration) error {
	return nil
}
