package ft

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned by ParseRequest when the list flag and
	// the file name are both set, both missing, or the name is unusable.
	ErrInvalidRequest = errors.New("ft: invalid request")

	// ErrNoName is returned when a NameResolver gives back an empty name.
	ErrNoName = errors.New("ft: no replacement file name given")

	// ErrUnsafeName is returned when a local file name would leave the
	// download directory.
	ErrUnsafeName = errors.New("ft: file name is not a plain name")

	// ErrTooManyRenames is returned when WithMaxRenameAttempts is set and
	// every proposed name collided with an existing file.
	ErrTooManyRenames = errors.New("ft: too many colliding file names")
)

// ConnectError reports a failure to resolve or connect to the server's
// control address. It is fatal for the session; the client never retries.
type ConnectError struct {
	// Addr is the "host:port" the client tried to reach.
	Addr string
	Err  error
}

// Error implements the error interface.
func (e *ConnectError) Error() string {
	return fmt.Sprintf("ft: connect to %s: %v", e.Addr, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// BindError reports that the local data port could not be bound.
type BindError struct {
	Port int
	Err  error
}

// Error implements the error interface.
func (e *BindError) Error() string {
	return fmt.Sprintf("ft: bind data port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error { return e.Err }

// ProtocolError represents a malformed or missing protocol element, such
// as a data connection that closed before a response code arrived.
type ProtocolError struct {
	// Op names the protocol step (e.g. "read response code", "read entry")
	Op string

	// Raw holds whatever bytes were received, if any
	Raw string

	Err error
}

// Error implements the error interface.
func (e *ProtocolError) Error() string {
	if e.Raw != "" {
		return fmt.Sprintf("ft: %s: %v (received %q)", e.Op, e.Err, e.Raw)
	}
	return fmt.Sprintf("ft: %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// TruncatedListingError reports a data connection that closed before the
// end-of-listing sentinel. Entries already delivered stand.
type TruncatedListingError struct {
	// Received is the number of entries delivered before the connection closed.
	Received int
	Err      error
}

// Error implements the error interface.
func (e *TruncatedListingError) Error() string {
	return fmt.Sprintf("ft: listing truncated after %d entries: %v", e.Received, e.Err)
}

func (e *TruncatedListingError) Unwrap() error { return e.Err }

// IOError reports a local file failure while receiving a fetched file.
// Partially written content is left on disk.
type IOError struct {
	// Op is the failed operation ("create", "write", "stat", "resolve name")
	Op   string
	Path string
	Err  error
}

// Error implements the error interface.
func (e *IOError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("ft: %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("ft: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
