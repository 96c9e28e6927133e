package server

import (
	"io"
)

// Driver is the storage backend behind the server. Implementations decide
// what a listing contains and which names can be fetched.
//
// Error handling:
//   - Return os.ErrNotExist when a file doesn't exist; the client is sent "nof"
//   - Any other error is reported to the client as "unk"
type Driver interface {
	// ListDir returns the names in the served directory, in listing order.
	ListDir() ([]string, error)

	// Open opens name for reading. Directories must be rejected.
	Open(name string) (io.ReadCloser, error)
}
