package ft

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"golang.org/x/net/proxy"

	"github.com/ftxfer/ft/internal/ratelimit"
)

// Option is a functional option for configuring a Session.
type Option func(*Session) error

// discardLogger is the default: nothing is logged unless WithLogger is used.
func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// WithLogger enables debug logging using the provided logger.
// Every state transition and protocol step is logged at debug level.
//
// Example:
//
//	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	}))
//	s, _ := ft.NewSession("flip1:30021", ft.WithLogger(logger))
func WithLogger(logger *slog.Logger) Option {
	return func(s *Session) error {
		if logger == nil {
			return fmt.Errorf("logger must not be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithTimeout bounds the connect, accept and every read or write. The
// default of zero blocks indefinitely.
func WithTimeout(timeout time.Duration) Option {
	return func(s *Session) error {
		if timeout < 0 {
			return fmt.Errorf("timeout must not be negative")
		}
		s.timeout = timeout
		return nil
	}
}

// WithDialer sets a custom dialer for the control connection.
func WithDialer(dialer Dialer) Option {
	return func(s *Session) error {
		if dialer == nil {
			return fmt.Errorf("dialer must not be nil")
		}
		s.dialer = dialer
		return nil
	}
}

// WithSOCKS5Proxy dials the control connection through the SOCKS5 proxy
// at addr. The data connection is still accepted locally, so the server
// must be able to reach this host directly.
func WithSOCKS5Proxy(addr string) Option {
	return func(s *Session) error {
		if addr == "" {
			return fmt.Errorf("socks5 proxy address must not be empty")
		}
		s.proxyAddr = addr
		return nil
	}
}

// socks5Dialer builds the proxy dialer once the timeout is known.
func socks5Dialer(addr string, timeout time.Duration) (Dialer, error) {
	d, err := proxy.SOCKS5("tcp", addr, nil, &net.Dialer{Timeout: timeout, Control: userTimeoutControl(timeout)})
	if err != nil {
		return nil, fmt.Errorf("socks5 proxy %s: %w", addr, err)
	}
	cd, ok := d.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 proxy %s: dialer does not support contexts", addr)
	}
	return cd, nil
}

// WithDataPort sets the local port the server connects back to.
// Port 0 lets the system choose one.
func WithDataPort(port int) Option {
	return func(s *Session) error {
		if port < 0 || port > 65535 {
			return fmt.Errorf("data port %d out of range", port)
		}
		s.dataPort = port
		return nil
	}
}

// WithResponseCodeWidth sets how many bytes the response code occupies on
// the data connection. Use it for servers that pad the code.
func WithResponseCodeWidth(width int) Option {
	return func(s *Session) error {
		if width < len(codeDirectory) {
			return fmt.Errorf("response code width %d is shorter than a code", width)
		}
		s.codeWidth = width
		return nil
	}
}

// WithTokenDelimiter appends delim after each token written on the control
// connection. Off by default; the server must be configured to match.
func WithTokenDelimiter(delim byte) Option {
	return func(s *Session) error {
		s.delimiter = []byte{delim}
		return nil
	}
}

// WithDownloadDir stores fetched files in dir instead of the working
// directory.
func WithDownloadDir(dir string) Option {
	return func(s *Session) error {
		s.files.dir = dir
		return nil
	}
}

// WithChunkSize sets the read size used while receiving a file.
func WithChunkSize(n int) Option {
	return func(s *Session) error {
		if n <= 0 {
			return fmt.Errorf("chunk size must be positive")
		}
		s.files.chunkSize = n
		return nil
	}
}

// WithMaxRenameAttempts bounds how often the name resolver is consulted
// for one file. Zero, the default, keeps asking until a free name is given.
func WithMaxRenameAttempts(n int) Option {
	return func(s *Session) error {
		if n < 0 {
			return fmt.Errorf("max rename attempts must not be negative")
		}
		s.files.maxRenames = n
		return nil
	}
}

// WithBandwidthLimit caps the rate at which a fetched file is written to
// disk, in bytes per second. Zero means unlimited.
func WithBandwidthLimit(bytesPerSecond int64) Option {
	return func(s *Session) error {
		s.files.limiter = ratelimit.New(bytesPerSecond)
		return nil
	}
}

// WithProgress registers a callback invoked with the running byte count
// after every chunk of a fetched file.
func WithProgress(fn func(bytesTransferred int64)) Option {
	return func(s *Session) error {
		s.files.progress = fn
		return nil
	}
}

// WithEntryHandler registers the callback that receives each listing
// entry as soon as it arrives.
func WithEntryHandler(fn func(DirectoryEntry)) Option {
	return func(s *Session) error {
		s.onEntry = fn
		return nil
	}
}

// WithNameResolver sets the collaborator asked for a new name when a
// fetched file already exists locally. Without one, a collision fails the
// fetch.
func WithNameResolver(resolve NameResolver) Option {
	return func(s *Session) error {
		s.resolve = resolve
		return nil
	}
}

// WithStateHook registers a callback invoked on every state transition.
func WithStateHook(fn func(State)) Option {
	return func(s *Session) error {
		s.onState = fn
		return nil
	}
}
