package ft

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ftxfer/ft/internal/ratelimit"
)

// DefaultChunkSize is the read size used while receiving a file.
const DefaultChunkSize = 32 * 1024

// NameResolver supplies a replacement for a local file name that already
// exists. It is called again for as long as the returned name collides.
type NameResolver func(existing string) (string, error)

// StdinResolver returns a NameResolver that prompts on out and reads the
// new name from in, one line per call.
func StdinResolver(in io.Reader, out io.Writer) NameResolver {
	br := bufio.NewReader(in)
	return func(existing string) (string, error) {
		fmt.Fprintf(out, "File %q already exists. Enter a new name: ", existing)
		line, err := br.ReadString('\n')
		if err != nil && (line == "" || !errors.Is(err, io.EOF)) {
			return "", err
		}
		return strings.TrimSpace(line), nil
	}
}

// FileReceiver writes a fetched file's payload to local disk.
type FileReceiver struct {
	dir        string
	chunkSize  int
	maxRenames int
	limiter    *ratelimit.Limiter
	progress   func(int64)
	logger     *slog.Logger
}

// NewFileReceiver returns a receiver that stores files in dir ("" means the
// working directory).
func NewFileReceiver(dir string) *FileReceiver {
	return &FileReceiver{
		dir:       dir,
		chunkSize: DefaultChunkSize,
		logger:    discardLogger(),
	}
}

// Receive stores everything read from r until end of stream in a new local
// file named targetName, or in the name resolve picks when targetName is
// taken. An existing file is never overwritten or appended to. It returns
// the path written and the number of bytes stored; on failure the partial
// file is left in place.
func (f *FileReceiver) Receive(targetName string, r io.Reader, resolve NameResolver) (path string, written int64, err error) {
	file, path, err := f.create(targetName, resolve)
	if err != nil {
		return "", 0, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = &IOError{Op: "close", Path: path, Err: cerr}
		}
	}()

	f.logger.Debug("receiving file",
		"path", path,
		"chunk_size", f.chunkSize,
		"bandwidth_limit", f.limiter.Rate(),
	)

	dst := ratelimit.NewWriter(file, f.limiter)
	buf := make([]byte, f.chunkSize)
	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			if werr := writeFull(dst, buf[:n]); werr != nil {
				return path, written, &IOError{Op: "write", Path: path, Err: werr}
			}
			written += int64(n)
			if f.progress != nil {
				f.progress(written)
			}
		}
		if errors.Is(rerr, io.EOF) {
			return path, written, nil
		}
		if rerr != nil {
			return path, written, &ProtocolError{Op: "read file data", Err: rerr}
		}
	}
}

// create resolves a free name and opens it exclusively. A file appearing
// between the existence check and the open counts as another collision.
func (f *FileReceiver) create(name string, resolve NameResolver) (*os.File, string, error) {
	attempts := 0
	for {
		if !isBaseName(name) {
			return nil, name, &IOError{Op: "create", Path: name, Err: ErrUnsafeName}
		}
		path := filepath.Join(f.dir, name)

		_, err := os.Lstat(path)
		switch {
		case err == nil:
			// taken
		case errors.Is(err, fs.ErrNotExist):
			file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0o644)
			if err == nil {
				return file, path, nil
			}
			if !errors.Is(err, fs.ErrExist) {
				return nil, path, &IOError{Op: "create", Path: path, Err: err}
			}
		default:
			return nil, path, &IOError{Op: "stat", Path: path, Err: err}
		}

		f.logger.Debug("local file exists", "path", path, "attempt", attempts)

		if resolve == nil {
			return nil, path, &IOError{Op: "create", Path: path, Err: fs.ErrExist}
		}
		if f.maxRenames > 0 && attempts >= f.maxRenames {
			return nil, path, &IOError{Op: "resolve name", Path: path, Err: ErrTooManyRenames}
		}
		attempts++

		next, err := resolve(name)
		if err != nil {
			return nil, path, &IOError{Op: "resolve name", Path: path, Err: err}
		}
		next = strings.TrimSpace(next)
		if next == "" {
			return nil, path, &IOError{Op: "resolve name", Path: path, Err: ErrNoName}
		}
		name = next
	}
}
