package ft

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Wire tokens.
const (
	listToken     = "-l"
	listSentinel  = "~done"
	codeDirectory = "dir"
	codeFile      = "fil"
	codeNotFound  = "nof"
	codeUnknown   = "unk"

	// DefaultResponseCodeWidth is the number of bytes read from the data
	// connection for the response code.
	DefaultResponseCodeWidth = 3
)

// Request is the single request a session sends. It is either
// ListDirectory or FetchFile; no other implementations exist.
type Request interface {
	// token returns the wire form of the request.
	token() string
	String() string
}

// ListDirectory asks the server for a listing of its working directory.
type ListDirectory struct{}

func (ListDirectory) token() string  { return listToken }
func (ListDirectory) String() string { return "list" }

// FetchFile asks the server for the contents of Name.
type FetchFile struct {
	Name string
}

func (r FetchFile) token() string  { return r.Name }
func (r FetchFile) String() string { return "fetch " + r.Name }

// ParseRequest builds a Request from the mutually exclusive -l / -g pair.
func ParseRequest(list bool, name string) (Request, error) {
	switch {
	case list && name != "":
		return nil, fmt.Errorf("%w: -l and -g are mutually exclusive", ErrInvalidRequest)
	case list:
		return ListDirectory{}, nil
	case name == "":
		return nil, fmt.Errorf("%w: one of -l or -g <name> is required", ErrInvalidRequest)
	case name == listToken:
		return nil, fmt.Errorf("%w: file name %q is reserved", ErrInvalidRequest, name)
	case !isBaseName(name):
		return nil, fmt.Errorf("%w: file name %q must be a plain name without path separators", ErrInvalidRequest, name)
	}
	return FetchFile{Name: name}, nil
}

// isBaseName reports whether name names a file directly inside a
// directory: no separators of either kind, no NUL, not "." or "..".
func isBaseName(name string) bool {
	return name != "" && name != "." && name != ".." && !strings.ContainsAny(name, "/\\\x00")
}

// EncodeRequest returns the bytes sent on the control connection for req.
// There is no length prefix and no delimiter.
func EncodeRequest(req Request) []byte {
	return []byte(req.token())
}

// ResponseCode is the reply kind announced at the start of the data
// connection.
type ResponseCode int

const (
	Unknown ResponseCode = iota
	Directory
	File
	NotFound
)

// String returns the wire token of the code.
func (c ResponseCode) String() string {
	switch c {
	case Directory:
		return codeDirectory
	case File:
		return codeFile
	case NotFound:
		return codeNotFound
	default:
		return codeUnknown
	}
}

// DecodeResponseCode maps a raw response code to a ResponseCode.
// Trailing NUL and whitespace padding is ignored. Unrecognized tokens decode
// to Unknown. An empty token means the server closed the connection before
// sending one and yields a ProtocolError.
func DecodeResponseCode(raw []byte) (ResponseCode, error) {
	tok := string(bytes.TrimRight(raw, "\x00 \t\r\n"))
	switch tok {
	case "":
		return Unknown, &ProtocolError{Op: "decode response code", Raw: string(raw), Err: io.ErrUnexpectedEOF}
	case codeDirectory:
		return Directory, nil
	case codeFile:
		return File, nil
	case codeNotFound:
		return NotFound, nil
	default:
		return Unknown, nil
	}
}

// IsListingSentinel reports whether token marks the end of a listing.
// An entry literally named "~done" is indistinguishable from the sentinel.
func IsListingSentinel(token string) bool {
	return token == listSentinel
}

// readResponseCode reads width bytes from r and decodes them. A short read
// after at least one byte is decoded as received.
func readResponseCode(r io.Reader, width int) (ResponseCode, error) {
	if width <= 0 {
		width = DefaultResponseCodeWidth
	}
	buf := make([]byte, width)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		if errors.Is(err, io.EOF) {
			return Unknown, &ProtocolError{Op: "read response code", Err: io.ErrUnexpectedEOF}
		}
		return Unknown, &ProtocolError{Op: "read response code", Err: err}
	}
	return DecodeResponseCode(buf[:n])
}
