package ft

import (
	"bufio"
	"bytes"
	"errors"
	"io"
	"iter"
)

// MaxEntryLength bounds a single listing line.
const MaxEntryLength = 64 * 1024

// DirectoryEntry is one name from a directory listing.
type DirectoryEntry string

// ListingReceiver reads a newline-delimited directory listing terminated by
// the "~done" sentinel.
type ListingReceiver struct {
	r        *bufio.Reader
	received int
	consumed bool
}

// NewListingReceiver returns a receiver reading entries from r.
func NewListingReceiver(r io.Reader) *ListingReceiver {
	return &ListingReceiver{r: bufio.NewReaderSize(r, MaxEntryLength)}
}

// Received returns the number of entries delivered so far.
func (l *ListingReceiver) Received() int {
	return l.received
}

// Entries returns the listing as a lazy sequence. Each entry is yielded as
// soon as its line is decoded; blank lines are skipped; the sentinel ends
// the sequence and is never yielded. If the connection closes first, the final pair carries a
// *TruncatedListingError. The sequence consumes the connection and can be
// ranged over only once.
//
//	for entry, err := range ft.NewListingReceiver(conn).Entries() {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Println(entry)
//	}
func (l *ListingReceiver) Entries() iter.Seq2[DirectoryEntry, error] {
	return func(yield func(DirectoryEntry, error) bool) {
		if l.consumed {
			yield("", &ProtocolError{Op: "read listing", Err: errors.New("listing already consumed")})
			return
		}
		l.consumed = true

		for {
			line, err := l.readLine()
			if err != nil && !errors.Is(err, io.EOF) {
				if errors.Is(err, bufio.ErrBufferFull) {
					yield("", &ProtocolError{Op: "read entry", Err: err})
					return
				}
				yield("", &TruncatedListingError{Received: l.received, Err: err})
				return
			}

			// Blank lines carry no name. A final line without a newline
			// still counts.
			if line != "" {
				if IsListingSentinel(line) {
					return
				}
				l.received++
				if !yield(DirectoryEntry(line), nil) {
					return
				}
			}

			if err != nil {
				yield("", &TruncatedListingError{Received: l.received, Err: io.ErrUnexpectedEOF})
				return
			}
		}
	}
}

// readLine returns the next line with its terminator and any trailing
// NUL padding removed. At end of stream it returns the partial line along
// with io.EOF.
func (l *ListingReceiver) readLine() (string, error) {
	raw, err := l.r.ReadSlice('\n')
	raw = bytes.TrimRight(raw, "\r\n\x00")
	return string(raw), err
}
