package ft

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrSessionUsed is returned by Run when the session already ran. A
// session performs exactly one request/response cycle.
var ErrSessionUsed = errors.New("ft: session already used")

// State is a step of the session's protocol run.
type State int

const (
	StateIdle State = iota
	StateControlConnected
	StateRequestSent
	StateListenerBound
	StatePortAnnounced
	StateAwaitingDataConn
	StateResponseReceived
	StateListingInProgress
	StateFileInProgress
	StateNotFound
	StateUnknownResponse
	StateClosed
)

var stateNames = [...]string{
	StateIdle:              "idle",
	StateControlConnected:  "control_connected",
	StateRequestSent:       "request_sent",
	StateListenerBound:     "listener_bound",
	StatePortAnnounced:     "port_announced",
	StateAwaitingDataConn:  "awaiting_data_conn",
	StateResponseReceived:  "response_received",
	StateListingInProgress: "listing_in_progress",
	StateFileInProgress:    "file_in_progress",
	StateNotFound:          "not_found",
	StateUnknownResponse:   "unknown_response",
	StateClosed:            "closed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Result is the terminal outcome of a session. Exactly one of the
// listing, file, not-found or unknown outcomes applies, selected by Code.
type Result struct {
	// Code is the response code the server sent
	Code ResponseCode

	// Entries is the number of listing entries delivered (Directory)
	Entries int

	// LocalPath is where the fetched file was written (File)
	LocalPath string

	// Bytes is the size of the fetched file (File)
	Bytes int64

	// Duration covers the whole run, connect to close
	Duration time.Duration
}

// Outcome returns a human-readable notice for the result.
func (r *Result) Outcome() string {
	switch r.Code {
	case Directory:
		return fmt.Sprintf("listing complete: %d entries", r.Entries)
	case File:
		return fmt.Sprintf("transfer complete: %s (%d bytes)", r.LocalPath, r.Bytes)
	case NotFound:
		return "file not found on server"
	default:
		return "server sent an unknown response"
	}
}

// Session runs one request against a server: it connects the control
// channel, sends the request, opens the data listener, announces its port,
// accepts the server's data connection and consumes the reply.
//
// A Session is immutable once built and runs only once.
type Session struct {
	// addr is the server's control address ("host:port")
	addr string

	id        string
	logger    *slog.Logger
	timeout   time.Duration
	dialer    Dialer
	proxyAddr string

	dataPort  int
	codeWidth int
	delimiter []byte

	files   FileReceiver
	resolve NameResolver
	onEntry func(DirectoryEntry)
	onState func(State)

	mu    sync.Mutex
	state State
	used  bool
}

// NewSession prepares a session against the server at addr, which must be
// in the form "host:port". No connection is made until Run.
//
// Example:
//
//	s, err := ft.NewSession("flip1.engr.oregonstate.edu:30021",
//	    ft.WithDataPort(30020),
//	    ft.WithEntryHandler(func(e ft.DirectoryEntry) { fmt.Println(e) }),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	res, err := s.Run(ctx, ft.ListDirectory{})
func NewSession(addr string, options ...Option) (*Session, error) {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return nil, fmt.Errorf("invalid address: %w", err)
	}

	s := &Session{
		addr:      addr,
		id:        uuid.NewString(),
		logger:    discardLogger(),
		codeWidth: DefaultResponseCodeWidth,
		files:     *NewFileReceiver(""),
	}

	for _, opt := range options {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if s.dialer == nil {
		if s.proxyAddr != "" {
			d, err := socks5Dialer(s.proxyAddr, s.timeout)
			if err != nil {
				return nil, err
			}
			s.dialer = d
		} else {
			s.dialer = &net.Dialer{Timeout: s.timeout, Control: userTimeoutControl(s.timeout)}
		}
	}

	s.logger = s.logger.With("session_id", s.id)
	s.files.logger = s.logger

	return s, nil
}

// ID returns the session's identifier as used in log records.
func (s *Session) ID() string {
	return s.id
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()

	s.logger.Debug("session state", "state", st.String())
	if s.onState != nil {
		s.onState(st)
	}
}

// Run performs the request/response cycle. Every connection and listener
// opened is released before Run returns, whatever the outcome.
//
// Errors are one of *ConnectError, *BindError, *ProtocolError,
// *TruncatedListingError or *IOError, possibly joined with ctx's error
// when the context ended the run. A truncated listing also returns the
// Result so the caller knows how many entries were delivered. A NotFound
// or Unknown response is not an error.
func (s *Session) Run(ctx context.Context, req Request) (res *Result, err error) {
	s.mu.Lock()
	if s.used {
		s.mu.Unlock()
		return nil, ErrSessionUsed
	}
	s.used = true
	s.mu.Unlock()

	if req == nil {
		return nil, fmt.Errorf("%w: nil request", ErrInvalidRequest)
	}
	if fetch, ok := req.(FetchFile); ok {
		if _, err := ParseRequest(false, fetch.Name); err != nil {
			return nil, err
		}
	}

	start := time.Now()
	s.setState(StateIdle)
	defer func() {
		s.setState(StateClosed)
		if res != nil {
			res.Duration = time.Since(start)
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
				err = errors.Join(ctxErr, err)
			}
			s.logger.Debug("session failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
			return
		}
		s.logger.Debug("session complete",
			"code", res.Code.String(),
			"duration_ms", res.Duration.Milliseconds(),
		)
	}()

	ctrl, err := openControl(ctx, s.dialer, s.addr, s.timeout, s.logger)
	if err != nil {
		return nil, err
	}
	ctrl.delimiter = s.delimiter
	defer ctrl.Close()
	stopCtrl := context.AfterFunc(ctx, func() { _ = ctrl.Close() })
	defer stopCtrl()
	s.setState(StateControlConnected)

	if err := ctrl.sendRequest(req); err != nil {
		return nil, err
	}
	s.setState(StateRequestSent)

	data, err := bindData(ctx, s.dataPort, s.timeout, s.logger)
	if err != nil {
		return nil, err
	}
	defer data.Close()
	stopData := context.AfterFunc(ctx, func() { _ = data.Close() })
	defer stopData()
	s.setState(StateListenerBound)

	if err := ctrl.announceDataPort(data.Port()); err != nil {
		return nil, err
	}
	s.setState(StatePortAnnounced)

	s.setState(StateAwaitingDataConn)
	conn, err := data.acceptOnce(ctx)
	if err != nil {
		return nil, err
	}

	code, err := readResponseCode(conn, s.codeWidth)
	if err != nil {
		return nil, err
	}
	s.setState(StateResponseReceived)
	s.logger.Debug("response code received", "code", code.String())

	res = &Result{Code: code}
	switch code {
	case Directory:
		s.setState(StateListingInProgress)
		n, err := s.receiveListing(conn)
		res.Entries = n
		if err != nil {
			return res, err
		}
	case File:
		fetch, ok := req.(FetchFile)
		if !ok {
			return nil, &ProtocolError{Op: "dispatch response", Raw: code.String(), Err: errors.New("file reply to a listing request")}
		}
		s.setState(StateFileInProgress)
		path, n, err := s.files.Receive(fetch.Name, conn, s.resolve)
		if err != nil {
			return nil, err
		}
		res.LocalPath, res.Bytes = path, n
		s.logger.Debug("file received", "path", path, "bytes", n)
	case NotFound:
		s.setState(StateNotFound)
	default:
		s.setState(StateUnknownResponse)
	}

	return res, nil
}

// receiveListing hands every entry to the entry handler as it arrives.
func (s *Session) receiveListing(conn net.Conn) (int, error) {
	lr := NewListingReceiver(conn)
	for entry, err := range lr.Entries() {
		if err != nil {
			return lr.Received(), err
		}
		if s.onEntry != nil {
			s.onEntry(entry)
		}
	}
	s.logger.Debug("listing received", "entries", lr.Received())
	return lr.Received(), nil
}
