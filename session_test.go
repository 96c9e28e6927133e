package ft

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// mockServer plays the server side of one session: it reads the request
// and the data port from the control connection, connects back, and lets
// reply write the data connection.
type mockServer struct {
	t    *testing.T
	ln   net.Listener
	want string

	// reply writes the server's answer; nil closes the data connection
	// without writing anything
	reply func(data net.Conn)

	// skipDial leaves the announced port alone
	skipDial bool

	mu      sync.Mutex
	request string
	port    int
	done    chan struct{}
}

func newMockServer(t *testing.T, want string, reply func(data net.Conn)) *mockServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("mock server listen: %v", err)
	}
	m := &mockServer{t: t, ln: ln, want: want, reply: reply, done: make(chan struct{})}
	t.Cleanup(func() {
		ln.Close()
		<-m.done
	})
	go m.serve()
	return m
}

func (m *mockServer) Addr() string {
	return m.ln.Addr().String()
}

func (m *mockServer) serve() {
	defer close(m.done)
	ctrl, err := m.ln.Accept()
	if err != nil {
		return
	}
	defer ctrl.Close()

	request, port, err := readControl(ctrl, len(m.want))
	if err != nil {
		// A client that fails before announcing closes the connection early.
		if !m.skipDial {
			m.t.Errorf("mock server: %v", err)
		}
		return
	}
	m.mu.Lock()
	m.request, m.port = request, port
	m.mu.Unlock()

	if m.skipDial {
		// Hold the control connection until the client gives up.
		_, _ = io.Copy(io.Discard, ctrl)
		return
	}

	data, err := net.DialTimeout("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)), time.Second)
	if err != nil {
		m.t.Errorf("mock server: connect back to %d: %v", port, err)
		return
	}
	defer data.Close()
	if m.reply != nil {
		m.reply(data)
	}
}

// Received returns the request token and the announced port.
func (m *mockServer) Received() (string, int) {
	<-m.done
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.request, m.port
}

// readControl reads the request token of known length followed by the
// port digits. Each token arrives in one write; the port is complete once
// the client pauses.
func readControl(conn net.Conn, reqLen int) (string, int, error) {
	var buf []byte
	chunk := make([]byte, 64)
	for len(buf) <= reqLen {
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			return "", 0, err
		}
	}
	for {
		_ = conn.SetReadDeadline(time.Now().Add(20 * time.Millisecond))
		n, err := conn.Read(chunk)
		buf = append(buf, chunk[:n]...)
		if err != nil {
			break
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	port, err := strconv.Atoi(string(buf[reqLen:]))
	if err != nil {
		return "", 0, err
	}
	return string(buf[:reqLen]), port, nil
}

func writeString(data net.Conn, s string) {
	_, _ = io.WriteString(data, s)
}

func TestSession_ListDirectory(t *testing.T) {
	t.Parallel()
	m := newMockServer(t, "-l", func(data net.Conn) {
		writeString(data, "dir")
		writeString(data, "a.txt\n")
		writeString(data, "b.txt\n~done\n")
	})

	var entries []string
	s, err := NewSession(m.Addr(), WithTimeout(5*time.Second), WithEntryHandler(func(e DirectoryEntry) {
		entries = append(entries, string(e))
	}))
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Run(context.Background(), ListDirectory{})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Code != Directory || res.Entries != 2 {
		t.Errorf("result = %+v", res)
	}
	if !slices.Equal(entries, []string{"a.txt", "b.txt"}) {
		t.Errorf("entries = %q", entries)
	}
	if res.Outcome() != "listing complete: 2 entries" {
		t.Errorf("Outcome() = %q", res.Outcome())
	}

	request, port := m.Received()
	if request != "-l" {
		t.Errorf("request = %q, want -l", request)
	}
	if port == 0 {
		t.Error("announced port 0")
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
}

func TestSession_FetchFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	payload := bytes.Repeat([]byte{0, 1, 2, 'h', 'i', '\n'}, 5000)

	m := newMockServer(t, "a.txt", func(data net.Conn) {
		writeString(data, "fil")
		_, _ = data.Write(payload)
	})

	var progress int64
	s, err := NewSession(m.Addr(),
		WithDownloadDir(dir),
		WithChunkSize(1024),
		WithProgress(func(n int64) { progress = n }),
	)
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Run(context.Background(), FetchFile{Name: "a.txt"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.Code != File || res.Bytes != int64(len(payload)) {
		t.Errorf("result = %+v", res)
	}
	if res.LocalPath != filepath.Join(dir, "a.txt") {
		t.Errorf("LocalPath = %q", res.LocalPath)
	}
	if progress != int64(len(payload)) {
		t.Errorf("progress = %d", progress)
	}
	got, err := os.ReadFile(res.LocalPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(got, payload) {
		t.Error("stored file differs from the payload")
	}
	if request, _ := m.Received(); request != "a.txt" {
		t.Errorf("request = %q", request)
	}
}

func TestSession_FetchCollision(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("local"), 0o644); err != nil {
		t.Fatal(err)
	}

	m := newMockServer(t, "a.txt", func(data net.Conn) {
		writeString(data, "filremote")
	})

	var prompt bytes.Buffer
	s, err := NewSession(m.Addr(),
		WithDownloadDir(dir),
		WithNameResolver(StdinResolver(strings.NewReader("b.txt\n"), &prompt)),
	)
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Run(context.Background(), FetchFile{Name: "a.txt"})
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if res.LocalPath != filepath.Join(dir, "b.txt") {
		t.Errorf("LocalPath = %q", res.LocalPath)
	}
	if prompt.Len() == 0 {
		t.Error("user was not prompted")
	}
	for name, want := range map[string]string{"a.txt": "local", "b.txt": "remote"} {
		got, _ := os.ReadFile(filepath.Join(dir, name))
		if string(got) != want {
			t.Errorf("%s = %q, want %q", name, got, want)
		}
	}
}

func TestSession_NonFileOutcomes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		reply     string
		want      ResponseCode
		wantState State
		outcome   string
	}{
		{"not found", "nof", NotFound, StateNotFound, "file not found on server"},
		{"unknown", "unk", Unknown, StateUnknownResponse, "server sent an unknown response"},
		{"unrecognized", "xyz", Unknown, StateUnknownResponse, "server sent an unknown response"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			m := newMockServer(t, "missing.txt", func(data net.Conn) {
				writeString(data, tt.reply)
			})

			var states []State
			s, err := NewSession(m.Addr(),
				WithDownloadDir(dir),
				WithStateHook(func(st State) { states = append(states, st) }),
			)
			if err != nil {
				t.Fatal(err)
			}

			res, err := s.Run(context.Background(), FetchFile{Name: "missing.txt"})
			if err != nil {
				t.Fatalf("Run() error: %v", err)
			}
			if res.Code != tt.want {
				t.Errorf("Code = %v, want %v", res.Code, tt.want)
			}
			if res.Outcome() != tt.outcome {
				t.Errorf("Outcome() = %q", res.Outcome())
			}
			if !slices.Contains(states, tt.wantState) {
				t.Errorf("states %v do not include %v", states, tt.wantState)
			}

			// No local file is created.
			if files, _ := os.ReadDir(dir); len(files) != 0 {
				t.Errorf("download dir has %d files, want 0", len(files))
			}
		})
	}
}

func TestSession_StateOrder(t *testing.T) {
	t.Parallel()
	m := newMockServer(t, "-l", func(data net.Conn) {
		writeString(data, "dir~done\n")
	})

	var states []State
	s, err := NewSession(m.Addr(), WithStateHook(func(st State) { states = append(states, st) }))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), ListDirectory{}); err != nil {
		t.Fatal(err)
	}

	want := []State{
		StateIdle,
		StateControlConnected,
		StateRequestSent,
		StateListenerBound,
		StatePortAnnounced,
		StateAwaitingDataConn,
		StateResponseReceived,
		StateListingInProgress,
		StateClosed,
	}
	if !slices.Equal(states, want) {
		t.Errorf("states = %v\nwant     %v", states, want)
	}
}

func TestSession_FixedDataPort(t *testing.T) {
	t.Parallel()

	// Find a free port for the data listener.
	free, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	dataPort := free.Addr().(*net.TCPAddr).Port
	free.Close()

	m := newMockServer(t, "-l", func(data net.Conn) {
		writeString(data, "dir~done\n")
	})
	s, err := NewSession(m.Addr(), WithDataPort(dataPort))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), ListDirectory{}); err != nil {
		t.Fatal(err)
	}
	if _, port := m.Received(); port != dataPort {
		t.Errorf("announced port = %d, want %d", port, dataPort)
	}
}

func TestSession_PaddedResponseCode(t *testing.T) {
	t.Parallel()
	m := newMockServer(t, "-l", func(data net.Conn) {
		writeString(data, "dir\x00\x00\x00\x00\x00")
		writeString(data, "a.txt\n~done\n")
	})

	var entries []string
	s, err := NewSession(m.Addr(),
		WithResponseCodeWidth(8),
		WithEntryHandler(func(e DirectoryEntry) { entries = append(entries, string(e)) }),
	)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), ListDirectory{}); err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(entries, []string{"a.txt"}) {
		t.Errorf("entries = %q", entries)
	}
}

func TestSession_ProtocolErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		req   Request
		reply func(net.Conn)
	}{
		{name: "closed before response code", req: ListDirectory{}, reply: nil},
		{name: "file reply to listing", req: ListDirectory{}, reply: func(c net.Conn) { writeString(c, "filbytes") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := newMockServer(t, string(EncodeRequest(tt.req)), tt.reply)
			s, err := NewSession(m.Addr())
			if err != nil {
				t.Fatal(err)
			}
			_, err = s.Run(context.Background(), tt.req)
			var pe *ProtocolError
			if !errors.As(err, &pe) {
				t.Fatalf("Run() error = %v, want *ProtocolError", err)
			}
		})
	}
}

func TestSession_TruncatedListing(t *testing.T) {
	t.Parallel()
	m := newMockServer(t, "-l", func(data net.Conn) {
		writeString(data, "dira.txt\nb.txt\n")
	})

	var entries []string
	s, err := NewSession(m.Addr(), WithEntryHandler(func(e DirectoryEntry) { entries = append(entries, string(e)) }))
	if err != nil {
		t.Fatal(err)
	}

	res, err := s.Run(context.Background(), ListDirectory{})
	var te *TruncatedListingError
	if !errors.As(err, &te) {
		t.Fatalf("Run() error = %v, want *TruncatedListingError", err)
	}
	if te.Received != 2 || res == nil || res.Entries != 2 {
		t.Fatalf("Received = %d, result = %+v", te.Received, res)
	}
	if res.Duration <= 0 {
		t.Errorf("Duration = %v, want the run time", res.Duration)
	}
	if !slices.Equal(entries, []string{"a.txt", "b.txt"}) {
		t.Errorf("entries = %q", entries)
	}
}

func TestSession_ConnectError(t *testing.T) {
	t.Parallel()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	var states []State
	s, err := NewSession(addr, WithStateHook(func(st State) { states = append(states, st) }))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Run(context.Background(), ListDirectory{})
	var ce *ConnectError
	if !errors.As(err, &ce) {
		t.Fatalf("Run() error = %v, want *ConnectError", err)
	}
	if slices.Contains(states, StateListenerBound) {
		t.Error("data listener was bound after a failed connect")
	}
}

func TestSession_BindError(t *testing.T) {
	t.Parallel()
	busy, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatal(err)
	}
	defer busy.Close()
	port := busy.Addr().(*net.TCPAddr).Port

	m := newMockServer(t, "-l", nil)
	m.skipDial = true

	s, err := NewSession(m.Addr(), WithDataPort(port))
	if err != nil {
		t.Fatal(err)
	}
	_, err = s.Run(context.Background(), ListDirectory{})
	var be *BindError
	if !errors.As(err, &be) {
		t.Fatalf("Run() error = %v, want *BindError", err)
	}
}

func TestSession_ContextCancelWhileAwaiting(t *testing.T) {
	t.Parallel()
	m := newMockServer(t, "-l", nil)
	m.skipDial = true

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s, err := NewSession(m.Addr(), WithStateHook(func(st State) {
		if st == StateAwaitingDataConn {
			time.AfterFunc(50*time.Millisecond, cancel)
		}
	}))
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.Run(ctx, ListDirectory{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if s.State() != StateClosed {
		t.Errorf("State() = %v, want closed", s.State())
	}
}

func TestSession_RunOnce(t *testing.T) {
	t.Parallel()
	m := newMockServer(t, "-l", func(data net.Conn) {
		writeString(data, "nof")
	})
	s, err := NewSession(m.Addr())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), ListDirectory{}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), ListDirectory{}); !errors.Is(err, ErrSessionUsed) {
		t.Errorf("second Run() error = %v, want ErrSessionUsed", err)
	}
}

func TestSession_Logging(t *testing.T) {
	t.Parallel()
	m := newMockServer(t, "-l", func(data net.Conn) {
		writeString(data, "dir~done\n")
	})

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s, err := NewSession(m.Addr(), WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Run(context.Background(), ListDirectory{}); err != nil {
		t.Fatal(err)
	}

	out := buf.String()
	for _, want := range []string{"session_id=" + s.ID(), "state=port_announced", "code=dir"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q", want)
		}
	}
}

func TestSession_RejectsUnsafeFetchName(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	for _, name := range []string{"../escape.txt", "sub/escape.txt", "..", "-l"} {
		// Nothing listens on port 1; the name must be refused before dialing.
		s, err := NewSession("127.0.0.1:1", WithDownloadDir(dir))
		if err != nil {
			t.Fatal(err)
		}
		_, err = s.Run(context.Background(), FetchFile{Name: name})
		if !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Run(%q) error = %v, want ErrInvalidRequest", name, err)
		}
		var ce *ConnectError
		if errors.As(err, &ce) {
			t.Errorf("Run(%q) dialed the server: %v", name, err)
		}
	}
}
