package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ftxfer/ft/internal/ratelimit"
)

// MaxTokenLength is the maximum length of a control token.
const MaxTokenLength = 4096

const (
	listToken    = "-l"
	listSentinel = "~done"
)

// session serves a single control connection.
type session struct {
	server *Server
	conn   net.Conn
	reader *bufio.Reader

	sessionID string
	remoteIP  string
}

func newSession(s *Server, conn net.Conn) *session {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}
	return &session{
		server:    s,
		conn:      conn,
		reader:    bufio.NewReaderSize(conn, MaxTokenLength),
		sessionID: uuid.NewString(),
		remoteIP:  host,
	}
}

func (s *session) serve() {
	logger := s.server.logger.With("session_id", s.sessionID, "remote_ip", s.remoteIP)
	logger.Debug("control connection accepted")

	req, err := s.readToken()
	if err != nil {
		logger.Warn("read request failed", "error", err)
		return
	}

	portTok, err := s.readToken()
	if err != nil {
		logger.Warn("read data port failed", "request", req, "error", err)
		return
	}
	port, err := strconv.Atoi(strings.TrimSpace(portTok))
	if err != nil || port < 1 || port > 65535 {
		logger.Warn("invalid data port", "request", req, "port", portTok)
		return
	}

	logger.Debug("request received", "request", req, "data_port", port)

	ctx := context.Background()
	dataAddr := net.JoinHostPort(s.remoteIP, strconv.Itoa(port))
	dataConn, err := s.server.dialer.DialContext(ctx, "tcp", dataAddr)
	if err != nil {
		logger.Warn("data connection failed", "addr", dataAddr, "error", err)
		return
	}
	defer dataConn.Close()
	// Shutdown closes the data connection along with the control one.
	if !s.server.trackConnection(dataConn, true) {
		logger.Debug("data connection dropped during shutdown", "addr", dataAddr)
		return
	}
	defer s.server.trackConnection(dataConn, false)

	w := s.dataWriter(dataConn)
	start := time.Now()

	var kind, code string
	var n int64
	if req == listToken {
		kind = "list"
		code, n, err = s.sendListing(w)
	} else {
		kind = "fetch"
		code, n, err = s.sendFile(w, req)
	}
	duration := time.Since(start)

	if err != nil {
		logger.Warn("transfer_failed",
			"operation", kind,
			"code", code,
			"bytes", n,
			"error", err,
		)
		return
	}

	throughputMBps := float64(0)
	if duration.Seconds() > 0 {
		throughputMBps = float64(n) / duration.Seconds() / 1024 / 1024
	}

	logger.Info("transfer_complete",
		"operation", kind,
		"request", req,
		"code", code,
		"bytes", n,
		"duration_ms", duration.Milliseconds(),
		"throughput_mbps", fmt.Sprintf("%.2f", throughputMBps),
	)

	if s.server.metricsCollector != nil {
		s.server.metricsCollector.RecordRequest(kind, code, n, duration)
	}
}

// readToken reads the next control token: up to the delimiter when one is
// configured, otherwise whatever a single read returns.
func (s *session) readToken() (string, error) {
	if s.server.timeout > 0 {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.server.timeout)); err != nil {
			return "", err
		}
	}

	if d := s.server.delimiter; d != nil {
		tok, err := s.reader.ReadSlice(*d)
		if err != nil {
			return "", err
		}
		return string(tok[:len(tok)-1]), nil
	}

	buf := make([]byte, MaxTokenLength)
	n, err := s.reader.Read(buf)
	if n == 0 && err == nil {
		err = io.ErrNoProgress
	}
	if err != nil {
		return "", err
	}
	return strings.TrimRight(string(buf[:n]), "\x00\r\n"), nil
}

// dataWriter applies the write deadline and bandwidth limits.
func (s *session) dataWriter(conn net.Conn) io.Writer {
	var w io.Writer = &deadlineWriter{conn: conn, timeout: s.server.timeout}
	if s.server.bandwidthLimit > 0 {
		w = ratelimit.NewWriter(w, ratelimit.New(s.server.bandwidthLimit))
	}
	if s.server.globalLimiter != nil {
		w = ratelimit.NewWriter(w, s.server.globalLimiter)
	}
	return w
}

// writeCode sends the response code padded with NULs to the code width.
func (s *session) writeCode(w io.Writer, code string) error {
	buf := make([]byte, max(s.server.codeWidth, len(code)))
	copy(buf, code)
	_, err := w.Write(buf)
	return err
}

func (s *session) sendListing(w io.Writer) (string, int64, error) {
	names, err := s.server.driver.ListDir()
	if err != nil {
		return "unk", 0, errors.Join(err, s.writeCode(w, "unk"))
	}
	if err := s.writeCode(w, "dir"); err != nil {
		return "dir", 0, err
	}

	bw := bufio.NewWriter(w)
	var count int64
	for _, name := range names {
		// Names that would break the line framing or end the listing early
		// cannot be sent.
		if name == listSentinel || strings.ContainsAny(name, "\r\n") {
			s.server.logger.Warn("skipping unlistable entry", "session_id", s.sessionID, "name", name)
			continue
		}
		if _, err := bw.WriteString(name + "\n"); err != nil {
			return "dir", count, err
		}
		count++
	}
	if _, err := bw.WriteString(listSentinel + "\n"); err != nil {
		return "dir", count, err
	}
	return "dir", count, bw.Flush()
}

func (s *session) sendFile(w io.Writer, name string) (string, int64, error) {
	f, err := s.server.driver.Open(name)
	if err != nil {
		code := "unk"
		if errors.Is(err, fs.ErrNotExist) {
			code = "nof"
		}
		// A missing file is a normal outcome, not a failure.
		if werr := s.writeCode(w, code); werr != nil || code == "unk" {
			return code, 0, errors.Join(err, werr)
		}
		return code, 0, nil
	}
	defer f.Close()

	if err := s.writeCode(w, "fil"); err != nil {
		return "fil", 0, err
	}
	n, err := io.Copy(w, f)
	return "fil", n, err
}

// deadlineWriter refreshes the write deadline before every write.
type deadlineWriter struct {
	conn    net.Conn
	timeout time.Duration
}

func (d *deadlineWriter) Write(p []byte) (int, error) {
	if d.timeout > 0 {
		if err := d.conn.SetWriteDeadline(time.Now().Add(d.timeout)); err != nil {
			return 0, err
		}
	}
	return d.conn.Write(p)
}
