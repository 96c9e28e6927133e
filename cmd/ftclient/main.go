// Command ftclient lists a server directory or fetches one file from it.
//
// Usage:
//
//	ftclient [-c config.ini] [-v] <server> <server_port> [<data_port>] -l
//	ftclient [-c config.ini] [-v] <server> <server_port> [<data_port>] -g <file>
//
// Flags may appear before, between or after the positional arguments.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/ftxfer/ft"
	"github.com/ftxfer/ft/internal/cliconfig"
)

// Exit codes.
const (
	exitOK = iota
	exitFailure
	exitUsage
	exitConnect
	exitBind
	exitProtocol
	exitTruncated
	exitIO
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes one client invocation and returns the process exit code.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("ftclient", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		list       = fs.Bool("l", false, "list the server's directory")
		get        = fs.String("g", "", "fetch `file` from the server")
		configPath = fs.String("c", "", "read settings from INI `file`")
		verbose    = fs.Bool("v", false, "log protocol steps to stderr")
	)
	fs.Usage = func() {
		fmt.Fprintln(stderr, "usage: ftclient [-c config.ini] [-v] <server> <server_port> [<data_port>] (-l | -g <file>)")
		fs.PrintDefaults()
	}

	positional, err := parseInterspersed(fs, args)
	if err != nil {
		return exitUsage
	}
	if len(positional) < 2 || len(positional) > 3 {
		fs.Usage()
		return exitUsage
	}

	req, err := ft.ParseRequest(*list, *get)
	if err != nil {
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	serverPort, err := parsePort(positional[1], false)
	if err != nil {
		fmt.Fprintf(stderr, "server port: %v\n", err)
		return exitUsage
	}
	if len(positional) == 3 {
		if cfg.DataPort, err = parsePort(positional[2], true); err != nil {
			fmt.Fprintf(stderr, "data port: %v\n", err)
			return exitUsage
		}
	}

	level := cliconfig.ParseLogLevel(cfg.LogLevel, slog.LevelWarn)
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	opts, err := cfg.options(logger)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}
	opts = append(opts,
		ft.WithEntryHandler(func(e ft.DirectoryEntry) {
			fmt.Fprintln(stdout, e)
		}),
		ft.WithNameResolver(ft.StdinResolver(stdin, stdout)),
	)

	addr := net.JoinHostPort(positional[0], strconv.Itoa(serverPort))
	session, err := ft.NewSession(addr, opts...)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	res, err := session.Run(ctx, req)
	if err != nil {
		fmt.Fprintln(stderr, describe(err))
		return exitCode(err)
	}

	fmt.Fprintln(stdout, res.Outcome())
	return exitOK
}

// parseInterspersed parses flags that may be mixed with positional
// arguments and returns the positionals in order.
func parseInterspersed(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		args = fs.Args()
		if len(args) == 0 {
			return positional, nil
		}
		positional = append(positional, args[0])
		args = args[1:]
	}
}

func parsePort(s string, allowZero bool) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	lowest := 1
	if allowZero {
		lowest = 0
	}
	if port < lowest || port > 65535 {
		return 0, fmt.Errorf("%d is out of range", port)
	}
	return port, nil
}

// describe turns a session error into the notice shown to the user.
func describe(err error) string {
	var (
		ce *ft.ConnectError
		be *ft.BindError
		pe *ft.ProtocolError
		te *ft.TruncatedListingError
		ie *ft.IOError
	)
	switch {
	case errors.As(err, &ce):
		return fmt.Sprintf("could not connect to %s: %v", ce.Addr, ce.Err)
	case errors.As(err, &be):
		return fmt.Sprintf("could not listen on data port %d: %v", be.Port, be.Err)
	case errors.As(err, &te):
		return fmt.Sprintf("listing interrupted after %d entries", te.Received)
	case errors.As(err, &pe):
		return fmt.Sprintf("protocol error during %s: %v", pe.Op, pe.Err)
	case errors.As(err, &ie):
		return fmt.Sprintf("could not save file: %v", ie)
	default:
		return err.Error()
	}
}

func exitCode(err error) int {
	var (
		ce *ft.ConnectError
		be *ft.BindError
		pe *ft.ProtocolError
		te *ft.TruncatedListingError
		ie *ft.IOError
	)
	switch {
	case errors.As(err, &ce):
		return exitConnect
	case errors.As(err, &be):
		return exitBind
	case errors.As(err, &te):
		return exitTruncated
	case errors.As(err, &pe):
		return exitProtocol
	case errors.As(err, &ie):
		return exitIO
	default:
		return exitFailure
	}
}
