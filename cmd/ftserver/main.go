// Command ftserver serves one directory to ftclient.
//
// Usage:
//
//	ftserver [-c config.ini] [-root dir] [-v] <port>
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
	"time"

	"gopkg.in/ini.v1"

	"github.com/ftxfer/ft/internal/cliconfig"
	"github.com/ftxfer/ft/server"
)

// Config is the [server] section of the INI file.
type Config struct {
	Addr              string        `ini:"addr"`
	Root              string        `ini:"root"`
	Timeout           time.Duration `ini:"timeout"`
	ResponseCodeWidth int           `ini:"response_code_width"`
	TokenDelimiter    string        `ini:"token_delimiter"`
	MaxConnections    int           `ini:"max_connections"`
	BandwidthLimit    int64         `ini:"bandwidth_limit"`
	ShowHidden        bool          `ini:"show_hidden"`
	LogLevel          string        `ini:"log_level"`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("ftserver", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		configPath = fs.String("c", "", "read settings from INI `file`")
		root       = fs.String("root", "", "serve `dir` (default: working directory)")
		verbose    = fs.Bool("v", false, "log every session step")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg := Config{Root: ".", ResponseCodeWidth: 3, TokenDelimiter: "none", LogLevel: "info"}
	if *configPath != "" {
		file, err := ini.Load(*configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", *configPath, err)
		}
		if err := file.Section("server").MapTo(&cfg); err != nil {
			return fmt.Errorf("parse config %s: %w", *configPath, err)
		}
	}
	if *root != "" {
		cfg.Root = *root
	}
	if fs.NArg() > 0 {
		port, err := strconv.Atoi(fs.Arg(0))
		if err != nil || port < 1 || port > 65535 {
			return fmt.Errorf("invalid port %q", fs.Arg(0))
		}
		cfg.Addr = net.JoinHostPort("", strconv.Itoa(port))
	}
	if cfg.Addr == "" {
		return errors.New("usage: ftserver [-c config.ini] [-root dir] [-v] <port>")
	}

	level := cliconfig.ParseLogLevel(cfg.LogLevel, slog.LevelInfo)
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	driver, err := server.NewFSDriver(cfg.Root, server.WithShowHidden(cfg.ShowHidden))
	if err != nil {
		return err
	}

	opts := []server.Option{
		server.WithDriver(driver),
		server.WithLogger(logger),
		server.WithTimeout(cfg.Timeout),
		server.WithResponseCodeWidth(cfg.ResponseCodeWidth),
		server.WithMaxConnections(cfg.MaxConnections),
		server.WithBandwidthLimit(cfg.BandwidthLimit),
	}
	delim, ok, err := cliconfig.ParseDelimiter(cfg.TokenDelimiter)
	if err != nil {
		return err
	}
	if ok {
		opts = append(opts, server.WithTokenDelimiter(delim))
	}

	srv, err := server.NewServer(cfg.Addr, opts...)
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		_ = srv.Shutdown()
	}()

	logger.Info("serving directory", "root", driver.RootPath())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}
