package main

import (
	"fmt"
	"log/slog"
	"time"

	"gopkg.in/ini.v1"

	"github.com/ftxfer/ft"
	"github.com/ftxfer/ft/internal/cliconfig"
)

// Config holds the client settings that can come from the [client] section
// of an INI file. Command-line values override them.
type Config struct {
	DataPort          int           `ini:"data_port"`
	Timeout           time.Duration `ini:"timeout"`
	DownloadDir       string        `ini:"download_dir"`
	ChunkSize         int           `ini:"chunk_size"`
	MaxRenameAttempts int           `ini:"max_rename_attempts"`
	BandwidthLimit    int64         `ini:"bandwidth_limit"`
	ResponseCodeWidth int           `ini:"response_code_width"`
	TokenDelimiter    string        `ini:"token_delimiter"`
	SOCKS5Proxy       string        `ini:"socks5_proxy"`
	LogLevel          string        `ini:"log_level"`
}

func defaultConfig() Config {
	return Config{
		ChunkSize:         ft.DefaultChunkSize,
		ResponseCodeWidth: ft.DefaultResponseCodeWidth,
		TokenDelimiter:    "none",
		LogLevel:          "warn",
	}
}

// loadConfig overlays the [client] section of the file at path onto the
// defaults. An empty path returns the defaults.
func loadConfig(path string) (Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	file, err := ini.Load(path)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	if err := file.Section("client").MapTo(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// options converts the configuration into session options.
func (c Config) options(logger *slog.Logger) ([]ft.Option, error) {
	opts := []ft.Option{
		ft.WithLogger(logger),
		ft.WithTimeout(c.Timeout),
		ft.WithDataPort(c.DataPort),
		ft.WithResponseCodeWidth(c.ResponseCodeWidth),
		ft.WithChunkSize(c.ChunkSize),
		ft.WithMaxRenameAttempts(c.MaxRenameAttempts),
		ft.WithBandwidthLimit(c.BandwidthLimit),
	}
	if c.DownloadDir != "" {
		opts = append(opts, ft.WithDownloadDir(c.DownloadDir))
	}
	if c.SOCKS5Proxy != "" {
		opts = append(opts, ft.WithSOCKS5Proxy(c.SOCKS5Proxy))
	}
	delim, ok, err := cliconfig.ParseDelimiter(c.TokenDelimiter)
	if err != nil {
		return nil, err
	}
	if ok {
		opts = append(opts, ft.WithTokenDelimiter(delim))
	}
	return opts, nil
}
