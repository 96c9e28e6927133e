// Package cliconfig parses the settings ftclient and ftserver share, so
// both ends of a session accept the same spellings.
package cliconfig

import (
	"fmt"
	"log/slog"
	"strings"
)

// ParseDelimiter maps a token delimiter name to its byte. ok is false for
// "none" and the empty string, which mean no delimiter. Names are
// case-insensitive.
func ParseDelimiter(name string) (delim byte, ok bool, err error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none":
		return 0, false, nil
	case "newline", "lf", "\\n":
		return '\n', true, nil
	case "nul", "null", "\\0":
		return 0, true, nil
	default:
		return 0, false, fmt.Errorf("unknown token delimiter %q (want none, newline or nul)", name)
	}
}

// ParseLogLevel returns the slog level named by name, or fallback when the
// name is not a level.
func ParseLogLevel(name string, fallback slog.Level) slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(name))); err != nil {
		return fallback
	}
	return level
}
