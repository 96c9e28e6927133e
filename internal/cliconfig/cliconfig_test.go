package cliconfig

import (
	"log/slog"
	"testing"
)

func TestParseDelimiter(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in      string
		want    byte
		set     bool
		wantErr bool
	}{
		{"", 0, false, false},
		{"none", 0, false, false},
		{" NONE ", 0, false, false},
		{"Newline", '\n', true, false},
		{"lf", '\n', true, false},
		{`\n`, '\n', true, false},
		{"nul", 0, true, false},
		{"null", 0, true, false},
		{`\0`, 0, true, false},
		{"tab", 0, false, true},
	}
	for _, tt := range tests {
		got, set, err := ParseDelimiter(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want || set != tt.set {
			t.Errorf("ParseDelimiter(%q) = %q, %v, %v", tt.in, got, set, err)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"info+2", slog.LevelInfo + 2},
		{"", slog.LevelInfo},
		{"loud", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLogLevel(tt.in, slog.LevelInfo); got != tt.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
