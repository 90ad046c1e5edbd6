package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"relaybot/internal/channel"
	"relaybot/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_WritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "relaybot.log")
	logger, closer := newLogger(config.LogConfig{Level: "info", JSON: true, File: path})
	logger.Info("hello", "source", "test")
	if err := closer.Close(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if len(data) == 0 || data[0] != '{' {
		t.Fatalf("expected JSON log line, got %q", data)
	}
}

type stubEndpoint struct {
	ep  channel.LineEndpoint
	err error
}

func (s stubEndpoint) WebhookEndpoint(context.Context) (channel.LineEndpoint, error) {
	return s.ep, s.err
}

func (s stubEndpoint) SetWebhookEndpoint(context.Context, string) error {
	return errors.New("doctor must not update the endpoint")
}

func TestCheckLineEndpoint(t *testing.T) {
	const want = "https://relay.example.com/callback"
	tests := []struct {
		name string
		api  stubEndpoint
		pass int
		warn int
		fail int
	}{
		{"matching", stubEndpoint{ep: channel.LineEndpoint{URL: want, Active: true}}, 1, 0, 0},
		{"mismatched", stubEndpoint{ep: channel.LineEndpoint{URL: "https://old.example.com", Active: true}}, 0, 1, 0},
		{"inactive", stubEndpoint{ep: channel.LineEndpoint{URL: want}}, 0, 0, 1},
		{"not found", stubEndpoint{err: channel.ErrEndpointNotFound}, 0, 0, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var r doctorReport
			checkLineEndpoint(context.Background(), &r, tt.api, want)
			if r.passed != tt.pass || r.warned != tt.warn || r.failed != tt.fail {
				t.Fatalf("got %+v", r)
			}
		})
	}
}
