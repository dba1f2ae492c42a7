// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package logging

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newBufferedSlog(level zerolog.Level) (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(NewSlogHandlerWithLogger(zerolog.New(&buf).Level(level))), &buf
}

func TestSlogHandler_Enabled(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		zerologLevel zerolog.Level
		slogLevel    slog.Level
		want         bool
	}{
		{"debug logger enables debug level", zerolog.DebugLevel, slog.LevelDebug, true},
		{"info logger disables debug level", zerolog.InfoLevel, slog.LevelDebug, false},
		{"info logger enables warn level", zerolog.InfoLevel, slog.LevelWarn, true},
		{"warn logger disables info level", zerolog.WarnLevel, slog.LevelInfo, false},
		{"error logger disables warn level", zerolog.ErrorLevel, slog.LevelWarn, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			handler := NewSlogHandlerWithLogger(zerolog.New(nil).Level(tt.zerologLevel))
			if got := handler.Enabled(context.Background(), tt.slogLevel); got != tt.want {
				t.Errorf("Enabled() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlogHandler_Handle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		level     slog.Level
		wantLevel string
	}{
		{"info", slog.LevelInfo, "info"},
		{"warn", slog.LevelWarn, "warn"},
		{"error", slog.LevelError, "error"},
		{"between info and warn", slog.LevelInfo + 2, "info"},
		{"above error", slog.LevelError + 4, "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			logger, buf := newBufferedSlog(zerolog.TraceLevel)
			logger.Log(context.Background(), tt.level, "service restarted")

			if !strings.Contains(buf.String(), `"level":"`+tt.wantLevel+`"`) {
				t.Errorf("output = %s, want level %s", buf.String(), tt.wantLevel)
			}
		})
	}
}

func TestSlogHandler_AttrTypes(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferedSlog(zerolog.TraceLevel)
	logger.Info("event",
		slog.String("service", "embedding"),
		slog.Int64("failures", 3),
		slog.Uint64("version", 7),
		slog.Float64("decay", 0.5),
		slog.Bool("restarting", true),
		slog.Duration("backoff", 2*time.Second),
		slog.Time("at", time.Unix(0, 0).UTC()),
		slog.Any("err", errors.New("boom")),
		slog.Any("ids", []string{"r1"}),
	)

	output := buf.String()
	for _, want := range []string{
		`"service":"embedding"`, `"failures":3`, `"version":7`, `"decay":0.5`,
		`"restarting":true`, `"backoff":`, `"at":`, `"err":"boom"`, `"ids":["r1"]`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestSlogHandler_Groups(t *testing.T) {
	t.Parallel()

	logger, buf := newBufferedSlog(zerolog.TraceLevel)
	logger.With("tree", "scriptorium").
		WithGroup("supervisor").WithGroup("graph-layer").
		With("service", "graph-rebuild").
		Info("terminated", slog.Group("err", slog.String("kind", "panic")))

	output := buf.String()
	for _, want := range []string{
		`"tree":"scriptorium"`,
		`"supervisor.graph-layer.service":"graph-rebuild"`,
		`"supervisor.graph-layer.err.kind":"panic"`,
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %s: %s", want, output)
		}
	}
}

func TestSlogHandler_EmptyGroupAndAttrs(t *testing.T) {
	t.Parallel()

	h := NewSlogHandlerWithLogger(zerolog.Nop())
	if h.WithGroup("") != slog.Handler(h) {
		t.Error("WithGroup(\"\") should return the same handler")
	}
	if h.WithAttrs(nil) != slog.Handler(h) {
		t.Error("WithAttrs(nil) should return the same handler")
	}
}

func TestSlogToZerologLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		slogLvl  slog.Level
		wantZlog zerolog.Level
	}{
		{slog.LevelDebug - 4, zerolog.TraceLevel},
		{slog.LevelDebug, zerolog.DebugLevel},
		{slog.LevelInfo, zerolog.InfoLevel},
		{slog.LevelWarn, zerolog.WarnLevel},
		{slog.LevelError, zerolog.ErrorLevel},
	}
	for _, tt := range tests {
		if got := slogToZerologLevel(tt.slogLvl); got != tt.wantZlog {
			t.Errorf("slogToZerologLevel(%v) = %v, want %v", tt.slogLvl, got, tt.wantZlog)
		}
	}
}

func TestNewSlogLogger(t *testing.T) {
	buf := withGlobal(t, Config{Level: "info"})

	NewSlogLogger().Warn("service backoff")

	output := buf.String()
	if !strings.Contains(output, `"component":"supervisor"`) || !strings.Contains(output, "service backoff") {
		t.Errorf("unexpected output: %s", output)
	}
}
