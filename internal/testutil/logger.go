// Package testutil provides helpers shared by package tests.
package testutil

import (
	"log/slog"
	"strings"
	"testing"
)

// NewTestLogger returns a debug-level logger writing each record through
// t.Log, so session and engine logs show up next to the failing test.
func NewTestLogger(t testing.TB) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(logWriter{t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

type logWriter struct {
	t testing.TB
}

func (w logWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(strings.TrimSuffix(string(p), "\n"))
	return len(p), nil
}
