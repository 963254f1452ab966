// Package testutil provides helpers shared by planningpoker tests.
package testutil

import (
	"bytes"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/planningpoker/internal/logging"
)

// DefaultWait bounds Eventually when callers have no tighter limit.
const DefaultWait = 3 * time.Second

// Eventually polls cond until it returns true or DefaultWait elapses, in
// which case the test fails naming what it was waiting for.
func Eventually(t testing.TB, what string, cond func() bool) {
	t.Helper()
	EventuallyWithin(t, DefaultWait, what, cond)
}

// EventuallyWithin is Eventually with an explicit limit.
func EventuallyWithin(t testing.TB, limit time.Duration, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(limit)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out after %v waiting for %s", limit, what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// LogBuffer is a goroutine-safe writer capturing log output.
type LogBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *LogBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns everything written so far.
func (b *LogBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// NewLogger returns a debug-level JSON logger writing into a LogBuffer.
// The buffer is dumped through t.Log when the test fails.
func NewLogger(t testing.TB) (*logging.Logger, *LogBuffer) {
	t.Helper()
	buf := &LogBuffer{}
	logger, err := logging.NewLogger(logging.Options{Level: logging.LevelDebug, Writer: buf})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	t.Cleanup(func() {
		if t.Failed() {
			t.Logf("captured logs:\n%s", buf.String())
		}
	})
	return logger, buf
}
