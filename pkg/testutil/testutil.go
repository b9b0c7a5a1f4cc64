// Package testutil provides testing utilities for serialscope
package testutil

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
)

// TestLogger creates a test logger that writes to the test output.
// The logger is automatically cleaned up when the test completes.
func TestLogger(t *testing.T) *zap.Logger {
	return zaptest.NewLogger(t)
}

// TestContext creates a test context with a 30-second timeout.
// The caller must call the returned cancel function to avoid leaks.
func TestContext(_ *testing.T) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 30*time.Second)
}

// AssertEventually asserts that a condition becomes true within the specified timeout.
// It checks the condition every 10ms until it succeeds or the timeout expires.
func AssertEventually(t *testing.T, condition func() bool, timeout time.Duration, msg string) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("condition not met within %v: %s", timeout, msg)
}

// SplitBytes splits data into randomly sized consecutive chunks, including
// the occasional empty chunk. Concatenating the result always reproduces
// data exactly; boundaries land anywhere, including inside multi-byte
// sequences. Deterministic for a given rand source.
func SplitBytes(r *rand.Rand, data []byte) [][]byte {
	var chunks [][]byte
	for i := 0; i < len(data); {
		n := r.Intn(8)
		if i+n > len(data) {
			n = len(data) - i
		}
		chunk := make([]byte, n)
		copy(chunk, data[i:i+n])
		chunks = append(chunks, chunk)
		i += n
	}
	if len(chunks) == 0 {
		chunks = append(chunks, []byte{})
	}
	return chunks
}

// SplitString splits s into randomly sized consecutive substrings whose
// concatenation reproduces s exactly. Unlike SplitBytes it never produces
// an empty piece, matching the no-empty-chunk contract of decoded text.
func SplitString(r *rand.Rand, s string) []string {
	var parts []string
	for i := 0; i < len(s); {
		n := 1 + r.Intn(8)
		if i+n > len(s) {
			n = len(s) - i
		}
		parts = append(parts, s[i:i+n])
		i += n
	}
	return parts
}

// FeedBytes sends the given chunks on a fresh channel and closes it,
// emulating a finite transport.
func FeedBytes(chunks [][]byte) <-chan []byte {
	ch := make(chan []byte, len(chunks)+1)
	for _, c := range chunks {
		ch <- c
	}
	close(ch)
	return ch
}

// FeedStrings sends the given text chunks on a fresh channel and closes it.
func FeedStrings(parts []string) <-chan string {
	ch := make(chan string, len(parts)+1)
	for _, p := range parts {
		ch <- p
	}
	close(ch)
	return ch
}
