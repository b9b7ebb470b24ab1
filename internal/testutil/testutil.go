// Package testutil provides shared test helpers for the debug routes and the
// package logger.
package testutil

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/banshee-data/biostream/internal/monitoring"
)

// Reporter is the part of testing.TB that assertions report through.
type Reporter interface {
	Helper()
	Errorf(format string, args ...any)
}

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t Reporter, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// LoopbackRequest creates a test request from 127.0.0.1, which tsweb's
// /debug/ handlers accept without further authorisation.
func LoopbackRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.RemoteAddr = "127.0.0.1:12345"
	return req
}

// Logs collects lines written through monitoring.Logf.
type Logs struct {
	mu    sync.Mutex
	lines []string
}

// Lines returns a copy of the captured lines.
func (l *Logs) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.lines...)
}

// CaptureLogs redirects monitoring.Logf for the duration of the test.
func CaptureLogs(t testing.TB) *Logs {
	t.Helper()
	logs := &Logs{}
	prev := monitoring.Logf
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logs.mu.Lock()
		defer logs.mu.Unlock()
		logs.lines = append(logs.lines, fmt.Sprintf(format, v...))
	})
	t.Cleanup(func() { monitoring.SetLogger(prev) })
	return logs
}
