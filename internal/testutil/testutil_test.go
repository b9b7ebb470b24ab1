package testutil

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/banshee-data/biostream/internal/monitoring"
)

type recorder struct {
	helpers int
	errors  []string
}

func (r *recorder) Helper() { r.helpers++ }

func (r *recorder) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestAssertStatusCode(t *testing.T) {
	var r recorder
	AssertStatusCode(&r, http.StatusOK, http.StatusOK)
	if len(r.errors) != 0 {
		t.Errorf("matching status reported %q", r.errors)
	}

	AssertStatusCode(&r, http.StatusOK, http.StatusBadRequest)
	if len(r.errors) != 1 || r.errors[0] != "status code = 200, want 400" {
		t.Errorf("errors = %q", r.errors)
	}
	if r.helpers != 2 {
		t.Errorf("Helper called %d times, want 2", r.helpers)
	}
}

func TestLoopbackRequest(t *testing.T) {
	req := LoopbackRequest(http.MethodPost, "/debug/streams", nil)
	if req.Method != http.MethodPost || req.URL.Path != "/debug/streams" {
		t.Errorf("request = %s %s", req.Method, req.URL.Path)
	}
	if req.RemoteAddr != "127.0.0.1:12345" {
		t.Errorf("RemoteAddr = %q", req.RemoteAddr)
	}
}

func TestCaptureLogs(t *testing.T) {
	prev := monitoring.Logf
	defer func() { monitoring.Logf = prev }()
	monitoring.SetLogger(nil)

	var logs *Logs
	t.Run("capture", func(t *testing.T) {
		logs = CaptureLogs(t)
		monitoring.Logf("User %d Successfully Added", 0)
		monitoring.Logf("User %d Removed", 0)
	})

	monitoring.Logf("after cleanup")
	lines := logs.Lines()
	if len(lines) != 2 || lines[0] != "User 0 Successfully Added" || lines[1] != "User 0 Removed" {
		t.Errorf("lines = %q", lines)
	}
}
