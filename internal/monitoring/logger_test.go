package monitoring

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestSetLogger(t *testing.T) {
	// Save original logger
	original := Logf
	defer func() { Logf = original }()

	// Test setting a custom logger
	called := false
	customLogger := func(format string, v ...interface{}) {
		called = true
	}

	SetLogger(customLogger)
	Logf("test message")

	if !called {
		t.Error("Custom logger was not called")
	}

	// Test setting nil logger (should create no-op)
	SetLogger(nil)
	// This should not panic
	Logf("test message")

	// Verify the logger is a no-op by checking it doesn't panic
	// and doesn't call anything
	noOpCalled := false
	testLogger := func(format string, v ...interface{}) {
		noOpCalled = true
	}
	SetLogger(testLogger)
	// First verify our test logger works
	Logf("test")
	if !noOpCalled {
		t.Error("Test logger should have been called")
	}

	// Now set to nil and verify it doesn't call our logger
	noOpCalled = false
	SetLogger(nil)
	Logf("test")
	if noOpCalled {
		t.Error("No-op logger should not have triggered callback")
	}
}

func TestLogf_Default(t *testing.T) {
	// Test that Logf is not nil by default
	if Logf == nil {
		t.Error("Logf should not be nil by default")
	}

	// Test that we can call it without panic
	defer func() {
		if r := recover(); r != nil {
			t.Errorf("Logf panicked: %v", r)
		}
	}()

	Logf("test message: %s", "value")
}

func TestUseZap(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	core, logs := observer.New(zap.InfoLevel)
	UseZap(zap.New(core))
	Logf("streams declared: %d", 3)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d log entries, want 1", len(entries))
	}
	if entries[0].Message != "streams declared: 3" {
		t.Errorf("message = %q", entries[0].Message)
	}

	UseZap(nil)
	Logf("muted")
	if logs.Len() != 1 {
		t.Error("nil zap logger should mute Logf")
	}
}

func TestNewLogger(t *testing.T) {
	for _, debug := range []bool{true, false} {
		l, err := NewLogger(debug)
		if err != nil {
			t.Fatalf("NewLogger(%v): %v", debug, err)
		}
		if l.Core().Enabled(zap.DebugLevel) != debug {
			t.Errorf("NewLogger(%v) debug enabled = %v", debug, !debug)
		}
	}
}
