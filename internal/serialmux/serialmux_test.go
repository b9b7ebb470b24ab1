package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSerialMuxDefaultsHandshake(t *testing.T) {
	mux, port := NewMockSerialMux()
	defer mux.Close()

	require.NoError(t, mux.Initialize())
	assert.Equal(t, DefaultHandshake, port.Commands())
}

func TestInitializeCustomHandshake(t *testing.T) {
	mux, port := NewMockSerialMux("HELLO", "RATE 128")
	defer mux.Close()

	require.NoError(t, mux.Initialize())
	assert.Equal(t, []string{"HELLO", "RATE 128"}, port.Commands())
}

func TestInitializeWriteError(t *testing.T) {
	mux, port := NewMockSerialMux()
	defer mux.Close()
	port.WriteErr = errors.New("write failed")

	err := mux.Initialize()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RST")
}

func TestSendCommandAppendsNewline(t *testing.T) {
	mux, port := NewMockSerialMux()
	defer mux.Close()

	require.NoError(t, mux.SendCommand("ACQ 1 ON"))
	require.NoError(t, mux.SendCommand("ACQ 2 ON\n"))
	assert.Equal(t, []string{"ACQ 1 ON", "ACQ 2 ON"}, port.Commands())
}

func TestSubscribeUniqueIDs(t *testing.T) {
	mux, _ := NewMockSerialMux()
	defer mux.Close()

	id1, ch1 := mux.Subscribe()
	id2, ch2 := mux.Subscribe()
	assert.NotEqual(t, id1, id2)
	assert.NotNil(t, ch1)
	assert.NotNil(t, ch2)

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "unsubscribed channel should be closed")

	// Unknown ids are ignored.
	mux.Unsubscribe("missing")
}

func TestMonitorFansOutLines(t *testing.T) {
	mux, port := NewMockSerialMux()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, a := mux.Subscribe()
	_, b := mux.Subscribe()

	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()

	require.NoError(t, port.Feed(`{"type":"user_added","user":3}`))

	for _, ch := range []chan string{a, b} {
		select {
		case line := <-ch:
			assert.Equal(t, `{"type":"user_added","user":3}`, line)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for line")
		}
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after cancel")
	}
}

func TestMonitorReturnsWhenPortCloses(t *testing.T) {
	mux, port := NewMockSerialMux()
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(context.Background()) }()

	port.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return after port close")
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	mux, port := NewMockSerialMux()
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	require.NoError(t, mux.Close())
	assert.True(t, port.Closed())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestAdminSendCommand(t *testing.T) {
	mux, port := NewMockSerialMux()
	defer mux.Close()

	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	form := url.Values{"command": {"ACQ 0 OFF"}}
	req := httptest.NewRequest(http.MethodPost, "/debug/serial-send", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"ACQ 0 OFF"}, port.Commands())

	req = httptest.NewRequest(http.MethodGet, "/debug/serial-send", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
