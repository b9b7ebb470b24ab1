// Package serialmux provides an abstraction over a serial port with the
// ability for multiple clients to subscribe to lines read from the port and
// send commands to a single serial device.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"tailscale.com/tsweb"

	"github.com/banshee-data/biostream/internal/httputil"
)

var ErrWriteFailed = errors.New("failed to write to serial port")

// subscriberBuffer is the number of lines a subscriber may fall behind
// before lines are dropped for it.
const subscriberBuffer = 256

// SerialMux is a generic serial port multiplexer that allows multiple clients to
// subscribe to lines from a single serial port.
type SerialMux[T SerialPorter] struct {
	port         T
	handshake    []string
	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving lines from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Monitor reads lines from the serial port and sends them to the
	// subscribed channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error
	// Initialize sends the device handshake.
	Initialize() error
	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/.
	AttachAdminRoutes(*http.ServeMux)
}

// DefaultHandshake puts a headset gateway into JSON-lines streaming mode.
var DefaultHandshake = []string{
	"RST",      // reset the gateway session
	"FMT JSON", // one JSON object per line
	"EVT ON",   // forward user and state events
}

// NewSerialMux creates a SerialMux over port. When no handshake is given
// DefaultHandshake is used by Initialize.
func NewSerialMux[T SerialPorter](port T, handshake ...string) *SerialMux[T] {
	if len(handshake) == 0 {
		handshake = DefaultHandshake
	}
	return &SerialMux[T]{
		port:        port,
		handshake:   handshake,
		subscribers: make(map[string]chan string),
	}
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

func (s *SerialMux[T]) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux[T]) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Initialize writes the handshake commands in order.
func (s *SerialMux[T]) Initialize() error {
	for _, command := range s.handshake {
		if err := s.SendCommand(command); err != nil {
			return fmt.Errorf("failed to send handshake command %q: %w", command, err)
		}
	}
	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux[T]) SendCommand(command string) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	if !bytes.HasSuffix([]byte(command), []byte("\n")) {
		command += "\n" // ensure command ends with a newline
	}
	n, err := s.port.Write([]byte(command))
	if err != nil {
		return err
	}
	if n != len(command) {
		return ErrWriteFailed
	}
	return nil
}

// Monitor reads lines from the serial port and fans them out to subscribers
// until ctx is done or the port returns an error.
func (s *SerialMux[T]) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(s.port)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// the blocking scan.Scan runs in its own goroutine so it does not
	// interfere with the outer loop awaiting lines & context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			if !ok {
				select {
				case err := <-scanErrChan:
					return err
				default:
					return nil
				}
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// subscriber is behind; skip so as not to block the port
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux[T]) Close() error {
	s.closingMu.Lock()
	if s.closing {
		s.closingMu.Unlock()
		return nil
	}
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()
	return s.port.Close()
}

func (s *SerialMux[T]) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	// POST command=<text> writes one command line to the device.
	debug.HandleSilentFunc("serial-send", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			httputil.MethodNotAllowed(w)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			httputil.BadRequest(w, "missing command")
			return
		}
		if err := s.SendCommand(command); err != nil {
			httputil.InternalServerError(w, "failed to write command")
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// Server-Sent Events stream of every line read from the device.
	debug.HandleFunc("serial-tail", "live tail of the device serial line", func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		flusher.Flush()

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := fmt.Fprintf(w, "data: %s\n\n", payload); err != nil {
					return
				}
				flusher.Flush()
			case <-r.Context().Done():
				return
			}
		}
	})
}
