package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/samplebuf"
	"github.com/banshee-data/biostream/internal/serialmux"
)

// ErrLinkLost is returned by PollEvent once the serial link has failed.
var ErrLinkLost = errors.New("device: serial link lost")

// maxQueuedEvents bounds the event backlog between polls.
const maxQueuedEvents = 1024

// SerialConfig configures a SerialSession.
type SerialConfig struct {
	SampleRate    int
	BufferSeconds float64
}

// SerialSession reads a headset gateway's JSON-lines protocol from a serial
// multiplexer. Lines are parsed on a background goroutine into an event
// queue and a bounded sample buffer; the Session methods only touch those.
type SerialSession struct {
	mux      serialmux.SerialMuxInterface
	ring     *sampleRing
	channels int

	mu         sync.Mutex
	events     []Event
	linkErr    error
	connected  bool
	subID      string
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	badLines   uint64
	lostEvents uint64
}

var _ Session = (*SerialSession)(nil)

// NewSerialSession returns an unconnected session over mux.
func NewSerialSession(mux serialmux.SerialMuxInterface, cfg SerialConfig) *SerialSession {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 128
	}
	if cfg.BufferSeconds <= 0 {
		cfg.BufferSeconds = 2
	}
	return &SerialSession{
		mux:      mux,
		ring:     newSampleRing(int(cfg.BufferSeconds * float64(cfg.SampleRate))),
		channels: catalog.Default().RawCount(),
	}
}

// Connect sends the gateway handshake and starts reading the line.
func (s *SerialSession) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.connected {
		return nil
	}
	if err := s.mux.Initialize(); err != nil {
		return fmt.Errorf("gateway handshake failed: %w", err)
	}

	id, lines := s.mux.Subscribe()
	mctx, cancel := context.WithCancel(ctx)
	s.subID = id
	s.cancel = cancel
	s.connected = true

	s.wg.Add(2)
	go func() {
		defer s.wg.Done()
		err := s.mux.Monitor(mctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			monitoring.Logf("serial monitor stopped: %v", err)
			s.mu.Lock()
			s.linkErr = err
			s.mu.Unlock()
		}
	}()
	go func() {
		defer s.wg.Done()
		for line := range lines {
			s.handleLine(line)
		}
	}()
	return nil
}

func (s *SerialSession) handleLine(line string) {
	ev, rows, err := parseLine(line, s.channels)
	if err != nil {
		s.mu.Lock()
		s.badLines++
		s.mu.Unlock()
		monitoring.Logf("skipping gateway line: %v", err)
		return
	}
	for _, row := range rows {
		s.ring.push(row)
	}
	if ev.Kind == EventNone {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) >= maxQueuedEvents {
		s.events = s.events[1:]
		s.lostEvents++
	}
	s.events = append(s.events, ev)
}

func (s *SerialSession) PollEvent() (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return NoEvent, ErrNotConnected
	}
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.linkErr != nil {
		return NoEvent, fmt.Errorf("%w: %v", ErrLinkLost, s.linkErr)
	}
	return NoEvent, nil
}

// EnableAcquisition asks the gateway to stream raw samples for userID.
func (s *SerialSession) EnableAcquisition(userID uint32) error {
	return s.mux.SendCommand(fmt.Sprintf("ACQ %d ON", userID))
}

func (s *SerialSession) PendingSampleCount() (int, error) {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return 0, ErrNotConnected
	}
	return s.ring.len(), nil
}

func (s *SerialSession) FetchSamples(channels []catalog.ChannelID, buf *samplebuf.Buffer) error {
	return s.ring.drain(channels, buf)
}

// Disconnect stops the reader goroutines and closes the port.
func (s *SerialSession) Disconnect() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return s.mux.Close()
	}
	s.connected = false
	s.cancel()
	id := s.subID
	s.mu.Unlock()

	s.mux.Unsubscribe(id)
	err := s.mux.Close()
	s.wg.Wait()
	if n := s.ring.droppedCount(); n > 0 {
		monitoring.Logf("gateway overran the sample buffer %d times", n)
	}
	return err
}

// SerialStats counts what the session discarded from the gateway.
type SerialStats struct {
	// BadLines are malformed protocol lines.
	BadLines uint64 `json:"bad_lines"`
	// LostEvents were discarded from a full event queue.
	LostEvents uint64 `json:"lost_events"`
	// DroppedSamples were overwritten in a full sample buffer.
	DroppedSamples uint64 `json:"dropped_samples"`
}

// Stats returns the session's discard counters.
func (s *SerialSession) Stats() SerialStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SerialStats{
		BadLines:       s.badLines,
		LostEvents:     s.lostEvents,
		DroppedSamples: s.ring.droppedCount(),
	}
}
