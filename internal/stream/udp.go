package stream

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/timeutil"
)

// UDPOptions tunes a UDPSink.
type UDPOptions struct {
	// QueueSize bounds the packets waiting to be sent.
	QueueSize int
	// LogInterval is the spacing of dropped-packet summaries.
	LogInterval time.Duration
	// AnnounceInterval is the spacing of repeated declarations so that late
	// listeners learn the stream layout. Zero disables re-announcement.
	AnnounceInterval time.Duration
	Clock            timeutil.Clock
}

// DefaultUDPOptions returns the options used by the binary.
func DefaultUDPOptions() UDPOptions {
	return UDPOptions{
		QueueSize:        1000,
		LogInterval:      2 * time.Second,
		AnnounceInterval: 5 * time.Second,
	}
}

// UDPSink sends each row as one datagram. Sending is asynchronous: rows are
// queued without blocking and a full queue drops the row.
type UDPSink struct {
	conn    *net.UDPConn
	address string
	codec   Codec
	opts    UDPOptions
	queue   chan []byte
	done    chan struct{}
	once    sync.Once

	mu       sync.Mutex
	info     Info
	declared []byte

	seq          atomic.Uint64
	dropped      atomic.Uint64 // since the last summary
	droppedTotal atomic.Uint64
	sent         atomic.Uint64
	failedTotal  atomic.Uint64
}

var _ Sink = (*UDPSink)(nil)

// NewUDPSink dials target ("host:port") and returns a sink that is ready
// once Start is called.
func NewUDPSink(target string, codec Codec, opts UDPOptions) (*UDPSink, error) {
	addr, err := net.ResolveUDPAddr("udp", target)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve stream target: %w", err)
	}
	conn, err := net.DialUDP("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to create stream connection: %w", err)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultUDPOptions().QueueSize
	}
	if opts.LogInterval <= 0 {
		opts.LogInterval = DefaultUDPOptions().LogInterval
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	return &UDPSink{
		conn:    conn,
		address: target,
		codec:   codec,
		opts:    opts,
		queue:   make(chan []byte, opts.QueueSize),
		done:    make(chan struct{}),
	}, nil
}

// Start runs the sending goroutine until ctx is done or Close is called.
// Send errors are counted and summarised every LogInterval.
func (s *UDPSink) Start(ctx context.Context) {
	go func() {
		failed := 0
		var lastError error
		ticker := time.NewTicker(s.opts.LogInterval)
		defer ticker.Stop()

		var announce <-chan time.Time
		if s.opts.AnnounceInterval > 0 {
			t := time.NewTicker(s.opts.AnnounceInterval)
			defer t.Stop()
			announce = t.C
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case packet := <-s.queue:
				if _, err := s.conn.Write(packet); err != nil {
					failed++
					lastError = err
					s.failedTotal.Add(1)
					continue
				}
				s.sent.Add(1)
			case <-announce:
				s.mu.Lock()
				decl := s.declared
				s.mu.Unlock()
				if decl != nil {
					s.enqueue(decl)
				}
			case <-ticker.C:
				if dropped := s.dropped.Swap(0); dropped > 0 {
					monitoring.Logf("%s: dropped %d rows, send queue full", s.name(), dropped)
				}
				if failed > 0 && lastError != nil {
					monitoring.Logf("%s: failed to send %d packets to %s (latest: %v)", s.name(), failed, s.address, lastError)
					failed = 0
					lastError = nil
				}
			}
		}
	}()

	monitoring.Logf("Streaming to %s", s.address)
}

// Declare encodes info and queues it as the first packet.
func (s *UDPSink) Declare(info Info) error {
	data, err := s.codec.EncodeInfo(info)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.info = info
	s.declared = data
	s.mu.Unlock()
	if !s.enqueue(data) {
		return ErrDropped
	}
	return nil
}

// PublishRow encodes values and queues them. It returns ErrDropped when the
// queue is full and ErrClosed after Close.
func (s *UDPSink) PublishRow(values []float64) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	data, err := s.codec.EncodeRow(s.name(), s.seq.Add(1)-1, s.opts.Clock.Now(), values)
	if err != nil {
		return err
	}
	if !s.enqueue(data) {
		s.dropped.Add(1)
		s.droppedTotal.Add(1)
		return ErrDropped
	}
	return nil
}

func (s *UDPSink) name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.info.Name
}

func (s *UDPSink) enqueue(packet []byte) bool {
	select {
	case s.queue <- packet:
		return true
	default:
		return false
	}
}

// UDPStats are a UDPSink's cumulative counters.
type UDPStats struct {
	Stream  string `json:"stream"`
	Target  string `json:"target"`
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// Stats reports the packets written, dropped from a full queue, and
// rejected by the socket.
func (s *UDPSink) Stats() UDPStats {
	return UDPStats{
		Stream:  s.name(),
		Target:  s.address,
		Sent:    s.sent.Load(),
		Dropped: s.droppedTotal.Load(),
		Failed:  s.failedTotal.Load(),
	}
}

// Close stops the sending goroutine and closes the connection.
func (s *UDPSink) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.conn.Close()
	})
	return err
}
