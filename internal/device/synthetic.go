package device

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/features"
	"github.com/banshee-data/biostream/internal/samplebuf"
	"github.com/banshee-data/biostream/internal/timeutil"
)

// SyntheticConfig configures a SyntheticSession.
type SyntheticConfig struct {
	// SampleRate is the raw sample rate in Hz.
	SampleRate int
	// BufferSeconds bounds the device-side raw buffer.
	BufferSeconds float64
	// StateInterval is the spacing of state updates.
	StateInterval time.Duration
	// UserID is the user announced after connect.
	UserID uint32
}

// DefaultSyntheticConfig mirrors the headset: 128 Hz, two seconds of buffer,
// four state updates per second.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		SampleRate:    128,
		BufferSeconds: 2,
		StateInterval: 250 * time.Millisecond,
	}
}

// SyntheticSession is a development headset. It announces one user on the
// first poll, produces EEG-like sine waves at SampleRate in clock time once
// acquisition is enabled, and cycles through every facial expression.
type SyntheticSession struct {
	cfg   SyntheticConfig
	clock timeutil.Clock
	ring  *sampleRing

	mu        sync.Mutex
	connected bool
	announced bool
	enabled   bool
	start     time.Time
	produced  int64
	lastState time.Time
	states    int
}

var _ Session = (*SyntheticSession)(nil)

// NewSyntheticSession returns an unconnected synthetic session.
func NewSyntheticSession(cfg SyntheticConfig, clock timeutil.Clock) *SyntheticSession {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 128
	}
	if cfg.BufferSeconds <= 0 {
		cfg.BufferSeconds = 2
	}
	if cfg.StateInterval <= 0 {
		cfg.StateInterval = 250 * time.Millisecond
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SyntheticSession{
		cfg:   cfg,
		clock: clock,
		ring:  newSampleRing(int(cfg.BufferSeconds * float64(cfg.SampleRate))),
	}
}

func (s *SyntheticSession) Connect(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.lastState = s.clock.Now()
	return nil
}

func (s *SyntheticSession) PollEvent() (Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return NoEvent, ErrNotConnected
	}
	if !s.announced {
		s.announced = true
		return UserAdded(s.cfg.UserID), nil
	}
	now := s.clock.Now()
	if now.Sub(s.lastState) < s.cfg.StateInterval {
		return NoEvent, nil
	}
	s.lastState = now
	s.states++
	return StateUpdated(syntheticState(s.states)), nil
}

func (s *SyntheticSession) EnableAcquisition(userID uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	if !s.enabled {
		s.enabled = true
		s.start = s.clock.Now()
		s.produced = 0
	}
	return nil
}

func (s *SyntheticSession) PendingSampleCount() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return 0, ErrNotConnected
	}
	if !s.enabled {
		return 0, nil
	}
	s.generate()
	return s.ring.len(), nil
}

// generate pushes every sample due by the current clock time. Samples that
// would overflow the device buffer are skipped rather than synthesised.
func (s *SyntheticSession) generate() {
	due := int64(s.clock.Since(s.start).Seconds() * float64(s.cfg.SampleRate))
	capacity := int64(len(s.ring.rows))
	if due-s.produced > capacity {
		s.produced = due - capacity
	}
	for ; s.produced < due; s.produced++ {
		s.ring.push(syntheticSample(s.produced, s.cfg.SampleRate))
	}
}

func (s *SyntheticSession) FetchSamples(channels []catalog.ChannelID, buf *samplebuf.Buffer) error {
	s.mu.Lock()
	connected := s.connected
	s.mu.Unlock()
	if !connected {
		return ErrNotConnected
	}
	return s.ring.drain(channels, buf)
}

func (s *SyntheticSession) Disconnect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.enabled = false
	return nil
}

// syntheticSample returns sample n across all channels: a 4200 µV baseline
// with a 10 Hz alpha rhythm phase-shifted per channel.
func syntheticSample(n int64, rate int) []float64 {
	t := float64(n) / float64(rate)
	row := make([]float64, catalog.Default().RawCount())
	for ch := range row {
		phase := float64(ch) * math.Pi / 7
		row[ch] = 4200 + 20*math.Sin(2*math.Pi*10*t+phase) + 4*math.Sin(2*math.Pi*22*t)
	}
	return row
}

// syntheticState returns the k-th state update. Expressions cycle through
// neutral, each single expression and one combined blink+frown. Metric
// bounds are degenerate for the first update, as on a device whose models
// have not yet calibrated.
func syntheticState(k int) *Snapshot {
	snap := &Snapshot{}
	const power = 0.6
	switch k % 9 {
	case 1:
		snap.Blink = true
	case 2:
		snap.LeftWink = true
	case 3:
		snap.RightWink = true
	case 4:
		snap.Upper, snap.UpperPower = features.ActionSurprise, power
	case 5:
		snap.Upper, snap.UpperPower = features.ActionFrown, power
	case 6:
		snap.Lower, snap.LowerPower = features.ActionClench, power
	case 7:
		snap.Lower, snap.LowerPower = features.ActionSmile, power
	case 8:
		snap.Blink = true
		snap.Upper, snap.UpperPower = features.ActionFrown, power
	}
	for m := range snap.Metrics {
		raw := 0.5 + 0.45*math.Sin(float64(k)/10+float64(m))
		if k < 2 {
			snap.Metrics[m] = MetricParams{Raw: raw, Min: raw, Max: raw}
			continue
		}
		snap.Metrics[m] = MetricParams{Raw: raw, Min: 0.05, Max: 0.95}
	}
	return snap
}
