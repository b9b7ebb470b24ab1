package stream

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/timeutil"
)

// failureLogInterval limits publish-failure logging per group.
const failureLogInterval = time.Second

// GroupStats is a snapshot of one group's counters.
type GroupStats struct {
	Group     string `json:"group"`
	Name      string `json:"name"`
	Channels  int    `json:"channels"`
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

type groupStream struct {
	info Info
	sink Sink

	published  uint64
	failed     uint64
	lastErr    error
	lastLog    time.Time
	suppressed uint64
}

// Publisher owns one declared sink per group. Publish is called from the
// acquisition loop; Stats and Preview may be called concurrently.
type Publisher struct {
	clock timeutil.Clock

	mu      sync.Mutex
	streams [groupCount]*groupStream
	preview *previewRing
}

// NewPublisher returns a Publisher keeping the last previewRows raw rows for
// the debug scope. A nil clock uses the real clock.
func NewPublisher(clock timeutil.Clock, previewRows int) *Publisher {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Publisher{clock: clock, preview: newPreviewRing(previewRows)}
}

// Declare declares info on sink and binds it to g.
func (p *Publisher) Declare(g Group, info Info, sink Sink) error {
	if g < 0 || g >= groupCount {
		return fmt.Errorf("stream: unknown group %v", g)
	}
	if info.ChannelCount != len(info.Channels) {
		return fmt.Errorf("stream %s declares %d channels but describes %d", info.Name, info.ChannelCount, len(info.Channels))
	}
	if err := sink.Declare(info); err != nil {
		return fmt.Errorf("failed to declare stream %s: %w", info.Name, err)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.streams[g] = &groupStream{info: info, sink: sink}
	rate := "irregular rate"
	if !info.Irregular() {
		rate = fmt.Sprintf("%g Hz", info.NominalRate)
	}
	monitoring.Logf("Declared %s stream %s: %d channels, %s", g, info.Name, info.ChannelCount, rate)
	return nil
}

// DeclareAll declares infos[g] on sinks[g] for every group.
func (p *Publisher) DeclareAll(infos []Info, sinks []Sink) error {
	if len(infos) != int(groupCount) || len(sinks) != int(groupCount) {
		return fmt.Errorf("stream: need %d declarations and sinks, got %d and %d", groupCount, len(infos), len(sinks))
	}
	for _, g := range Groups {
		if err := p.Declare(g, infos[g], sinks[g]); err != nil {
			return err
		}
	}
	return nil
}

// Info returns the declaration bound to g.
func (p *Publisher) Info(g Group) (Info, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if g < 0 || g >= groupCount || p.streams[g] == nil {
		return Info{}, false
	}
	return p.streams[g].info, true
}

// Publish forwards one row to g's sink. A sink failure is counted and
// logged, then returned; it never affects other groups.
func (p *Publisher) Publish(g Group, row []float64) error {
	p.mu.Lock()
	var st *groupStream
	if g >= 0 && g < groupCount {
		st = p.streams[g]
	}
	p.mu.Unlock()
	if st == nil {
		return fmt.Errorf("%w: %v", ErrNotDeclared, g)
	}
	if len(row) != st.info.ChannelCount {
		return fmt.Errorf("%w: %s got %d values, want %d", ErrRowLength, st.info.Name, len(row), st.info.ChannelCount)
	}

	err := st.sink.PublishRow(row)

	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		st.failed++
		st.lastErr = err
		p.logFailure(st, err)
		return err
	}
	st.published++
	if g == Raw {
		p.preview.push(row)
	}
	return nil
}

// logFailure logs at most once per failureLogInterval per stream.
func (p *Publisher) logFailure(st *groupStream, err error) {
	now := p.clock.Now()
	if !st.lastLog.IsZero() && now.Sub(st.lastLog) < failureLogInterval {
		st.suppressed++
		return
	}
	if st.suppressed > 0 {
		monitoring.Logf("publish to %s failed: %v (%d earlier failures not logged)", st.info.Name, err, st.suppressed)
	} else {
		monitoring.Logf("publish to %s failed: %v", st.info.Name, err)
	}
	st.lastLog = now
	st.suppressed = 0
}

// Stats returns per-group counters in group order. Undeclared groups are
// omitted.
func (p *Publisher) Stats() []GroupStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]GroupStats, 0, groupCount)
	for _, g := range Groups {
		st := p.streams[g]
		if st == nil {
			continue
		}
		s := GroupStats{
			Group:     g.String(),
			Name:      st.info.Name,
			Channels:  st.info.ChannelCount,
			Published: st.published,
			Failed:    st.failed,
		}
		if st.lastErr != nil {
			s.LastError = st.lastErr.Error()
		}
		out = append(out, s)
	}
	return out
}

// Preview returns copies of the most recent raw rows, oldest first.
func (p *Publisher) Preview() [][]float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.preview.rows()
}

// Close closes every declared sink.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for g, st := range p.streams {
		if st == nil {
			continue
		}
		if err := st.sink.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", st.info.Name, err))
		}
		p.streams[g] = nil
	}
	return errors.Join(errs...)
}

// previewRing keeps the last n rows.
type previewRing struct {
	buf  [][]float64
	next int
	full bool
}

func newPreviewRing(n int) *previewRing {
	if n < 0 {
		n = 0
	}
	return &previewRing{buf: make([][]float64, n)}
}

func (r *previewRing) push(row []float64) {
	if len(r.buf) == 0 {
		return
	}
	r.buf[r.next] = slices.Clone(row)
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
}

func (r *previewRing) rows() [][]float64 {
	if !r.full {
		return slices.Clone(r.buf[:r.next])
	}
	out := make([][]float64, 0, len(r.buf))
	out = append(out, r.buf[r.next:]...)
	return append(out, r.buf[:r.next]...)
}
