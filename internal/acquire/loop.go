// Package acquire runs the acquisition loop: it polls the device session for
// events, tracks whether a user is ready, forwards raw samples, and derives
// the expression and metric rows on every state update.
package acquire

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/device"
	"github.com/banshee-data/biostream/internal/features"
	"github.com/banshee-data/biostream/internal/monitoring"
	"github.com/banshee-data/biostream/internal/samplebuf"
	"github.com/banshee-data/biostream/internal/stream"
	"github.com/banshee-data/biostream/internal/timeutil"
)

// ErrConnect is returned by Run when the device session cannot be
// established. The loop never starts in that case.
var ErrConnect = errors.New("acquire: failed to connect to device")

// DefaultInterval is the pause between iterations.
const DefaultInterval = 50 * time.Millisecond

// Publisher accepts one row for a stream group.
type Publisher interface {
	Publish(g stream.Group, row []float64) error
}

// Observer is told about readiness transitions. Calls are made on the loop
// goroutine and must return promptly.
type Observer interface {
	UserAdded(userID uint32)
	UserRemoved(userID uint32)
}

// ReadinessState is owned by one Run. ActiveUserID survives removal; HasUser
// reports whether any user was ever added.
type ReadinessState struct {
	Ready        bool
	ActiveUserID uint32
	HasUser      bool
}

// Options configures a Loop. Zero values select defaults.
type Options struct {
	Interval  time.Duration
	Clock     timeutil.Clock
	Catalog   *catalog.Catalog
	Observers []Observer
}

// Iteration summarises one Step.
type Iteration struct {
	Event        device.EventKind
	PollErr      error
	Samples      int
	StateUpdated bool
	// Failed counts rows the publisher rejected.
	Failed int
}

// Stats are cumulative loop counters, safe to read while Run is active.
type Stats struct {
	Iterations  uint64 `json:"iterations"`
	PollErrors  uint64 `json:"poll_errors"`
	RawRows     uint64 `json:"raw_rows"`
	FeatureRows uint64 `json:"feature_rows"`
	MetricRows  uint64 `json:"metric_rows"`
	Failed      uint64 `json:"publish_failures"`
}

// Loop is the single-goroutine acquisition state machine.
type Loop struct {
	session   device.Session
	pub       Publisher
	cat       *catalog.Catalog
	channels  []catalog.ChannelID
	clock     timeutil.Clock
	interval  time.Duration
	observers []Observer

	iterations  atomic.Uint64
	pollErrors  atomic.Uint64
	rawRows     atomic.Uint64
	featureRows atomic.Uint64
	metricRows  atomic.Uint64
	failed      atomic.Uint64
}

// New returns a Loop reading from session and publishing to pub.
func New(session device.Session, pub Publisher, opts Options) *Loop {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.Catalog == nil {
		opts.Catalog = catalog.Default()
	}
	return &Loop{
		session:   session,
		pub:       pub,
		cat:       opts.Catalog,
		channels:  opts.Catalog.ChannelIDs(),
		clock:     opts.Clock,
		interval:  opts.Interval,
		observers: opts.Observers,
	}
}

// Run connects the session and iterates until ctx is cancelled. Cancellation
// is checked once per iteration, before any work. Disconnect is called on
// every return path. A connect failure is returned wrapped in ErrConnect;
// cooperative stop returns nil.
func (l *Loop) Run(ctx context.Context) (err error) {
	if cerr := l.session.Connect(ctx); cerr != nil {
		if derr := l.session.Disconnect(); derr != nil {
			monitoring.Logf("disconnect after failed connect: %v", derr)
		}
		return fmt.Errorf("%w: %v", ErrConnect, cerr)
	}
	defer func() {
		if derr := l.session.Disconnect(); derr != nil && err == nil {
			err = fmt.Errorf("failed to disconnect from device: %w", derr)
		}
	}()

	var st ReadinessState
	for ctx.Err() == nil {
		l.Step(&st)
		l.clock.Sleep(l.interval)
	}
	return nil
}

// Step performs one iteration without sleeping: at most one event poll, the
// readiness update, one raw pull and one feature pull, in that order.
func (l *Loop) Step(st *ReadinessState) Iteration {
	l.iterations.Add(1)
	var it Iteration

	ev, err := l.session.PollEvent()
	if err != nil {
		// A failed poll only skips event-derived work.
		l.pollErrors.Add(1)
		it.PollErr = err
		ev = device.NoEvent
	}
	it.Event = ev.Kind

	switch ev.Kind {
	case device.EventUserAdded:
		l.userAdded(st, ev.UserID)
	case device.EventUserRemoved:
		l.userRemoved(st, ev.UserID)
	case device.EventStateUpdated:
		it.StateUpdated = ev.State != nil
	case device.EventNone, device.EventOther:
	}

	if !st.Ready {
		return it
	}

	it.Samples, it.Failed = l.pullRaw()
	if it.StateUpdated {
		it.Failed += l.pullFeatures(ev.State)
	}
	return it
}

func (l *Loop) userAdded(st *ReadinessState, userID uint32) {
	st.Ready = true
	st.ActiveUserID = userID
	st.HasUser = true
	monitoring.Logf("User %d Successfully Added", userID)
	if err := l.session.EnableAcquisition(userID); err != nil {
		monitoring.Logf("failed to enable acquisition for user %d: %v", userID, err)
	}
	for _, o := range l.observers {
		o.UserAdded(userID)
	}
}

func (l *Loop) userRemoved(st *ReadinessState, userID uint32) {
	st.Ready = false
	monitoring.Logf("User %d Removed", userID)
	for _, o := range l.observers {
		o.UserRemoved(userID)
	}
}

// pullRaw forwards every pending sample as one raw row. The buffer is sized
// from this iteration's count and dropped on return.
func (l *Loop) pullRaw() (samples, failed int) {
	n, err := l.session.PendingSampleCount()
	if err != nil || n <= 0 {
		return 0, 0
	}
	buf, err := samplebuf.New(len(l.channels), n)
	if err != nil {
		return 0, 0
	}
	if err := l.session.FetchSamples(l.channels, buf); err != nil {
		monitoring.Logf("failed to fetch %d samples: %v", n, err)
		return 0, 0
	}
	buf.Rows(func(_ int, row []float64) {
		if l.publish(stream.Raw, row) {
			l.rawRows.Add(1)
		} else {
			failed++
		}
	})
	return n, failed
}

func (l *Loop) pullFeatures(s features.State) (failed int) {
	expressions, metrics := features.Derive(s)
	if l.publish(stream.Features, expressions) {
		l.featureRows.Add(1)
	} else {
		failed++
	}
	if l.publish(stream.Metrics, metrics) {
		l.metricRows.Add(1)
	} else {
		failed++
	}
	return failed
}

// publish reports success. Failures are logged by the publisher.
func (l *Loop) publish(g stream.Group, row []float64) bool {
	if err := l.pub.Publish(g, row); err != nil {
		l.failed.Add(1)
		return false
	}
	return true
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Iterations:  l.iterations.Load(),
		PollErrors:  l.pollErrors.Load(),
		RawRows:     l.rawRows.Load(),
		FeatureRows: l.featureRows.Load(),
		MetricRows:  l.metricRows.Load(),
		Failed:      l.failed.Load(),
	}
}
