package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/samplebuf"
)

// MockStep scripts one PollEvent call and the samples that become pending
// with it.
type MockStep struct {
	Event   Event
	PollErr error
	// Samples are rows indexed by catalog.ChannelID.
	Samples [][]float64
	// PendingErr is returned by PendingSampleCount during this step.
	PendingErr error
}

// MockSession is a scripted Session for tests. Each PollEvent advances to the
// next step; once the script is exhausted PollEvent returns NoEvent and
// OnExhausted (if set) is called once.
type MockSession struct {
	mu sync.Mutex

	Steps       []MockStep
	ConnectErr  error
	FetchErr    error
	OnExhausted func()

	step      int
	pending   [][]float64
	connected bool
	exhausted bool

	ConnectCalls    int
	DisconnectCalls int
	PollCalls       int
	Enabled         []uint32
	PendingCalls    int
	// Fetches records the sample count of every FetchSamples call.
	Fetches []int
}

var _ Session = (*MockSession)(nil)

// NewMockSession returns a MockSession running steps.
func NewMockSession(steps ...MockStep) *MockSession {
	return &MockSession{Steps: steps}
}

func (m *MockSession) Connect(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConnectCalls++
	if m.ConnectErr != nil {
		return m.ConnectErr
	}
	m.connected = true
	return nil
}

func (m *MockSession) PollEvent() (Event, error) {
	m.mu.Lock()
	m.PollCalls++
	if m.step >= len(m.Steps) {
		m.pending = nil
		hook := m.OnExhausted
		fire := !m.exhausted
		m.exhausted = true
		m.mu.Unlock()
		if fire && hook != nil {
			hook()
		}
		return NoEvent, nil
	}
	st := m.Steps[m.step]
	m.step++
	m.pending = st.Samples
	m.mu.Unlock()
	if st.PollErr != nil {
		return NoEvent, st.PollErr
	}
	return st.Event, nil
}

func (m *MockSession) current() *MockStep {
	if m.step == 0 || m.step > len(m.Steps) {
		return nil
	}
	return &m.Steps[m.step-1]
}

func (m *MockSession) EnableAcquisition(userID uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Enabled = append(m.Enabled, userID)
	return nil
}

func (m *MockSession) PendingSampleCount() (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PendingCalls++
	if st := m.current(); st != nil && st.PendingErr != nil && !m.exhausted {
		return 0, st.PendingErr
	}
	return len(m.pending), nil
}

func (m *MockSession) FetchSamples(channels []catalog.ChannelID, buf *samplebuf.Buffer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Fetches = append(m.Fetches, buf.Samples())
	if m.FetchErr != nil {
		return m.FetchErr
	}
	if buf.Samples() > len(m.pending) {
		return fmt.Errorf("%w: want %d, have %d", ErrShortRead, buf.Samples(), len(m.pending))
	}
	for s := 0; s < buf.Samples(); s++ {
		for i, id := range channels {
			buf.Set(i, s, m.pending[s][id])
		}
	}
	m.pending = m.pending[buf.Samples():]
	return nil
}

func (m *MockSession) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DisconnectCalls++
	m.connected = false
	return nil
}

// Connected reports whether the session is between Connect and Disconnect.
func (m *MockSession) Connected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}
