package stream

import (
	"slices"
	"sync"
)

// MockSink records declarations and rows.
type MockSink struct {
	mu sync.Mutex

	// PublishErr, when set, is returned by every PublishRow. The row is
	// still recorded in Failed.
	PublishErr error
	DeclareErr error

	Declared []Info
	Rows     [][]float64
	Failed   [][]float64
	Closed   bool
}

var _ Sink = (*MockSink)(nil)

func (m *MockSink) Declare(info Info) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Declared = append(m.Declared, info)
	return m.DeclareErr
}

func (m *MockSink) PublishRow(values []float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := slices.Clone(values)
	if m.PublishErr != nil {
		m.Failed = append(m.Failed, row)
		return m.PublishErr
	}
	m.Rows = append(m.Rows, row)
	return nil
}

func (m *MockSink) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return nil
}

// Published returns a copy of the rows accepted so far.
func (m *MockSink) Published() [][]float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.Rows)
}
