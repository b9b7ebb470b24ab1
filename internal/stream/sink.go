package stream

import "errors"

var (
	// ErrRowLength is returned when a row does not match the declared
	// channel count.
	ErrRowLength = errors.New("stream: row length does not match declaration")
	// ErrNotDeclared is returned when publishing to a group with no sink.
	ErrNotDeclared = errors.New("stream: group not declared")
	// ErrDropped is returned by asynchronous sinks whose queue is full.
	ErrDropped = errors.New("stream: row dropped, queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("stream: sink closed")
)

// Sink is one outbound stream. Declare is called once before any row.
type Sink interface {
	Declare(info Info) error
	PublishRow(values []float64) error
	Close() error
}

// Tee fans one stream out to several sinks.
type Tee []Sink

var _ Sink = Tee(nil)

// Declare declares every sink and returns the first failure.
func (t Tee) Declare(info Info) error {
	var first error
	for _, s := range t {
		if err := s.Declare(info); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// PublishRow forwards values to every sink, even after a failure, and
// returns the first failure.
func (t Tee) PublishRow(values []float64) error {
	var first error
	for _, s := range t {
		if err := s.PublishRow(values); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (t Tee) Close() error {
	errs := make([]error, 0, len(t))
	for _, s := range t {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}
