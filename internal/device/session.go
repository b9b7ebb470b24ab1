// Package device defines the acquisition device capability consumed by the
// acquisition loop, and the sessions that implement it: a synthetic headset
// for development, a JSON-lines gateway on a serial port, and a scripted mock.
package device

import (
	"context"
	"errors"
	"fmt"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/features"
	"github.com/banshee-data/biostream/internal/samplebuf"
)

var (
	// ErrNotConnected is returned by operations issued before Connect or
	// after Disconnect.
	ErrNotConnected = errors.New("device: session not connected")
	// ErrShortRead is returned when fewer samples are buffered than requested.
	ErrShortRead = errors.New("device: fewer samples buffered than requested")
)

// Session is a connected acquisition device.
type Session interface {
	// Connect establishes the session. Failure is fatal to the caller.
	Connect(ctx context.Context) error
	// PollEvent returns the next pending event without blocking. An event
	// of kind EventNone means nothing is pending; a non-nil error is a
	// non-ok poll status.
	PollEvent() (Event, error)
	// EnableAcquisition starts raw data collection for userID.
	EnableAcquisition(userID uint32) error
	// PendingSampleCount reports how many raw samples are buffered.
	PendingSampleCount() (int, error)
	// FetchSamples moves the oldest buf.Samples() buffered samples into buf.
	// Row i of buf receives the channel addressed by channels[i].
	FetchSamples(channels []catalog.ChannelID, buf *samplebuf.Buffer) error
	// Disconnect releases the session. It is safe to call after a failed
	// Connect and more than once.
	Disconnect() error
}

// EventKind discriminates Event.
type EventKind int

const (
	EventNone EventKind = iota
	EventUserAdded
	EventUserRemoved
	EventStateUpdated
	EventOther
)

func (k EventKind) String() string {
	switch k {
	case EventNone:
		return "none"
	case EventUserAdded:
		return "user_added"
	case EventUserRemoved:
		return "user_removed"
	case EventStateUpdated:
		return "state_updated"
	case EventOther:
		return "other"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one device notification. UserID is set for user events, State for
// state updates.
type Event struct {
	Kind   EventKind
	UserID uint32
	State  features.State
}

// NoEvent is returned when the device has nothing pending.
var NoEvent = Event{Kind: EventNone}

// UserAdded builds a user-added event.
func UserAdded(id uint32) Event { return Event{Kind: EventUserAdded, UserID: id} }

// UserRemoved builds a user-removed event.
func UserRemoved(id uint32) Event { return Event{Kind: EventUserRemoved, UserID: id} }

// StateUpdated builds a state-updated event.
func StateUpdated(s features.State) Event { return Event{Kind: EventStateUpdated, State: s} }

// MetricParams is one metric's raw score and normalisation bounds.
type MetricParams struct {
	Raw float64 `json:"raw"`
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Snapshot is a device-state value. It implements features.State.
type Snapshot struct {
	Blink      bool
	LeftWink   bool
	RightWink  bool
	Upper      features.FaceAction
	UpperPower float64
	Lower      features.FaceAction
	LowerPower float64
	Metrics    [catalog.MetricCount]MetricParams
}

var _ features.State = (*Snapshot)(nil)

func (s *Snapshot) IsBlink() bool     { return s.Blink }
func (s *Snapshot) IsLeftWink() bool  { return s.LeftWink }
func (s *Snapshot) IsRightWink() bool { return s.RightWink }

func (s *Snapshot) UpperFaceAction() (features.FaceAction, float64) {
	return s.Upper, s.UpperPower
}

func (s *Snapshot) LowerFaceAction() (features.FaceAction, float64) {
	return s.Lower, s.LowerPower
}

func (s *Snapshot) MetricParams(m catalog.Metric) (raw, min, max float64) {
	p := s.Metrics[m]
	return p.Raw, p.Min, p.Max
}
