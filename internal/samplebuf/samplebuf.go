// Package samplebuf holds one polling iteration's worth of multi-channel raw
// samples. A Buffer is sized from the sample count the device just reported
// and is discarded at the end of the iteration; it is never resized or reused.
package samplebuf

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// ErrEmpty is returned when a buffer is requested with no channels or no
// samples.
var ErrEmpty = errors.New("samplebuf: zero-sized buffer")

// Buffer is a channels × samples matrix. Row i holds channel i, column j holds
// sample j, matching the device's buffer[channel][sample] addressing.
type Buffer struct {
	m *mat.Dense
}

// New allocates a zeroed buffer.
func New(channels, samples int) (*Buffer, error) {
	if channels <= 0 || samples <= 0 {
		return nil, fmt.Errorf("%w: %d channels x %d samples", ErrEmpty, channels, samples)
	}
	return &Buffer{m: mat.NewDense(channels, samples, nil)}, nil
}

// Channels returns the number of channels.
func (b *Buffer) Channels() int {
	r, _ := b.m.Dims()
	return r
}

// Samples returns the number of samples per channel.
func (b *Buffer) Samples() int {
	_, c := b.m.Dims()
	return c
}

// At returns sample s of channel ch.
func (b *Buffer) At(ch, s int) float64 { return b.m.At(ch, s) }

// Set stores sample s of channel ch.
func (b *Buffer) Set(ch, s int, v float64) { b.m.Set(ch, s, v) }

// SetChannel copies a full channel. len(values) must equal Samples.
func (b *Buffer) SetChannel(ch int, values []float64) {
	b.m.SetRow(ch, values)
}

// Channel copies channel ch into dst, allocating when dst is nil.
func (b *Buffer) Channel(ch int, dst []float64) []float64 {
	return mat.Row(dst, ch, b.m)
}

// Row returns sample s across all channels in channel order, allocating when
// dst is nil. This is the layout of one raw stream row.
func (b *Buffer) Row(s int, dst []float64) []float64 {
	return mat.Col(dst, s, b.m)
}

// Rows calls fn for every sample in order with a fresh row slice.
func (b *Buffer) Rows(fn func(s int, row []float64)) {
	for s := 0; s < b.Samples(); s++ {
		fn(s, b.Row(s, nil))
	}
}
