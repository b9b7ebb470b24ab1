package device

import (
	"fmt"
	"sync"

	"github.com/banshee-data/biostream/internal/catalog"
	"github.com/banshee-data/biostream/internal/samplebuf"
)

// sampleRing is the device-side raw sample buffer. Each entry is one sample
// across all channels indexed by catalog.ChannelID. When full, the oldest
// samples are discarded, as the headset firmware does.
type sampleRing struct {
	mu      sync.Mutex
	rows    [][]float64
	head    int
	n       int
	dropped uint64
}

func newSampleRing(capacity int) *sampleRing {
	if capacity < 1 {
		capacity = 1
	}
	return &sampleRing{rows: make([][]float64, capacity)}
}

func (r *sampleRing) push(row []float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tail := (r.head + r.n) % len(r.rows)
	r.rows[tail] = row
	if r.n == len(r.rows) {
		r.head = (r.head + 1) % len(r.rows)
		r.dropped++
		return
	}
	r.n++
}

func (r *sampleRing) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n
}

func (r *sampleRing) droppedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// drain moves the oldest buf.Samples() entries into buf.
func (r *sampleRing) drain(channels []catalog.ChannelID, buf *samplebuf.Buffer) error {
	if buf.Channels() != len(channels) {
		return fmt.Errorf("device: buffer has %d channels, %d requested", buf.Channels(), len(channels))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	want := buf.Samples()
	if want > r.n {
		return fmt.Errorf("%w: want %d, have %d", ErrShortRead, want, r.n)
	}
	for s := 0; s < want; s++ {
		row := r.rows[r.head]
		r.rows[r.head] = nil
		r.head = (r.head + 1) % len(r.rows)
		r.n--
		for i, id := range channels {
			if int(id) < len(row) {
				buf.Set(i, s, row[id])
			}
		}
	}
	return nil
}
