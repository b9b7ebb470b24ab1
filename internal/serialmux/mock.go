package serialmux

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// PipePort implements SerialPorter over an in-memory pipe. Lines passed to
// Feed are read back by the mux; commands written by the mux are captured.
type PipePort struct {
	r *io.PipeReader
	w *io.PipeWriter

	mu      sync.Mutex
	written bytes.Buffer
	closed  bool

	// WriteErr, when set, is returned by every Write.
	WriteErr error
}

// NewPipePort returns an open PipePort.
func NewPipePort() *PipePort {
	r, w := io.Pipe()
	return &PipePort{r: r, w: w}
}

// NewMockSerialMux creates a SerialMux over a PipePort and returns both.
func NewMockSerialMux(handshake ...string) (*SerialMux[*PipePort], *PipePort) {
	port := NewPipePort()
	return NewSerialMux(port, handshake...), port
}

func (p *PipePort) Read(b []byte) (int, error) { return p.r.Read(b) }

func (p *PipePort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.WriteErr != nil {
		return 0, p.WriteErr
	}
	return p.written.Write(b)
}

// Feed delivers one line to the reader side. It blocks until the mux reads it.
func (p *PipePort) Feed(line string) error {
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	_, err := p.w.Write([]byte(line))
	return err
}

// Commands returns the command lines written so far.
func (p *PipePort) Commands() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	text := strings.TrimSuffix(p.written.String(), "\n")
	if text == "" {
		return nil
	}
	return strings.Split(text, "\n")
}

// Closed reports whether Close was called.
func (p *PipePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// Close ends both sides of the pipe.
func (p *PipePort) Close() error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.w.Close()
	return p.r.Close()
}
