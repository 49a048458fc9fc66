package json

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Sink writes every record graph as one line of JSON-LD.
type Sink struct {
	// Context is added as "@context" to every document if set.
	Context mdk.Context

	mu sync.Mutex
	w  *bufio.Writer
	c  io.Closer
}

// NewSink creates a Sink writing to w. If w is an io.Closer it is closed
// by Close.
func NewSink(w io.Writer) *Sink {
	s := &Sink{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s
}

// Output implements mdk.Sink.
func (s *Sink) Output(ctx context.Context, e *mdk.Entity) error {
	var v interface{} = e
	if s.Context != nil {
		v = mdk.EntityWithContext{Entity: e, Context: s.Context}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "marshaling %s", e.Subject)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.w.Write(append(b, '\n')); err != nil {
		return errors.Wrap(err, "writing record")
	}
	return nil
}

// Close flushes buffered output and closes the underlying writer.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.w.Flush(); err != nil {
		return errors.Wrap(err, "flushing")
	}
	if s.c != nil {
		return errors.Wrap(s.c.Close(), "closing")
	}
	return nil
}
