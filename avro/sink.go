package avro

import (
	"context"
	"io"
	"sync"

	"github.com/linkedin/goavro"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Sink appends every record graph to an Avro object container file.
type Sink struct {
	mu  sync.Mutex
	ocf *goavro.OCFWriter
	c   io.Closer
}

// NewSink writes the container header to w. compression is one of "null",
// "deflate" or "snappy"; empty means "null". If w is an io.Closer it is
// closed by Close.
func NewSink(w io.Writer, compression string) (*Sink, error) {
	if compression == "" {
		compression = goavro.CompressionNullLabel
	}
	ocf, err := goavro.NewOCFWriter(goavro.OCFConfig{
		W:               w,
		Schema:          Schema,
		CompressionName: compression,
	})
	if err != nil {
		return nil, errors.Wrap(err, "creating container writer")
	}
	s := &Sink{ocf: ocf}
	if c, ok := w.(io.Closer); ok {
		s.c = c
	}
	return s, nil
}

// Output implements mdk.Sink. Each graph is written as its own block.
func (s *Sink) Output(ctx context.Context, e *mdk.Entity) error {
	native, err := Native(e)
	if err != nil {
		return errors.Wrapf(err, "converting %s", e.Subject)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return errors.Wrapf(s.ocf.Append([]interface{}{native}), "appending %s", e.Subject)
}

// Close closes the underlying writer.
func (s *Sink) Close() error {
	if s.c != nil {
		return s.c.Close()
	}
	return nil
}
