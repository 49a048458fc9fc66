package fake

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Source is an mdk.Source which generates encoded MARC 21 records.
type Source struct {
	mu  sync.Mutex
	max uint64
	n   uint64
	rg  *RecordGenerator
	buf bytes.Buffer
	enc *mdk.Encoder
}

// NewSource creates a new Source with the given random seed which stops
// after max records. A max of 0 never stops. Using the same seed gives the
// same series of records on a given version of Go.
func NewSource(seed int64, max uint64) *Source {
	s := &Source{
		max: max,
		rg:  NewRecordGenerator(seed),
	}
	s.enc = mdk.NewEncoder(&s.buf, mdk.MARC21)
	return s
}

// Record implements mdk.Source and returns a *mdk.WorkItem holding one raw
// record.
func (s *Source) Record() (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.max > 0 && s.n >= s.max {
		return nil, io.EOF
	}
	n := s.n
	s.n++
	label, groups := s.rg.Record(n)
	s.buf.Reset()
	if err := s.enc.Encode(label, groups); err != nil {
		return nil, errors.Wrapf(err, "encoding record %d", n)
	}
	return &mdk.WorkItem{
		Raw:     append([]byte(nil), s.buf.Bytes()...),
		Origin:  fmt.Sprintf("fake#%d", n),
		Framing: "marc21",
	}, nil
}
