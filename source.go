package mdk

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Source is the interface for getting raw data one record at a time.
// Implementations of Source should be thread safe. Record returns either a
// framed raw record ([]byte) or a pre-grouped *WorkItem, and io.EOF when
// the source is exhausted.
type Source interface {
	Record() (interface{}, error)
}

// NamedReadCloser is a stream of record data with a name (a file name, an
// object key) and optional metadata about it.
type NamedReadCloser interface {
	io.ReadCloser
	Name() string
	Meta() map[string]interface{}
}

// RawSource hands out streams one after another, returning io.EOF when there
// are no more. Implementations must be threadsafe.
type RawSource interface {
	NextReader() (NamedReadCloser, error)
}

// RecordReader splits a byte stream into raw records according to the
// framing rules without decoding them. Producers use it so that decoding
// happens on the workers.
type RecordReader struct {
	rules   FramingRules
	br      *bufio.Reader
	offset  int64
	pending []byte
}

// NewRecordReader wraps r.
func NewRecordReader(r io.Reader, rules FramingRules) *RecordReader {
	return &RecordReader{
		rules: rules,
		br:    bufio.NewReaderSize(r, 64*1024),
	}
}

// Next returns the next raw record and its byte offset in the stream. A
// trailing record without terminator is returned as is; the Decoder reports
// it as truncated.
func (r *RecordReader) Next() ([]byte, int64, error) {
	if r.rules.Mode == Line {
		return r.nextLines()
	}
	for {
		c, err := r.br.ReadByte()
		if err != nil {
			return nil, r.offset, err
		}
		if c != '\n' && c != '\r' {
			_ = r.br.UnreadByte()
			break
		}
		r.offset++
	}
	start := r.offset
	rec, err := r.br.ReadBytes(r.rules.RecordTerminator)
	r.offset += int64(len(rec))
	if err == io.EOF && len(rec) > 0 {
		return rec, start, nil
	}
	if err != nil {
		return nil, start, err
	}
	return rec, start, nil
}

func (r *RecordReader) readLine() ([]byte, error) {
	if r.pending != nil {
		line := r.pending
		r.pending = nil
		return line, nil
	}
	line, err := r.br.ReadBytes('\n')
	if len(line) > 0 && err == io.EOF {
		err = nil
	}
	return line, err
}

func (r *RecordReader) nextLines() ([]byte, int64, error) {
	var buf bytes.Buffer
	start := r.offset
	for {
		line, err := r.readLine()
		if err == io.EOF {
			if buf.Len() > 0 {
				return buf.Bytes(), start, nil
			}
			return nil, start, io.EOF
		} else if err != nil {
			return nil, start, err
		}
		trimmed := bytes.TrimRight(line, "\r\n")
		if len(trimmed) == 0 {
			r.offset += int64(len(line))
			if buf.Len() > 0 {
				return buf.Bytes(), start, nil
			}
			start = r.offset
			continue
		}
		if buf.Len() > 0 && r.rules.LinePrefix != "" && bytes.HasPrefix(trimmed, []byte(r.rules.LinePrefix)) {
			r.pending = line
			return buf.Bytes(), start, nil
		}
		r.offset += int64(len(line))
		buf.Write(line)
		if bytes.IndexByte(trimmed, r.rules.RecordTerminator) >= 0 {
			return buf.Bytes(), start, nil
		}
	}
}

// ReaderSource is a Source of raw records framed from an io.Reader.
type ReaderSource struct {
	mu sync.Mutex
	rr *RecordReader
}

// NewReaderSource creates a Source reading from r.
func NewReaderSource(r io.Reader, rules FramingRules) *ReaderSource {
	return &ReaderSource{rr: NewRecordReader(r, rules)}
}

// Record implements Source, returning []byte records.
func (s *ReaderSource) Record() (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, _, err := s.rr.Next()
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AutoFraming is the framing name that makes a RawRecordSource detect the
// framing of each stream from its first bytes.
const AutoFraming = "auto"

// detectWindow is how many bytes DetectFraming gets to look at.
const detectWindow = 512

// RawRecordSource frames raw records out of every stream of a RawSource.
// Each record becomes a *WorkItem whose Origin is name#offset and whose
// Framing names the preset used, so streams of different framings can be
// mixed.
type RawRecordSource struct {
	mu      sync.Mutex
	rs      RawSource
	framing string

	cur   NamedReadCloser
	rr    *RecordReader
	rules FramingRules
}

// NewRawRecordSource creates a Source over rs. framing is a preset name or
// AutoFraming.
func NewRawRecordSource(rs RawSource, framing string) (*RawRecordSource, error) {
	if framing != AutoFraming {
		if _, err := Preset(framing); err != nil {
			return nil, err
		}
	}
	return &RawRecordSource{rs: rs, framing: framing}, nil
}

// Record implements Source.
func (s *RawRecordSource) Record() (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		if s.rr == nil {
			if err := s.open(); err != nil {
				return nil, err
			}
		}
		rec, offset, err := s.rr.Next()
		if err == io.EOF {
			s.cur.Close()
			s.cur, s.rr = nil, nil
			continue
		} else if err != nil {
			return nil, errors.Wrapf(err, "reading %s", s.cur.Name())
		}
		return &WorkItem{
			Raw:     rec,
			Origin:  fmt.Sprintf("%s#%d", s.cur.Name(), offset),
			Framing: s.rules.Name,
		}, nil
	}
}

func (s *RawRecordSource) open() error {
	r, err := s.rs.NextReader()
	if err == io.EOF {
		return err
	} else if err != nil {
		return errors.Wrap(err, "getting next reader")
	}
	br := bufio.NewReaderSize(r, 64*1024)
	rules, err := s.detect(br)
	if err != nil {
		r.Close()
		return errors.Wrapf(err, "framing %s", r.Name())
	}
	s.cur, s.rules = r, rules
	s.rr = NewRecordReader(br, rules)
	return nil
}

func (s *RawRecordSource) detect(br *bufio.Reader) (FramingRules, error) {
	if s.framing != AutoFraming {
		return Preset(s.framing)
	}
	prefix, err := br.Peek(detectWindow)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return FramingRules{}, err
	}
	if len(bytes.TrimSpace(prefix)) == 0 {
		// nothing to frame
		return MARC21, nil
	}
	return DetectFraming(prefix)
}
