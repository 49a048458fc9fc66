package termstat

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pilosa/mdk/test"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func TestCollector(t *testing.T) {
	out := &syncBuffer{}
	c := NewCollectorInterval(out, time.Hour)
	c.Count("records.built", 2, 1)
	c.Gauge("queue.workers", 4, 1)
	c.Count("records.built", 3, 1)
	c.Timing("records.build", 10*time.Millisecond, 1)
	c.Timing("records.build", 30*time.Millisecond, 1)
	c.Count("records.sampled", 1, 0)

	test.MustBe(t, c.Value("records.built"), int64(5))
	test.MustBe(t, c.Value("records.sampled"), int64(0))
	test.MustBe(t, c.Mean("records.build"), 20*time.Millisecond)
	test.MustBe(t, c.Mean("missing"), time.Duration(0))

	line := c.Line()
	if !strings.HasSuffix(line, "records.built: 5 queue.workers: 4 records.build: 20ms") {
		t.Fatalf("unexpected line %q", line)
	}

	test.ErrNil(t, c.Close(), "Close")
	test.ErrNil(t, c.Close(), "second Close")
	if got := out.String(); !strings.HasPrefix(got, "\r") || strings.Count(got, "records.built") != 1 {
		t.Fatalf("expected one final write, got %q", got)
	}
}
