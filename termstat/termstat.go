// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package termstat provides a stats implementation which periodically writes
// the pipeline counters to a terminal or log. It is meant for watching an
// ingest run in lieu of an external collector like Prometheus.
package termstat

import (
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"
)

type timing struct {
	n     int64
	total time.Duration
}

// Collector collects stats and prints them on one line. Counts are summed,
// gauges show their last value and timings their mean.
type Collector struct {
	lock    sync.Mutex
	names   []string
	counts  map[string]int64
	gauges  map[string]float64
	timings map[string]*timing
	changed bool
	start   time.Time
	out     io.Writer
	done    chan struct{}
	once    sync.Once
}

// NewCollector initializes and returns a new Collector writing every two
// seconds.
func NewCollector(out io.Writer) *Collector {
	return NewCollectorInterval(out, 2*time.Second)
}

// NewCollectorInterval is NewCollector with a custom write interval.
func NewCollectorInterval(out io.Writer, interval time.Duration) *Collector {
	ts := &Collector{
		counts:  make(map[string]int64),
		gauges:  make(map[string]float64),
		timings: make(map[string]*timing),
		start:   time.Now(),
		out:     out,
		done:    make(chan struct{}),
	}
	go func() {
		tick := time.NewTicker(interval)
		defer tick.Stop()
		for {
			select {
			case <-tick.C:
				ts.write()
			case <-ts.done:
				return
			}
		}
	}()
	return ts
}

// Close writes the final stats and stops the background writer.
func (t *Collector) Close() error {
	t.once.Do(func() {
		close(t.done)
		t.write()
		fmt.Fprintln(t.out)
	})
	return nil
}

// seen must be called with the lock held.
func (t *Collector) seen(name string, known bool) {
	if !known {
		t.names = append(t.names, name)
	}
	t.changed = true
}

// Count adds value to the named stat at the specified rate.
func (t *Collector) Count(name string, value int64, rate float64, tags ...string) {
	if rate < 1 && rand.Float64() > rate {
		return
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	_, ok := t.counts[name]
	t.seen(name, ok)
	t.counts[name] += value
}

// Value returns the current count of name.
func (t *Collector) Value(name string) int64 {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.counts[name]
}

// Gauge records the last value of the named stat.
func (t *Collector) Gauge(name string, value float64, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	_, ok := t.gauges[name]
	t.seen(name, ok)
	t.gauges[name] = value
}

// Timing tracks the mean duration of the named stat.
func (t *Collector) Timing(name string, value time.Duration, rate float64, tags ...string) {
	t.lock.Lock()
	defer t.lock.Unlock()
	tm, ok := t.timings[name]
	t.seen(name, ok)
	if !ok {
		tm = &timing{}
		t.timings[name] = tm
	}
	tm.n++
	tm.total += value
}

// Mean returns the mean of the timings reported for name.
func (t *Collector) Mean(name string) time.Duration {
	t.lock.Lock()
	defer t.lock.Unlock()
	tm, ok := t.timings[name]
	if !ok || tm.n == 0 {
		return 0
	}
	return tm.total / time.Duration(tm.n)
}

// Histogram does nothing.
func (t *Collector) Histogram(name string, value float64, rate float64, tags ...string) {}

// Set does nothing.
func (t *Collector) Set(name string, value string, rate float64, tags ...string) {}

// Line renders the current stats in the order they were first reported.
func (t *Collector) Line() string {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.line()
}

func (t *Collector) line() string {
	parts := make([]string, 0, len(t.names)+1)
	parts = append(parts, time.Since(t.start).Round(time.Second).String())
	for _, name := range t.names {
		if v, ok := t.counts[name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %d", name, v))
		} else if v, ok := t.gauges[name]; ok {
			parts = append(parts, fmt.Sprintf("%s: %g", name, v))
		} else if tm := t.timings[name]; tm != nil && tm.n > 0 {
			parts = append(parts, fmt.Sprintf("%s: %v", name, tm.total/time.Duration(tm.n)))
		}
	}
	return strings.Join(parts, " ")
}

func (t *Collector) write() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if !t.changed {
		return
	}
	t.changed = false
	fmt.Fprint(t.out, "\r"+t.line())
}
