package mdk

import (
	"io"
	"log"
	"time"
)

// Stat names reported by the Pipeline and the JobQueue.
const (
	StatRecordsBuilt     = "records.built"
	StatRecordsBuild     = "records.build"
	StatRecordsMalformed = "records.malformed"
	StatRecordsFailed    = "records.failed"
	StatRecordsDropped   = "records.dropped"
	StatKeysUnmapped     = "keys.unmapped"

	StatQueueWorkers   = "queue.workers"
	StatQueueSubmitted = "queue.submitted"
	StatQueueSaturated = "queue.saturated"
	StatQueueCrashed   = "queue.crashed"
	StatQueueFailed    = "queue.failed"
	StatQueueExec      = "queue.exec"
)

// Statter receives counters and timings from the decoding pipeline and its
// workers. Implementations must be safe for concurrent use.
type Statter interface {
	Count(name string, value int64, rate float64, tags ...string)
	Gauge(name string, value float64, rate float64, tags ...string)
	Histogram(name string, value float64, rate float64, tags ...string)
	Set(name string, value string, rate float64, tags ...string)
	Timing(name string, value time.Duration, rate float64, tags ...string)
}

// NopStatter does nothing.
type NopStatter struct{}

func (NopStatter) Count(name string, value int64, rate float64, tags ...string)          {}
func (NopStatter) Gauge(name string, value float64, rate float64, tags ...string)        {}
func (NopStatter) Histogram(name string, value float64, rate float64, tags ...string)    {}
func (NopStatter) Set(name string, value string, rate float64, tags ...string)           {}
func (NopStatter) Timing(name string, value time.Duration, rate float64, tags ...string) {}

// Logger is what the pipeline, the sources and the sinks log to. Debugf is
// for per record detail.
type Logger interface {
	Printf(format string, v ...interface{})
	Debugf(format string, v ...interface{})
}

// NewLogger returns a StdLogger writing to w, or a VerboseLogger when
// verbose is set.
func NewLogger(w io.Writer, verbose bool) Logger {
	l := log.New(w, "", log.LstdFlags)
	if verbose {
		return VerboseLogger{Logger: l}
	}
	return StdLogger{Logger: l}
}

// NopLogger logs nothing.
type NopLogger struct{}

// Printf does nothing.
func (NopLogger) Printf(format string, v ...interface{}) {}

// Debugf does nothing.
func (NopLogger) Debugf(format string, v ...interface{}) {}

// StdLogger only prints on Printf.
type StdLogger struct {
	*log.Logger
}

// Debugf implements Logger interface, but prints nothing.
func (StdLogger) Debugf(format string, v ...interface{}) {}

// VerboseLogger prints on both Printf and Debugf.
type VerboseLogger struct {
	*log.Logger
}

// Debugf implements Logger interface.
func (s VerboseLogger) Debugf(format string, v ...interface{}) {
	s.Logger.Printf(format, v...)
}
