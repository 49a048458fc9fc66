package mdk

import (
	"bytes"
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Sink receives finished record graphs. Implementations must be safe for
// concurrent use since every worker outputs to the same Sink.
type Sink interface {
	Output(ctx context.Context, e *Entity) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, e *Entity) error

// Output calls f.
func (f SinkFunc) Output(ctx context.Context, e *Entity) error { return f(ctx, e) }

// MultiSink outputs every graph to each of its sinks in order.
type MultiSink []Sink

// Output implements Sink.
func (m MultiSink) Output(ctx context.Context, e *Entity) error {
	for _, s := range m {
		if err := s.Output(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every sink implementing io.Closer and returns the first
// error.
func (m MultiSink) Close() error {
	var first error
	for _, s := range m {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}

// UnmappedKeyListener is told about every field group occurrence that no
// handler was registered for. It is called from worker goroutines.
type UnmappedKeyListener func(recordID, key string)

// UnmappedKeys collects unmapped keys with their occurrence counts. It is
// safe for concurrent use.
type UnmappedKeys struct {
	mu     sync.Mutex
	counts map[string]int
	order  []string
}

// NewUnmappedKeys creates an empty collector.
func NewUnmappedKeys() *UnmappedKeys {
	return &UnmappedKeys{counts: make(map[string]int)}
}

// Listen implements UnmappedKeyListener.
func (u *UnmappedKeys) Listen(recordID, key string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.counts[key]; !ok {
		u.order = append(u.order, key)
	}
	u.counts[key]++
}

// Count returns how often key was reported.
func (u *UnmappedKeys) Count(key string) int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.counts[key]
}

// Keys returns the reported keys sorted.
func (u *UnmappedKeys) Keys() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	keys := append([]string(nil), u.order...)
	sort.Strings(keys)
	return keys
}

// Pipeline turns WorkItems into record graphs. One Pipeline is shared by
// all workers; everything it holds is read-only or safe for concurrent use,
// and per-record state lives in a BuildState.
type Pipeline struct {
	rules         FramingRules
	index         *SpecificationIndex
	sink          Sink
	unmapped      UnmappedKeyListener
	format        string
	typ           string
	subjectPrefix string
	emitLeader    bool

	records *Nexter
	log     Logger
	stats   Statter
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// OptPipelineRules sets the framing of raw items. The default is MARC21.
func OptPipelineRules(r FramingRules) PipelineOption {
	return func(p *Pipeline) {
		p.rules = r
	}
}

// OptPipelineUnmapped sets the listener for unmapped keys.
func OptPipelineUnmapped(l UnmappedKeyListener) PipelineOption {
	return func(p *Pipeline) {
		p.unmapped = l
	}
}

// OptPipelineLabels attaches format and type labels to every graph.
func OptPipelineLabels(format, typ string) PipelineOption {
	return func(p *Pipeline) {
		p.format, p.typ = format, typ
	}
}

// OptPipelineSubjectPrefix is prepended to record identifiers to form
// subjects.
func OptPipelineSubjectPrefix(prefix string) PipelineOption {
	return func(p *Pipeline) {
		p.subjectPrefix = prefix
	}
}

// OptPipelineLeader dispatches the leader as a pseudo group under LeaderTag
// before the fields of each record.
func OptPipelineLeader(emit bool) PipelineOption {
	return func(p *Pipeline) {
		p.emitLeader = emit
	}
}

// OptPipelineLogger sets the logger.
func OptPipelineLogger(l Logger) PipelineOption {
	return func(p *Pipeline) {
		p.log = l
	}
}

// OptPipelineStatter sets the stats collector.
func OptPipelineStatter(s Statter) PipelineOption {
	return func(p *Pipeline) {
		p.stats = s
	}
}

// OptPipelineNexter sets the record number generator.
func OptPipelineNexter(n *Nexter) PipelineOption {
	return func(p *Pipeline) {
		p.records = n
	}
}

// NewPipeline creates a Pipeline dispatching through index into sink.
func NewPipeline(index *SpecificationIndex, sink Sink, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		rules:   MARC21,
		index:   index,
		sink:    sink,
		records: NewNexter(),
		log:     NopLogger{},
		stats:   NopStatter{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Rules returns the framing the pipeline decodes raw items with.
func (p *Pipeline) Rules() FramingRules { return p.rules }

// Close closes the sink if it is an io.Closer. Call it after the last
// Process returned.
func (p *Pipeline) Close() error {
	if c, ok := p.sink.(io.Closer); ok {
		return errors.Wrap(c.Close(), "closing sink")
	}
	return nil
}

// Process handles one WorkItem. It is the executor run by JobQueue
// workers. Raw items may contain several records; each is built and output
// independently. The first handler failure abandons the remaining records
// of the item.
func (p *Pipeline) Process(ctx context.Context, item WorkItem) error {
	if item.Groups != nil {
		return p.Build(ctx, item.Label, item.Groups)
	}
	rules := p.rules
	if item.Framing != "" && item.Framing != rules.Name {
		var r FramingRules
		var err error
		if item.Framing == AutoFraming {
			r, err = DetectFraming(item.Raw)
		} else {
			r, err = Preset(item.Framing)
		}
		if err != nil {
			return errors.Wrapf(err, "decoding %s", item.Origin)
		}
		r.Fatal = rules.Fatal
		rules = r
	}
	var decodeErr error
	dec := NewDecoder(bytes.NewReader(item.Raw), rules, OptDecoderErrorHandler(func(err *DecodeError) {
		p.stats.Count(StatRecordsMalformed, 1, 1)
		p.log.Printf("skipping malformed record in %s: %v", item.Origin, err)
		if decodeErr == nil {
			decodeErr = err
		}
	}))
	acc := NewFieldAccumulator(dec)
	built := 0
	for {
		label, groups, err := acc.NextRecord()
		if err == io.EOF {
			break
		} else if err != nil {
			p.stats.Count(StatRecordsMalformed, 1, 1)
			return errors.Wrapf(err, "decoding %s", item.Origin)
		}
		if err := p.Build(ctx, label, groups); err != nil {
			return err
		}
		built++
	}
	if built == 0 && decodeErr != nil {
		return decodeErr
	}
	return nil
}

// Build dispatches the groups of one record and outputs the graph unless a
// handler stopped it.
func (p *Pipeline) Build(ctx context.Context, label Label, groups []FieldGroup) error {
	start := time.Now()
	state := NewBuildState(p.records.Next(), label)
	state.Format, state.Type = p.format, p.typ
	if p.emitLeader && !label.IsZero() {
		groups = append([]FieldGroup{{Field{Tag: LeaderTag, Data: label.String()}}}, groups...)
	}
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := p.dispatch(g, state)
		if err != nil {
			p.stats.Count(StatRecordsFailed, 1, 1)
			return err
		}
		if res == Stop {
			p.stats.Count(StatRecordsDropped, 1, 1)
			p.log.Debugf("record %s dropped at %s", state.RecordID(), g.Key())
			return nil
		}
	}
	if state.IdentifierWrites() > 1 {
		p.log.Debugf("record %s has %d identifying fields, last one wins", state.RecordID(), state.IdentifierWrites())
	}
	e, err := state.Complete(p.subjectPrefix)
	if err != nil {
		return errors.Wrapf(err, "completing record %s", state.RecordID())
	}
	if err := p.sink.Output(ctx, e); err != nil {
		return errors.Wrapf(err, "outputting record %s", state.RecordID())
	}
	p.stats.Count(StatRecordsBuilt, 1, 1)
	p.stats.Timing(StatRecordsBuild, time.Since(start), 1)
	return nil
}

// dispatch resolves one group. A handler registered for the group's full
// key gets the whole group. Otherwise fields registered individually
// (tag$indicator$code) are handed one by one to their handlers, and the
// rest of the group goes to the longest registered prefix, if any.
func (p *Pipeline) dispatch(g FieldGroup, state *BuildState) (Result, error) {
	res := p.index.Resolve(g)
	if res.Exact {
		return p.apply(res, g, state)
	}
	var rest FieldGroup
	for _, f := range g {
		fr := p.index.ResolvePath(f.Segments())
		if !fr.Exact || f.SubfieldID == "" {
			rest = append(rest, f)
			continue
		}
		r, err := p.apply(fr, FieldGroup{f}, state)
		if err != nil || r == Stop {
			return r, err
		}
		if r == Skip {
			return Continue, nil
		}
	}
	if len(rest) == 0 {
		return Continue, nil
	}
	if res.Mapped {
		return p.apply(res, rest, state)
	}
	p.reportUnmapped(state, rest)
	return Continue, nil
}

func (p *Pipeline) apply(res Resolution, g FieldGroup, state *BuildState) (r Result, err error) {
	r, err = res.Handler.Apply(g, g.Value(), state)
	if err != nil {
		return r, &HandlerFailure{RecordID: state.RecordID(), Key: g.Key(), Err: err}
	}
	return r, nil
}

func (p *Pipeline) reportUnmapped(state *BuildState, g FieldGroup) {
	if g.Tag() == LeaderTag {
		return
	}
	p.stats.Count(StatKeysUnmapped, 1, 1)
	if p.unmapped != nil {
		p.unmapped(state.RecordID(), g.Key())
	}
}
