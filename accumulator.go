package mdk

import (
	"io"

	"github.com/pkg/errors"
)

// EventSource yields FieldEvents; *Decoder implements it.
type EventSource interface {
	Next() (FieldEvent, error)
}

// FieldAccumulator groups FieldEvents into FieldGroups. A group is the run
// of physically adjacent fields sharing a tag; it is closed when a field
// with a different tag ends or when the record ends. Each group is emitted
// exactly once.
type FieldAccumulator struct {
	events EventSource

	label   Label
	open    FieldGroup
	current FieldGroup // fields of the physical field being read
	hasSub  bool
	ready   []FieldGroup
	ended   bool
	eof     bool
}

// NewFieldAccumulator creates an accumulator over events.
func NewFieldAccumulator(events EventSource) *FieldAccumulator {
	return &FieldAccumulator{events: events}
}

// Label returns the leader of the record currently being read.
func (a *FieldAccumulator) Label() Label {
	return a.label
}

// EndOfRecord reports whether the last group returned by Next closed its
// record.
func (a *FieldAccumulator) EndOfRecord() bool {
	return a.ended && len(a.ready) == 0
}

// Next returns the next group. It returns io.EOF once the events are
// exhausted and every group has been returned.
func (a *FieldAccumulator) Next() (FieldGroup, error) {
	for len(a.ready) == 0 {
		if a.eof {
			return nil, io.EOF
		}
		ev, err := a.events.Next()
		if err == io.EOF {
			a.eof = true
			a.flush()
			continue
		} else if err != nil {
			return nil, errors.Wrap(err, "reading events")
		}
		a.handle(ev)
	}
	g := a.ready[0]
	a.ready = a.ready[1:]
	return g, nil
}

func (a *FieldAccumulator) handle(ev FieldEvent) {
	switch ev.Type {
	case BeginRecord:
		a.ended = false
		a.label = Label{}
	case Leader:
		a.label = ev.Label
	case BeginControlField:
		a.current = FieldGroup{ev.Field}
	case BeginDataField:
		a.current = nil
		a.hasSub = false
		if ev.Field.Data != "" {
			a.current = append(a.current, ev.Field)
		}
	case BeginSubField:
		a.hasSub = true
		a.current = append(a.current, ev.Field)
	case EndDataField:
		if !a.hasSub && len(a.current) == 0 {
			a.current = FieldGroup{ev.Field}
		}
		a.endField(ev.Field.Tag)
	case EndControlField:
		a.endField(ev.Field.Tag)
	case EndRecord:
		a.flush()
		a.ended = true
	}
}

func (a *FieldAccumulator) endField(tag string) {
	if len(a.open) > 0 && a.open.Tag() != tag {
		a.ready = append(a.ready, a.open)
		a.open = nil
	}
	a.open = append(a.open, a.current...)
	a.current = nil
}

func (a *FieldAccumulator) flush() {
	if len(a.open) > 0 {
		a.ready = append(a.ready, a.open)
	}
	a.open = nil
	a.current = nil
}

// NextRecord returns the leader and all groups of the next record. Records
// without fields are skipped.
func (a *FieldAccumulator) NextRecord() (Label, []FieldGroup, error) {
	var groups []FieldGroup
	for {
		g, err := a.Next()
		if err == io.EOF && len(groups) > 0 {
			return a.label, groups, nil
		} else if err != nil {
			return Label{}, nil, err
		}
		groups = append(groups, g)
		if a.EndOfRecord() {
			return a.label, groups, nil
		}
	}
}
