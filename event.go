package mdk

import "fmt"

// EventType enumerates the structural events emitted by the Decoder.
type EventType int

// Decoder events, in the order they occur within a record.
const (
	BeginRecord EventType = iota
	Leader
	BeginControlField
	EndControlField
	BeginDataField
	BeginSubField
	EndSubField
	EndDataField
	EndRecord
)

var eventNames = [...]string{
	BeginRecord:       "BeginRecord",
	Leader:            "Leader",
	BeginControlField: "BeginControlField",
	EndControlField:   "EndControlField",
	BeginDataField:    "BeginDataField",
	BeginSubField:     "BeginSubField",
	EndSubField:       "EndSubField",
	EndDataField:      "EndDataField",
	EndRecord:         "EndRecord",
}

func (t EventType) String() string {
	if t < 0 || int(t) >= len(eventNames) {
		return fmt.Sprintf("EventType(%d)", int(t))
	}
	return eventNames[t]
}

// FieldEvent is one structural event. Field is set for field events, Label
// for Leader events. Offset is the byte offset of the record in the stream.
type FieldEvent struct {
	Type   EventType
	Field  Field
	Label  Label
	Offset int64
}

func (e FieldEvent) String() string {
	switch e.Type {
	case Leader:
		return fmt.Sprintf("%v(%q)", e.Type, e.Label.String())
	case BeginRecord, EndRecord:
		return e.Type.String()
	}
	return fmt.Sprintf("%v(%s)", e.Type, e.Field.Key())
}
