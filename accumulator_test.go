package mdk_test

import (
	"io"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
	"github.com/pkg/errors"
)

type eventList struct {
	evs []mdk.FieldEvent
	err error
}

func (l *eventList) Next() (mdk.FieldEvent, error) {
	if len(l.evs) == 0 {
		if l.err != nil {
			return mdk.FieldEvent{}, l.err
		}
		return mdk.FieldEvent{}, io.EOF
	}
	ev := l.evs[0]
	l.evs = l.evs[1:]
	return ev, nil
}

func control(tag, data string) []mdk.FieldEvent {
	f := mdk.Field{Tag: tag, Data: data}
	return []mdk.FieldEvent{{Type: mdk.BeginControlField, Field: f}, {Type: mdk.EndControlField, Field: f}}
}

func datafield(tag, ind string, subs ...string) []mdk.FieldEvent {
	f := mdk.Field{Tag: tag, Indicator: ind}
	evs := []mdk.FieldEvent{{Type: mdk.BeginDataField, Field: f}}
	for i := 0; i+1 < len(subs); i += 2 {
		sf := f.WithSubfield(subs[i], subs[i+1])
		evs = append(evs, mdk.FieldEvent{Type: mdk.BeginSubField, Field: sf}, mdk.FieldEvent{Type: mdk.EndSubField, Field: sf})
	}
	return append(evs, mdk.FieldEvent{Type: mdk.EndDataField, Field: f})
}

func record(fields ...[]mdk.FieldEvent) []mdk.FieldEvent {
	evs := []mdk.FieldEvent{{Type: mdk.BeginRecord}, {Type: mdk.Leader, Label: mdk.ParseLabel("00000nam a2200000 a 4500")}}
	for _, f := range fields {
		evs = append(evs, f...)
	}
	return append(evs, mdk.FieldEvent{Type: mdk.EndRecord})
}

func groupKeys(t *testing.T, acc *mdk.FieldAccumulator) (keys [][]string, ends []bool) {
	t.Helper()
	for {
		g, err := acc.Next()
		if err == io.EOF {
			return keys, ends
		}
		test.ErrNil(t, err, "Next")
		var k []string
		for _, f := range g {
			k = append(k, f.Key())
		}
		keys = append(keys, k)
		ends = append(ends, acc.EndOfRecord())
	}
}

func TestFieldAccumulator(t *testing.T) {
	tests := []struct {
		name string
		evs  []mdk.FieldEvent
		keys [][]string
		ends []bool
	}{
		{
			name: "adjacent runs",
			evs: record(
				control("001", "123"),
				datafield("650", " 0", "a", "Cats"),
				datafield("650", " 0", "a", "Dogs", "x", "History"),
				datafield("100", "1 ", "a", "Name"),
				datafield("650", " 0", "a", "Birds"),
			),
			keys: [][]string{
				{"001"},
				{"650$ 0$a", "650$ 0$a", "650$ 0$x"},
				{"100$1 $a"},
				{"650$ 0$a"},
			},
			ends: []bool{false, false, false, true},
		},
		{
			name: "records do not merge",
			evs: append(
				record(datafield("245", "10", "a", "One")),
				record(datafield("245", "10", "a", "Two"))...,
			),
			keys: [][]string{{"245$10$a"}, {"245$10$a"}},
			ends: []bool{true, true},
		},
		{
			name: "truncated record is flushed",
			evs:  record(control("001", "1"), control("003", "DE"))[:6],
			keys: [][]string{{"001"}, {"003"}},
			ends: []bool{false, false},
		},
		{
			name: "empty record",
			evs:  record(),
		},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			acc := mdk.NewFieldAccumulator(&eventList{evs: tst.evs})
			keys, ends := groupKeys(t, acc)
			test.MustBe(t, keys, tst.keys)
			test.MustBe(t, ends, tst.ends)
		})
	}
}

func TestFieldAccumulatorNextRecord(t *testing.T) {
	evs := append(record(control("001", "1"), datafield("245", "10", "a", "One")), record()...)
	evs = append(evs, record(control("001", "2"))...)
	acc := mdk.NewFieldAccumulator(&eventList{evs: evs})

	label, groups, err := acc.NextRecord()
	test.ErrNil(t, err, "first record")
	test.MustBe(t, label.String(), "00000nam a2200000 a 4500")
	test.MustBe(t, len(groups), 2)
	test.MustBe(t, groups[1].Value(), "One")

	_, groups, err = acc.NextRecord()
	test.ErrNil(t, err, "second record")
	test.MustBe(t, groups[0].Value(), "2")

	_, _, err = acc.NextRecord()
	test.MustBe(t, err, io.EOF)
}

func TestFieldAccumulatorError(t *testing.T) {
	bad := errors.New("boom")
	acc := mdk.NewFieldAccumulator(&eventList{evs: record(control("001", "1"))[:3], err: bad})
	_, err := acc.Next()
	test.MustBe(t, errors.Cause(err), bad)
}
