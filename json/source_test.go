package json

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
)

const records = `{"leader": "00071nam a2200049 a 4500", "fields": [
	{"001": "123"},
	{"100": {"ind1": "0", "ind2": "1", "subfields": [{"a": "Hello"}, {"b": "World"}]}},
	{"100": {"ind1": "1", "ind2": " ", "subfields": [{"a": "Again"}]}},
	{"245": {"ind1": "1", "ind2": "0", "subfields": [{"a": "Title"}]}}
]}
{"fields": [{"001": "124"}]}
`

func TestSource(t *testing.T) {
	s := NewSource(strings.NewReader(records))
	rec, err := s.Record()
	test.ErrNil(t, err, "first record")
	item := rec.(*mdk.WorkItem)
	test.MustBe(t, item.Origin, "json#0")
	test.MustBe(t, item.Label.TypeOfRecord(), byte('a'))
	test.MustBe(t, item.Groups, []mdk.FieldGroup{
		{{Tag: "001", Data: "123"}},
		{
			{Tag: "100", Indicator: "01", SubfieldID: "a", Data: "Hello", Occurrence: 1},
			{Tag: "100", Indicator: "01", SubfieldID: "b", Data: "World", Occurrence: 1},
			{Tag: "100", Indicator: "1 ", SubfieldID: "a", Data: "Again", Occurrence: 2},
		},
		{{Tag: "245", Indicator: "10", SubfieldID: "a", Data: "Title", Occurrence: 3}},
	})

	rec, err = s.Record()
	test.ErrNil(t, err, "second record")
	test.MustBe(t, rec.(*mdk.WorkItem).Label.IsZero(), true)
	test.MustBe(t, rec.(*mdk.WorkItem).Origin, "json#1")

	_, err = s.Record()
	test.MustBe(t, err, io.EOF)
}

func TestSourceWithoutLeader(t *testing.T) {
	idx := mdk.NewSpecificationIndex()
	test.ErrNil(t, idx.RegisterKey(mdk.LeaderTag, &mdk.LeaderElement{ElementName: "Leader"}), "register leader")
	test.ErrNil(t, idx.RegisterKey("001", &mdk.IdentifierElement{ElementName: "ID"}), "register 001")
	var out []*mdk.Entity
	p := mdk.NewPipeline(idx, mdk.SinkFunc(func(ctx context.Context, e *mdk.Entity) error {
		out = append(out, e)
		return nil
	}), mdk.OptPipelineLeader(true))

	for _, leader := range []string{"", "                        "} {
		s := NewSource(strings.NewReader(`{"leader": "` + leader + `", "fields": [{"001": "124"}]}`))
		rec, err := s.Record()
		test.ErrNil(t, err, "Record")
		item := rec.(*mdk.WorkItem)
		test.MustBe(t, item.Label.IsZero(), true, "leader "+strconv.Quote(leader))
		test.ErrNil(t, p.Process(context.Background(), *item), "Process")
	}
	test.MustBe(t, len(out), 2)
	for _, e := range out {
		b, err := e.MarshalJSON()
		test.ErrNil(t, err, "MarshalJSON")
		test.MustBe(t, string(b), `{"@id":"124"}`)
	}
}

func TestSourceErrors(t *testing.T) {
	for name, in := range map[string]string{
		"syntax":     `{"fields": [`,
		"two tags":   `{"fields": [{"001": "1", "002": "2"}]}`,
		"bad field":  `{"fields": [{"100": 42}]}`,
		"bad record": `[]`,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := NewSource(strings.NewReader(in)).Record(); err == nil || err == io.EOF {
				t.Fatalf("expected error, got %v", err)
			}
		})
	}
}

type nopCloser struct {
	io.Reader
	name string
}

func (n nopCloser) Close() error                 { return nil }
func (n nopCloser) Name() string                 { return n.name }
func (n nopCloser) Meta() map[string]interface{} { return nil }

type sliceRawSource []nopCloser

func (s *sliceRawSource) NextReader() (mdk.NamedReadCloser, error) {
	if len(*s) == 0 {
		return nil, io.EOF
	}
	r := (*s)[0]
	*s = (*s)[1:]
	return r, nil
}

func TestSourceFromRawSource(t *testing.T) {
	rs := &sliceRawSource{
		{Reader: strings.NewReader(records), name: "a.json"},
		{Reader: strings.NewReader(""), name: "empty.json"},
		{Reader: strings.NewReader(`{"fields": [{"001": "9"}]}`), name: "b.json"},
	}
	src := NewSourceFromRawSource(rs)
	var origins []string
	for {
		rec, err := src.Record()
		if err == io.EOF {
			break
		}
		test.ErrNil(t, err, "Record")
		origins = append(origins, rec.(*mdk.WorkItem).Origin)
	}
	test.MustBe(t, origins, []string{"a.json#0", "a.json#1", "b.json#0"})
}

func TestSink(t *testing.T) {
	buf := &bytes.Buffer{}
	s := NewSink(buf)
	e := mdk.NewEntity()
	e.Subject = "http://example.org/1"
	test.ErrNil(t, e.AddString("title", "Hello"), "AddString")
	test.ErrNil(t, s.Output(context.Background(), e), "Output")
	s.Context = mdk.Context{"title": "http://purl.org/dc/terms/title"}
	test.ErrNil(t, s.Output(context.Background(), e), "Output with context")
	test.MustBe(t, buf.Len(), 0, "buffered before Close")
	test.ErrNil(t, s.Close(), "Close")
	test.MustBe(t, buf.String(),
		`{"@id":"http://example.org/1","title":"Hello"}`+"\n"+
			`{"@context":{"title":"http://purl.org/dc/terms/title"},"@id":"http://example.org/1","title":"Hello"}`+"\n")
}
