package mdk_test

import (
	"context"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
	"github.com/pkg/errors"
)

func TestIngester(t *testing.T) {
	idx := mdk.NewSpecificationIndex()
	test.ErrNil(t, idx.RegisterKey("001", &mdk.IdentifierElement{ElementName: "ID"}), "001")
	test.ErrNil(t, idx.RegisterKey("100", mdk.ElementFunc(func(g mdk.FieldGroup, v string, s *mdk.BuildState) (mdk.Result, error) {
		if v == "boom" {
			return mdk.Continue, errors.New("boom")
		}
		return mdk.Continue, nil
	})), "100")
	sink := &collector{}
	unmapped := mdk.NewUnmappedKeys()
	p := mdk.NewPipeline(idx, sink, mdk.OptPipelineUnmapped(unmapped.Listen))

	stream := strings.Repeat(sampleRecord, 50) + "00099" + sampleRecord[5:]
	pregrouped := &mdk.WorkItem{Origin: "pre", Groups: []mdk.FieldGroup{
		{{Tag: "001", Data: "pre"}},
		{{Tag: "300", Indicator: "  ", SubfieldID: "a", Data: "x"}},
	}}
	failing := mdk.WorkItem{Origin: "failing", Groups: []mdk.FieldGroup{
		{{Tag: "001", Data: "bad"}},
		{{Tag: "100", Indicator: "  ", SubfieldID: "a", Data: "boom"}},
	}}
	ing := mdk.NewIngester(p,
		mdk.NewReaderSource(strings.NewReader(stream), mdk.MARC21),
		&mockSource{items: []interface{}{pregrouped, failing}},
	)
	ing.Concurrency = 4
	ing.SubmitTimeout = time.Second
	test.ErrNil(t, ing.Run(context.Background()), "Run")

	var ids []string
	for _, e := range sink.all() {
		ids = append(ids, string(e.Subject))
	}
	sort.Strings(ids)
	test.MustBe(t, len(ids), 51)
	test.MustBe(t, ids[50], "pre")
	test.MustBe(t, unmapped.Keys(), []string{"300$  $a"})

	failures := ing.Failures()
	test.MustBe(t, len(failures), 2)
	var handler, decode int
	for _, f := range failures {
		switch f.(type) {
		case *mdk.HandlerFailure:
			handler++
		case *mdk.DecodeError:
			decode++
		}
	}
	test.MustBe(t, handler, 1, "handler failures")
	test.MustBe(t, decode, 1, "decode errors")
}

type errSource struct{}

func (errSource) Record() (interface{}, error) { return nil, errors.New("disk on fire") }

func TestIngesterSourceError(t *testing.T) {
	sink := &collector{}
	p := mdk.NewPipeline(mdk.NewSpecificationIndex(), sink)
	ing := mdk.NewIngester(p,
		mdk.NewReaderSource(strings.NewReader(sampleRecord), mdk.MARC21),
		errSource{},
		&mockSource{items: []interface{}{42}},
	)
	err := ing.Run(context.Background())
	if err == nil {
		t.Fatal("expected source error")
	}
}
