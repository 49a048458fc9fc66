package mdk_test

import (
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
)

func nop(name string) mdk.ElementHandler {
	return mdk.WithName(name, mdk.ElementFunc(func(mdk.FieldGroup, string, *mdk.BuildState) (mdk.Result, error) {
		return mdk.Continue, nil
	}))
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		key    string
		indLen int
		exp    [][]string
		err    bool
	}{
		{key: "001", indLen: 2, exp: [][]string{{"001"}}},
		{key: "100$01$a", indLen: 2, exp: [][]string{{"100", "01", "a"}}},
		{key: "$100$$a", indLen: 2, exp: [][]string{{"100", "a"}}},
		{key: "331 1a", indLen: 1, exp: [][]string{{"331", "1", "a"}}},
		{key: "100 01a", indLen: 2, exp: [][]string{{"100", "01", "a"}}},
		{key: "331 1", indLen: 1, exp: [][]string{{"331", "1"}}},
		{key: "[331 1a, 331 19]", indLen: 1, exp: [][]string{{"331", "1", "a"}, {"331", "1", "9"}}},
		{key: "100$[01,02]$a", indLen: 2, exp: [][]string{{"100", "01", "a"}, {"100", "02", "a"}}},
		{key: "[100$[0,1]$a, 110]", indLen: 1, exp: [][]string{{"100", "0", "a"}, {"100", "1", "a"}, {"110"}}},
		{key: "", err: true},
		{key: "[]", err: true},
		{key: "$$", err: true},
	}
	for _, tst := range tests {
		t.Run(tst.key, func(t *testing.T) {
			paths, err := mdk.ParseKey(tst.key, tst.indLen)
			if tst.err {
				if err == nil {
					t.Fatalf("expected error, got %v", paths)
				}
				return
			}
			test.ErrNil(t, err, "ParseKey")
			test.MustBe(t, paths, tst.exp)
		})
	}
}

func TestSpecificationIndexString(t *testing.T) {
	idx := mdk.NewSpecificationIndex()
	test.ErrNil(t, idx.RegisterKey("100$01$a", nop("Creator")), "register creator")
	test.ErrNil(t, idx.RegisterKey("200$02$abc", nop("Title")), "register title")
	test.MustBe(t, idx.String(), "{100={01={a=Creator}}, 200={02={abc=Title}}}")

	test.ErrNil(t, idx.RegisterKey("100", nop("Person")), "register person")
	test.MustBe(t, idx.String(), "{100=Person{01={a=Creator}}, 200={02={abc=Title}}}")
	test.MustBe(t, idx.HandlerNames(), []string{"Creator", "Title", "Person"})
	test.MustBe(t, idx.Dump()["Title"], []string{"200$02$abc"})
	test.MustBe(t, idx.Len(), 3)
}

func TestSpecificationIndexResolve(t *testing.T) {
	idx := mdk.NewSpecificationIndex()
	for key, name := range map[string]string{
		"001":      "Id",
		"100":      "Person",
		"100$01":   "PersonInd",
		"100$01$a": "PersonName",
		"245$*$a":  "AnyTitle",
		"245$10$a": "Title",
	} {
		test.ErrNil(t, idx.RegisterKey(key, nop(name)), key)
	}

	tests := []struct {
		path  []string
		name  string
		key   string
		depth int
		exact bool
	}{
		{path: []string{"001"}, name: "Id", key: "001", depth: 1, exact: true},
		{path: []string{"100", "01", "a"}, name: "PersonName", key: "100$01$a", depth: 3, exact: true},
		{path: []string{"100", "01", "ab"}, name: "PersonInd", key: "100$01", depth: 2},
		{path: []string{"100", "1 ", "a"}, name: "Person", key: "100", depth: 1},
		{path: []string{"245", "10", "a"}, name: "Title", key: "245$10$a", depth: 3, exact: true},
		{path: []string{"245", "00", "a"}, name: "AnyTitle", key: "245$*$a", depth: 3, exact: true},
		{path: []string{"245", "00", "b"}},
		{path: []string{"999", "  ", "a"}},
	}
	for _, tst := range tests {
		res := idx.ResolvePath(tst.path)
		if tst.name == "" {
			if res.Mapped {
				t.Errorf("%v: expected unmapped, got %v", tst.path, res.Key)
			}
			continue
		}
		if !res.Mapped {
			t.Errorf("%v: unmapped", tst.path)
			continue
		}
		test.MustBe(t, mdk.HandlerName(res.Handler), tst.name, tst.key)
		test.MustBe(t, res.Key, tst.key)
		test.MustBe(t, res.Depth, tst.depth, tst.key)
		test.MustBe(t, res.Exact, tst.exact, tst.key)
	}
}

func TestSpecificationIndexGroupKey(t *testing.T) {
	idx := mdk.NewSpecificationIndex()
	test.ErrNil(t, idx.RegisterKey("200$02$abc", nop("Title")), "register")
	g := mdk.FieldGroup{
		{Tag: "200", Indicator: "02", SubfieldID: "c", Data: "C"},
		{Tag: "200", Indicator: "02", SubfieldID: "a", Data: "A"},
		{Tag: "200", Indicator: "02", SubfieldID: "b", Data: "B"},
		{Tag: "200", Indicator: "02", SubfieldID: "a", Data: "A2"},
	}
	test.MustBe(t, g.Key(), "200$02$abc")
	test.MustBe(t, g.Value(), "C A B A2")
	res := idx.Resolve(g)
	test.MustBe(t, res.Exact, true)
	test.MustBe(t, mdk.HandlerName(res.Handler), "Title")
}

func TestSpecificationIndexReplace(t *testing.T) {
	idx := mdk.NewSpecificationIndex()
	test.ErrNil(t, idx.RegisterKey("100$01$a", nop("First")), "first")
	test.ErrNil(t, idx.RegisterKey("100$01$a", nop("Second")), "second")
	res := idx.ResolvePath([]string{"100", "01", "a"})
	test.MustBe(t, mdk.HandlerName(res.Handler), "Second")
	test.MustBe(t, idx.Len(), 1)
	test.MustBe(t, idx.String(), "{100={01={a=Second}}}")
	test.MustBe(t, idx.HandlerNames(), []string{"Second"})
	test.MustBe(t, idx.Dump(), map[string][]string{"Second": {"100$01$a"}})

	idx = mdk.NewSpecificationIndex()
	test.ErrNil(t, idx.RegisterKey("[100$01$a, 100$01$b]", nop("First")), "first")
	test.ErrNil(t, idx.RegisterKey("245", nop("Title")), "title")
	test.ErrNil(t, idx.RegisterKey("100$01$a", nop("Second")), "second")
	test.ErrNil(t, idx.RegisterKey("245", nop("Title")), "title again")
	test.MustBe(t, idx.HandlerNames(), []string{"First", "Title", "Second"})
	test.MustBe(t, idx.Dump(), map[string][]string{
		"First":  {"100$01$b"},
		"Title":  {"245"},
		"Second": {"100$01$a"},
	})
}

func TestSpecificationIndexErrors(t *testing.T) {
	idx := mdk.NewSpecificationIndex()
	if err := idx.Register(nil, nop("x")); err == nil {
		t.Fatal("expected error for empty path")
	}
	if err := idx.Register([]string{"100"}, nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
	if err := idx.RegisterKey("", nop("x")); err == nil {
		t.Fatal("expected error for empty key")
	}
}

func TestSpecificationIndexPeriodic(t *testing.T) {
	idx := mdk.NewSpecificationIndex(mdk.OptIndicatorLength(1), mdk.OptKeyExpander(mdk.MABPeriodic))
	test.ErrNil(t, idx.RegisterKey("104 1a", nop("Person")), "register")
	for _, tag := range []string{"100", "104", "196"} {
		res := idx.ResolvePath([]string{tag, "1", "a"})
		if !res.Exact {
			t.Errorf("tag %s not resolved: %+v", tag, res)
		}
	}
	for _, tag := range []string{"101", "200"} {
		if res := idx.ResolvePath([]string{tag, "1", "a"}); res.Mapped {
			t.Errorf("tag %s should not resolve", tag)
		}
	}
	// the 950 series repeats every five tags
	test.ErrNil(t, idx.RegisterKey("955", nop("Other")), "register 955")
	test.MustBe(t, idx.ResolvePath([]string{"995"}).Exact, true)
	test.MustBe(t, idx.ResolvePath([]string{"001"}).Mapped, false)
}
