package mdk_test

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
	"github.com/pkg/errors"
)

func sampleEntity(t *testing.T) *mdk.Entity {
	t.Helper()
	e := mdk.NewEntity()
	e.Subject = "http://example.org/123"
	test.ErrNil(t, e.AddString("title", "Hello"), "title")
	creator, err := e.NewChild("creator")
	test.ErrNil(t, err, "creator")
	test.ErrNil(t, creator.AddString("name", "Smith"), "name")
	test.ErrNil(t, creator.Add("born", mdk.I64(1901)), "born")
	test.ErrNil(t, e.AddString("subject", "Go"), "subject 1")
	test.ErrNil(t, e.AddString("title", "World"), "title 2")
	test.ErrNil(t, e.Add("digital", mdk.B(true)), "digital")
	return e
}

func TestEntityMarshalJSON(t *testing.T) {
	e := sampleEntity(t)
	b, err := json.Marshal(e)
	test.ErrNil(t, err, "Marshal")
	test.MustBe(t, string(b), `{"@id":"http://example.org/123",`+
		`"title":["Hello","World"],`+
		`"creator":{"name":"Smith","born":{"@type":"xsd:long","@value":1901}},`+
		`"subject":"Go",`+
		`"digital":{"@type":"xsd:boolean","@value":true}}`)

	ec := mdk.EntityWithContext{Entity: e, Context: mdk.Context{"title": "http://purl.org/dc/terms/title"}}
	b, err = json.Marshal(ec)
	test.ErrNil(t, err, "Marshal with context")
	var generic map[string]interface{}
	test.ErrNil(t, json.Unmarshal(b, &generic), "Unmarshal")
	test.MustBe(t, generic["@context"], map[string]interface{}{"title": "http://purl.org/dc/terms/title"})
	test.MustBe(t, generic["@id"], "http://example.org/123")
}

func TestEntityMarshalJSONInterleaved(t *testing.T) {
	e := mdk.NewEntity()
	for i := 0; i < 3; i++ {
		for _, p := range []mdk.Predicate{"c", "a", "b"} {
			test.ErrNil(t, e.Add(p, mdk.I64(i)), string(p))
		}
	}
	b, err := json.Marshal(e)
	test.ErrNil(t, err, "Marshal")
	lit := func(i int) string { return fmt.Sprintf(`{"@type":"xsd:long","@value":%d}`, i) }
	list := "[" + lit(0) + "," + lit(1) + "," + lit(2) + "]"
	test.MustBe(t, string(b), `{"c":`+list+`,"a":`+list+`,"b":`+list+`}`)
}

func BenchmarkEntityMarshalJSON(b *testing.B) {
	e := mdk.NewEntity()
	e.Subject = "http://example.org/1"
	for i := 0; i < 500; i++ {
		if err := e.AddString(mdk.Predicate(fmt.Sprintf("p%d", i%100)), "value"); err != nil {
			b.Fatal(err)
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := e.MarshalJSON(); err != nil {
			b.Fatal(err)
		}
	}
}

func TestEntityAccessors(t *testing.T) {
	e := sampleEntity(t)
	test.MustBe(t, e.Predicates(), []mdk.Predicate{"title", "creator", "subject", "digital"})
	test.MustBe(t, e.Get("title"), []mdk.Object{mdk.S("Hello"), mdk.S("World")})
	test.MustBe(t, e.Len(), 5)

	lit, err := e.Literal("creator", "born")
	test.ErrNil(t, err, "Literal")
	test.MustBe(t, lit, mdk.I64(1901))

	_, err = e.Literal("creator", "died")
	test.MustBe(t, errors.Cause(err), mdk.ErrPathNotFound)
	_, err = e.Literal("title", "x")
	test.MustBe(t, errors.Cause(err), mdk.ErrPathNotFound)
}

func TestEntityFreeze(t *testing.T) {
	e := sampleEntity(t)
	e.Freeze()
	if err := e.AddString("x", "y"); errors.Cause(err) != mdk.ErrFrozen {
		t.Fatalf("expected ErrFrozen, got %v", err)
	}
	child, _ := e.First("creator")
	if err := child.(*mdk.Entity).AddString("x", "y"); errors.Cause(err) != mdk.ErrFrozen {
		t.Fatalf("expected ErrFrozen on child, got %v", err)
	}
}

func TestEntitySingleParent(t *testing.T) {
	a, b := mdk.NewEntity(), mdk.NewEntity()
	child := mdk.NewEntity()
	test.ErrNil(t, a.Add("child", child), "first parent")
	if err := b.Add("child", child); err == nil {
		t.Fatal("expected error attaching a child twice")
	}
	if err := a.Add("self", a); err == nil {
		t.Fatal("expected error adding an entity to itself")
	}
	if err := a.Add("nil", nil); err == nil {
		t.Fatal("expected error adding nil")
	}
}

func TestEntityEqual(t *testing.T) {
	e1, e2 := sampleEntity(t), sampleEntity(t)
	test.ErrNil(t, e1.Equal(e2), "Equal")
	test.ErrNil(t, e2.AddString("extra", "x"), "extra")
	if err := e1.Equal(e2); err == nil {
		t.Fatal("expected a difference")
	}

	// order matters
	o1, o2 := mdk.NewEntity(), mdk.NewEntity()
	test.ErrNil(t, o1.AddString("a", "1"), "o1 a")
	test.ErrNil(t, o1.AddString("b", "2"), "o1 b")
	test.ErrNil(t, o2.AddString("b", "2"), "o2 b")
	test.ErrNil(t, o2.AddString("a", "1"), "o2 a")
	if err := o1.Equal(o2); err == nil {
		t.Fatal("expected order difference")
	}
}

func TestWalk(t *testing.T) {
	e := sampleEntity(t)
	var paths [][]string
	var lits []mdk.Literal
	err := mdk.Walk(e, func(path []string, l mdk.Literal) error {
		paths = append(paths, path)
		lits = append(lits, l)
		return nil
	})
	test.ErrNil(t, err, "Walk")
	test.MustBe(t, paths, [][]string{{"title"}, {"creator", "name"}, {"creator", "born"}, {"subject"}, {"title"}, {"digital"}})
	test.MustBe(t, lits, []mdk.Literal{mdk.S("Hello"), mdk.S("Smith"), mdk.I64(1901), mdk.S("Go"), mdk.S("World"), mdk.B(true)})

	stop := errors.New("stop")
	err = mdk.Walk(e, func([]string, mdk.Literal) error { return stop })
	test.MustBe(t, errors.Cause(err), stop)
}

func TestNexterSequence(t *testing.T) {
	n := mdk.NewNexter()
	for i := uint64(0); i < 3; i++ {
		test.MustBe(t, n.Next(), i)
	}
	test.MustBe(t, n.Last(), uint64(2))
}
