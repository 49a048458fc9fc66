package nats_test

import (
	"context"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/nats"
	"github.com/pilosa/mdk/test"
	"github.com/pkg/errors"
)

type fakePublisher struct {
	subjects []string
	msgs     []string
	err      error
}

func (f *fakePublisher) Publish(subject string, data []byte) error {
	if f.err != nil {
		return f.err
	}
	f.subjects = append(f.subjects, subject)
	f.msgs = append(f.msgs, string(data))
	return nil
}

func TestSink(t *testing.T) {
	pub := &fakePublisher{}
	s := nats.NewSink(pub, "marc.records")
	e := mdk.NewEntity()
	e.Subject = "http://example.org/1"
	test.ErrNil(t, e.AddString("title", "Hello"), "AddString")
	test.ErrNil(t, s.Output(context.Background(), e), "Output")
	test.ErrNil(t, s.Close(), "Close")
	test.MustBe(t, pub.subjects, []string{"marc.records"})
	test.MustBe(t, pub.msgs, []string{`{"@id":"http://example.org/1","title":"Hello"}`})

	pub.err = errors.New("no responders")
	if err := s.Output(context.Background(), e); errors.Cause(err) != pub.err {
		t.Fatalf("expected publish error, got %v", err)
	}
}
