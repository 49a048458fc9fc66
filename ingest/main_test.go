package ingest

import (
	"bytes"
	"context"
	"io/ioutil"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/boltdb"
	"github.com/pilosa/mdk/test"
)

const record = "00071nam a2200049 a 4500" +
	"001000400000" + "100001700004" + "\x1e" +
	"123\x1e" +
	"01\x1faHello\x1fbWorld\x1e" +
	"\x1d"

const spec = `
Identifier:
  type: identifier
  values: "001"
Creator:
  values: ["100$01$a", "100$01$b"]
  _predicate: creator
  subfields: {a: name, b: dates}
`

func newTestMain(t *testing.T, dir string, n int) (*Main, *bytes.Buffer) {
	t.Helper()
	m := NewMain()
	out := &bytes.Buffer{}
	m.Stdout = out
	m.LogPath = filepath.Join(dir, "mdk.log")
	m.Concurrency = 2
	m.NewSource = func() (mdk.Source, error) {
		return mdk.NewReaderSource(strings.NewReader(strings.Repeat(record, n)), mdk.MARC21), nil
	}
	return m, out
}

func TestRun(t *testing.T) {
	dir := test.MustTempDir(t, "mdk-ingest")
	m, out := newTestMain(t, dir, 1)
	m.Spec = filepath.Join(dir, "spec.yml")
	test.ErrNil(t, ioutil.WriteFile(m.Spec, []byte(spec), 0644), "writing spec")
	m.Context = filepath.Join(dir, "context.json")
	test.ErrNil(t, ioutil.WriteFile(m.Context, []byte(`{"creator": "http://purl.org/dc/terms/creator"}`), 0644), "writing context")
	m.BoltPath = filepath.Join(dir, "records.db")
	m.AvroPath = filepath.Join(dir, "records.avro")
	m.AvroCompression = "null"

	test.ErrNil(t, m.RunContext(context.Background()), "Run")
	test.MustBe(t, out.String(),
		`{"@context":{"creator":"http://purl.org/dc/terms/creator"},"@id":"123","creator":{"name":"Hello","dates":"World"}}`+"\n")

	store, err := boltdb.OpenStore(m.BoltPath, mdk.NopLogger{})
	test.ErrNil(t, err, "OpenStore")
	defer store.Close()
	doc, err := store.Record("123")
	test.ErrNil(t, err, "Record")
	test.MustBe(t, string(doc), `{"@id":"123","creator":{"name":"Hello","dates":"World"}}`)

	fi, err := os.Stat(m.AvroPath)
	test.ErrNil(t, err, "Stat avro")
	if fi.Size() == 0 {
		t.Fatal("empty avro file")
	}
}

func TestSinksClosedOnError(t *testing.T) {
	dir := test.MustTempDir(t, "mdk-sinks")
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	test.ErrNil(t, err, "Listen")
	addr := ln.Addr().String()
	test.ErrNil(t, ln.Close(), "closing listener")

	m, _ := newTestMain(t, dir, 0)
	m.Output = filepath.Join(dir, "out.json")
	m.BoltPath = filepath.Join(dir, "records.db")
	m.NatsURL = "nats://" + addr
	_, _, err = m.sinks()
	test.ErrContains(t, err, "connecting to")

	store, err := boltdb.OpenStore(m.BoltPath, mdk.NopLogger{})
	test.ErrNil(t, err, "reopening the bolt store")
	test.ErrNil(t, store.Close(), "Close")

	m.NatsURL = ""
	m.Output = filepath.Join(dir, "out2.json")
	m.Context = filepath.Join(dir, "missing.json")
	_, _, err = m.sinks()
	test.ErrContains(t, err, "opening context")
	if _, err := os.Stat(m.Output); !os.IsNotExist(err) {
		t.Fatalf("output file created for a failed setup: %v", err)
	}
}

func TestRunUnmapped(t *testing.T) {
	dir := test.MustTempDir(t, "mdk-ingest")
	m, out := newTestMain(t, dir, 3)
	m.Output = ""

	test.ErrNil(t, m.RunContext(context.Background()), "Run")
	test.MustBe(t, out.Len(), 0)
	test.MustBe(t, m.Unmapped().Count("001"), 3)

	logs, err := ioutil.ReadFile(m.LogPath)
	test.ErrNil(t, err, "reading log")
	if !strings.Contains(string(logs), "unmapped keys") {
		t.Fatalf("expected unmapped summary in log:\n%s", logs)
	}
}

func TestRunDumpSpec(t *testing.T) {
	dir := test.MustTempDir(t, "mdk-ingest")
	m, out := newTestMain(t, dir, 1)
	m.NewSource = nil
	m.DumpSpec = true
	m.Framing = "marc21"
	m.Spec = filepath.Join(dir, "spec.json")
	test.ErrNil(t, ioutil.WriteFile(m.Spec, []byte(`{"Identifier": {"type": "identifier", "values": "001"}}`), 0644), "writing spec")

	test.ErrNil(t, m.RunContext(context.Background()), "Run")
	test.MustBe(t, out.String(), "{\n  \"Identifier\": [\n    \"001\"\n  ]\n}\n")
}

func TestRunValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(m *Main)
		errStr string
	}{
		{name: "no source", modify: func(m *Main) { m.NewSource = nil }, errStr: "no source"},
		{name: "framing", modify: func(m *Main) { m.Framing = "unimarc" }, errStr: "unknown framing"},
		{name: "concurrency", modify: func(m *Main) { m.Concurrency = 0 }, errStr: "concurrency"},
		{name: "translator", modify: func(m *Main) { m.Translator = "redis" }, errStr: "unknown translator"},
		{name: "translator path", modify: func(m *Main) { m.Translator = "leveldb" }, errStr: "translator path"},
		{name: "kafka topic", modify: func(m *Main) { m.KafkaHosts = []string{"localhost:9092"}; m.KafkaTopic = "" }, errStr: "topic"},
		{name: "tls", modify: func(m *Main) { m.TLS.CACertPath = "/nonexistent/ca.pem" }, errStr: "TLS config"},
	}
	dir := test.MustTempDir(t, "mdk-ingest")
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			m, _ := newTestMain(t, dir, 1)
			tst.modify(m)
			test.ErrContains(t, m.RunContext(context.Background()), tst.errStr)
		})
	}
}
