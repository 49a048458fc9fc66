// Package ingest holds the configuration shared by every mdk command: how
// records are decoded, which specification maps them and where the built
// entities go. Commands embed Main and supply NewSource.
package ingest

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/avro"
	"github.com/pilosa/mdk/boltdb"
	"github.com/pilosa/mdk/geohash"
	mdkjson "github.com/pilosa/mdk/json"
	"github.com/pilosa/mdk/kafka"
	"github.com/pilosa/mdk/leveldb"
	"github.com/pilosa/mdk/nats"
	"github.com/pilosa/mdk/pilosa"
	"github.com/pilosa/mdk/termstat"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Main holds all config for general ingest.
type Main struct {
	Framing       string `help:"Record framing: auto, marc21, mab, mab-diskette or pica."`
	Spec          string `help:"JSON or YAML specification mapping field keys to elements."`
	SubjectPrefix string `help:"Prefix for record subjects, e.g. http://example.org/record/."`
	Format        string `help:"Value of the format label attached to every record."`
	Type          string `help:"Value of the type label attached to every record."`
	Leader        bool   `help:"Emit the leader as a field group so it can be mapped with the LDR key."`
	Fatal         bool   `help:"Stop decoding a stream at the first malformed record instead of skipping it."`

	Concurrency   int           `help:"Number of pipeline workers."`
	SubmitTimeout time.Duration `help:"How long a source waits for a free worker before retrying."`
	SubmitRetries int           `help:"Retries after a submit timeout before a source gives up."`
	DrainTimeout  time.Duration `help:"How long to wait for workers to finish after the sources are exhausted."`

	Output          string `help:"File for line delimited JSON-LD output. '-' is stdout, empty disables."`
	Context         string `help:"JSON file with a JSON-LD @context added to every output record."`
	AvroPath        string `help:"Avro object container file to write records to."`
	AvroCompression string `help:"Avro block compression: null, deflate or snappy."`
	BoltPath        string `help:"Bolt database storing records and unmapped key counts."`

	PilosaHosts    []string `help:"Comma separated list of host:port pairs for Pilosa. Empty disables indexing."`
	Index          string   `help:"Name of Pilosa index."`
	BatchSize      uint     `help:"Number of bits per Pilosa import batch."`
	Translator     string   `help:"Value to row id translator for Pilosa: memory, leveldb or bolt."`
	TranslatorPath string   `help:"Directory (leveldb) or file (bolt) for the translator."`
	CacheSize      int      `help:"Number of translated ids to cache in memory. 0 disables the cache."`
	Proxy          string   `help:"While ingesting, bind to this address to proxy and translate queries to Pilosa."`

	KafkaHosts  []string `help:"Comma separated list of Kafka brokers to produce records to."`
	KafkaTopic  string   `help:"Kafka topic for produced records."`
	RegistryURL string   `help:"Confluent schema registry. When set, Kafka records are Avro encoded."`
	NatsURL     string   `help:"NATS server to publish records to."`
	NatsSubject string   `help:"NATS subject for published records."`

	TLS mdk.TLSConfig `help:"TLS settings for connections to Kafka and Pilosa."`

	MetricsAddr string `help:"Address to serve Prometheus metrics on, e.g. :9102."`
	Stats       bool   `help:"Periodically write pipeline counters to the log."`
	DumpSpec    bool   `help:"Print the loaded specification keys as JSON and exit."`
	LogPath     string `help:"Log file to write to. Empty means stderr."`
	Verbose     bool   `help:"Enable verbose logging."`

	NewSource func() (mdk.Source, error) `flag:"-"`
	Stdout    io.Writer                  `flag:"-"`

	log      mdk.Logger
	logOut   io.Writer
	tls      *tls.Config
	done     <-chan struct{}
	unmapped *mdk.UnmappedKeys
	closers  []io.Closer
}

// NewMain returns a Main with defaults that write JSON-LD to stdout.
func NewMain() *Main {
	return &Main{
		Framing:         mdk.AutoFraming,
		Concurrency:     4,
		SubmitTimeout:   30 * time.Second,
		SubmitRetries:   3,
		DrainTimeout:    time.Minute,
		Output:          "-",
		AvroCompression: "deflate",
		Index:           "mdk",
		BatchSize:       100000,
		Translator:      "memory",
		CacheSize:       100000,
		KafkaTopic:      "records",
		NatsSubject:     "mdk.records",
		Stdout:          os.Stdout,
		log:             mdk.NopLogger{},
	}
}

// Log returns the logger configured by Run.
func (m *Main) Log() mdk.Logger { return m.log }

// Done is closed when the running ingest is cancelled. Sources that wait
// for input, like a server, stop accepting it then.
func (m *Main) Done() <-chan struct{} { return m.done }

// TLSClientConfig returns the TLS configuration built by Run, or nil for
// plain text connections.
func (m *Main) TLSClientConfig() *tls.Config { return m.tls }

// Unmapped returns the keys no element handled during the last Run.
func (m *Main) Unmapped() *mdk.UnmappedKeys { return m.unmapped }

// Run ingests until the source is exhausted or the process is interrupted.
func (m *Main) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return m.RunContext(ctx)
}

// RunContext is Run with a caller supplied context.
func (m *Main) RunContext(ctx context.Context) (err error) {
	defer func() {
		for i := len(m.closers) - 1; i >= 0; i-- {
			if cerr := m.closers[i].Close(); cerr != nil && err == nil {
				err = errors.Wrap(cerr, "closing")
			}
		}
		m.closers = nil
	}()
	if err := m.setupLog(); err != nil {
		return errors.Wrap(err, "setting up logging")
	}
	if err := m.validate(); err != nil {
		return errors.Wrap(err, "validating configuration")
	}
	if m.tls, err = mdk.GetTLSConfig(&m.TLS, m.log); err != nil {
		return errors.Wrap(err, "getting TLS config")
	}

	idx, err := m.LoadSpec()
	if err != nil {
		return errors.Wrap(err, "loading specification")
	}
	if m.DumpSpec {
		enc := json.NewEncoder(m.Stdout)
		enc.SetIndent("", "  ")
		return errors.Wrap(enc.Encode(idx.Dump()), "dumping specification")
	}

	rules, err := m.rules()
	if err != nil {
		return err
	}
	stats, err := m.statter()
	if err != nil {
		return errors.Wrap(err, "setting up stats")
	}
	sink, listener, err := m.sinks()
	if err != nil {
		return errors.Wrap(err, "setting up sinks")
	}
	p := mdk.NewPipeline(idx, sink,
		mdk.OptPipelineRules(rules),
		mdk.OptPipelineUnmapped(listener),
		mdk.OptPipelineLabels(m.Format, m.Type),
		mdk.OptPipelineSubjectPrefix(m.SubjectPrefix),
		mdk.OptPipelineLeader(m.Leader),
		mdk.OptPipelineLogger(m.log),
		mdk.OptPipelineStatter(stats),
	)

	m.done = ctx.Done()
	src, err := m.NewSource()
	if err != nil {
		return errors.Wrap(err, "getting source")
	}
	if c, ok := src.(io.Closer); ok {
		m.closers = append(m.closers, c)
	}

	ing := mdk.NewIngester(p, src)
	ing.Concurrency = m.Concurrency
	ing.SubmitTimeout = m.SubmitTimeout
	ing.SaturationRetries = m.SubmitRetries
	ing.DrainTimeout = m.DrainTimeout
	start := time.Now()
	runErr := ing.Run(ctx)
	closeErr := p.Close()
	m.report(ing, time.Since(start))
	if runErr != nil {
		return errors.Wrap(runErr, "running ingester")
	}
	return closeErr
}

func (m *Main) setupLog() error {
	out := io.Writer(os.Stderr)
	if m.LogPath != "" {
		f, err := os.OpenFile(m.LogPath, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return errors.Wrap(err, "opening log file")
		}
		m.closers = append(m.closers, f)
		out = f
	}
	m.logOut = out
	m.log = mdk.NewLogger(out, m.Verbose)
	return nil
}

func (m *Main) validate() error {
	if m.NewSource == nil && !m.DumpSpec {
		return errors.New("no source configured")
	}
	if m.Framing == "" {
		m.Framing = mdk.AutoFraming
	}
	if m.Framing != mdk.AutoFraming {
		if _, err := mdk.Preset(m.Framing); err != nil {
			return err
		}
	}
	if m.Concurrency < 1 {
		return errors.Errorf("concurrency must be positive, got %d", m.Concurrency)
	}
	switch m.Translator {
	case "", "memory":
	case "leveldb", "bolt":
		if m.TranslatorPath == "" {
			return errors.Errorf("translator %s needs a translator path", m.Translator)
		}
	default:
		return errors.Errorf("unknown translator %q", m.Translator)
	}
	if len(m.KafkaHosts) > 0 && m.KafkaTopic == "" {
		return errors.New("kafka hosts given without a topic")
	}
	if m.NatsURL != "" && m.NatsSubject == "" {
		return errors.New("nats url given without a subject")
	}
	if m.Stdout == nil {
		m.Stdout = os.Stdout
	}
	return nil
}

// rules picks the pipeline's default framing. Auto detection happens per
// stream in the source, items carry the detected preset name.
func (m *Main) rules() (mdk.FramingRules, error) {
	rules := mdk.MARC21
	if m.Framing != mdk.AutoFraming {
		var err error
		if rules, err = mdk.Preset(m.Framing); err != nil {
			return rules, err
		}
	}
	rules.Fatal = m.Fatal
	return rules, nil
}

// LoadSpec reads the configured specification. Without one every key is
// reported as unmapped, which is useful to survey a new data set.
func (m *Main) LoadSpec() (*mdk.SpecificationIndex, error) {
	reg := mdk.NewElementRegistry()
	geohash.Register(reg)
	l := &mdk.SpecLoader{Registry: reg}
	if m.Framing != mdk.AutoFraming {
		rules, err := mdk.Preset(m.Framing)
		if err != nil {
			return nil, err
		}
		l.Options = append(l.Options, mdk.OptIndicatorLength(rules.IndicatorLength))
		if strings.HasPrefix(rules.Name, "mab") {
			l.Options = append(l.Options, mdk.OptKeyExpander(mdk.MABPeriodic))
		}
	}
	if m.Spec == "" {
		m.log.Printf("no specification given, all fields will be unmapped")
		return mdk.NewSpecificationIndex(l.Options...), nil
	}
	idx, err := l.LoadFile(m.Spec)
	if err != nil {
		return nil, err
	}
	m.log.Printf("loaded %d keys for %d elements from %s", idx.Len(), len(idx.HandlerNames()), m.Spec)
	return idx, nil
}

func (m *Main) statter() (mdk.Statter, error) {
	var stats mdk.MultiStatter
	if m.Stats {
		c := termstat.NewCollector(m.logOut)
		m.closers = append(m.closers, c)
		stats = append(stats, c)
	}
	if m.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		ps, err := mdk.NewPrometheusStatter("mdk", reg)
		if err != nil {
			return nil, err
		}
		stats = append(stats, ps)
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: m.MetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				m.log.Printf("metrics server: %v", err)
			}
		}()
		m.closers = append(m.closers, srv)
	}
	switch len(stats) {
	case 0:
		return mdk.NopStatter{}, nil
	case 1:
		return stats[0], nil
	}
	return stats, nil
}

// sinks builds every configured output. Sinks are closed by the pipeline,
// other resources are added to m.closers. On error the sinks opened so far
// are closed.
func (m *Main) sinks() (_ mdk.Sink, _ mdk.UnmappedKeyListener, err error) {
	var sinks mdk.MultiSink
	defer func() {
		if err == nil {
			return
		}
		if cerr := sinks.Close(); cerr != nil {
			m.log.Printf("closing outputs: %v", cerr)
		}
	}()
	m.unmapped = mdk.NewUnmappedKeys()
	listeners := []mdk.UnmappedKeyListener{m.unmapped.Listen}

	if m.Output != "" {
		var jsonCtx mdk.Context
		if m.Context != "" {
			if jsonCtx, err = readContext(m.Context); err != nil {
				return nil, nil, err
			}
		}
		w := m.Stdout
		if m.Output != "-" {
			f, err := os.Create(m.Output)
			if err != nil {
				return nil, nil, errors.Wrap(err, "creating output file")
			}
			w = f
		} else {
			w = nopCloser{w}
		}
		s := mdkjson.NewSink(w)
		s.Context = jsonCtx
		sinks = append(sinks, s)
	}
	if m.AvroPath != "" {
		f, err := os.Create(m.AvroPath)
		if err != nil {
			return nil, nil, errors.Wrap(err, "creating avro file")
		}
		s, err := avro.NewSink(f, m.AvroCompression)
		if err != nil {
			f.Close()
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	if m.BoltPath != "" {
		store, err := boltdb.OpenStore(m.BoltPath, m.log)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
		listeners = append(listeners, store.Listen)
	}
	if len(m.PilosaHosts) > 0 {
		tr, err := m.translator()
		if err != nil {
			return nil, nil, errors.Wrap(err, "opening translator")
		}
		idx, err := pilosa.SetupPilosa(m.PilosaHosts, m.Index, m.BatchSize, m.tls, m.log)
		if err != nil {
			return nil, nil, errors.Wrap(err, "setting up Pilosa")
		}
		sinks = append(sinks, pilosa.NewSink(idx, tr, m.Index))
		if m.Proxy != "" {
			srv := &http.Server{Addr: m.Proxy, Handler: pilosa.NewProxy(m.PilosaHosts[0], tr, m.log)}
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					m.log.Printf("proxy: %v", err)
				}
			}()
			m.closers = append(m.closers, srv)
		}
	}
	if len(m.KafkaHosts) > 0 {
		s, err := kafka.OpenSink(m.KafkaHosts, m.KafkaTopic, m.tls)
		if err != nil {
			return nil, nil, err
		}
		if m.RegistryURL != "" {
			id, err := avro.NewRegistry(m.RegistryURL).Register(m.KafkaTopic + "-value")
			if err != nil {
				s.Close()
				return nil, nil, errors.Wrap(err, "registering schema")
			}
			if s.Encoder, err = avro.NewEncoder(id); err != nil {
				s.Close()
				return nil, nil, err
			}
		}
		sinks = append(sinks, s)
	}
	if m.NatsURL != "" {
		s, err := nats.Connect(m.NatsURL, m.NatsSubject, m.log)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, s)
	}
	if len(sinks) == 0 {
		m.log.Printf("no output configured, records are only counted")
	}
	listener := func(recordID, key string) {
		for _, l := range listeners {
			l(recordID, key)
		}
	}
	return sinks, listener, nil
}

// translator opens the configured translator. The pilosa sink does not
// close it, so it goes to m.closers.
func (m *Main) translator() (mdk.Translator, error) {
	var tr mdk.Translator
	switch m.Translator {
	case "leveldb":
		lt, err := leveldb.NewTranslator(m.TranslatorPath)
		if err != nil {
			return nil, err
		}
		tr = lt
	case "bolt":
		bt, err := boltdb.NewTranslator(m.TranslatorPath)
		if err != nil {
			return nil, err
		}
		tr = bt
	default:
		return mdk.NewMapTranslator(), nil
	}
	if m.CacheSize > 0 {
		ct, err := leveldb.NewCachedTranslator(tr, m.CacheSize)
		if err != nil {
			if c, ok := tr.(io.Closer); ok {
				c.Close()
			}
			return nil, err
		}
		tr = ct
	}
	m.closers = append(m.closers, tr.(io.Closer))
	return tr, nil
}

func (m *Main) report(ing *mdk.Ingester, took time.Duration) {
	failures := ing.Failures()
	for _, f := range failures {
		m.log.Debugf("failure: %v", f)
	}
	m.log.Printf("done in %v, %d failures", took, len(failures))
	keys := m.unmapped.Keys()
	if len(keys) == 0 {
		return
	}
	m.log.Printf("%d unmapped keys", len(keys))
	for i, k := range keys {
		if i == 20 {
			m.log.Printf("  ...")
			break
		}
		m.log.Printf("  %s: %d", k, m.unmapped.Count(k))
	}
}

func readContext(path string) (mdk.Context, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening context")
	}
	defer f.Close()
	var ctx mdk.Context
	if err := json.NewDecoder(f).Decode(&ctx); err != nil {
		return nil, errors.Wrapf(err, "decoding context %s", path)
	}
	return ctx, nil
}

// nopCloser keeps the json sink from closing stdout.
type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
