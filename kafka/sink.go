package kafka

import (
	"context"
	"crypto/tls"
	"encoding/json"

	"github.com/Shopify/sarama"
	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/avro"
	"github.com/pkg/errors"
)

// Sink produces one message per record graph, keyed by subject. Values are
// JSON-LD, or Confluent framed Avro when an Encoder is set.
type Sink struct {
	Topic   string
	Encoder *avro.Encoder

	producer sarama.SyncProducer
}

// NewSink creates a Sink producing with p.
func NewSink(p sarama.SyncProducer, topic string) *Sink {
	return &Sink{Topic: topic, producer: p}
}

// OpenSink connects a synchronous producer to hosts. A nil tlsConf
// connects in plain text.
func OpenSink(hosts []string, topic string, tlsConf *tls.Config) (*Sink, error) {
	config := sarama.NewConfig()
	if tlsConf != nil {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = tlsConf
	}
	config.Version = sarama.V0_10_0_0
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	p, err := sarama.NewSyncProducer(hosts, config)
	if err != nil {
		return nil, errors.Wrap(err, "getting new producer")
	}
	return NewSink(p, topic), nil
}

// Output implements mdk.Sink.
func (s *Sink) Output(ctx context.Context, e *mdk.Entity) error {
	var val []byte
	var err error
	if s.Encoder != nil {
		val, err = s.Encoder.Marshal(e)
	} else {
		val, err = json.Marshal(e)
	}
	if err != nil {
		return errors.Wrapf(err, "encoding %s", e.Subject)
	}
	_, _, err = s.producer.SendMessage(&sarama.ProducerMessage{
		Topic: s.Topic,
		Key:   sarama.StringEncoder(e.Subject),
		Value: sarama.ByteEncoder(val),
	})
	return errors.Wrapf(err, "producing %s", e.Subject)
}

// Close closes the producer.
func (s *Sink) Close() error {
	return errors.Wrap(s.producer.Close(), "closing kafka producer")
}
