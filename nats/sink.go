// Package nats publishes record graphs to NATS subjects.
package nats

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Publisher is the part of *nats.Conn the Sink uses.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Sink publishes the JSON-LD of every record graph to Subject.
type Sink struct {
	Subject string
	pub     Publisher
	conn    *nats.Conn
}

// NewSink creates a Sink publishing with pub.
func NewSink(pub Publisher, subject string) *Sink {
	s := &Sink{Subject: subject, pub: pub}
	if c, ok := pub.(*nats.Conn); ok {
		s.conn = c
	}
	return s
}

// Connect dials the NATS server at url and returns a Sink using the
// connection.
func Connect(url, subject string, log mdk.Logger) (*Sink, error) {
	conn, err := nats.Connect(url,
		nats.Name("mdk"),
		nats.MaxReconnects(10),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(10*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Printf("nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Printf("nats reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "connecting to %s", url)
	}
	return NewSink(conn, subject), nil
}

// Output implements mdk.Sink.
func (s *Sink) Output(ctx context.Context, e *mdk.Entity) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "marshaling %s", e.Subject)
	}
	return errors.Wrapf(s.pub.Publish(s.Subject, b), "publishing %s", e.Subject)
}

// Close drains the connection if the Sink owns one.
func (s *Sink) Close() error {
	if s.conn == nil {
		return nil
	}
	return errors.Wrap(s.conn.Drain(), "draining nats connection")
}
