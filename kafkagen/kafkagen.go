// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

// Package kafkagen publishes raw records to a Kafka topic, either generated
// ones or records read from files.
package kafkagen

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shopify/sarama"
	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/fake"
	"github.com/pilosa/mdk/file"
	"github.com/pkg/errors"
)

// Main holds the execution state for the kafka generator.
type Main struct {
	Hosts   []string      `help:"Kafka brokers to publish to."`
	Topic   string        `help:"Topic to publish records to."`
	Seed    int64         `help:"Random seed for generated records."`
	Count   uint64        `help:"Number of records to publish. 0 publishes until interrupted, or until Path is exhausted."`
	Rate    time.Duration `help:"Delay between messages. 0 publishes as fast as possible."`
	Backoff time.Duration `help:"Delay after a failed send."`
	Path    string        `help:"Publish ISO 2709 records read from this file or directory instead of generated ones."`
	Framing string        `help:"Framing of the records under Path, or auto."`

	TLS mdk.TLSConfig `help:"TLS settings for the brokers."`

	Log mdk.Logger `flag:"-"`
}

// NewMain returns a new Main.
func NewMain() *Main {
	return &Main{
		Hosts:   []string{"localhost:9092"},
		Topic:   "records",
		Seed:    1,
		Rate:    time.Second,
		Backoff: time.Second * 10,
		Framing: mdk.AutoFraming,
		Log:     mdk.NewLogger(os.Stderr, false),
	}
}

// Run runs the kafka generator until Count messages are sent, the records
// run out or the process is interrupted.
func (m *Main) Run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	conf := sarama.NewConfig()
	conf.Version = sarama.V0_10_0_0
	conf.Producer.Return.Successes = true
	tlsConf, err := mdk.GetTLSConfig(&m.TLS, m.Log)
	if err != nil {
		return errors.Wrap(err, "getting TLS config")
	}
	if tlsConf != nil {
		conf.Net.TLS.Enable = true
		conf.Net.TLS.Config = tlsConf
	}
	producer, err := sarama.NewSyncProducer(m.Hosts, conf)
	if err != nil {
		return errors.Wrap(err, "getting new producer")
	}
	defer producer.Close()

	n, err := m.run(ctx, producer)
	m.Log.Printf("sent %d records to %s", n, m.Topic)
	return err
}

func (m *Main) source() (mdk.Source, error) {
	if m.Path == "" {
		return fake.NewSource(m.Seed, m.Count), nil
	}
	src, err := file.NewSource(m.Path, file.InputISO2709, m.Framing)
	return src, errors.Wrap(err, "opening records")
}

// run publishes records with p and returns how many were sent.
func (m *Main) run(ctx context.Context, p sarama.SyncProducer) (uint64, error) {
	src, err := m.source()
	if err != nil {
		return 0, err
	}
	var tick <-chan time.Time
	if m.Rate > 0 {
		ticker := time.NewTicker(m.Rate)
		defer ticker.Stop()
		tick = ticker.C
	}
	var sent uint64
	for m.Count == 0 || sent < m.Count {
		rec, err := src.Record()
		if err == io.EOF {
			return sent, nil
		} else if err != nil {
			return sent, errors.Wrap(err, "getting record")
		}
		item := rec.(*mdk.WorkItem)
		msg := &sarama.ProducerMessage{
			Topic: m.Topic,
			Key:   sarama.StringEncoder(item.Origin),
			Value: sarama.ByteEncoder(item.Raw),
		}
		if _, _, err := p.SendMessage(msg); err != nil {
			m.Log.Printf("Error sending %s: '%v', backing off", item.Origin, err)
			if !sleep(ctx, m.Backoff) {
				return sent, nil
			}
			continue
		}
		sent++
		if tick != nil {
			select {
			case <-tick:
			case <-ctx.Done():
				return sent, nil
			}
		} else if ctx.Err() != nil {
			return sent, nil
		}
	}
	return sent, nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
