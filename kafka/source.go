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

package kafka

import (
	"crypto/tls"
	"fmt"
	"io"
	"io/ioutil"
	"log"
	"sync"

	"github.com/Shopify/sarama"
	cluster "github.com/bsm/sarama-cluster"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Consumer is the part of a cluster consumer the Source reads from.
type Consumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	MarkOffset(msg *sarama.ConsumerMessage, metadata string)
	Close() error
}

// Source implements the mdk.Source interface using kafka as a data source.
// Every message value holds raw records in the Source's framing.
type Source struct {
	Hosts   []string
	Topics  []string
	Group   string
	MaxMsgs int
	// Framing names the preset the message values are framed with: empty
	// for the pipeline's framing, "auto" to detect it per message.
	Framing string
	Log     mdk.Logger
	// TLS, if set, encrypts the connections to the brokers.
	TLS *tls.Config

	mu       sync.Mutex
	numMsgs  int
	consumer Consumer
	last     *sarama.ConsumerMessage
	closed   bool
}

// NewSource gets a new Source
func NewSource() *Source {
	return &Source{
		Hosts:  []string{"localhost:9092"},
		Topics: []string{"marc"},
		Group:  "mdk",
		Log:    mdk.NopLogger{},
	}
}

// NewSourceFromConsumer returns a Source reading from an already opened
// consumer.
func NewSourceFromConsumer(c Consumer) *Source {
	s := NewSource()
	s.consumer = c
	return s
}

// Record returns the value of the next kafka message as a *mdk.WorkItem.
// The offset of a message is marked once the next one is requested, so a
// message is only committed after it was handed to the pipeline.
func (s *Source) Record() (interface{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last != nil {
		s.consumer.MarkOffset(s.last, "") // mark message as processed
		s.last = nil
	}
	if s.MaxMsgs > 0 {
		s.numMsgs++
		if s.numMsgs > s.MaxMsgs {
			return nil, io.EOF
		}
	}
	msgs := s.consumer.Messages()
	s.mu.Unlock()
	msg, ok := <-msgs
	s.mu.Lock()
	if !ok || s.closed {
		return nil, io.EOF
	}
	s.last = msg
	return &mdk.WorkItem{
		Raw:     msg.Value,
		Origin:  fmt.Sprintf("%s/%d@%d", msg.Topic, msg.Partition, msg.Offset),
		Framing: s.Framing,
	}, nil
}

// Open initializes the kafka source.
func (s *Source) Open() error {
	// init (custom) config, enable errors and notifications
	sarama.Logger = log.New(ioutil.Discard, "", 0)
	config := cluster.NewConfig()
	config.Config.Version = sarama.V0_10_0_0
	config.Consumer.Return.Errors = true
	config.Consumer.Offsets.Initial = sarama.OffsetOldest
	config.Group.Return.Notifications = true
	if s.TLS != nil {
		config.Net.TLS.Enable = true
		config.Net.TLS.Config = s.TLS
	}

	consumer, err := cluster.NewConsumer(s.Hosts, s.Group, s.Topics, config)
	if err != nil {
		return errors.Wrap(err, "getting new consumer")
	}
	s.consumer = consumer

	// consume errors
	go func() {
		for err := range consumer.Errors() {
			s.Log.Printf("kafka consumer error: %v", err)
		}
	}()

	// consume notifications
	go func() {
		for ntf := range consumer.Notifications() {
			s.Log.Debugf("kafka rebalanced: %+v", ntf)
		}
	}()
	return nil
}

// Close marks the last message and closes the underlying kafka consumer. A
// Record call waiting for a message returns io.EOF.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.last != nil {
		s.consumer.MarkOffset(s.last, "")
		s.last = nil
	}
	err := s.consumer.Close()
	return errors.Wrap(err, "closing kafka consumer")
}
