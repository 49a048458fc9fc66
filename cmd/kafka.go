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

package cmd

import (
	"io"

	"github.com/jaffee/commandeer/cobrafy"
	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/ingest"
	"github.com/pilosa/mdk/kafka"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// KafkaMain consumes raw records from Kafka topics. One message value holds
// one record.
type KafkaMain struct {
	ingest.Main `flag:"!embed"`
	Brokers     []string `help:"Kafka brokers to consume from."`
	Topics      []string `help:"Topics to consume."`
	Group       string   `help:"Consumer group id."`
	MaxMsgs     int      `help:"Stop after this many messages. 0 consumes until interrupted."`
}

// NewKafkaMain gets a KafkaMain with default values.
func NewKafkaMain() *KafkaMain {
	m := &KafkaMain{
		Main:    *ingest.NewMain(),
		Brokers: []string{"localhost:9092"},
		Topics:  []string{"marc"},
		Group:   "mdk",
	}
	m.NewSource = func() (mdk.Source, error) {
		source := kafka.NewSource()
		source.Hosts = m.Brokers
		source.Topics = m.Topics
		source.Group = m.Group
		source.MaxMsgs = m.MaxMsgs
		source.Log = m.Log()
		source.Framing = m.Framing
		source.TLS = m.TLSClientConfig()

		err := source.Open()
		if err != nil {
			return nil, errors.Wrap(err, "opening source")
		}
		go func() {
			<-m.Done()
			source.Close()
		}()
		return source, nil
	}
	return m
}

// NewKafkaCommand returns a command consuming records from Kafka.
func NewKafkaCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	m := NewKafkaMain()
	m.Stdout = stdout
	com, err := cobrafy.Command(m)
	if err != nil {
		panic(err)
	}
	com.Use = "kafka"
	com.Short = "decode records consumed from Kafka"
	com.Long = `Consumes --topics as part of --group. Every message value is one raw
record. Offsets are committed once the following message is requested.`
	return com
}

func init() {
	subcommandFns["kafka"] = NewKafkaCommand
}
