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

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/fake"
	"github.com/pilosa/mdk/ingest"
	"github.com/spf13/cobra"
)

// FakeMain ingests generated MARC 21 records.
type FakeMain struct {
	ingest.Main `flag:"!embed"`
	Seed        int64  `help:"Random seed for the generated records."`
	Count       uint64 `help:"Number of records to generate. 0 generates until interrupted."`
}

// NewFakeMain gets a FakeMain with default values.
func NewFakeMain() *FakeMain {
	m := &FakeMain{
		Main:  *ingest.NewMain(),
		Seed:  1,
		Count: 1000,
	}
	m.Framing = "marc21"
	m.NewSource = func() (mdk.Source, error) {
		return fake.NewSource(m.Seed, m.Count), nil
	}
	return m
}

// NewFakeCommand returns a command ingesting generated records.
func NewFakeCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	m := NewFakeMain()
	m.Stdout = stdout
	return newIngestCommand(m, "fake", "decode generated MARC 21 records",
		`Generates --count bibliographic records with author, title, subject
and sometimes coordinate fields and runs them through the ingester.
Useful for trying a specification or loading Pilosa without data.`)
}

func init() {
	subcommandFns["fake"] = NewFakeCommand
}
