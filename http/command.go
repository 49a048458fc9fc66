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

package http

import (
	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/ingest"
	"github.com/pkg/errors"
)

// Main holds the config for the http command.
type Main struct {
	ingest.Main `flag:"!embed"`
	Bind        string `help:"Listen for post requests on this address."`
	Input       string `help:"Input format of request bodies: iso2709 (any framing preset) or json."`
	Buffer      int    `help:"Number of request bodies that may wait to be read."`
}

// NewMain gets a new Main with default values.
func NewMain() *Main {
	m := &Main{
		Main:   *ingest.NewMain(),
		Bind:   ":12121",
		Input:  "iso2709",
		Buffer: 3,
	}
	m.NewSource = func() (mdk.Source, error) {
		framing := m.Framing
		if m.Input == "json" {
			framing = ""
		}
		rs, err := NewRawSource(WithAddr(m.Bind), WithBuffer(m.Buffer), WithFraming(framing), WithLogger(m.Log()))
		if err != nil {
			return nil, errors.Wrap(err, "getting http source")
		}
		src, err := NewSource(rs, m.Input, m.Framing)
		if err != nil {
			rs.Close()
			return nil, err
		}
		m.Log().Printf("listening on %s", rs.Addr())
		go func() {
			<-m.Done()
			if err := rs.Close(); err != nil {
				m.Log().Printf("%v", err)
			}
		}()
		return src, nil
	}
	return m
}
