// Copyright 2017-2019 Pilosa Corp.
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

package mdk_test

import (
	"io"
	"strings"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
)

type mockSource struct {
	items []interface{}
}

func (s *mockSource) Record() (interface{}, error) {
	if len(s.items) == 0 {
		return nil, io.EOF
	}
	r := s.items[0]
	s.items = s.items[1:]
	return r, nil
}

func TestReaderSource(t *testing.T) {
	tests := []struct {
		name  string
		rules mdk.FramingRules
		in    string
		exp   []string
	}{
		{
			name:  "marc21",
			rules: mdk.MARC21,
			in:    sampleRecord + "\r\n" + sampleRecord,
			exp:   []string{sampleRecord, sampleRecord},
		},
		{
			name:  "truncated tail",
			rules: mdk.MARC21,
			in:    sampleRecord + sampleRecord[:30],
			exp:   []string{sampleRecord, sampleRecord[:30]},
		},
		{
			name:  "mab-diskette",
			rules: mdk.MABDiskette,
			in:    "### a\n001 1\n### b\n001 2\n",
			exp:   []string{"### a\n001 1\n", "### b\n001 2\n"},
		},
		{
			name:  "pica",
			rules: mdk.PICA,
			in:    "\n003@ $01\n\n\n003@ $02\n",
			exp:   []string{"003@ $01\n", "003@ $02\n"},
		},
	}
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			src := mdk.NewReaderSource(strings.NewReader(tst.in), tst.rules)
			var got []string
			for {
				rec, err := src.Record()
				if err == io.EOF {
					break
				}
				test.ErrNil(t, err, "Record")
				got = append(got, string(rec.([]byte)))
			}
			test.MustBe(t, got, tst.exp)
		})
	}
}

func TestDetectFraming(t *testing.T) {
	tests := []struct {
		in  string
		exp string
		err bool
	}{
		{in: sampleRecord, exp: "marc21"},
		{in: "\n" + sampleRecord, exp: "marc21"},
		{in: "00000nM2.01200000      h001", exp: "mab"},
		{in: "### 00000nM2.01200024      h\n", exp: "mab-diskette"},
		{in: "003@ $0123\n", exp: "pica"},
		{in: "hello world", err: true},
	}
	for _, tst := range tests {
		rules, err := mdk.DetectFraming([]byte(tst.in))
		if tst.err {
			if err == nil {
				t.Errorf("%q: expected error, got %v", tst.in, rules.Name)
			}
			continue
		}
		test.ErrNil(t, err, tst.in)
		test.MustBe(t, rules.Name, tst.exp, tst.in)
	}
}

type namedReader struct {
	io.Reader
	name string
}

func (n namedReader) Close() error                 { return nil }
func (n namedReader) Name() string                 { return n.name }
func (n namedReader) Meta() map[string]interface{} { return nil }

type memRawSource struct {
	names, streams []string
}

func (m *memRawSource) NextReader() (mdk.NamedReadCloser, error) {
	if len(m.streams) == 0 {
		return nil, io.EOF
	}
	r := namedReader{Reader: strings.NewReader(m.streams[0]), name: m.names[0]}
	m.names, m.streams = m.names[1:], m.streams[1:]
	return r, nil
}

func TestRawRecordSource(t *testing.T) {
	raw := &memRawSource{
		names:   []string{"a.mrc", "empty", "b.pica"},
		streams: []string{sampleRecord + sampleRecord, "", "003@ $01\n\n003@ $02\n"},
	}
	src, err := mdk.NewRawRecordSource(raw, mdk.AutoFraming)
	test.ErrNil(t, err, "NewRawRecordSource")
	var got []string
	for {
		rec, err := src.Record()
		if err == io.EOF {
			break
		}
		test.ErrNil(t, err, "Record")
		item := rec.(*mdk.WorkItem)
		got = append(got, item.Origin+" "+item.Framing)
	}
	test.MustBe(t, got, []string{"a.mrc#0 marc21", "a.mrc#71 marc21", "b.pica#0 pica", "b.pica#10 pica"})

	_, err = mdk.NewRawRecordSource(raw, "nope")
	if err == nil {
		t.Fatal("expected unknown framing error")
	}

	src, err = mdk.NewRawRecordSource(&memRawSource{names: []string{"x"}, streams: []string{"hello"}}, mdk.AutoFraming)
	test.ErrNil(t, err, "NewRawRecordSource")
	if _, err := src.Record(); err == nil || !strings.Contains(err.Error(), "framing x") {
		t.Fatalf("expected detection error, got %v", err)
	}
}
