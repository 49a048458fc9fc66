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

package boltdb

import (
	"path/filepath"
	"testing"

	"github.com/pilosa/mdk/test"
)

// tempFileName returns a path for a new bolt file, removed after the test.
func tempFileName(t *testing.T) string {
	t.Helper()
	return filepath.Join(test.MustTempDir(t, "boltdb"), "mdk.db")
}

func TestBoltTranslator(t *testing.T) {
	boltFile := tempFileName(t)
	bt, err := NewTranslator(boltFile, "creator-name", "subject")
	test.ErrNil(t, err, "NewTranslator")

	steps := []struct {
		ns, val string
		id      uint64
	}{
		{ns: "creator-name", val: "Hello", id: 0},
		{ns: "subject", val: "Hello", id: 0},
		{ns: "creator-name", val: "World", id: 1},
		{ns: "creator-name", val: "Hello", id: 0},
		{ns: "language", val: "ger", id: 0},
	}
	for i, s := range steps {
		id, err := bt.GetID(s.ns, s.val)
		test.ErrNil(t, err, "GetID")
		test.MustBe(t, id, s.id, s.ns+"/"+s.val)
		val, err := bt.Get(s.ns, id)
		test.ErrNil(t, err, "Get")
		test.MustBe(t, val, s.val, string(rune('0'+i)))
	}
	test.ErrNil(t, bt.Close(), "Close")

	bt, err = NewTranslator(boltFile)
	test.ErrNil(t, err, "reopening")
	for _, s := range steps {
		val, err := bt.Get(s.ns, s.id)
		test.ErrNil(t, err, "Get after reopen")
		test.MustBe(t, val, s.val, "after reopen "+s.ns)
	}
	id, err := bt.GetID("creator-name", "Again")
	test.ErrNil(t, err, "GetID after reopen")
	test.MustBe(t, id, uint64(2), "allocation resumes after the stored ids")

	if _, err := bt.Get("language", 99); err == nil {
		t.Fatal("expected error for unknown id")
	}
	if _, err := bt.Get("nope", 0); err == nil {
		t.Fatal("expected error for unknown namespace")
	}
	test.ErrNil(t, bt.Close(), "Close")
}
