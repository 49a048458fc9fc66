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

// Package leveldb persists the value to id translation of the Pilosa sink
// in a LevelDB database.
package leveldb

import (
	"bytes"
	"encoding/binary"
	"hash/fnv"
	"sync"
	"sync/atomic"

	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var _ mdk.Translator = &Translator{}

// Key layout: 'i' ns 0x00 id(8 bytes big endian) -> value and
// 'v' ns 0x00 value -> id. Both directions are written in one batch.
const (
	idTable  = 'i'
	valTable = 'v'
	sep      = 0x00
)

// Translator is a mdk.Translator which stores the two way val/id mapping of
// every namespace in a single LevelDB database.
type Translator struct {
	db *leveldb.DB

	mu     sync.RWMutex
	spaces map[string]*namespace
}

type namespace struct {
	name  string
	next  atomic.Uint64
	locks *bucketVLock
}

// NewTranslator opens or creates the database at dirname. The given
// namespaces are loaded eagerly, others on first use.
func NewTranslator(dirname string, namespaces ...string) (*Translator, error) {
	db, err := leveldb.OpenFile(dirname, &opt.Options{})
	if err != nil {
		return nil, errors.Wrapf(err, "opening leveldb at %v", dirname)
	}
	lt := &Translator{
		db:     db,
		spaces: make(map[string]*namespace),
	}
	for _, ns := range namespaces {
		if _, err := lt.namespace(ns); err != nil {
			db.Close()
			return nil, err
		}
	}
	return lt, nil
}

// Close closes the database.
func (lt *Translator) Close() error {
	return errors.Wrap(lt.db.Close(), "closing leveldb")
}

func tableKey(table byte, ns string, rest []byte) []byte {
	k := make([]byte, 0, len(ns)+len(rest)+2)
	k = append(k, table)
	k = append(k, ns...)
	k = append(k, sep)
	return append(k, rest...)
}

func idKey(ns string, id uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, id)
	return tableKey(idTable, ns, b)
}

// namespace retrieves or loads a namespace. Loading finds the highest id
// already stored so allocation resumes after it.
func (lt *Translator) namespace(name string) (*namespace, error) {
	lt.mu.RLock()
	ns, ok := lt.spaces[name]
	lt.mu.RUnlock()
	if ok {
		return ns, nil
	}
	lt.mu.Lock()
	defer lt.mu.Unlock()
	if ns, ok := lt.spaces[name]; ok {
		return ns, nil
	}
	ns = &namespace{name: name, locks: newBucketVLock()}
	iter := lt.db.NewIterator(util.BytesPrefix(tableKey(idTable, name, nil)), nil)
	if iter.Last() {
		k := iter.Key()
		ns.next.Store(binary.BigEndian.Uint64(k[len(k)-8:]) + 1)
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return nil, errors.Wrapf(err, "finding last id of %s", name)
	}
	lt.spaces[name] = ns
	return ns, nil
}

// Namespaces returns the names of the loaded namespaces.
func (lt *Translator) Namespaces() []string {
	lt.mu.RLock()
	defer lt.mu.RUnlock()
	names := make([]string, 0, len(lt.spaces))
	for name := range lt.spaces {
		names = append(names, name)
	}
	return names
}

// Get returns the value mapped to the given id in the given namespace.
func (lt *Translator) Get(namespace string, id uint64) (string, error) {
	data, err := lt.db.Get(idKey(namespace, id), nil)
	if err == leveldb.ErrNotFound {
		return "", errors.Errorf("unknown id %d in %s", id, namespace)
	} else if err != nil {
		return "", errors.Wrap(err, "fetching from id table")
	}
	return string(data), nil
}

func (lt *Translator) lookup(key []byte) (uint64, bool, error) {
	data, err := lt.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return 0, false, nil
	} else if err != nil {
		return 0, false, errors.Wrap(err, "reading value table")
	}
	return binary.BigEndian.Uint64(data), true, nil
}

// GetID returns the integer id associated with the given value in the given
// namespace. It allocates a new ID if the value is not found.
func (lt *Translator) GetID(namespace string, val string) (uint64, error) {
	ns, err := lt.namespace(namespace)
	if err != nil {
		return 0, err
	}
	valKey := tableKey(valTable, namespace, []byte(val))
	// most values repeat, so read before locking
	if id, ok, err := lt.lookup(valKey); err != nil || ok {
		return id, err
	}

	ns.locks.Lock(valKey)
	defer ns.locks.Unlock(valKey)
	if id, ok, err := lt.lookup(valKey); err != nil || ok {
		return id, err
	}

	id := ns.next.Add(1) - 1
	k := idKey(namespace, id)
	batch := new(leveldb.Batch)
	batch.Put(k, []byte(val))
	batch.Put(valKey, k[len(k)-8:])
	if err := lt.db.Write(batch, nil); err != nil {
		return 0, errors.Wrapf(err, "storing id for %s", val)
	}
	return id, nil
}

// bucketVLock serializes allocation per value without a lock per value.
type bucketVLock struct {
	ms [256]sync.Mutex
}

func newBucketVLock() *bucketVLock {
	return &bucketVLock{}
}

func (b *bucketVLock) bucket(val []byte) *sync.Mutex {
	hsh := fnv.New32a()
	hsh.Write(val) // never returns error for hash
	return &b.ms[hsh.Sum32()%uint32(len(b.ms))]
}

func (b *bucketVLock) Lock(val []byte)   { b.bucket(val).Lock() }
func (b *bucketVLock) Unlock(val []byte) { b.bucket(val).Unlock() }

// Dump calls fn for every mapping of namespace in id order.
func (lt *Translator) Dump(namespace string, fn func(id uint64, val string) error) error {
	prefix := tableKey(idTable, namespace, nil)
	iter := lt.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		k := iter.Key()
		if len(k) != len(prefix)+8 || !bytes.HasPrefix(k, prefix) {
			continue
		}
		if err := fn(binary.BigEndian.Uint64(k[len(prefix):]), string(iter.Value())); err != nil {
			return err
		}
	}
	return errors.Wrap(iter.Error(), "iterating ids")
}
