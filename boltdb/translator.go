// Package boltdb keeps ingest state in boltdb files: a mdk.Translator, a
// record store that doubles as a mdk.Sink and a persistent count of
// unmapped keys. The leveldb translator has better write performance for
// large id spaces.
package boltdb

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

var (
	idBucket  = []byte("idKey")
	valBucket = []byte("valKey")
)

var _ mdk.Translator = &Translator{}

// Translator is a mdk.Translator which stores the two way val/id mapping in
// boltdb. Each namespace has a nested bucket in the id and the value bucket.
type Translator struct {
	Db         *bolt.DB
	fmu        sync.RWMutex
	namespaces map[string]struct{}
}

// Close syncs and closes the underlying boltdb.
func (bt *Translator) Close() error {
	err := bt.Db.Sync()
	if err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return bt.Db.Close()
}

// NewTranslator opens or creates the translator database at filename.
// Namespaces stored by earlier runs are available right away.
func NewTranslator(filename string, namespaces ...string) (bt *Translator, err error) {
	bt = &Translator{
		namespaces: make(map[string]struct{}),
	}
	bt.Db, err = bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second, InitialMmapSize: 50000000, NoGrowSync: true})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	bt.Db.MaxBatchDelay = 400 * time.Microsecond
	err = bt.Db.Update(func(tx *bolt.Tx) error {
		ib, err := tx.CreateBucketIfNotExists(idBucket)
		if err != nil {
			return errors.Wrap(err, "creating idKey bucket")
		}
		vb, err := tx.CreateBucketIfNotExists(valBucket)
		if err != nil {
			return errors.Wrap(err, "creating valKey bucket")
		}
		// nested buckets of earlier runs
		err = ib.ForEach(func(k, v []byte) error {
			if v == nil {
				bt.namespaces[string(k)] = struct{}{}
			}
			return nil
		})
		if err != nil {
			return errors.Wrap(err, "listing namespaces")
		}
		for _, ns := range namespaces {
			if err := bt.addNamespace(ib, vb, ns); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		bt.Db.Close()
		return nil, errors.Wrap(err, "ensuring bucket existence")
	}
	return bt, nil
}

func (bt *Translator) addNamespace(ib, vb *bolt.Bucket, ns string) error {
	if _, err := ib.CreateBucketIfNotExists([]byte(ns)); err != nil {
		return errors.Wrap(err, "adding "+ns+" to id bucket")
	}
	if _, err := vb.CreateBucketIfNotExists([]byte(ns)); err != nil {
		return errors.Wrap(err, "adding "+ns+" to val bucket")
	}
	bt.fmu.Lock()
	bt.namespaces[ns] = struct{}{}
	bt.fmu.Unlock()
	return nil
}

func (bt *Translator) ensure(ns string) error {
	bt.fmu.RLock()
	_, ok := bt.namespaces[ns]
	bt.fmu.RUnlock()
	if ok {
		return nil
	}
	err := bt.Db.Update(func(tx *bolt.Tx) error {
		return bt.addNamespace(tx.Bucket(idBucket), tx.Bucket(valBucket), ns)
	})
	return errors.Wrapf(err, "adding namespace %s", ns)
}

// Get returns the value previously mapped to id by GetID.
func (bt *Translator) Get(ns string, id uint64) (val string, err error) {
	bt.fmu.RLock()
	_, ok := bt.namespaces[ns]
	bt.fmu.RUnlock()
	if !ok {
		return "", errors.Errorf("unknown namespace '%v'", ns)
	}
	err = bt.Db.View(func(tx *bolt.Tx) error {
		fib := tx.Bucket(idBucket).Bucket([]byte(ns))
		idBytes := make([]byte, 8)
		binary.BigEndian.PutUint64(idBytes, id)
		v := fib.Get(idBytes)
		if v == nil {
			return errors.Errorf("id %d not found in %s", id, ns)
		}
		val = string(v)
		return nil
	})
	return val, err
}

// GetID maps val to a monotonic id starting at 0.
func (bt *Translator) GetID(ns string, val string) (id uint64, err error) {
	if err := bt.ensure(ns); err != nil {
		return 0, err
	}
	bsval := []byte(val)

	// look up to see if this val is already mapped to an id
	var ret []byte
	err = bt.Db.View(func(tx *bolt.Tx) error {
		fvb := tx.Bucket(valBucket).Bucket([]byte(ns))
		if v := fvb.Get(bsval); v != nil {
			ret = append(ret, v...)
		}
		return nil
	})
	if err != nil {
		return 0, errors.Wrap(err, "looking up value")
	}
	if len(ret) == 8 {
		return binary.BigEndian.Uint64(ret), nil
	}

	// get new id, and map it in both directions
	err = bt.Db.Batch(func(tx *bolt.Tx) error {
		fib := tx.Bucket(idBucket).Bucket([]byte(ns))
		fvb := tx.Bucket(valBucket).Bucket([]byte(ns))
		// Batch may run the function twice, and a concurrent batch may have
		// mapped the value already.
		if v := fvb.Get(bsval); len(v) == 8 {
			id = binary.BigEndian.Uint64(v)
			return nil
		}

		seq, err := fib.NextSequence()
		if err != nil {
			return err
		}
		id = seq - 1
		keybytes := make([]byte, 8)
		binary.BigEndian.PutUint64(keybytes, id)
		err = fib.Put(keybytes, bsval)
		if err != nil {
			return errors.Wrap(err, "inserting into idKey bucket")
		}
		err = fvb.Put(bsval, keybytes)
		if err != nil {
			return errors.Wrap(err, "inserting into valKey bucket")
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}
