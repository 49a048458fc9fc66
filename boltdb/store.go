package boltdb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"sort"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

var (
	recordBucket   = []byte("records")
	unmappedBucket = []byte("unmapped")
)

// Store keeps the JSON-LD of every record graph keyed by subject, and
// counts of unmapped specification keys. A later graph with the same
// subject replaces the earlier one.
type Store struct {
	Db  *bolt.DB
	log mdk.Logger
}

// OpenStore opens or creates the store at filename.
func OpenStore(filename string, log mdk.Logger) (*Store, error) {
	db, err := bolt.Open(filename, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening db file '%v'", filename)
	}
	db.MaxBatchDelay = 2 * time.Millisecond
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{recordBucket, unmappedBucket} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return errors.Wrapf(err, "creating %s bucket", b)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	if log == nil {
		log = mdk.NopLogger{}
	}
	return &Store{Db: db, log: log}, nil
}

// Output implements mdk.Sink.
func (s *Store) Output(ctx context.Context, e *mdk.Entity) error {
	b, err := json.Marshal(e)
	if err != nil {
		return errors.Wrapf(err, "marshaling %s", e.Subject)
	}
	err = s.Db.Batch(func(tx *bolt.Tx) error {
		return tx.Bucket(recordBucket).Put([]byte(e.Subject), b)
	})
	return errors.Wrapf(err, "storing %s", e.Subject)
}

// Record returns the stored JSON-LD for subject, or nil if there is none.
func (s *Store) Record(subject mdk.IRI) (doc []byte, err error) {
	err = s.Db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(recordBucket).Get([]byte(subject)); v != nil {
			doc = append([]byte(nil), v...)
		}
		return nil
	})
	return doc, err
}

// Len returns the number of stored records.
func (s *Store) Len() (n int, err error) {
	err = s.Db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(recordBucket).Stats().KeyN
		return nil
	})
	return n, err
}

// Listen is a mdk.UnmappedKeyListener incrementing the persistent count of
// key.
func (s *Store) Listen(recordID, key string) {
	err := s.Db.Batch(func(tx *bolt.Tx) error {
		b := tx.Bucket(unmappedBucket)
		var n uint64
		if v := b.Get([]byte(key)); len(v) == 8 {
			n = binary.BigEndian.Uint64(v)
		}
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, n+1)
		return b.Put([]byte(key), buf)
	})
	if err != nil {
		s.log.Printf("counting unmapped key %s of %s: %v", key, recordID, err)
	}
}

// Unmapped returns the unmapped keys with their counts, most frequent
// first.
func (s *Store) Unmapped() (keys []string, counts []uint64, err error) {
	type kc struct {
		k string
		c uint64
	}
	var all []kc
	err = s.Db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(unmappedBucket).ForEach(func(k, v []byte) error {
			all = append(all, kc{k: string(k), c: binary.BigEndian.Uint64(v)})
			return nil
		})
	})
	if err != nil {
		return nil, nil, errors.Wrap(err, "reading unmapped keys")
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].c > all[j].c })
	for _, x := range all {
		keys = append(keys, x.k)
		counts = append(counts, x.c)
	}
	return keys, counts, nil
}

// Close syncs and closes the underlying boltdb.
func (s *Store) Close() error {
	if err := s.Db.Sync(); err != nil {
		return errors.Wrap(err, "syncing db")
	}
	return s.Db.Close()
}
