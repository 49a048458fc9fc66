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

package pilosa

import (
	"crypto/tls"
	"io"
	"sync"
	"time"

	gopilosa "github.com/pilosa/go-pilosa"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Index imports set bits and integer values into one Pilosa index. Every
// field gets its own importer goroutine fed through a channel.
type Index struct {
	client    *gopilosa.Client
	batchSize uint
	log       mdk.Logger

	lock        sync.RWMutex
	index       *gopilosa.Index
	importWG    sync.WaitGroup
	recordChans map[string]chanRecordIterator

	errMu sync.Mutex
	err   error
}

func newIndex() *Index {
	return &Index{
		recordChans: make(map[string]chanRecordIterator),
		log:         mdk.NopLogger{},
	}
}

// Client returns a Pilosa client.
func (i *Index) Client() *gopilosa.Client {
	return i.client
}

// AddColumn adds a bit to be imported to Pilosa.
func (i *Index) AddColumn(fieldName string, col, row uint64) error {
	c, err := i.recordChan(fieldName, gopilosa.OptFieldTypeSet(gopilosa.CacheTypeRanked, 100000))
	if err != nil {
		return err
	}
	c <- gopilosa.Column{RowID: row, ColumnID: col}
	return nil
}

// AddValue adds a value to be imported to Pilosa.
func (i *Index) AddValue(fieldName string, col uint64, val int64) error {
	c, err := i.recordChan(fieldName, gopilosa.OptFieldTypeInt(-1<<31, 1<<31-1))
	if err != nil {
		return err
	}
	c <- gopilosa.FieldValue{ColumnID: col, Value: val}
	return nil
}

func (i *Index) recordChan(fieldName string, opt gopilosa.FieldOption) (chanRecordIterator, error) {
	i.lock.RLock()
	c, ok := i.recordChans[fieldName]
	i.lock.RUnlock()
	if ok {
		return c, nil
	}
	i.lock.Lock()
	defer i.lock.Unlock()
	field := i.index.Field(fieldName, opt)
	if err := i.setupField(field); err != nil {
		return nil, errors.Wrapf(err, "setting up field '%s'", fieldName)
	}
	return i.recordChans[fieldName], nil
}

// Close ensures that all ongoing imports have finished and returns the
// first import error.
func (i *Index) Close() error {
	i.lock.Lock()
	for _, cbi := range i.recordChans {
		close(cbi)
	}
	i.recordChans = make(map[string]chanRecordIterator)
	i.lock.Unlock()
	i.importWG.Wait()
	i.errMu.Lock()
	defer i.errMu.Unlock()
	return i.err
}

// setupField ensures the existence of a field in Pilosa,
// and starts importers for the field.
// It is not threadsafe - callers must hold i.lock.Lock() or guarantee that they have
// exclusive access to Index before calling.
func (i *Index) setupField(field *gopilosa.Field) error {
	fieldName := field.Name()
	if _, ok := i.recordChans[fieldName]; !ok {
		err := i.client.EnsureField(field)
		if err != nil {
			return errors.Wrapf(err, "creating field '%v'", fieldName)
		}
		i.recordChans[fieldName] = newChanRecordIterator()
		i.importWG.Add(1)
		go func(fram *gopilosa.Field, cbi chanRecordIterator) {
			defer i.importWG.Done()
			err := i.client.ImportField(fram, cbi, gopilosa.OptImportBatchSize(int(i.batchSize)))
			if err != nil {
				i.log.Printf("importing field %s: %v", fieldName, err)
				i.errMu.Lock()
				if i.err == nil {
					i.err = errors.Wrapf(err, "importing field %s", fieldName)
				}
				i.errMu.Unlock()
			}
		}(field, i.recordChans[fieldName])
	}
	return nil
}

// SetupPilosa creates the index if needed and returns an Index importing
// into it.
func SetupPilosa(hosts []string, indexName string, batchsize uint, tlsConf *tls.Config, log mdk.Logger) (*Index, error) {
	schema := gopilosa.NewSchema()
	indexer := newIndex()
	indexer.batchSize = batchsize
	if log != nil {
		indexer.log = log
	}
	opts := []gopilosa.ClientOption{
		gopilosa.OptClientSocketTimeout(time.Minute * 60),
		gopilosa.OptClientConnectTimeout(time.Second * 60),
	}
	if tlsConf != nil {
		opts = append(opts, gopilosa.OptClientTLSConfig(tlsConf))
	}
	client, err := gopilosa.NewClient(hosts, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "creating pilosa cluster client")
	}
	indexer.client = client
	indexer.index = schema.Index(indexName)
	err = client.SyncSchema(schema)
	if err != nil {
		return nil, errors.Wrap(err, "synchronizing schema")
	}
	return indexer, nil
}

type chanRecordIterator chan gopilosa.Record

func newChanRecordIterator() chanRecordIterator {
	return make(chan gopilosa.Record, 200000)
}

func (c chanRecordIterator) NextRecord() (gopilosa.Record, error) {
	b, ok := <-c
	if !ok {
		return b, io.EOF
	}
	return b, nil
}
