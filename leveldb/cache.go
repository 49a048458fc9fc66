package leveldb

import (
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

type cacheKey struct {
	namespace string
	val       string
}

// CachedTranslator keeps the most recently used value to id mappings of
// another Translator in memory. Ids never change once allocated, so the
// cache is never invalidated.
type CachedTranslator struct {
	mdk.Translator
	ids *lru.Cache[cacheKey, uint64]
}

// NewCachedTranslator wraps tr with an LRU cache of the given size.
func NewCachedTranslator(tr mdk.Translator, size int) (*CachedTranslator, error) {
	cache, err := lru.New[cacheKey, uint64](size)
	if err != nil {
		return nil, errors.Wrap(err, "creating cache")
	}
	return &CachedTranslator{Translator: tr, ids: cache}, nil
}

// GetID implements mdk.Translator.
func (c *CachedTranslator) GetID(namespace string, val string) (uint64, error) {
	k := cacheKey{namespace: namespace, val: val}
	if id, ok := c.ids.Get(k); ok {
		return id, nil
	}
	id, err := c.Translator.GetID(namespace, val)
	if err != nil {
		return 0, err
	}
	c.ids.Add(k, id)
	return id, nil
}

// Close closes the wrapped Translator if it can be closed.
func (c *CachedTranslator) Close() error {
	c.ids.Purge()
	if cl, ok := c.Translator.(interface{ Close() error }); ok {
		return cl.Close()
	}
	return nil
}
