package mdk

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
)

// Translator maps string values (record subjects, literal values) to
// monotonically allocated integer ids and back. Each namespace, usually a
// Pilosa field or index name, has its own id space. Implementations must be
// threadsafe.
type Translator interface {
	Get(namespace string, id uint64) (string, error)
	GetID(namespace string, val string) (uint64, error)
}

// FieldTranslator works like a Translator for a single namespace.
type FieldTranslator interface {
	Get(id uint64) (string, error)
	GetID(val string) (uint64, error)
}

// MapTranslator is an in-memory implementation of Translator using maps.
type MapTranslator struct {
	lock   sync.RWMutex
	fields map[string]*MapFieldTranslator
}

// NewMapTranslator creates a new MapTranslator.
func NewMapTranslator() *MapTranslator {
	return &MapTranslator{
		fields: make(map[string]*MapFieldTranslator),
	}
}

func (m *MapTranslator) getFieldTranslator(namespace string) *MapFieldTranslator {
	m.lock.RLock()
	if mt, ok := m.fields[namespace]; ok {
		m.lock.RUnlock()
		return mt
	}
	m.lock.RUnlock()
	m.lock.Lock()
	defer m.lock.Unlock()
	if mt, ok := m.fields[namespace]; ok {
		return mt
	}
	m.fields[namespace] = NewMapFieldTranslator()
	return m.fields[namespace]
}

// Get returns the value mapped to the given id in the given namespace.
func (m *MapTranslator) Get(namespace string, id uint64) (string, error) {
	val, err := m.getFieldTranslator(namespace).Get(id)
	if err != nil {
		return "", errors.Wrapf(err, "namespace '%v', id %v", namespace, id)
	}
	return val, nil
}

// GetID returns the integer id associated with the given value in the given
// namespace. It allocates a new ID if the value is not found.
func (m *MapTranslator) GetID(namespace string, val string) (id uint64, err error) {
	return m.getFieldTranslator(namespace).GetID(val)
}

// MapFieldTranslator is an in-memory implementation of FieldTranslator
// using sync.Map and a slice.
type MapFieldTranslator struct {
	m sync.Map

	n *Nexter

	l sync.RWMutex
	s []string
}

// NewMapFieldTranslator creates a new MapFieldTranslator.
func NewMapFieldTranslator() *MapFieldTranslator {
	return &MapFieldTranslator{
		n: NewNexter(),
		s: make([]string, 0),
	}
}

// Get returns the value mapped to the given id.
func (m *MapFieldTranslator) Get(id uint64) (string, error) {
	m.l.RLock()
	defer m.l.RUnlock()
	if uint64(len(m.s)) <= id {
		return "", errors.Errorf("requested unknown id %d in MapTranslator", id)
	}
	return m.s[id], nil
}

// GetID returns the integer id associated with the given value. It allocates a
// new ID if the value is not found.
func (m *MapFieldTranslator) GetID(val string) (id uint64, err error) {
	if idv, ok := m.m.Load(val); ok {
		return idv.(uint64), nil
	}
	m.l.Lock()
	defer m.l.Unlock()
	if idv, ok := m.m.Load(val); ok {
		return idv.(uint64), nil
	}
	nextid := m.n.Next()
	m.s = append(m.s, val)
	if uint64(len(m.s)) != nextid+1 {
		panic(fmt.Sprintf("unexpected length of slice, nextid: %d, len: %d", nextid, len(m.s)))
	}
	m.m.Store(val, nextid)
	return nextid, nil
}
