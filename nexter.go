package mdk

import (
	"sync/atomic"
)

// Nexter hands out consecutive ids and is safe for concurrent use. The
// Pipeline numbers records with one, translators number values with another.
type Nexter struct {
	id atomic.Uint64
}

// NexterOption configures a Nexter.
type NexterOption func(n *Nexter)

// NexterStartFrom makes the first id returned by Next be s.
func NexterStartFrom(s uint64) NexterOption {
	return func(n *Nexter) {
		n.id.Store(s)
	}
}

// NewNexter creates an id generator starting at 0.
func NewNexter(opts ...NexterOption) *Nexter {
	n := &Nexter{}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Next returns a fresh id.
func (n *Nexter) Next() uint64 {
	return n.id.Add(1) - 1
}

// Last returns the most recently returned id. It is only meaningful after
// the first call to Next.
func (n *Nexter) Last() uint64 {
	return n.id.Load() - 1
}

// Issued returns how many ids were handed out, counting from the start
// value.
func (n *Nexter) Issued(start uint64) uint64 {
	return n.id.Load() - start
}
