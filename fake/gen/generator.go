// Package gen generates random values in skewed distributions so that fake
// data repeats the way real data does.
package gen

import (
	"crypto/sha1"
	"encoding/base32"
	"encoding/binary"
	"hash"
	"math/rand"
	"strings"
)

// Generator holds state for generating random data in certain distributions.
// It is not safe for concurrent use.
type Generator struct {
	r   *rand.Rand
	zs  map[int]*rand.Zipf
	hsh hash.Hash
}

// NewGenerator gets a new Generator. The same seed gives the same values on
// a given version of Go.
func NewGenerator(seed int64) *Generator {
	return &Generator{
		r:   rand.New(rand.NewSource(seed)),
		zs:  make(map[int]*rand.Zipf),
		hsh: sha1.New(),
	}
}

// Uint64 gets a zipfian random uint64 in [0, cardinality).
func (g *Generator) Uint64(cardinality int) uint64 {
	if cardinality < 2 {
		return 0
	}
	z, ok := g.zs[cardinality]
	if !ok {
		// rand.Zipf generates values in [0, imax]
		imax := uint64(cardinality) - 1
		v := 0.05 * float64(imax)
		if v < 1.0 {
			v = 1.0
		}
		z = rand.NewZipf(g.r, 1.1, v, imax)
		g.zs[cardinality] = z
	}
	return z.Uint64()
}

// Pick returns a zipfian random element of list. Earlier elements are
// picked more often.
func (g *Generator) Pick(list []string) string {
	return list[g.Uint64(len(list))]
}

// Word gets a zipfian random capitalized word from a set with the given
// cardinality.
func (g *Generator) Word(length, cardinality int) string {
	if length > 32 {
		length = 32
	}
	val := g.Uint64(cardinality)

	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, val)
	_, _ = g.hsh.Write(b) // no need to check err
	hashed := g.hsh.Sum(nil)
	g.hsh.Reset()
	w := strings.ToLower(base32.StdEncoding.EncodeToString(hashed)[:length])
	w = strings.Map(func(r rune) rune {
		if r >= '2' && r <= '7' {
			return 'a' + (r-'2')*3
		}
		return r
	}, w)
	return strings.ToUpper(w[:1]) + w[1:]
}

// Intn returns a uniform random int in [0, n).
func (g *Generator) Intn(n int) int { return g.r.Intn(n) }

// Float64 returns a uniform random float in [0, 1).
func (g *Generator) Float64() float64 { return g.r.Float64() }
