package mdk

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Wildcard is a key segment matching any value at its level.
const Wildcard = "*"

// Resolution is the outcome of resolving a FieldGroup. Depth is the number
// of segments matched by the deepest registered prefix; Exact is set when
// that prefix is the whole path.
type Resolution struct {
	Handler ElementHandler
	Depth   int
	Key     string
	Mapped  bool
	Exact   bool
}

type specNode struct {
	handler  ElementHandler
	children map[string]*specNode
	order    []string
}

func (n *specNode) child(seg string, create bool) *specNode {
	c, ok := n.children[seg]
	if ok || !create {
		return c
	}
	if n.children == nil {
		n.children = make(map[string]*specNode)
	}
	c = &specNode{}
	n.children[seg] = c
	n.order = append(n.order, seg)
	return c
}

// KeyExpander rewrites a registration path into the set of paths actually
// registered, e.g. to cover periodically repeating MAB tags.
type KeyExpander interface {
	Expand(path []string) [][]string
}

// SpecificationIndex maps specification keys to element handlers and
// resolves field groups by longest matching prefix. It is built once at
// startup and only read afterwards, so it needs no locking.
type SpecificationIndex struct {
	root            *specNode
	indicatorLength int
	expander        KeyExpander

	names []string
	keys  map[string][]string
}

// SpecOption configures a SpecificationIndex.
type SpecOption func(*SpecificationIndex)

// OptIndicatorLength sets the indicator width used to split space
// delimited keys like "331 1a".
func OptIndicatorLength(n int) SpecOption {
	return func(s *SpecificationIndex) {
		s.indicatorLength = n
	}
}

// OptKeyExpander registers every path through e.
func OptKeyExpander(e KeyExpander) SpecOption {
	return func(s *SpecificationIndex) {
		s.expander = e
	}
}

// NewSpecificationIndex creates an empty index.
func NewSpecificationIndex(opts ...SpecOption) *SpecificationIndex {
	s := &SpecificationIndex{
		root:            &specNode{},
		indicatorLength: 2,
		keys:            make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register binds h to path. Segments written as "[a,b]" register every
// alternative. A later registration of the same path replaces the earlier
// one.
func (s *SpecificationIndex) Register(path []string, h ElementHandler) error {
	if h == nil {
		return errors.Errorf("registering %v: nil handler", path)
	}
	if len(path) == 0 || path[0] == "" {
		return errors.New("registering handler: empty key")
	}
	for _, p := range expandSegments(path) {
		paths := [][]string{p}
		if s.expander != nil {
			paths = s.expander.Expand(p)
		}
		for _, ep := range paths {
			s.insert(ep, h)
		}
	}
	return nil
}

// RegisterKey parses key and registers h under every path it denotes.
func (s *SpecificationIndex) RegisterKey(key string, h ElementHandler) error {
	paths, err := ParseKey(key, s.indicatorLength)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := s.Register(p, h); err != nil {
			return errors.Wrapf(err, "key %q", key)
		}
	}
	return nil
}

func (s *SpecificationIndex) insert(path []string, h ElementHandler) {
	n := s.root
	for _, seg := range path {
		n = n.child(seg, true)
	}
	key := strings.Join(path, KeySeparator)
	name := HandlerName(h)
	if n.handler != nil {
		old := HandlerName(n.handler)
		keys := s.keys[old][:0]
		for _, k := range s.keys[old] {
			if k != key {
				keys = append(keys, k)
			}
		}
		s.keys[old] = keys
		if len(keys) == 0 && old != name {
			s.dropName(old)
		}
	}
	n.handler = h
	if _, ok := s.keys[name]; !ok {
		s.names = append(s.names, name)
	}
	s.keys[name] = append(s.keys[name], key)
}

// dropName forgets a handler that lost its last key.
func (s *SpecificationIndex) dropName(name string) {
	delete(s.keys, name)
	for i, n := range s.names {
		if n == name {
			s.names = append(s.names[:i], s.names[i+1:]...)
			return
		}
	}
}

// Resolve finds the handler for a group by longest registered prefix of its
// segments.
func (s *SpecificationIndex) Resolve(g FieldGroup) Resolution {
	return s.ResolvePath(g.Segments())
}

// ResolvePath resolves an explicit segment path. Literal segments take
// precedence over wildcards at the same level.
func (s *SpecificationIndex) ResolvePath(path []string) Resolution {
	var res Resolution
	n := s.root
	matched := make([]string, 0, len(path))
	for i, seg := range path {
		next := n.child(seg, false)
		if next == nil {
			next = n.child(Wildcard, false)
			seg = Wildcard
		}
		if next == nil {
			break
		}
		n = next
		matched = append(matched, seg)
		if n.handler != nil {
			res = Resolution{
				Handler: n.handler,
				Depth:   i + 1,
				Key:     strings.Join(matched, KeySeparator),
				Mapped:  true,
			}
		}
	}
	res.Exact = res.Mapped && res.Depth == len(path)
	return res
}

// Len returns the number of registered paths.
func (s *SpecificationIndex) Len() int {
	n := 0
	for _, keys := range s.keys {
		n += len(keys)
	}
	return n
}

// Dump lists the registered keys per handler name.
func (s *SpecificationIndex) Dump() map[string][]string {
	out := make(map[string][]string, len(s.keys))
	for name, keys := range s.keys {
		out[name] = append([]string(nil), keys...)
	}
	return out
}

// HandlerNames lists handler names in registration order.
func (s *SpecificationIndex) HandlerNames() []string {
	return append([]string(nil), s.names...)
}

// String renders the index as nested maps in insertion order, e.g.
// {100={01={a=Creator}}, 200={02={abc=Title}}}. A node carrying both a
// handler and children renders as key=Name{...}.
func (s *SpecificationIndex) String() string {
	var b strings.Builder
	writeNode(&b, s.root)
	return b.String()
}

func writeNode(b *strings.Builder, n *specNode) {
	b.WriteByte('{')
	for i, seg := range n.order {
		if i > 0 {
			b.WriteString(", ")
		}
		c := n.children[seg]
		b.WriteString(seg)
		b.WriteByte('=')
		if c.handler != nil {
			b.WriteString(HandlerName(c.handler))
		}
		if len(c.order) > 0 {
			writeNode(b, c)
		}
	}
	b.WriteByte('}')
}

// ParseKey parses a specification key into paths. Keys are "$" delimited
// ("100$01$a") or space delimited with a positional indicator ("331 1a").
// A key wrapped in brackets is a comma separated disjunction of keys, and a
// single bracketed segment ("100$[01,02]$a") a disjunction of segments.
func ParseKey(key string, indicatorLength int) ([][]string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("empty key")
	}
	alternatives := []string{key}
	if inner, ok := disjunction(key); ok {
		alternatives = alternatives[:0]
		for _, alt := range splitTopLevel(inner) {
			if alt = strings.TrimSpace(alt); alt != "" {
				alternatives = append(alternatives, alt)
			}
		}
		if len(alternatives) == 0 {
			return nil, errors.Errorf("empty disjunction %q", key)
		}
	}
	var out [][]string
	for _, alt := range alternatives {
		p, err := parseSingleKey(alt, indicatorLength)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing %q", key)
		}
		out = append(out, expandSegments(p)...)
	}
	return out, nil
}

// disjunction returns the inside of key if the whole key is one bracketed
// list.
func disjunction(key string) (string, bool) {
	if !strings.HasPrefix(key, "[") {
		return "", false
	}
	depth := 0
	for i := 0; i < len(key); i++ {
		switch key[i] {
		case '[':
			depth++
		case ']':
			depth--
			if depth == 0 && i != len(key)-1 {
				return "", false
			}
		}
	}
	if depth != 0 {
		return "", false
	}
	return key[1 : len(key)-1], true
}

// splitTopLevel splits s on commas outside brackets.
func splitTopLevel(s string) []string {
	var out []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '[':
			depth++
		case ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, s[start:i])
				start = i + 1
			}
		}
	}
	return append(out, s[start:])
}

func parseSingleKey(key string, indicatorLength int) ([]string, error) {
	var segs []string
	switch {
	case strings.Contains(key, KeySeparator):
		segs = strings.Split(key, KeySeparator)
	case strings.Contains(key, " "):
		parts := strings.SplitN(key, " ", 2)
		rest := strings.TrimLeft(parts[1], " ")
		segs = []string{parts[0]}
		if indicatorLength > 0 && len(rest) > indicatorLength {
			segs = append(segs, rest[:indicatorLength], rest[indicatorLength:])
		} else {
			segs = append(segs, rest)
		}
	default:
		segs = []string{key}
	}
	out := segs[:0]
	for _, s := range segs {
		if s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("key has no segments")
	}
	return out, nil
}

// expandSegments turns bracketed segment alternatives into the cartesian
// product of paths.
func expandSegments(path []string) [][]string {
	out := [][]string{nil}
	for _, seg := range path {
		alts := []string{seg}
		if len(seg) > 2 && seg[0] == '[' && seg[len(seg)-1] == ']' {
			alts = alts[:0]
			for _, a := range strings.Split(seg[1:len(seg)-1], ",") {
				if a = strings.TrimSpace(a); a != "" {
					alts = append(alts, a)
				}
			}
		}
		next := make([][]string, 0, len(out)*len(alts))
		for _, prefix := range out {
			for _, a := range alts {
				p := make([]string, len(prefix), len(prefix)+1)
				copy(p, prefix)
				next = append(next, append(p, a))
			}
		}
		out = next
	}
	return out
}

// HandlerName names a handler for diagnostics.
func HandlerName(h ElementHandler) string {
	if n, ok := h.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", h)
}
