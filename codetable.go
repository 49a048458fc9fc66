package mdk

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// PredicateKey is the reserved code table entry naming the predicate that
// decoded values are written under.
const PredicateKey = "_predicate"

// Lookup is one code translation step.
type Lookup interface {
	Lookup(code string) (string, bool)
}

// CodeTable maps codes to values.
type CodeTable map[string]string

// Lookup implements Lookup. The reserved predicate entry is never returned.
func (t CodeTable) Lookup(code string) (string, bool) {
	if code == PredicateKey {
		return "", false
	}
	v, ok := t[code]
	return v, ok
}

// Predicate returns the table's predicate entry, if any.
func (t CodeTable) Predicate() string {
	return t[PredicateKey]
}

// Lookups chains lookup steps; the first hit wins.
type Lookups []Lookup

// Lookup implements Lookup.
func (l Lookups) Lookup(code string) (string, bool) {
	for _, step := range l {
		if v, ok := step.Lookup(code); ok {
			return v, true
		}
	}
	return "", false
}

// FirstCharacter looks up only the first character of a value.
type FirstCharacter struct {
	Table Lookup
}

// Lookup implements Lookup.
func (f FirstCharacter) Lookup(value string) (string, bool) {
	if value == "" {
		return "", false
	}
	return f.Table.Lookup(value[:1])
}

// FirstWord looks up the part of a value before its first blank, so
// "ger (mixed)" is found under "ger".
type FirstWord struct {
	Table Lookup
}

// Lookup implements Lookup.
func (f FirstWord) Lookup(value string) (string, bool) {
	i := strings.IndexByte(value, ' ')
	if i <= 0 {
		return "", false
	}
	return f.Table.Lookup(value[:i])
}

// Pattern maps every value fully matching Regexp to Value.
type Pattern struct {
	Regexp *regexp.Regexp
	Value  string
}

// CompilePattern builds a case insensitive Pattern matching the whole
// value.
func CompilePattern(expr, value string) (Pattern, error) {
	re, err := regexp.Compile("(?i)^(?:" + expr + ")$")
	if err != nil {
		return Pattern{}, errors.Wrapf(err, "compiling pattern %q", expr)
	}
	return Pattern{Regexp: re, Value: value}, nil
}

// Patterns are tried in order.
type Patterns []Pattern

// Lookup implements Lookup.
func (p Patterns) Lookup(value string) (string, bool) {
	for _, pat := range p {
		if pat.Regexp.MatchString(value) {
			return pat.Value, true
		}
	}
	return "", false
}

// patternsOf converts [{"regexp": "value"}, ...] into Patterns. Entries of
// one object are taken in key order.
func patternsOf(v interface{}) (Patterns, error) {
	list, ok := v.([]interface{})
	if !ok {
		return nil, errors.Errorf("expected a list, got %T", v)
	}
	var out Patterns
	for _, item := range list {
		m, err := stringMap(item)
		if err != nil {
			return nil, err
		}
		exprs := make([]string, 0, len(m))
		for expr := range m {
			exprs = append(exprs, expr)
		}
		sort.Strings(exprs)
		for _, expr := range exprs {
			pat, err := CompilePattern(expr, fmt.Sprint(m[expr]))
			if err != nil {
				return nil, err
			}
			out = append(out, pat)
		}
	}
	return out, nil
}

// Code is one decoded position of a coded value.
type Code struct {
	Position  int
	Raw       string
	Value     string
	Predicate string
}

// PositionalCodes holds one code table per character position of a coded
// field such as a physical description.
type PositionalCodes map[int]CodeTable

// Decode walks value and translates every position that has a table. A
// single character is looked up first, then two characters.
func (p PositionalCodes) Decode(value string) []Code {
	var out []Code
	for i := 0; i < len(value); i++ {
		t, ok := p[i]
		if !ok {
			continue
		}
		raw := value[i : i+1]
		v, ok := t.Lookup(raw)
		if !ok && i+2 <= len(value) {
			raw = value[i : i+2]
			v, ok = t.Lookup(raw)
		}
		if !ok {
			continue
		}
		out = append(out, Code{Position: i, Raw: raw, Value: v, Predicate: t.Predicate()})
	}
	return out
}

// Positions lists the positions with a table, ascending.
func (p PositionalCodes) Positions() []int {
	out := make([]int, 0, len(p))
	for i := range p {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// LoadCodeTable reads a JSON object mapping codes to values.
func LoadCodeTable(r io.Reader) (CodeTable, error) {
	var raw map[string]interface{}
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "decoding code table")
	}
	return codeTableOf(raw)
}

// codeTableOf converts a decoded settings value into a CodeTable.
func codeTableOf(v interface{}) (CodeTable, error) {
	m, err := stringMap(v)
	if err != nil {
		return nil, err
	}
	t := make(CodeTable, len(m))
	for k, val := range m {
		switch x := val.(type) {
		case string:
			t[k] = x
		case nil:
		default:
			t[k] = fmt.Sprint(x)
		}
	}
	return t, nil
}

// positionalCodesOf converts {"0": {"a": "map"}, ...} into PositionalCodes.
func positionalCodesOf(v interface{}) (PositionalCodes, error) {
	m, err := stringMap(v)
	if err != nil {
		return nil, err
	}
	p := make(PositionalCodes, len(m))
	for k, val := range m {
		pos, err := strconv.Atoi(k)
		if err != nil {
			return nil, errors.Errorf("code table position %q is not a number", k)
		}
		t, err := codeTableOf(val)
		if err != nil {
			return nil, errors.Wrapf(err, "position %d", pos)
		}
		p[pos] = t
	}
	return p, nil
}

// stringMap normalizes the map types produced by JSON and YAML decoders.
func stringMap(v interface{}) (map[string]interface{}, error) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, nil
	case Settings:
		return m, nil
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(m))
		for k, val := range m {
			out[fmt.Sprint(k)] = val
		}
		return out, nil
	case nil:
		return map[string]interface{}{}, nil
	}
	return nil, errors.Errorf("expected an object, got %T", v)
}
