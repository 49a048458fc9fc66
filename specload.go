package mdk

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	yaml "gopkg.in/yaml.v3"
)

// Settings are the options of one element in a specification file.
type Settings map[string]interface{}

// String returns the string setting at key, or "".
func (s Settings) String(key string) string {
	if v, ok := s[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// Strings returns a list setting. A single string is a one element list.
func (s Settings) Strings(key string) ([]string, error) {
	switch v := s[key].(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, x := range v {
			out = append(out, fmt.Sprint(x))
		}
		return out, nil
	case []string:
		return v, nil
	}
	return nil, errors.Errorf("setting %q: expected a list, got %T", key, s[key])
}

// Predicates returns a code to predicate map setting.
func (s Settings) Predicates(key string) (map[string]Predicate, error) {
	if _, ok := s[key]; !ok {
		return nil, nil
	}
	t, err := codeTableOf(s[key])
	if err != nil {
		return nil, errors.Wrapf(err, "setting %q", key)
	}
	out := make(map[string]Predicate, len(t))
	for k, v := range t {
		out[k] = Predicate(v)
	}
	return out, nil
}

// ElementFactory builds a handler from its name and settings.
type ElementFactory func(name string, settings Settings) (ElementHandler, error)

// ElementRegistry maps element type names used in specification files to
// factories.
type ElementRegistry struct {
	factories map[string]ElementFactory
}

// NewElementRegistry returns a registry holding the built in element types:
// identifier, subfields, codetable, leader and generalinformation.
func NewElementRegistry() *ElementRegistry {
	r := &ElementRegistry{factories: make(map[string]ElementFactory)}
	r.Register("identifier", newIdentifierElement)
	r.Register("subfields", newSubfieldElement)
	r.Register("codetable", newCodeTableElement)
	r.Register("leader", newLeaderElement)
	r.Register("generalinformation", newGeneralInformationElement)
	return r
}

// Register adds or replaces an element type.
func (r *ElementRegistry) Register(typ string, f ElementFactory) {
	r.factories[strings.ToLower(typ)] = f
}

// New builds a handler of the given type.
func (r *ElementRegistry) New(typ, name string, settings Settings) (ElementHandler, error) {
	f, ok := r.factories[strings.ToLower(typ)]
	if !ok {
		return nil, errors.Errorf("unknown element type %q for %q", typ, name)
	}
	h, err := f(name, settings)
	return h, errors.Wrapf(err, "building %q", name)
}

func newIdentifierElement(name string, s Settings) (ElementHandler, error) {
	return &IdentifierElement{ElementName: name, Predicate: Predicate(s.String(PredicateKey))}, nil
}

// newSubfieldElement reads the settings of a subfields element:
//
//	subfields       code to predicate renames
//	indicators      tag to indicator to predicate, or indicator to predicate
//	tags            tag to predicate
//	codes           subfield code to code table
//	firstcharacter  subfield codes whose tables are keyed by first character
//	<predicate>     renames and value table for an indicator or tag predicate
//	<predicate>pattern  [{regexp: value}] tried after the value table
func newSubfieldElement(name string, s Settings) (ElementHandler, error) {
	e := &SubfieldElement{ElementName: name, Predicate: Predicate(s.String(PredicateKey))}
	var err error
	if e.Subfields, err = s.Predicates("subfields"); err != nil {
		return nil, err
	}
	if e.Indicators, err = indicatorsOf(s["indicators"]); err != nil {
		return nil, errors.Wrap(err, "setting \"indicators\"")
	}
	if e.Tags, err = s.Predicates("tags"); err != nil {
		return nil, err
	}
	first, err := s.Strings("firstcharacter")
	if err != nil {
		return nil, err
	}
	if raw, ok := s["codes"]; ok {
		m, err := stringMap(raw)
		if err != nil {
			return nil, errors.Wrap(err, "setting \"codes\"")
		}
		e.Codes = make(map[string]Lookup, len(m))
		for code, table := range m {
			t, err := codeTableOf(table)
			if err != nil {
				return nil, errors.Wrapf(err, "codes for subfield %q", code)
			}
			chain := Lookups{t, FirstWord{Table: t}}
			for _, c := range first {
				if c == code {
					chain = append(chain, FirstCharacter{Table: t})
				}
			}
			e.Codes[code] = chain
		}
	}

	var chosen []Predicate
	for _, inds := range e.Indicators {
		for _, p := range inds {
			chosen = append(chosen, p)
		}
	}
	for _, p := range e.Tags {
		chosen = append(chosen, p)
	}
	for _, p := range chosen {
		if _, done := e.Values[p]; done || reservedSettings[string(p)] {
			continue
		}
		var chain Lookups
		if raw, ok := s[string(p)]; ok {
			t, err := codeTableOf(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "setting %q", p)
			}
			if e.PredicateSubfields == nil {
				e.PredicateSubfields = make(map[Predicate]map[string]Predicate)
			}
			renames := make(map[string]Predicate, len(t))
			for k, v := range t {
				renames[k] = Predicate(v)
			}
			e.PredicateSubfields[p] = renames
			chain = append(chain, t, FirstWord{Table: t})
		}
		if raw, ok := s[string(p)+"pattern"]; ok {
			pats, err := patternsOf(raw)
			if err != nil {
				return nil, errors.Wrapf(err, "setting %q", string(p)+"pattern")
			}
			chain = append(chain, pats)
		}
		if len(chain) == 0 {
			continue
		}
		if e.Values == nil {
			e.Values = make(map[Predicate]Lookup)
		}
		e.Values[p] = chain
	}
	return e, nil
}

var reservedSettings = map[string]bool{
	"type": true, "values": true, "subfields": true, "indicators": true, "tags": true,
	"codes": true, "codetable": true, "firstcharacter": true, PredicateKey: true,
}

// indicatorsOf reads {"700": {"1 ": "family"}}. A string value applies to
// every tag, so {"1 ": "family"} is read as {"": {"1 ": "family"}}.
func indicatorsOf(v interface{}) (map[string]map[string]Predicate, error) {
	if v == nil {
		return nil, nil
	}
	m, err := stringMap(v)
	if err != nil {
		return nil, err
	}
	out := make(map[string]map[string]Predicate)
	add := func(tag, ind string, p Predicate) {
		if out[tag] == nil {
			out[tag] = make(map[string]Predicate)
		}
		out[tag][ind] = p
	}
	for k, val := range m {
		if str, ok := val.(string); ok {
			add("", k, Predicate(str))
			continue
		}
		t, err := codeTableOf(val)
		if err != nil {
			return nil, errors.Wrapf(err, "tag %q", k)
		}
		for ind, p := range t {
			add(k, ind, Predicate(p))
		}
	}
	return out, nil
}

func newCodeTableElement(name string, s Settings) (ElementHandler, error) {
	codes, err := positionalCodesOf(s["codes"])
	if err != nil {
		return nil, errors.Wrap(err, "setting \"codes\"")
	}
	p := s.String(PredicateKey)
	if p == "" {
		p = name
	}
	return &CodeTableElement{ElementName: name, Predicate: Predicate(p), Codes: codes}, nil
}

func newLeaderElement(name string, s Settings) (ElementHandler, error) {
	return &LeaderElement{ElementName: name}, nil
}

func newGeneralInformationElement(name string, s Settings) (ElementHandler, error) {
	codes, err := positionalCodesOf(s["codes"])
	if err != nil {
		return nil, errors.Wrap(err, "setting \"codes\"")
	}
	return &GeneralInformationElement{ElementName: name, Codes: codes}, nil
}

// SpecLoader reads specification files into a SpecificationIndex.
type SpecLoader struct {
	Registry *ElementRegistry
	Options  []SpecOption
	// Dir resolves relative "codetable" file settings.
	Dir string
}

type namedSettings struct {
	name     string
	settings Settings
}

// LoadFile loads a JSON or YAML specification, chosen by file extension.
func (l *SpecLoader) LoadFile(path string) (*SpecificationIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening specification")
	}
	defer f.Close()
	if l.Dir == "" {
		l.Dir = filepath.Dir(path)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return l.LoadYAML(f)
	}
	return l.LoadJSON(f)
}

// LoadJSON reads a JSON object of element name to settings. Elements are
// registered in file order.
func (l *SpecLoader) LoadJSON(r io.Reader) (*SpecificationIndex, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrap(err, "reading specification")
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("specification must be a JSON object")
	}
	var elems []namedSettings
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrap(err, "reading element name")
		}
		name, _ := tok.(string)
		var s Settings
		if err := dec.Decode(&s); err != nil {
			return nil, errors.Wrapf(err, "decoding element %q", name)
		}
		elems = append(elems, namedSettings{name: name, settings: s})
	}
	return l.build(elems)
}

// LoadYAML reads a YAML mapping of element name to settings, keeping file
// order.
func (l *SpecLoader) LoadYAML(r io.Reader) (*SpecificationIndex, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, errors.Wrap(err, "decoding specification")
	}
	root := &doc
	if root.Kind == yaml.DocumentNode && len(root.Content) > 0 {
		root = root.Content[0]
	}
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("specification must be a YAML mapping")
	}
	var elems []namedSettings
	for i := 0; i+1 < len(root.Content); i += 2 {
		name := root.Content[i].Value
		var s Settings
		if err := root.Content[i+1].Decode(&s); err != nil {
			return nil, errors.Wrapf(err, "decoding element %q", name)
		}
		elems = append(elems, namedSettings{name: name, settings: s})
	}
	return l.build(elems)
}

func (l *SpecLoader) build(elems []namedSettings) (*SpecificationIndex, error) {
	reg := l.Registry
	if reg == nil {
		reg = NewElementRegistry()
	}
	idx := NewSpecificationIndex(l.Options...)
	for _, e := range elems {
		if e.settings == nil {
			e.settings = Settings{}
		}
		if err := l.loadCodeTable(e.settings); err != nil {
			return nil, errors.Wrapf(err, "element %q", e.name)
		}
		typ := e.settings.String("type")
		if typ == "" {
			typ = "subfields"
		}
		h, err := reg.New(typ, e.name, e.settings)
		if err != nil {
			return nil, err
		}
		keys, err := e.settings.Strings("values")
		if err != nil {
			return nil, errors.Wrapf(err, "element %q", e.name)
		}
		for _, k := range keys {
			if err := idx.RegisterKey(k, h); err != nil {
				return nil, errors.Wrapf(err, "element %q", e.name)
			}
		}
	}
	return idx, nil
}

// loadCodeTable replaces a "codetable" file setting by its content under
// "codes".
func (l *SpecLoader) loadCodeTable(s Settings) error {
	path := s.String("codetable")
	if path == "" {
		return nil
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.Dir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrap(err, "opening code table")
	}
	defer f.Close()
	var codes map[string]interface{}
	if err := json.NewDecoder(f).Decode(&codes); err != nil {
		return errors.Wrapf(err, "decoding code table %s", path)
	}
	s["codes"] = codes
	return nil
}

// Periodic describes a series of tags repeating every Step tags, Count
// times, starting at Start. MAB repeats whole field blocks this way, e.g.
// the person fields 100, 104, 108 and so on.
type Periodic struct {
	Start, Step, Count int
}

func (p Periodic) contains(tag int) bool {
	return tag >= p.Start && tag < p.Start+p.Step*p.Count
}

// span returns every tag of the series at the same offset as tag.
func (p Periodic) span(tag int) []int {
	off := (tag - p.Start) % p.Step
	out := make([]int, 0, p.Count)
	for k := 0; k < p.Count; k++ {
		out = append(out, p.Start+off+k*p.Step)
	}
	return out
}

// PeriodicExpander is a KeyExpander that registers a key for every tag of
// the periodic series its tag belongs to.
type PeriodicExpander []Periodic

// Expand implements KeyExpander.
func (e PeriodicExpander) Expand(path []string) [][]string {
	tag, err := strconv.Atoi(path[0])
	if err != nil || len(path[0]) != 3 {
		return [][]string{path}
	}
	for _, p := range e {
		if !p.contains(tag) {
			continue
		}
		var out [][]string
		for _, t := range p.span(tag) {
			np := append([]string{fmt.Sprintf("%03d", t)}, path[1:]...)
			out = append(out, np)
		}
		return out
	}
	return [][]string{path}
}

// MABPeriodic holds the repeating field blocks of MAB2.
var MABPeriodic = PeriodicExpander{
	{Start: 100, Step: 4, Count: 25},
	{Start: 200, Step: 4, Count: 25},
	{Start: 340, Step: 4, Count: 4},
	{Start: 410, Step: 5, Count: 2},
	{Start: 451, Step: 10, Count: 5},
	{Start: 621, Step: 6, Count: 2},
	{Start: 800, Step: 6, Count: 5},
	{Start: 900, Step: 5, Count: 10},
	{Start: 950, Step: 5, Count: 10},
}
