package mdk

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// IdentifierElement takes the record identifier from its field, usually
// 001. If a record carries several identifying fields the last one wins.
type IdentifierElement struct {
	ElementName string
	// Predicate, if set, also stores the identifier as a literal.
	Predicate Predicate
}

// Name implements Named.
func (e *IdentifierElement) Name() string { return e.ElementName }

// Apply implements ElementHandler.
func (e *IdentifierElement) Apply(group FieldGroup, value string, state *BuildState) (Result, error) {
	id := strings.TrimSpace(value)
	if id == "" {
		return Continue, nil
	}
	state.SetIdentifier(id)
	if e.Predicate != "" {
		if err := state.Record.AddString(e.Predicate, id); err != nil {
			return Continue, err
		}
	}
	return Continue, nil
}

// SubfieldElement writes the subfields of a field into a child node of the
// record. The node predicate is chosen by indicator for the field's tag,
// then by tag, then the configured predicate, then the tag itself.
// Subfield codes are renamed via Subfields, or via PredicateSubfields when
// the predicate was chosen by indicator or tag; a code mapped to "" is
// dropped. Values found by a lookup are translated, and the raw value is
// kept under "<predicate>Source".
type SubfieldElement struct {
	ElementName string
	Predicate   Predicate
	Subfields   map[string]Predicate
	// Indicators maps tag to indicator to predicate. The tag "" matches
	// every tag.
	Indicators         map[string]map[string]Predicate
	Tags               map[string]Predicate
	PredicateSubfields map[Predicate]map[string]Predicate
	// Codes translates values by subfield code, Values by predicate.
	Codes  map[string]Lookup
	Values map[Predicate]Lookup
}

// Name implements Named.
func (e *SubfieldElement) Name() string { return e.ElementName }

func (e *SubfieldElement) predicate(f Field) (p Predicate, chosen bool) {
	for _, tag := range []string{f.Tag, ""} {
		if p, ok := e.Indicators[tag][f.Indicator]; ok {
			return p, true
		}
	}
	if p, ok := e.Tags[f.Tag]; ok {
		return p, true
	}
	if e.Predicate != "" {
		return e.Predicate, false
	}
	return Predicate(f.Tag), false
}

func (e *SubfieldElement) lookup(pred Predicate, code, data string) (string, bool) {
	if l, ok := e.Codes[code]; ok {
		if v, ok := l.Lookup(data); ok {
			return v, true
		}
	}
	if l, ok := e.Values[pred]; ok {
		return l.Lookup(data)
	}
	return "", false
}

// Apply implements ElementHandler.
func (e *SubfieldElement) Apply(group FieldGroup, value string, state *BuildState) (Result, error) {
	for _, f := range group {
		pred, chosen := e.predicate(f)
		if f.SubfieldID == "" {
			if f.Data == "" {
				continue
			}
			if err := state.Record.AddString(pred, f.Data); err != nil {
				return Continue, err
			}
			continue
		}
		subfields := e.Subfields
		if m, ok := e.PredicateSubfields[pred]; ok && chosen {
			subfields = m
		}
		sp := Predicate(f.SubfieldID)
		if p, ok := subfields[f.SubfieldID]; ok {
			if p == "" {
				continue
			}
			sp = p
		}
		node, err := state.Node(pred, f.Occurrence)
		if err != nil {
			return Continue, errors.Wrapf(err, "getting node %v", pred)
		}
		data := f.Data
		if v, ok := e.lookup(pred, f.SubfieldID, data); ok {
			if err := node.AddString(sp+"Source", data); err != nil {
				return Continue, err
			}
			data = v
		}
		if err := node.AddString(sp, data); err != nil {
			return Continue, err
		}
	}
	return Continue, nil
}

// CodeTableElement decodes a positionally coded value, e.g. a physical
// description, with one code table per position.
type CodeTableElement struct {
	ElementName string
	Predicate   Predicate
	Codes       PositionalCodes
}

// Name implements Named.
func (e *CodeTableElement) Name() string { return e.ElementName }

// Apply implements ElementHandler.
func (e *CodeTableElement) Apply(group FieldGroup, value string, state *BuildState) (Result, error) {
	if value == "" && len(group) > 0 {
		value = group[len(group)-1].Data
	}
	for _, c := range e.Codes.Decode(value) {
		p := e.Predicate
		if c.Predicate != "" {
			p = Predicate(c.Predicate)
		}
		if err := state.Record.AddString(p, c.Value); err != nil {
			return Continue, err
		}
	}
	return Continue, nil
}

// LeaderTag is the pseudo tag under which the record leader is dispatched.
const LeaderTag = "LDR"

// LeaderElement describes the record from its leader: type of record,
// bibliographic level and encoding level.
type LeaderElement struct {
	ElementName string
}

// Name implements Named.
func (e *LeaderElement) Name() string { return e.ElementName }

// Apply implements ElementHandler.
func (e *LeaderElement) Apply(group FieldGroup, value string, state *BuildState) (Result, error) {
	l := state.Label
	if l.IsZero() {
		l = ParseLabel(value)
	}
	for _, kv := range []struct {
		p Predicate
		v string
	}{
		{"typeOfRecord", l.TypeOfRecordText()},
		{"bibliographicLevel", l.BibliographicLevelText()},
		{"encodingLevel", l.EncodingLevelText()},
	} {
		if kv.v == "" {
			continue
		}
		if err := state.Record.AddString(kv.p, kv.v); err != nil {
			return Continue, err
		}
	}
	return Continue, nil
}

// GeneralInformationElement decodes the MARC 008 fixed length field:
// publication status, the two dates and any configured positional codes.
// Codes are only taken for positions whose table names a predicate.
type GeneralInformationElement struct {
	ElementName string
	Codes       PositionalCodes
}

// Name implements Named.
func (e *GeneralInformationElement) Name() string { return e.ElementName }

var publicationStatus = map[byte]string{
	'b': "No dates given; B.C. date involved",
	'c': "Continuing resource currently published",
	'd': "Continuing resource ceased publication",
	'e': "Detailed date",
	'i': "Inclusive dates of collection",
	'k': "Range of years of bulk of collection",
	'm': "Multiple dates",
	'n': "Dates unknown",
	'p': "Date of distribution/release/issue and production/recording session when different",
	'q': "Questionable date",
	'r': "Reprint/reissue date and original date",
	's': "Single known date/probable date",
	't': "Publication date and copyright date",
	'u': "Continuing resource status unknown",
}

// Apply implements ElementHandler.
func (e *GeneralInformationElement) Apply(group FieldGroup, value string, state *BuildState) (Result, error) {
	r := state.Record
	if len(value) > 6 {
		if text, ok := publicationStatus[value[6]]; ok {
			if err := r.AddString("publicationStatus", text); err != nil {
				return Continue, err
			}
		}
	}
	for _, d := range []struct {
		p        Predicate
		from, to int
	}{{"date1", 7, 11}, {"date2", 11, 15}} {
		if len(value) < d.to {
			continue
		}
		if year, ok := validYear(value[d.from:d.to]); ok {
			if err := r.Add(d.p, I64(year)); err != nil {
				return Continue, err
			}
		}
	}
	for _, i := range e.Codes.Positions() {
		if i >= len(value) {
			break
		}
		ch := value[i : i+1]
		if ch == "|" || ch == " " {
			continue
		}
		t := e.Codes[i]
		p := t.Predicate()
		if p == "" {
			continue
		}
		if v, ok := t.Lookup(ch); ok {
			if err := r.AddString(Predicate(p), v); err != nil {
				return Continue, err
			}
		}
	}
	return Continue, nil
}

// validYear accepts four digit years from 1450 on. 9999 marks an open date.
func validYear(s string) (int64, bool) {
	y, err := strconv.ParseInt(s, 10, 64)
	if err != nil || y < 1450 || y == 9999 {
		return 0, false
	}
	return y, true
}
