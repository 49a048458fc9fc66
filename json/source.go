package json

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Record is one MARC-in-JSON record: a leader and an ordered list of fields,
// each an object with a single tag key. Control fields map the tag to a
// string, data fields to a DataField.
type Record struct {
	Leader string                       `json:"leader"`
	Fields []map[string]json.RawMessage `json:"fields"`
}

// DataField is the value of a data field in a MARC-in-JSON record.
type DataField struct {
	Ind1      string              `json:"ind1"`
	Ind2      string              `json:"ind2"`
	Subfields []map[string]string `json:"subfields"`
}

// Source is a mdk.Source for reading MARC-in-JSON records, one JSON object
// after another. Records are grouped by the source, so it returns
// *mdk.WorkItem values that skip the decoder.
type Source struct {
	mu   sync.Mutex
	dec  *json.Decoder
	name string
	n    int
}

// NewSource gets a new json source which will decode from the given reader.
func NewSource(r io.Reader) *Source {
	return &Source{
		dec:  json.NewDecoder(r),
		name: "json",
	}
}

// Record implements mdk.Source. It returns the next record that can be
// decoded from the reader as a *mdk.WorkItem.
func (s *Source) Record() (rec interface{}, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var r Record
	err = s.dec.Decode(&r)
	if err != nil {
		if err == io.EOF {
			return nil, err
		}
		return nil, errors.Wrapf(err, "decoding record %d of %s", s.n, s.name)
	}
	groups, err := r.Groups()
	if err != nil {
		return nil, errors.Wrapf(err, "record %d of %s", s.n, s.name)
	}
	item := &mdk.WorkItem{
		Groups: groups,
		Label:  r.Label(),
		Origin: fmt.Sprintf("%s#%d", s.name, s.n),
	}
	s.n++
	return item, nil
}

// Label parses the leader. A record without one gets the zero Label.
func (r Record) Label() mdk.Label {
	if strings.TrimSpace(r.Leader) == "" {
		return mdk.Label{}
	}
	return mdk.ParseLabel(r.Leader)
}

// Groups converts the fields of r into field groups the way the decoder
// would produce them: adjacent fields with the same tag form one group.
func (r Record) Groups() ([]mdk.FieldGroup, error) {
	groups := []mdk.FieldGroup{}
	for occ, f := range r.Fields {
		if len(f) != 1 {
			return nil, errors.Errorf("field %d has %d tags, expected one", occ, len(f))
		}
		for tag, raw := range f {
			fields, err := convert(tag, raw, occ)
			if err != nil {
				return nil, errors.Wrapf(err, "field %d (%s)", occ, tag)
			}
			if n := len(groups); n > 0 && groups[n-1].Tag() == tag {
				groups[n-1] = append(groups[n-1], fields...)
			} else {
				groups = append(groups, fields)
			}
		}
	}
	return groups, nil
}

func convert(tag string, raw json.RawMessage, occ int) (mdk.FieldGroup, error) {
	var data string
	if err := json.Unmarshal(raw, &data); err == nil {
		return mdk.FieldGroup{{Tag: tag, Data: data, Occurrence: occ}}, nil
	}
	var df DataField
	if err := json.Unmarshal(raw, &df); err != nil {
		return nil, errors.Wrap(err, "decoding data field")
	}
	f := mdk.Field{Tag: tag, Indicator: df.Ind1 + df.Ind2, Occurrence: occ}
	if len(df.Subfields) == 0 {
		return mdk.FieldGroup{f}, nil
	}
	g := make(mdk.FieldGroup, 0, len(df.Subfields))
	for _, sf := range df.Subfields {
		for code, value := range sf {
			g = append(g, f.WithSubfield(code, value))
		}
	}
	return g, nil
}

type rawSourceSource struct {
	mu sync.Mutex
	rs mdk.RawSource

	cur mdk.NamedReadCloser
	s   *Source
}

// NewSourceFromRawSource reads MARC-in-JSON records from every stream of rs
// in turn.
func NewSourceFromRawSource(rs mdk.RawSource) mdk.Source {
	return &rawSourceSource{rs: rs}
}

func (r *rawSourceSource) Record() (rec interface{}, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for {
		if r.s == nil {
			reader, err := r.rs.NextReader()
			if err != nil && err != io.EOF {
				return nil, errors.Wrap(err, "getting next reader")
			} else if err == io.EOF {
				return nil, err
			}
			r.cur, r.s = reader, NewSource(reader)
			r.s.name = reader.Name()
		}
		rec, err = r.s.Record()
		if err == io.EOF {
			r.cur.Close()
			r.cur, r.s = nil, nil
			continue
		}
		return rec, err
	}
}
