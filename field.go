package mdk

import (
	"sort"
	"strings"
)

// KeySeparator separates the segments of a specification key.
const KeySeparator = "$"

// Field is one decoded unit of a record: a control field, a data field
// designator or a single subfield of a data field. Fields are values; use
// WithSubfield to derive a modified copy.
type Field struct {
	Tag        string
	Indicator  string
	SubfieldID string
	Data       string

	// Occurrence is the index of the physical field within its record. All
	// subfields of one physical field share it.
	Occurrence int
	// Position and Length locate the field inside the raw record when the
	// framing carries a directory.
	Position int
	Length   int
}

// IsControl reports whether the field is a control field: a "00" tag
// without subfields.
func (f Field) IsControl() bool {
	return strings.HasPrefix(f.Tag, "00") && f.SubfieldID == ""
}

// WithSubfield returns a copy of f carrying the given subfield code and data.
func (f Field) WithSubfield(code, data string) Field {
	f.SubfieldID = code
	f.Data = data
	return f
}

// Key renders the field as a specification key, e.g. "100$01$a".
func (f Field) Key() string {
	return strings.Join(f.Segments(), KeySeparator)
}

// Segments returns the specification path of a single field. Formats
// without indicators omit the indicator segment.
func (f Field) Segments() []string {
	if f.IsControl() {
		return []string{f.Tag}
	}
	return path(f.Tag, f.Indicator, f.SubfieldID)
}

func path(tag, indicator, codes string) []string {
	p := []string{tag}
	if indicator != "" {
		p = append(p, indicator)
	}
	if codes != "" {
		p = append(p, codes)
	}
	return p
}

// FieldGroup is the run of fields sharing one tag as they physically occur in
// a record. A group is never empty.
type FieldGroup []Field

// Tag returns the tag shared by every field of the group.
func (g FieldGroup) Tag() string {
	if len(g) == 0 {
		return ""
	}
	return g[0].Tag
}

// Indicator returns the indicator of the first field of the group.
func (g FieldGroup) Indicator() string {
	if len(g) == 0 {
		return ""
	}
	return g[0].Indicator
}

// SubfieldCodes returns the distinct subfield codes of the group, sorted.
func (g FieldGroup) SubfieldCodes() []string {
	seen := make(map[string]struct{}, len(g))
	codes := make([]string, 0, len(g))
	for _, f := range g {
		if f.SubfieldID == "" {
			continue
		}
		if _, ok := seen[f.SubfieldID]; ok {
			continue
		}
		seen[f.SubfieldID] = struct{}{}
		codes = append(codes, f.SubfieldID)
	}
	sort.Strings(codes)
	return codes
}

// Segments derives the path used to resolve the group: the tag, the
// indicator and the concatenated sorted subfield codes. Control fields
// resolve on the tag alone.
func (g FieldGroup) Segments() []string {
	if len(g) == 0 {
		return nil
	}
	first := g[0]
	codes := strings.Join(g.SubfieldCodes(), "")
	if first.IsControl() && codes == "" {
		return []string{first.Tag}
	}
	return path(first.Tag, first.Indicator, codes)
}

// Key is the dollar-joined form of Segments, e.g. "100$01$ab".
func (g FieldGroup) Key() string {
	return strings.Join(g.Segments(), KeySeparator)
}

// Value concatenates the data of all fields in the group separated by a
// single space. It is the raw selector value handed to handlers.
func (g FieldGroup) Value() string {
	parts := make([]string, 0, len(g))
	for _, f := range g {
		if f.Data == "" {
			continue
		}
		parts = append(parts, f.Data)
	}
	return strings.Join(parts, " ")
}

// Subfield returns the data of the first field with the given code.
func (g FieldGroup) Subfield(code string) (string, bool) {
	for _, f := range g {
		if f.SubfieldID == code {
			return f.Data, true
		}
	}
	return "", false
}

// Occurrences splits the group into one group per physical field.
func (g FieldGroup) Occurrences() []FieldGroup {
	var out []FieldGroup
	start := 0
	for i := 1; i <= len(g); i++ {
		if i == len(g) || g[i].Occurrence != g[start].Occurrence {
			out = append(out, g[start:i])
			start = i
		}
	}
	return out
}
