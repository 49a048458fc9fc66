package mdk

import (
	"bytes"
	"fmt"
	"io"

	"github.com/pkg/errors"
)

// Encoder writes records in ISO 2709 directory framing.
type Encoder struct {
	w     io.Writer
	rules FramingRules
}

// NewEncoder creates an Encoder writing to w. Only the separators and the
// subfield code length of rules are used.
func NewEncoder(w io.Writer, rules FramingRules) *Encoder {
	return &Encoder{w: w, rules: rules}
}

// Encode writes one record. Record length and base address in the label are
// recomputed; every other leader position is kept.
func (e *Encoder) Encode(label Label, groups []FieldGroup) error {
	rec, err := e.Marshal(label, groups)
	if err != nil {
		return err
	}
	_, err = e.w.Write(rec)
	return errors.Wrap(err, "writing record")
}

// Marshal renders one record.
func (e *Encoder) Marshal(label Label, groups []FieldGroup) ([]byte, error) {
	if label.IsZero() {
		label = ParseLabel("00000nam a2200000 a 4500")
	}
	lenWidth := label.DataFieldLength()
	startWidth := label.StartingCharacterPositionLength()
	var dir, body bytes.Buffer
	for _, g := range groups {
		for _, occ := range g.Occurrences() {
			content := e.field(occ)
			if len(occ[0].Tag) != e.rules.TagLength {
				return nil, errors.Errorf("tag %q does not have length %d", occ[0].Tag, e.rules.TagLength)
			}
			entry := fmt.Sprintf("%s%0*d%0*d", occ[0].Tag, lenWidth, len(content), startWidth, body.Len())
			if len(entry) != e.rules.TagLength+lenWidth+startWidth {
				return nil, errors.Errorf("field %s does not fit in a directory entry", occ[0].Tag)
			}
			dir.WriteString(entry)
			body.Write(content)
		}
	}
	dir.WriteByte(e.rules.FieldTerminator)
	base := LeaderLength + dir.Len()
	total := base + body.Len() + 1
	if total > 99999 {
		return nil, errors.Errorf("record length %d exceeds 99999", total)
	}
	leader := []byte(label.String()[:LeaderLength])
	copy(leader[0:5], fmt.Sprintf("%05d", total))
	copy(leader[12:17], fmt.Sprintf("%05d", base))

	out := make([]byte, 0, total)
	out = append(out, leader...)
	out = append(out, dir.Bytes()...)
	out = append(out, body.Bytes()...)
	out = append(out, e.rules.RecordTerminator)
	return out, nil
}

func (e *Encoder) field(occ FieldGroup) []byte {
	var buf bytes.Buffer
	first := occ[0]
	if first.IsControl() && len(occ) == 1 && first.Indicator == "" {
		buf.WriteString(first.Data)
		buf.WriteByte(e.rules.FieldTerminator)
		return buf.Bytes()
	}
	buf.WriteString(first.Indicator)
	for _, f := range occ {
		if f.SubfieldID == "" {
			buf.WriteString(f.Data)
		}
	}
	for _, f := range occ {
		if f.SubfieldID == "" {
			continue
		}
		buf.WriteByte(e.rules.SubfieldDelimiter)
		buf.WriteString(f.SubfieldID)
		buf.WriteString(f.Data)
	}
	buf.WriteByte(e.rules.FieldTerminator)
	return buf.Bytes()
}
