// Copyright 2017 Pilosa Corp.
//
// Redistribution and use in source and binary forms, with or without
// modification, are permitted provided that the following conditions
// are met:
//
// 1. Redistributions of source code must retain the above copyright
// notice, this list of conditions and the following disclaimer.
//
// 2. Redistributions in binary form must reproduce the above copyright
// notice, this list of conditions and the following disclaimer in the
// documentation and/or other materials provided with the distribution.
//
// 3. Neither the name of the copyright holder nor the names of its
// contributors may be used to endorse or promote products derived
// from this software without specific prior written permission.
//
// THIS SOFTWARE IS PROVIDED BY THE COPYRIGHT HOLDERS AND
// CONTRIBUTORS "AS IS" AND ANY EXPRESS OR IMPLIED WARRANTIES,
// INCLUDING, BUT NOT LIMITED TO, THE IMPLIED WARRANTIES OF
// MERCHANTABILITY AND FITNESS FOR A PARTICULAR PURPOSE ARE
// DISCLAIMED. IN NO EVENT SHALL THE COPYRIGHT HOLDER OR
// CONTRIBUTORS BE LIABLE FOR ANY DIRECT, INDIRECT, INCIDENTAL,
// SPECIAL, EXEMPLARY, OR CONSEQUENTIAL DAMAGES (INCLUDING,
// BUT NOT LIMITED TO, PROCUREMENT OF SUBSTITUTE GOODS OR
// SERVICES; LOSS OF USE, DATA, OR PROFITS; OR BUSINESS
// INTERRUPTION) HOWEVER CAUSED AND ON ANY THEORY OF LIABILITY,
// WHETHER IN CONTRACT, STRICT LIABILITY, OR TORT (INCLUDING
// NEGLIGENCE OR OTHERWISE) ARISING IN ANY WAY OUT OF THE USE
// OF THIS SOFTWARE, EVEN IF ADVISED OF THE POSSIBILITY OF SUCH
// DAMAGE.

package mdk

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// errorTag is assigned to field content that has no directory entry.
const errorTag = "___"

// Decoder turns a byte stream into FieldEvents. It is not safe for
// concurrent use; give each worker its own Decoder.
type Decoder struct {
	rules   FramingRules
	rr      *RecordReader
	onError func(*DecodeError)

	events []FieldEvent
	pos    int
	done   bool
	errs   []*DecodeError
}

// DecoderOption configures a Decoder.
type DecoderOption func(*Decoder)

// OptDecoderErrorHandler registers a callback for malformed records in
// tolerant mode. Errors are also kept and available from Errors.
func OptDecoderErrorHandler(f func(*DecodeError)) DecoderOption {
	return func(d *Decoder) {
		d.onError = f
	}
}

// NewDecoder creates a Decoder reading records framed by rules from r.
func NewDecoder(r io.Reader, rules FramingRules, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		rules: rules,
		rr:    NewRecordReader(r, rules),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Next returns the next event, or io.EOF after the last record. In fatal
// mode a malformed record ends decoding with a *DecodeError.
func (d *Decoder) Next() (FieldEvent, error) {
	for d.pos >= len(d.events) {
		if d.done {
			return FieldEvent{}, io.EOF
		}
		raw, offset, err := d.rr.Next()
		if err == io.EOF {
			d.done = true
			continue
		} else if err != nil {
			d.done = true
			return FieldEvent{}, errors.Wrap(err, "reading record")
		}
		events, err := d.parse(raw, offset)
		if err != nil {
			derr, ok := err.(*DecodeError)
			if !ok {
				return FieldEvent{}, err
			}
			if d.rules.Fatal {
				d.done = true
				return FieldEvent{}, derr
			}
			d.errs = append(d.errs, derr)
			if d.onError != nil {
				d.onError(derr)
			}
			continue
		}
		d.events, d.pos = events, 0
	}
	ev := d.events[d.pos]
	d.pos++
	return ev, nil
}

// Errors returns the malformed records skipped so far in tolerant mode.
func (d *Decoder) Errors() []*DecodeError {
	return d.errs
}

// DecodeRecord decodes exactly one framed record.
func DecodeRecord(raw []byte, rules FramingRules) ([]FieldEvent, error) {
	d := &Decoder{rules: rules}
	return d.parse(raw, 0)
}

func (d *Decoder) parse(rec []byte, offset int64) ([]FieldEvent, error) {
	switch d.rules.Mode {
	case Directory, Separator:
		return d.parseISO(rec, offset)
	case Line:
		return d.parseLines(rec, offset)
	}
	return nil, errors.Errorf("unknown framing mode %d", d.rules.Mode)
}

func decodeErr(offset int64, at int, format string, args ...interface{}) *DecodeError {
	return &DecodeError{Offset: offset + int64(at), Reason: fmt.Sprintf(format, args...)}
}

type fieldBuilder struct {
	rules      FramingRules
	offset     int64
	events     []FieldEvent
	occurrence int
}

func (b *fieldBuilder) emit(typ EventType, f Field) {
	b.events = append(b.events, FieldEvent{Type: typ, Field: f, Offset: b.offset})
}

func (b *fieldBuilder) field(tag, content string, indicatorLength, position, length int) {
	occ := b.occurrence
	b.occurrence++
	delim := string(b.rules.SubfieldDelimiter)
	if strings.HasPrefix(tag, "00") && !strings.Contains(content, delim) {
		f := Field{Tag: tag, Data: content, Occurrence: occ, Position: position, Length: length}
		b.emit(BeginControlField, f)
		b.emit(EndControlField, f)
		return
	}
	ind := content
	if len(content) >= indicatorLength {
		ind = content[:indicatorLength]
	}
	rest := content[len(ind):]
	if indicatorLength == 0 && strings.HasPrefix(rest, " "+delim) {
		rest = rest[1:]
	}
	parts := strings.Split(rest, delim)
	designator := Field{Tag: tag, Indicator: ind, Data: parts[0], Occurrence: occ, Position: position, Length: length}
	b.emit(BeginDataField, designator)
	codeLen := b.rules.subfieldCodeLength()
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		n := codeLen
		if len(p) < n {
			n = len(p)
		}
		sf := designator.WithSubfield(p[:n], p[n:])
		b.emit(BeginSubField, sf)
		b.emit(EndSubField, sf)
	}
	b.emit(EndDataField, designator)
}

func (d *Decoder) indicatorLength(label Label) int {
	if d.rules.LabelOverrides {
		if n, ok := label.IndicatorLength(); ok {
			return n
		}
	}
	return d.rules.IndicatorLength
}

func (d *Decoder) parseISO(rec []byte, offset int64) ([]FieldEvent, error) {
	rules := d.rules
	if len(rec) < rules.LeaderLength {
		return nil, decodeErr(offset, 0, "truncated leader: %d bytes", len(rec))
	}
	if rec[len(rec)-1] != rules.RecordTerminator {
		return nil, decodeErr(offset, len(rec), "missing record terminator")
	}
	label := ParseLabel(string(rec[:LeaderLength]))
	if rules.LabelOverrides {
		if n, ok := label.SubfieldIDLength(); ok && n > 0 {
			rules.SubfieldIDLength = n
		}
	}
	b := &fieldBuilder{rules: rules, offset: offset}
	b.events = append(b.events,
		FieldEvent{Type: BeginRecord, Offset: offset},
		FieldEvent{Type: Leader, Label: label, Offset: offset})
	indLen := d.indicatorLength(label)
	entryLen := rules.TagLength + label.DataFieldLength() + label.StartingCharacterPositionLength()

	if rules.Mode == Directory {
		if n, ok := label.RecordLength(); !ok {
			return nil, decodeErr(offset, 0, "malformed record length %q", label.String()[:5])
		} else if n != len(rec) {
			return nil, decodeErr(offset, 0, "record length %d does not match actual length %d", n, len(rec))
		}
		base, ok := label.BaseAddress()
		if !ok || base <= rules.LeaderLength || base > len(rec) {
			return nil, decodeErr(offset, 12, "malformed base address %q", label.String()[12:17])
		}
		if rec[base-1] != rules.FieldTerminator {
			return nil, decodeErr(offset, base-1, "directory not terminated")
		}
		dir := rec[rules.LeaderLength : base-1]
		if len(dir)%entryLen != 0 {
			return nil, decodeErr(offset, rules.LeaderLength, "directory length %d is not a multiple of %d", len(dir), entryLen)
		}
		for i := 0; i < len(dir); i += entryLen {
			at := rules.LeaderLength + i
			tag := string(dir[i : i+rules.TagLength])
			lenEnd := i + rules.TagLength + label.DataFieldLength()
			length, err := strconv.Atoi(string(dir[i+rules.TagLength : lenEnd]))
			if err != nil {
				return nil, decodeErr(offset, at, "malformed field length in directory entry %q", dir[i:i+entryLen])
			}
			start, err := strconv.Atoi(string(dir[lenEnd : i+entryLen]))
			if err != nil {
				return nil, decodeErr(offset, at, "malformed start position in directory entry %q", dir[i:i+entryLen])
			}
			from, to := base+start, base+start+length
			if from < base || to > len(rec)-1 || length < 1 {
				return nil, decodeErr(offset, at, "field %s at %d+%d is out of bounds", tag, start, length)
			}
			content := rec[from:to]
			if content[len(content)-1] == rules.FieldTerminator {
				content = content[:len(content)-1]
			}
			b.field(tag, string(content), indLen, start, length)
		}
	} else {
		end := bytes.IndexByte(rec, rules.FieldTerminator)
		if end < rules.LeaderLength {
			return nil, decodeErr(offset, rules.LeaderLength, "directory not terminated")
		}
		dir := rec[rules.LeaderLength:end]
		if len(dir)%entryLen != 0 {
			return nil, decodeErr(offset, rules.LeaderLength, "directory length %d is not a multiple of %d", len(dir), entryLen)
		}
		var tags []string
		for i := 0; i < len(dir); i += entryLen {
			tags = append(tags, string(dir[i:i+rules.TagLength]))
		}
		body := rec[end+1 : len(rec)-1]
		pos := 0
		for i, content := range bytes.Split(body, []byte{rules.FieldTerminator}) {
			if i == len(tags) && len(content) == 0 {
				break
			}
			tag := errorTag
			if i < len(tags) {
				tag = tags[i]
			}
			b.field(tag, string(content), indLen, pos, len(content)+1)
			pos += len(content) + 1
		}
	}
	b.events = append(b.events, FieldEvent{Type: EndRecord, Offset: offset})
	return b.events, nil
}

func (d *Decoder) parseLines(rec []byte, offset int64) ([]FieldEvent, error) {
	rules := d.rules
	b := &fieldBuilder{rules: rules, offset: offset}
	b.events = append(b.events, FieldEvent{Type: BeginRecord, Offset: offset})
	pos := 0
	for _, line := range strings.Split(string(rec), "\n") {
		at := pos
		pos += len(line) + 1
		line = strings.TrimRight(line, "\r"+string(rules.RecordTerminator))
		if line == "" {
			continue
		}
		if rules.LinePrefix != "" && strings.HasPrefix(line, rules.LinePrefix) {
			label := ParseLabel(strings.TrimLeft(line[len(rules.LinePrefix):], " "))
			b.events = append(b.events, FieldEvent{Type: Leader, Label: label, Offset: offset})
			continue
		}
		if len(line) < rules.TagLength {
			return nil, decodeErr(offset, at, "line too short for a tag: %q", line)
		}
		tag, content := line[:rules.TagLength], line[rules.TagLength:]
		if strings.HasPrefix(tag, "00") && rules.IndicatorLength > 0 && len(content) >= rules.IndicatorLength &&
			strings.TrimSpace(content[:rules.IndicatorLength]) == "" {
			content = content[rules.IndicatorLength:]
		}
		b.field(tag, content, rules.IndicatorLength, at, len(line))
	}
	b.events = append(b.events, FieldEvent{Type: EndRecord, Offset: offset})
	return b.events, nil
}
