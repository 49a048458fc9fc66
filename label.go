package mdk

import (
	"strconv"
	"strings"
)

// LeaderLength is the length of an ISO 2709 record label.
const LeaderLength = 24

// Label is a parsed record leader. The raw text is kept verbatim so that it
// can be written back unchanged.
type Label struct {
	raw string
}

// ParseLabel wraps a leader. Short leaders are padded with blanks so that
// positional accessors never go out of range.
func ParseLabel(leader string) Label {
	if len(leader) < LeaderLength {
		leader += strings.Repeat(" ", LeaderLength-len(leader))
	}
	return Label{raw: leader}
}

func (l Label) String() string { return l.raw }

// IsZero reports whether no leader was seen.
func (l Label) IsZero() bool { return l.raw == "" }

func (l Label) at(i int) byte {
	if i >= len(l.raw) {
		return ' '
	}
	return l.raw[i]
}

func (l Label) number(from, to int) (int, bool) {
	if to > len(l.raw) {
		return 0, false
	}
	n, err := strconv.Atoi(l.raw[from:to])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

// RecordLength is the declared length of the record including the record
// terminator.
func (l Label) RecordLength() (int, bool) { return l.number(0, 5) }

// Status is the record status code at position 5.
func (l Label) Status() byte { return l.at(5) }

// TypeOfRecord is the code at position 6.
func (l Label) TypeOfRecord() byte { return l.at(6) }

// BibliographicLevel is the code at position 7.
func (l Label) BibliographicLevel() byte { return l.at(7) }

// EncodingLevel is the code at position 17.
func (l Label) EncodingLevel() byte { return l.at(17) }

// IndicatorLength is the declared indicator count at position 10.
func (l Label) IndicatorLength() (int, bool) { return l.number(10, 11) }

// SubfieldIDLength is the declared subfield code length at position 11,
// including the delimiter.
func (l Label) SubfieldIDLength() (int, bool) { return l.number(11, 12) }

// BaseAddress is the offset of the first field, counted from the start of
// the record.
func (l Label) BaseAddress() (int, bool) { return l.number(12, 17) }

// DataFieldLength is the width of the length part of a directory entry.
func (l Label) DataFieldLength() int {
	if n, ok := l.number(20, 21); ok && n > 0 {
		return n
	}
	return 4
}

// StartingCharacterPositionLength is the width of the start part of a
// directory entry.
func (l Label) StartingCharacterPositionLength() int {
	if n, ok := l.number(21, 22); ok && n > 0 {
		return n
	}
	return 5
}

// TypeOfRecordText names the type of record code, or returns "" if unknown.
func (l Label) TypeOfRecordText() string { return typeOfRecord[l.TypeOfRecord()] }

// BibliographicLevelText names the bibliographic level code, or returns "" if
// unknown.
func (l Label) BibliographicLevelText() string { return bibliographicLevel[l.BibliographicLevel()] }

// EncodingLevelText names the encoding level code, or returns "" if unknown.
func (l Label) EncodingLevelText() string { return encodingLevel[l.EncodingLevel()] }

var typeOfRecord = map[byte]string{
	'a': "LanguageMaterial",
	'b': "LanguageMaterialManuscript",
	'c': "NotatedMusic",
	'd': "NotatedMusicManuscript",
	'e': "CartographicMaterial",
	'f': "CartographicMaterialManuscript",
	'g': "ProjectedMedium",
	'i': "NonmusicalSoundRecording",
	'j': "MusicalSoundRecording",
	'k': "Picture",
	'l': "ElectronicResource",
	'm': "ComputerFile",
	'o': "Kit",
	'p': "MixedMaterials",
	'r': "Artifact",
	't': "LanguageMaterialManuscript",
}

var bibliographicLevel = map[byte]string{
	'a': "MonographicComponentPart",
	'b': "SerialComponentPart",
	'c': "Collection",
	'd': "Subunit",
	'i': "IntegratingResource",
	'm': "Monograph",
	's': "Serial",
}

var encodingLevel = map[byte]string{
	' ': "Full",
	'1': "FullNotExamined",
	'2': "LessThanFullNotExamined",
	'3': "Abbreviated",
	'4': "Core",
	'5': "Partial",
	'7': "Minimal",
	'8': "Prepublication",
	'u': "Unknown",
	'z': "NotApplicable",
}
