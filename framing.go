package mdk

import (
	"bytes"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// Separator bytes defined by ISO 2709.
const (
	RecordTerminator  byte = 0x1D
	FieldTerminator   byte = 0x1E
	SubfieldDelimiter byte = 0x1F
)

// FramingMode selects how record content is located.
type FramingMode int

const (
	// Directory framing trusts the leader's base address and the directory
	// lengths and offsets.
	Directory FramingMode = iota
	// Separator framing reads tags from the directory but splits field
	// content on field terminators. It tolerates wrong lengths.
	Separator
	// Line framing reads one field per line: tag, optional indicator, then
	// content with subfield delimiters. A record ends at a blank line or a
	// record terminator.
	Line
)

func (m FramingMode) String() string {
	switch m {
	case Directory:
		return "directory"
	case Separator:
		return "separator"
	case Line:
		return "line"
	}
	return "unknown"
}

// FramingRules parametrizes the Decoder for one format dialect.
type FramingRules struct {
	Name string
	Mode FramingMode

	LeaderLength      int
	TagLength         int
	IndicatorLength   int
	SubfieldIDLength  int
	RecordTerminator  byte
	FieldTerminator   byte
	SubfieldDelimiter byte

	// LinePrefix marks the leader line in Line mode, e.g. "###".
	LinePrefix string
	// LabelOverrides takes indicator and subfield code lengths from the
	// leader when it declares them.
	LabelOverrides bool
	// Fatal makes the first malformed record end decoding. Otherwise the
	// Decoder reports the error and resynchronizes at the next record.
	Fatal bool
}

// Validate checks the rules for values the Decoder cannot work with.
func (r FramingRules) Validate() error {
	if r.TagLength <= 0 {
		return errors.Errorf("framing %q: tag length must be positive, got %d", r.Name, r.TagLength)
	}
	if r.IndicatorLength < 0 || r.SubfieldIDLength < 0 {
		return errors.Errorf("framing %q: negative indicator or subfield length", r.Name)
	}
	if r.Mode != Line && r.LeaderLength < LeaderLength {
		return errors.Errorf("framing %q: leader length %d is shorter than %d", r.Name, r.LeaderLength, LeaderLength)
	}
	if r.RecordTerminator == 0 {
		return errors.Errorf("framing %q: record terminator must be set", r.Name)
	}
	return nil
}

// subfieldCodeLength is the number of code characters following the
// delimiter.
func (r FramingRules) subfieldCodeLength() int {
	if r.SubfieldIDLength <= 1 {
		return 1
	}
	return r.SubfieldIDLength - 1
}

// MARC21 is standard ISO 2709 directory framing with two indicators.
var MARC21 = FramingRules{
	Name:              "marc21",
	Mode:              Directory,
	LeaderLength:      LeaderLength,
	TagLength:         3,
	IndicatorLength:   2,
	SubfieldIDLength:  2,
	RecordTerminator:  RecordTerminator,
	FieldTerminator:   FieldTerminator,
	SubfieldDelimiter: SubfieldDelimiter,
	LabelOverrides:    true,
}

// MAB uses ISO 2709 framing with a single indicator. Lengths in MAB files
// are often wrong, so fields are split on separators.
var MAB = FramingRules{
	Name:              "mab",
	Mode:              Separator,
	LeaderLength:      LeaderLength,
	TagLength:         3,
	IndicatorLength:   1,
	SubfieldIDLength:  2,
	RecordTerminator:  RecordTerminator,
	FieldTerminator:   FieldTerminator,
	SubfieldDelimiter: SubfieldDelimiter,
}

// MABDiskette is the line oriented MAB exchange format: a "###" leader line
// followed by one field per line.
var MABDiskette = FramingRules{
	Name:              "mab-diskette",
	Mode:              Line,
	LeaderLength:      LeaderLength,
	TagLength:         3,
	IndicatorLength:   1,
	SubfieldIDLength:  2,
	RecordTerminator:  RecordTerminator,
	FieldTerminator:   '\n',
	SubfieldDelimiter: SubfieldDelimiter,
	LinePrefix:        "###",
}

// PICA is the line oriented PICA+ format with four character tags and '$'
// subfield delimiters.
var PICA = FramingRules{
	Name:              "pica",
	Mode:              Line,
	LeaderLength:      LeaderLength,
	TagLength:         4,
	IndicatorLength:   0,
	SubfieldIDLength:  2,
	RecordTerminator:  RecordTerminator,
	FieldTerminator:   '\n',
	SubfieldDelimiter: '$',
}

var presets = map[string]FramingRules{
	MARC21.Name:      MARC21,
	MAB.Name:         MAB,
	MABDiskette.Name: MABDiskette,
	PICA.Name:        PICA,
}

// Preset looks up framing rules by name (case insensitive).
func Preset(name string) (FramingRules, error) {
	r, ok := presets[strings.ToLower(name)]
	if !ok {
		return FramingRules{}, errors.Errorf("unknown framing %q, known: %s", name, strings.Join(PresetNames(), ", "))
	}
	return r, nil
}

// PresetNames lists the known framing presets.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DetectFraming guesses the framing from the first bytes of a stream.
func DetectFraming(prefix []byte) (FramingRules, error) {
	prefix = bytes.TrimLeft(prefix, "\r\n")
	if bytes.HasPrefix(prefix, []byte(MABDiskette.LinePrefix)) {
		return MABDiskette, nil
	}
	if len(prefix) >= LeaderLength && isDigits(prefix[:5]) && isDigits(prefix[12:17]) {
		if prefix[10] == '1' {
			return MAB, nil
		}
		return MARC21, nil
	}
	line := prefix
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	if len(line) > PICA.TagLength && line[PICA.TagLength] == ' ' && bytes.IndexByte(line, PICA.SubfieldDelimiter) > 0 {
		return PICA, nil
	}
	return FramingRules{}, errors.New("cannot detect framing")
}

func isDigits(b []byte) bool {
	for _, c := range b {
		if c < '0' || c > '9' {
			return false
		}
	}
	return len(b) > 0
}
