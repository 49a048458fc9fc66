// Package fake generates synthetic MARC 21 bibliographic records for load
// testing and demos.
package fake

import (
	"fmt"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/fake/gen"
)

var (
	countries = []string{"xxu", "gw ", "enk", "fr ", "it ", "sz ", "ne ", "cau", "nyu", "ja "}
	languages = []string{"eng", "ger", "fre", "ita", "spa", "lat", "dut", "jpn"}
	subjects  = []string{
		"History", "Philosophy", "Mathematics", "Physics", "Poetry", "Music",
		"Geography", "Chemistry", "Theology", "Law", "Medicine", "Botany",
		"Astronomy", "Economics", "Linguistics", "Architecture",
	}
)

// RecordGenerator generates bibliographic records with a realistic mix of
// repeated names and subjects. It is not safe for concurrent use.
type RecordGenerator struct {
	g *gen.Generator
}

// NewRecordGenerator gets a RecordGenerator. The same seed yields the same
// records.
func NewRecordGenerator(seed int64) *RecordGenerator {
	return &RecordGenerator{g: gen.NewGenerator(seed)}
}

// Record generates the record with control number id.
func (r *RecordGenerator) Record(id uint64) (mdk.Label, []mdk.FieldGroup) {
	g := r.g
	year := 1450 + g.Intn(570)
	occ := 0
	groups := []mdk.FieldGroup{
		{{Tag: "001", Data: fmt.Sprintf("%09d", id)}},
		{{Tag: "008", Data: fixedData(year, g.Pick(countries), g.Pick(languages))}},
	}
	field := func(tag, ind string, subs ...string) mdk.FieldGroup {
		occ++
		fg := make(mdk.FieldGroup, 0, len(subs)/2)
		for i := 0; i+1 < len(subs); i += 2 {
			fg = append(fg, mdk.Field{Tag: tag, Indicator: ind, SubfieldID: subs[i], Data: subs[i+1], Occurrence: occ})
		}
		return fg
	}
	if g.Intn(4) == 0 {
		// bounding box of a map
		west, south := g.Float64()*360-180, g.Float64()*180-90
		east, north := west+g.Float64()*5, south+g.Float64()*5
		groups = append(groups, field("034", "1 ",
			"d", coordinate(west, 'E', 'W'),
			"e", coordinate(east, 'E', 'W'),
			"f", coordinate(north, 'N', 'S'),
			"g", coordinate(south, 'N', 'S')))
	}
	author := g.Word(7, 5000) + ", " + g.Word(5, 400)
	born := year - 20 - g.Intn(40)
	groups = append(groups, field("100", "1 ", "a", author, "d", fmt.Sprintf("%d-%d", born, born+30+g.Intn(50))))

	title := g.Word(6, 20000)
	for i, n := 0, g.Intn(4); i < n; i++ {
		title += " " + g.Word(4+g.Intn(5), 20000)
	}
	groups = append(groups, field("245", "10", "a", title, "c", "by "+author))

	var subj mdk.FieldGroup
	for i, n := 0, 1+g.Intn(3); i < n; i++ {
		subj = append(subj, field("650", " 0", "a", g.Pick(subjects))...)
	}
	groups = append(groups, subj)
	return mdk.ParseLabel("00000nam a2200000 a 4500"), groups
}

func fixedData(year int, country, lang string) string {
	// entered date, date type, dates, place, material specific, language
	return fmt.Sprintf("200101s%04d    %3s%-17s%3s d", year, country, "", lang)
}

// coordinate renders a degree value in the hdddmmss form of field 034.
func coordinate(deg float64, pos, neg byte) string {
	h := pos
	if deg < 0 {
		h, deg = neg, -deg
	}
	secs := int(deg*3600 + 0.5)
	return fmt.Sprintf("%c%03d%02d%02d", h, secs/3600, secs/60%60, secs%60)
}
