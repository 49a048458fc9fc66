package mdk_test

import (
	"strings"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/test"
)

func apply(t *testing.T, h mdk.ElementHandler, groups ...mdk.FieldGroup) *mdk.BuildState {
	t.Helper()
	state := mdk.NewBuildState(1, mdk.Label{})
	for _, g := range groups {
		res, err := h.Apply(g, g.Value(), state)
		test.ErrNil(t, err, "Apply "+g.Key())
		test.MustBe(t, res, mdk.Continue)
	}
	return state
}

func TestSubfieldElement(t *testing.T) {
	h := &mdk.SubfieldElement{
		ElementName: "Contributor",
		Predicate:   "contributor",
		Subfields:   map[string]mdk.Predicate{"a": "name", "6": ""},
		Indicators:  map[string]map[string]mdk.Predicate{"700": {"1 ": "family"}},
		Tags:        map[string]mdk.Predicate{"710": "corporateBody"},
		Codes:       map[string]mdk.Lookup{"4": mdk.CodeTable{"aut": "Author"}},
	}
	state := apply(t, h,
		mdk.FieldGroup{
			{Tag: "700", Indicator: "0 ", SubfieldID: "a", Data: "Smith", Occurrence: 3},
			{Tag: "700", Indicator: "0 ", SubfieldID: "4", Data: "aut", Occurrence: 3},
			{Tag: "700", Indicator: "0 ", SubfieldID: "6", Data: "880-01", Occurrence: 3},
			{Tag: "700", Indicator: "1 ", SubfieldID: "a", Data: "Miller", Occurrence: 4},
			{Tag: "700", Indicator: "1 ", SubfieldID: "4", Data: "xyz", Occurrence: 4},
		},
		mdk.FieldGroup{{Tag: "710", Indicator: "2 ", SubfieldID: "a", Data: "ACME", Occurrence: 5}},
	)
	test.MustBe(t, mustJSON(t, state.Record),
		`{"contributor":{"name":"Smith","4Source":"aut","4":"Author"},`+
			`"family":{"name":"Miller","4":"xyz"},`+
			`"corporateBody":{"name":"ACME"}}`)
}

func TestSubfieldElementSharedNode(t *testing.T) {
	a := &mdk.SubfieldElement{Predicate: "title", Subfields: map[string]mdk.Predicate{"a": "main"}}
	b := &mdk.SubfieldElement{Predicate: "title", Subfields: map[string]mdk.Predicate{"b": "sub"}}
	state := mdk.NewBuildState(1, mdk.Label{})
	for _, f := range helloGroups[1] {
		h := a
		if f.SubfieldID == "b" {
			h = b
		}
		g := mdk.FieldGroup{f}
		_, err := h.Apply(g, g.Value(), state)
		test.ErrNil(t, err, "Apply")
	}
	test.MustBe(t, mustJSON(t, state.Record), `{"title":{"main":"Hello","sub":"World"}}`)
}

func TestIdentifierElement(t *testing.T) {
	h := &mdk.IdentifierElement{ElementName: "ID", Predicate: "identifier"}
	state := apply(t, h,
		mdk.FieldGroup{{Tag: "001", Data: " 42 "}},
		mdk.FieldGroup{{Tag: "001", Data: ""}},
		mdk.FieldGroup{{Tag: "001", Data: "43"}},
	)
	test.MustBe(t, state.Identifier(), "43")
	test.MustBe(t, state.IdentifierWrites(), 2)
	test.MustBe(t, state.RecordID(), "43")
	test.MustBe(t, mustJSON(t, state.Record), `{"identifier":["42","43"]}`)

	test.MustBe(t, mdk.NewBuildState(7, mdk.Label{}).RecordID(), "#7")
}

func TestCodeTableElement(t *testing.T) {
	h := &mdk.CodeTableElement{
		ElementName: "Physical",
		Predicate:   "physical",
		Codes: mdk.PositionalCodes{
			0: mdk.CodeTable{"a": "Map", "_predicate": "category"},
			1: mdk.CodeTable{"d": "Atlas", "gr": "Globe relief"},
			3: mdk.CodeTable{"c": "Multicolored"},
		},
	}
	state := apply(t, h, mdk.FieldGroup{{Tag: "007", Data: "adxc"}}, mdk.FieldGroup{{Tag: "007", Data: "agr"}})
	test.MustBe(t, mustJSON(t, state.Record),
		`{"category":["Map","Map"],"physical":["Atlas","Multicolored","Globe relief"]}`)
}

func TestGeneralInformationElement(t *testing.T) {
	h := &mdk.GeneralInformationElement{
		ElementName: "GeneralInformation",
		Codes: mdk.PositionalCodes{
			15: mdk.CodeTable{"_predicate": "country", "g": "Germany"},
			18: mdk.CodeTable{"a": "ignored without predicate"},
		},
	}
	//         0123456789012345678
	value := "850101s1985    gw a"
	state := apply(t, h, mdk.FieldGroup{{Tag: "008", Data: value}})
	test.MustBe(t, mustJSON(t, state.Record),
		`{"publicationStatus":"Single known date/probable date",`+
			`"date1":{"@type":"xsd:long","@value":1985},`+
			`"country":"Germany"}`)

	state = apply(t, h, mdk.FieldGroup{{Tag: "008", Data: "850101m14009999"}})
	test.MustBe(t, mustJSON(t, state.Record), `{"publicationStatus":"Multiple dates"}`)
}

func TestLeaderElement(t *testing.T) {
	h := &mdk.LeaderElement{ElementName: "Leader"}
	g := mdk.FieldGroup{{Tag: mdk.LeaderTag, Data: "00000cas a2200000 a 4500"}}
	state := apply(t, h, g)
	test.MustBe(t, mustJSON(t, state.Record), `{"typeOfRecord":"LanguageMaterial","bibliographicLevel":"Serial","encodingLevel":"Full"}`)
}

func TestLookups(t *testing.T) {
	l := mdk.Lookups{
		mdk.CodeTable{"ger": "German"},
		mdk.FirstCharacter{Table: mdk.CodeTable{"e": "English (guessed)"}},
	}
	for in, exp := range map[string]string{"ger": "German", "eng": "English (guessed)", "_predicate": ""} {
		v, _ := l.Lookup(in)
		test.MustBe(t, v, exp, in)
	}
	table, err := mdk.LoadCodeTable(strings.NewReader(`{"a": "Map", "b": 2, "_predicate": "kind"}`))
	test.ErrNil(t, err, "LoadCodeTable")
	test.MustBe(t, table.Predicate(), "kind")
	v, ok := table.Lookup("b")
	test.MustBe(t, ok, true)
	test.MustBe(t, v, "2")
}

func TestSubfieldElementSettings(t *testing.T) {
	tests := []struct {
		name     string
		settings mdk.Settings
		group    mdk.FieldGroup
		exp      string
	}{
		{
			name: "first word and first character",
			settings: mdk.Settings{
				"_predicate":     "language",
				"codes":          map[string]interface{}{"a": map[string]interface{}{"ger": "German"}, "b": mdk.Settings{"m": "Map"}},
				"firstcharacter": "b",
			},
			group: mdk.FieldGroup{
				{Tag: "041", Indicator: " 0", SubfieldID: "a", Data: "ger (mixed)"},
				{Tag: "041", Indicator: " 0", SubfieldID: "b", Data: "mx"},
			},
			exp: `{"language":{"aSource":"ger (mixed)","a":"German","bSource":"mx","b":"Map"}}`,
		},
		{
			name: "indicators by tag with predicate tables",
			settings: mdk.Settings{
				"_predicate":     "subject",
				"subfields":      map[string]interface{}{"a": "term"},
				"indicators":     mdk.Settings{"650": mdk.Settings{" 7": "keyword"}, "600": mdk.Settings{" 7": "person"}},
				"keyword":        mdk.Settings{"a": "label", "2": "source"},
				"keywordpattern": []interface{}{mdk.Settings{"gnd.*": "GND"}},
			},
			group: mdk.FieldGroup{
				{Tag: "650", Indicator: " 7", SubfieldID: "a", Data: "Cats", Occurrence: 1},
				{Tag: "650", Indicator: " 7", SubfieldID: "2", Data: "gnd-sw", Occurrence: 1},
				{Tag: "650", Indicator: " 0", SubfieldID: "a", Data: "Dogs", Occurrence: 2},
			},
			exp: `{"keyword":{"label":"Cats","sourceSource":"gnd-sw","source":"GND"},"subject":{"term":"Dogs"}}`,
		},
		{
			name: "indicators for every tag",
			settings: mdk.Settings{
				"indicators": map[string]interface{}{"1 ": "family"},
				"subfields":  map[string]interface{}{"a": "name"},
			},
			group: mdk.FieldGroup{
				{Tag: "100", Indicator: "1 ", SubfieldID: "a", Data: "Miller", Occurrence: 1},
				{Tag: "100", Indicator: "0 ", SubfieldID: "a", Data: "Homer", Occurrence: 2},
			},
			exp: `{"family":{"name":"Miller"},"100":{"name":"Homer"}}`,
		},
	}
	reg := mdk.NewElementRegistry()
	for _, tst := range tests {
		t.Run(tst.name, func(t *testing.T) {
			h, err := reg.New("subfields", "Element", tst.settings)
			test.ErrNil(t, err, "New")
			state := apply(t, h, tst.group)
			test.MustBe(t, mustJSON(t, state.Record), tst.exp)
		})
	}

	_, err := reg.New("subfields", "Bad", mdk.Settings{
		"tags":           mdk.Settings{"650": "keyword"},
		"keywordpattern": []interface{}{mdk.Settings{"(": "x"}},
	})
	test.ErrContains(t, err, "compiling pattern")
}

func TestLookupSteps(t *testing.T) {
	pat, err := mdk.CompilePattern("de.*", "German")
	test.ErrNil(t, err, "CompilePattern")
	l := mdk.Lookups{
		mdk.CodeTable{"ger": "German"},
		mdk.FirstWord{Table: mdk.CodeTable{"eng": "English"}},
		mdk.Patterns{pat},
	}
	for _, c := range []struct {
		in, exp string
		ok      bool
	}{
		{"ger", "German", true},
		{"eng (old)", "English", true},
		{"eng", "", false},
		{" eng", "", false},
		{"DEU", "German", true},
		{"xde", "", false},
	} {
		v, ok := l.Lookup(c.in)
		test.MustBe(t, ok, c.ok, c.in)
		test.MustBe(t, v, c.exp, c.in)
	}
}
