package geohash_test

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/pilosa/mdk"
	"github.com/pilosa/mdk/geohash"
	"github.com/pilosa/mdk/test"
)

func TestParseCoordinate(t *testing.T) {
	tests := []struct {
		in     string
		exp    float64
		expErr bool
	}{
		{in: "W0763000", exp: -76.5},
		{in: "E0120000", exp: 12},
		{in: "N0450730", exp: 45.125},
		{in: "S0451500", exp: -45.25},
		{in: "+079.533265", exp: 79.533265},
		{in: "-12.5", exp: -12.5},
		{in: "E07930.5", exp: 79.50833333},
		{in: "N0450730.0", exp: 45.125},
		{in: "E0126100", expErr: true},
		{in: "", expErr: true},
		{in: "Nabc", expErr: true},
	}
	for _, tst := range tests {
		t.Run(tst.in, func(t *testing.T) {
			got, err := geohash.ParseCoordinate(tst.in)
			if tst.expErr {
				if err == nil {
					t.Fatalf("expected error, got %v", got)
				}
				return
			}
			test.ErrNil(t, err, "ParseCoordinate")
			if math.Abs(got-tst.exp) > 1e-6 {
				t.Fatalf("got %v, expected %v", got, tst.exp)
			}
		})
	}
}

func TestElement(t *testing.T) {
	h := &geohash.Element{ElementName: "Coordinates", Precision: 5}
	g := mdk.FieldGroup{
		{Tag: "034", Indicator: "1 ", SubfieldID: "a", Data: "a", Occurrence: 4},
		{Tag: "034", Indicator: "1 ", SubfieldID: "d", Data: "E0120000", Occurrence: 4},
		{Tag: "034", Indicator: "1 ", SubfieldID: "e", Data: "E0140000", Occurrence: 4},
		{Tag: "034", Indicator: "1 ", SubfieldID: "f", Data: "N0500000", Occurrence: 4},
		{Tag: "034", Indicator: "1 ", SubfieldID: "g", Data: "N0480000", Occurrence: 4},
		{Tag: "034", Indicator: "0 ", SubfieldID: "a", Data: "a", Occurrence: 5},
	}
	state := mdk.NewBuildState(1, mdk.Label{})
	res, err := h.Apply(g, g.Value(), state)
	test.ErrNil(t, err, "Apply")
	test.MustBe(t, res, mdk.Continue)
	b, err := json.Marshal(state.Record)
	test.ErrNil(t, err, "Marshal")
	test.MustBe(t, string(b), `{"coordinates":{`+
		`"latitude":{"@type":"xsd:double","@value":49},`+
		`"longitude":{"@type":"xsd:double","@value":13},`+
		`"geohash":"`+geohash.Hash(49, 13, 5)+`"}}`)
	test.MustBe(t, len(geohash.Hash(49, 13, 5)), 5)
	test.MustBe(t, geohash.Hash(49, 13, 0), geohash.Hash(49, 13, 6))

	bad := mdk.FieldGroup{
		{Tag: "034", SubfieldID: "d", Data: "E0120000"},
		{Tag: "034", SubfieldID: "e", Data: "E0140000"},
		{Tag: "034", SubfieldID: "f", Data: "north"},
		{Tag: "034", SubfieldID: "g", Data: "N0480000"},
	}
	if _, err := h.Apply(bad, bad.Value(), mdk.NewBuildState(2, mdk.Label{})); err == nil {
		t.Fatal("expected error for malformed coordinate")
	}
}

func TestRegister(t *testing.T) {
	reg := mdk.NewElementRegistry()
	geohash.Register(reg)
	h, err := reg.New("geohash", "Coordinates", mdk.Settings{"precision": 7, mdk.PredicateKey: "place"})
	test.ErrNil(t, err, "New")
	test.MustBe(t, h, &geohash.Element{ElementName: "Coordinates", Predicate: "place", Precision: 7})
	if _, err := reg.New("geohash", "X", mdk.Settings{"precision": 13}); err == nil {
		t.Fatal("expected precision error")
	}
}
