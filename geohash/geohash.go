// Package geohash turns the coded cartographic data of MARC field 034 into
// coordinates and geohashes.
package geohash

import (
	"strconv"
	"strings"

	"github.com/mmcloughlin/geohash"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Element is a mdk.ElementHandler for field 034. The bounding box in
// subfields d (west), e (east), f (north) and g (south) is reduced to its
// center, which is written with its geohash into a node per field
// occurrence. Occurrences without a complete box are ignored.
type Element struct {
	ElementName string
	Predicate   mdk.Predicate
	Precision   uint
}

// Name implements mdk.Named.
func (e *Element) Name() string { return e.ElementName }

// Apply implements mdk.ElementHandler.
func (e *Element) Apply(group mdk.FieldGroup, value string, state *mdk.BuildState) (mdk.Result, error) {
	pred := e.Predicate
	if pred == "" {
		pred = "coordinates"
	}
	for _, occ := range group.Occurrences() {
		box, ok, err := boundingBox(occ)
		if err != nil {
			return mdk.Continue, errors.Wrapf(err, "field %s", occ.Key())
		} else if !ok {
			continue
		}
		lat, lon := (box[2]+box[3])/2, (box[0]+box[1])/2
		node, err := state.Node(pred, occ[0].Occurrence)
		if err != nil {
			return mdk.Continue, err
		}
		if err := node.Add("latitude", mdk.F64(lat)); err != nil {
			return mdk.Continue, err
		}
		if err := node.Add("longitude", mdk.F64(lon)); err != nil {
			return mdk.Continue, err
		}
		if err := node.AddString("geohash", Hash(lat, lon, e.Precision)); err != nil {
			return mdk.Continue, err
		}
	}
	return mdk.Continue, nil
}

// Hash returns the geohash of a location. Precision defaults to 6
// characters.
func Hash(lat, lon float64, precision uint) string {
	if precision == 0 {
		precision = 6
	}
	return geohash.EncodeWithPrecision(lat, lon, precision)
}

// boundingBox returns west, east, north and south.
func boundingBox(occ mdk.FieldGroup) (box [4]float64, ok bool, err error) {
	for i, code := range []string{"d", "e", "f", "g"} {
		v, found := occ.Subfield(code)
		if !found || strings.TrimSpace(v) == "" {
			return box, false, nil
		}
		if box[i], err = ParseCoordinate(v); err != nil {
			return box, false, errors.Wrapf(err, "subfield %s", code)
		}
	}
	return box, true, nil
}

// ParseCoordinate reads a 034 coordinate. It accepts hemisphere letters or
// signs followed by degrees, minutes and seconds (hdddmmss), decimal degrees
// (hddd.dddddd), decimal minutes (hdddmm.mmmm) and decimal seconds
// (hdddmmss.sss).
func ParseCoordinate(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty coordinate")
	}
	sign := 1.0
	switch s[0] {
	case 'S', 's', 'W', 'w', '-':
		sign = -1
		s = s[1:]
	case 'N', 'n', 'E', 'e', '+':
		s = s[1:]
	}
	dot := strings.IndexByte(s, '.')
	var deg, minutes, sec float64
	var err error
	switch {
	case dot < 0 && len(s) == 7:
		deg, minutes, sec, err = parts(s[:3], s[3:5], s[5:])
	case dot < 0:
		deg, err = strconv.ParseFloat(s, 64)
	case dot <= 3:
		deg, err = strconv.ParseFloat(s, 64)
	case dot == 5:
		deg, minutes, sec, err = parts(s[:3], s[3:], "0")
	case dot == 7:
		deg, minutes, sec, err = parts(s[:3], s[3:5], s[5:])
	default:
		return 0, errors.Errorf("unknown coordinate format %q", s)
	}
	if err != nil {
		return 0, errors.Wrapf(err, "parsing %q", s)
	}
	if minutes >= 60 || sec >= 60 {
		return 0, errors.Errorf("minutes or seconds out of range in %q", s)
	}
	return sign * (deg + minutes/60 + sec/3600), nil
}

func parts(d, m, s string) (deg, minutes, sec float64, err error) {
	if deg, err = strconv.ParseFloat(d, 64); err != nil {
		return
	}
	if minutes, err = strconv.ParseFloat(m, 64); err != nil {
		return
	}
	sec, err = strconv.ParseFloat(s, 64)
	return
}

// Register adds the "geohash" element type to reg. It reads the
// "_predicate" and "precision" settings.
func Register(reg *mdk.ElementRegistry) {
	reg.Register("geohash", func(name string, s mdk.Settings) (mdk.ElementHandler, error) {
		e := &Element{ElementName: name, Predicate: mdk.Predicate(s.String(mdk.PredicateKey))}
		if p := s.String("precision"); p != "" {
			n, err := strconv.ParseUint(p, 10, 8)
			if err != nil || n == 0 || n > 12 {
				return nil, errors.Errorf("precision must be between 1 and 12, got %q", p)
			}
			e.Precision = uint(n)
		}
		return e, nil
	})
}
