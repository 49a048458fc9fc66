package mdk

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/pkg/errors"
)

type IRI string
type Predicate string
type Context map[string]interface{}

// Property is one edge of an Entity: a predicate and the object it points
// to.
type Property struct {
	Predicate Predicate
	Object    Object
}

// Entity is a node of a record graph. The root Entity of a record is
// denoted by its Subject (the record identifier once one is seen); child
// entities are usually anonymous. Properties form an ordered multimap: a
// predicate may repeat and insertion order is kept. Every child Entity has
// exactly one parent.
type Entity struct {
	Subject IRI `json:"@id"`

	props    []Property
	frozen   bool
	attached bool
}

// NewEntity creates an empty, mutable entity.
func NewEntity() *Entity {
	return &Entity{}
}

// Add appends a property. Child entities may only be attached once.
func (e *Entity) Add(p Predicate, o Object) error {
	if e.frozen {
		return errors.Wrapf(ErrFrozen, "adding %v", p)
	}
	if o == nil {
		return errors.Errorf("adding %v: nil object", p)
	}
	if child, ok := o.(*Entity); ok {
		if child == e {
			return errors.Errorf("adding %v: entity cannot contain itself", p)
		}
		if child.attached {
			return errors.Errorf("adding %v: entity already has a parent", p)
		}
		child.attached = true
	}
	e.props = append(e.props, Property{Predicate: p, Object: o})
	return nil
}

// AddString appends a string literal.
func (e *Entity) AddString(p Predicate, value string) error {
	return e.Add(p, S(value))
}

// NewChild creates an anonymous child entity under p.
func (e *Entity) NewChild(p Predicate) (*Entity, error) {
	child := NewEntity()
	if err := e.Add(p, child); err != nil {
		return nil, err
	}
	return child, nil
}

// Properties returns the properties in insertion order.
func (e *Entity) Properties() []Property {
	return append([]Property(nil), e.props...)
}

// Get returns all objects under p in insertion order.
func (e *Entity) Get(p Predicate) []Object {
	var out []Object
	for _, prop := range e.props {
		if prop.Predicate == p {
			out = append(out, prop.Object)
		}
	}
	return out
}

// First returns the first object under p.
func (e *Entity) First(p Predicate) (Object, bool) {
	for _, prop := range e.props {
		if prop.Predicate == p {
			return prop.Object, true
		}
	}
	return nil, false
}

// Predicates returns the distinct predicates in first-use order.
func (e *Entity) Predicates() []Predicate {
	seen := make(map[Predicate]struct{}, len(e.props))
	var out []Predicate
	for _, prop := range e.props {
		if _, ok := seen[prop.Predicate]; ok {
			continue
		}
		seen[prop.Predicate] = struct{}{}
		out = append(out, prop.Predicate)
	}
	return out
}

// grouped collects the objects of every predicate in one pass. Predicates
// are returned in first-use order.
func (e *Entity) grouped() ([]Predicate, map[Predicate][]Object) {
	preds := make([]Predicate, 0, len(e.props))
	objs := make(map[Predicate][]Object, len(e.props))
	for _, prop := range e.props {
		if _, ok := objs[prop.Predicate]; !ok {
			preds = append(preds, prop.Predicate)
		}
		objs[prop.Predicate] = append(objs[prop.Predicate], prop.Object)
	}
	return preds, objs
}

// Literal follows path through child entities (taking the first object at
// each step) and returns the literal at its end.
func (e *Entity) Literal(path ...string) (Literal, error) {
	if len(path) == 0 {
		return nil, errors.Wrap(ErrPathNotFound, "empty path")
	}
	obj, ok := e.First(Predicate(path[0]))
	if !ok {
		return nil, errors.Wrapf(ErrPathNotFound, "%v", path[0])
	}
	if len(path) == 1 {
		lit, ok := obj.(Literal)
		if !ok {
			return nil, errors.Errorf("object at %v is %T, not a literal", path[0], obj)
		}
		return lit, nil
	}
	child, ok := obj.(*Entity)
	if !ok {
		return nil, errors.Wrapf(ErrPathNotFound, "%v is not an entity", path[0])
	}
	lit, err := child.Literal(path[1:]...)
	return lit, errors.Wrap(err, path[0])
}

// Len returns the number of properties.
func (e *Entity) Len() int { return len(e.props) }

// Freeze makes e and all its descendants immutable.
func (e *Entity) Freeze() {
	e.frozen = true
	for _, prop := range e.props {
		if child, ok := prop.Object.(*Entity); ok {
			child.Freeze()
		}
	}
}

// Frozen reports whether e has been frozen.
func (e *Entity) Frozen() bool { return e.frozen }

// Equal compares two entities, including property order, and describes the
// first difference.
func (e *Entity) Equal(e2 *Entity) error {
	if e.Subject != e2.Subject {
		return errors.Errorf("subject '%v' != '%v'", e.Subject, e2.Subject)
	}
	return equal(e, e2)
}

func equal(o, o2 Object) error {
	if reflect.TypeOf(o) != reflect.TypeOf(o2) {
		return errors.Errorf("objs are different types: %T and %T", o, o2)
	}
	switch o.(type) {
	case *Entity:
		e, e2 := o.(*Entity), o2.(*Entity)
		if e.Subject != e2.Subject {
			return errors.Errorf("subject '%v' != '%v'", e.Subject, e2.Subject)
		}
		if len(e.props) != len(e2.props) {
			return errors.Errorf("entities have different number of properties, %d and %d", len(e.props), len(e2.props))
		}
		for i, prop := range e.props {
			prop2 := e2.props[i]
			if prop.Predicate != prop2.Predicate {
				return errors.Errorf("property %d: predicate %v != %v", i, prop.Predicate, prop2.Predicate)
			}
			if err := equal(prop.Object, prop2.Object); err != nil {
				return errors.Wrapf(err, "%v", prop.Predicate)
			}
		}
	default:
		if o != o2 {
			return errors.Errorf("literals '%v' and '%v' not equal", o, o2)
		}
	}
	return nil
}

// EntityWithContext associates a Context
// (https://json-ld.org/spec/latest/json-ld/#the-context) with an Entity so that
// it can be Marshaled to valid and useful JSON-LD.
type EntityWithContext struct {
	*Entity
	Context Context
}

// MarshalJSON writes the context first, then the entity.
func (e EntityWithContext) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	ctx, err := json.Marshal(e.Context)
	if err != nil {
		return nil, errors.Wrap(err, "marshaling context")
	}
	buf.WriteString(`"@context":`)
	buf.Write(ctx)
	if err := e.Entity.writeMembers(&buf, true); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Object is an interface satisfied by all things which may appear as objects in
// RDF triples. All literals are objects, but not all objects are literals.
type Object interface {
	isObj()
}

func (e *Entity) isObj() {}

// MarshalJSON serializes the entity as JSON-LD. Members appear in the order
// their predicates were first used; repeated predicates become arrays.
func (e *Entity) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	if err := e.writeMembers(&buf, false); err != nil {
		return nil, err
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (e *Entity) writeMembers(buf *bytes.Buffer, comma bool) error {
	if e.Subject != "" {
		if comma {
			buf.WriteByte(',')
		}
		buf.WriteString(`"@id":`)
		id, _ := json.Marshal(string(e.Subject))
		buf.Write(id)
		comma = true
	}
	preds, grouped := e.grouped()
	for _, p := range preds {
		objs := grouped[p]
		if comma {
			buf.WriteByte(',')
		}
		comma = true
		key, _ := json.Marshal(string(p))
		buf.Write(key)
		buf.WriteByte(':')
		var val interface{} = objs
		if len(objs) == 1 {
			val = objs[0]
		}
		b, err := json.Marshal(val)
		if err != nil {
			return errors.Wrapf(err, "marshaling %v", p)
		}
		buf.Write(b)
	}
	return nil
}

// Literal is an interface satisfied by the scalar values a graph may hold.
type Literal interface {
	isLit()
}

type B bool

func (B B) MarshalJSON() ([]byte, error) {
	ret := map[string]interface{}{
		"@type":  "xsd:boolean",
		"@value": bool(B),
	}
	return json.Marshal(ret)
}

type S string

type F64 float64

func (F F64) MarshalJSON() ([]byte, error) {
	ret := map[string]interface{}{
		"@type":  "xsd:double",
		"@value": float64(F),
	}
	return json.Marshal(ret)
}

type I64 int64

func (I I64) MarshalJSON() ([]byte, error) {
	ret := map[string]interface{}{
		"@type":  "xsd:long",
		"@value": int64(I),
	}
	return json.Marshal(ret)
}

type U64 uint64

func (U U64) MarshalJSON() ([]byte, error) {
	ret := map[string]interface{}{
		"@type":  "xsd:unsignedLong",
		"@value": uint64(U),
	}
	return json.Marshal(ret)
}

func (b B) isLit()   {}
func (b B) isObj()   {}
func (s S) isLit()   {}
func (s S) isObj()   {}
func (f F64) isLit() {}
func (f F64) isObj() {}
func (i I64) isLit() {}
func (i I64) isObj() {}
func (u U64) isLit() {}
func (u U64) isObj() {}
