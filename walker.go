package mdk

import (
	"fmt"

	"github.com/pkg/errors"
)

// Walk recursively visits every Object in the Entity in insertion order and
// calls "call" with every Literal and its path of predicates.
func Walk(e *Entity, call func(path []string, l Literal) error) error {
	for _, prop := range e.props {
		err := walkObj(prop.Object, []string{string(prop.Predicate)}, call)
		if err != nil {
			return errors.Wrap(err, "walking object")
		}
	}
	return nil
}

func walkObj(val Object, path []string, call func(path []string, l Literal) error) error {
	if ent, ok := val.(*Entity); ok {
		for _, prop := range ent.props {
			// copy so that callers may keep the path
			p := make([]string, len(path), len(path)+1)
			copy(p, path)
			err := walkObj(prop.Object, append(p, string(prop.Predicate)), call)
			if err != nil {
				return err
			}
		}
		return nil
	}
	if lit, ok := val.(Literal); ok {
		return call(path, lit)
	}
	panic(fmt.Sprintf("%#v of type %T at %v should be a *Entity or a Literal... getting here should be impossible", val, val, path))
}
