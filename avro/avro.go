// Package avro serializes record graphs with Avro: an object container file
// Sink, Confluent wire framing for Kafka messages and a schema registry
// client that can decode those messages again.
package avro

import (
	"strconv"
	"strings"

	"github.com/linkedin/goavro"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Schema flattens a record graph into its subject and the list of its
// literals, each with the predicate path leading to it.
const Schema = `{
	"type": "record",
	"name": "Record",
	"namespace": "com.pilosa.mdk",
	"fields": [
		{"name": "subject", "type": "string"},
		{"name": "properties", "type": {
			"type": "array",
			"items": {
				"type": "record",
				"name": "Property",
				"fields": [
					{"name": "path", "type": "string"},
					{"name": "type", "type": "string"},
					{"name": "value", "type": "string"}
				]
			}
		}}
	]
}`

// PathSeparator joins the predicates of a literal path.
const PathSeparator = "/"

// NewCodec returns the goavro codec for Schema.
func NewCodec() (*goavro.Codec, error) {
	codec, err := goavro.NewCodec(Schema)
	return codec, errors.Wrap(err, "compiling schema")
}

// Native converts e to the generic form goavro encodes.
func Native(e *mdk.Entity) (map[string]interface{}, error) {
	props := make([]interface{}, 0, e.Len())
	err := mdk.Walk(e, func(path []string, l mdk.Literal) error {
		typ, val, err := literal(l)
		if err != nil {
			return errors.Wrapf(err, "at %s", strings.Join(path, PathSeparator))
		}
		props = append(props, map[string]interface{}{
			"path":  strings.Join(path, PathSeparator),
			"type":  typ,
			"value": val,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{
		"subject":    string(e.Subject),
		"properties": props,
	}, nil
}

// literal returns the xsd type name and lexical form of l.
func literal(l mdk.Literal) (typ, val string, err error) {
	switch v := l.(type) {
	case mdk.S:
		return "string", string(v), nil
	case mdk.I64:
		return "long", strconv.FormatInt(int64(v), 10), nil
	case mdk.U64:
		return "unsignedLong", strconv.FormatUint(uint64(v), 10), nil
	case mdk.F64:
		return "double", strconv.FormatFloat(float64(v), 'g', -1, 64), nil
	case mdk.B:
		return "boolean", strconv.FormatBool(bool(v)), nil
	}
	return "", "", errors.Errorf("unsupported literal %T", l)
}
