package pilosa

import (
	"context"
	"strconv"
	"strings"

	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// Indexer takes the bits and values of one Pilosa index. *Index implements
// it.
type Indexer interface {
	AddColumn(field string, col, row uint64) error
	AddValue(field string, col uint64, val int64) error
	Close() error
}

// Sink indexes the literals of every record graph. The record subject is
// translated to a column id. Each literal path becomes a field: string
// literals set the bit of their translated value, integers are stored as
// values and booleans set row 1 when true.
type Sink struct {
	Indexer    Indexer
	Translator mdk.Translator
	// Index names the column id space in the Translator.
	Index string
}

// NewSink creates a Sink.
func NewSink(idx Indexer, tr mdk.Translator, index string) *Sink {
	return &Sink{Indexer: idx, Translator: tr, Index: index}
}

// Output implements mdk.Sink.
func (s *Sink) Output(ctx context.Context, e *mdk.Entity) error {
	col, err := s.Translator.GetID(s.Index, string(e.Subject))
	if err != nil {
		return errors.Wrapf(err, "translating subject %s", e.Subject)
	}
	return mdk.Walk(e, func(path []string, l mdk.Literal) error {
		field := FieldName(path)
		switch v := l.(type) {
		case mdk.I64:
			return s.Indexer.AddValue(field, col, int64(v))
		case mdk.U64:
			return s.Indexer.AddValue(field, col, int64(v))
		case mdk.B:
			if v {
				return s.Indexer.AddColumn(field, col, 1)
			}
			return nil
		case mdk.S:
			return s.addString(field, col, string(v))
		case mdk.F64:
			return s.addString(field, col, strconv.FormatFloat(float64(v), 'f', -1, 64))
		}
		return errors.Errorf("unsupported literal %T at %v", l, path)
	})
}

func (s *Sink) addString(field string, col uint64, val string) error {
	row, err := s.Translator.GetID(field, val)
	if err != nil {
		return errors.Wrapf(err, "translating %s value", field)
	}
	return s.Indexer.AddColumn(field, col, row)
}

// Close closes the Indexer, waiting for imports to finish.
func (s *Sink) Close() error {
	return s.Indexer.Close()
}

// FieldName turns a literal path into a valid Pilosa field name: lower case
// letters, digits, '-' and '_', starting with a letter and at most 64
// characters long.
func FieldName(path []string) string {
	name := strings.ToLower(strings.Join(path, "-"))
	b := []byte(name)
	for i, c := range b {
		if !(c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '-' || c == '_') {
			b[i] = '_'
		}
	}
	if len(b) == 0 || b[0] < 'a' || b[0] > 'z' {
		b = append([]byte("f"), b...)
	}
	if len(b) > 64 {
		b = b[:64]
	}
	return string(b)
}
