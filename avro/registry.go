package avro

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io/ioutil"
	"net/http"
	"sync"

	elodina "github.com/elodina/go-avro"
	"github.com/linkedin/goavro"
	"github.com/pilosa/mdk"
	"github.com/pkg/errors"
)

// RegistrySchema is the object the schema registry returns and accepts.
type RegistrySchema struct {
	Schema  string `json:"schema"`            // The actual AVRO schema
	Subject string `json:"subject,omitempty"` // Subject where the schema is registered for
	Version int    `json:"version,omitempty"` // Version within this subject
	ID      int    `json:"id,omitempty"`      // Registry's unique id
}

const registryContentType = "application/vnd.schemaregistry.v1+json"

// Registry is a client of a Confluent schema registry. Schemas fetched by
// id are cached.
type Registry struct {
	URL    string
	Client *http.Client

	lock  sync.RWMutex
	cache map[int32]elodina.Schema
}

// NewRegistry returns a client for the registry at host:port.
func NewRegistry(url string) *Registry {
	return &Registry{
		URL:    url,
		Client: http.DefaultClient,
		cache:  make(map[int32]elodina.Schema),
	}
}

// Register registers Schema under subject and returns its id.
func (r *Registry) Register(subject string) (int32, error) {
	body, err := json.Marshal(RegistrySchema{Schema: Schema})
	if err != nil {
		return 0, errors.Wrap(err, "marshaling schema")
	}
	resp, err := r.Client.Post(fmt.Sprintf("http://%s/subjects/%s/versions", r.URL, subject), registryContentType, bytes.NewReader(body))
	if err != nil {
		return 0, errors.Wrap(err, "registering schema")
	}
	defer resp.Body.Close()
	if err := statusErr(resp); err != nil {
		return 0, err
	}
	var res RegistrySchema
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return 0, errors.Wrap(err, "decoding registry response")
	}
	return int32(res.ID), nil
}

// Schema fetches the schema with the given id.
func (r *Registry) Schema(id int32) (rschema elodina.Schema, rerr error) {
	r.lock.RLock()
	if codec, ok := r.cache[id]; ok {
		r.lock.RUnlock()
		return codec, nil
	}
	r.lock.RUnlock()
	r.lock.Lock()
	defer r.lock.Unlock()
	resp, err := r.Client.Get(fmt.Sprintf("http://%s/schemas/ids/%d", r.URL, id))
	if err != nil {
		return nil, errors.Wrap(err, "getting schema from registry")
	}
	defer func() {
		if err := resp.Body.Close(); err != nil && rerr == nil {
			rerr = err
		}
	}()
	if err := statusErr(resp); err != nil {
		return nil, err
	}
	schema := &RegistrySchema{}
	if err := json.NewDecoder(resp.Body).Decode(schema); err != nil {
		return nil, errors.Wrap(err, "decoding schema from registry")
	}
	codec, err := elodina.ParseSchema(schema.Schema)
	if err != nil {
		return nil, errors.Wrap(err, "parsing schema")
	}
	r.cache[id] = codec
	return codec, nil
}

func statusErr(resp *http.Response) error {
	if resp.StatusCode < 300 {
		return nil
	}
	bod, err := ioutil.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrapf(err, "registry returned %d, no body", resp.StatusCode)
	}
	return errors.Errorf("registry returned %d: %s", resp.StatusCode, bod)
}

// Decode reads a Confluent framed message: a zero magic byte, the schema
// id and the Avro binary encoding.
func (r *Registry) Decode(val []byte) (map[string]interface{}, error) {
	if len(val) <= 5 || val[0] != 0 {
		return nil, errors.Errorf("unexpected magic byte or length in avro value, should be 0x00, but got 0x%.8x", val)
	}
	id := int32(binary.BigEndian.Uint32(val[1:]))
	codec, err := r.Schema(id)
	if err != nil {
		return nil, errors.Wrap(err, "getting avro codec")
	}
	ret, err := decode(codec, val[5:])
	return ret, errors.Wrap(err, "decoding avro record")
}

func decode(codec elodina.Schema, data []byte) (map[string]interface{}, error) {
	reader := elodina.NewGenericDatumReader()
	// SetSchema must be called before calling Read
	reader.SetSchema(codec)
	decoder := elodina.NewBinaryDecoder(data)
	decodedRecord := elodina.NewGenericRecord(codec)
	if err := reader.Read(decodedRecord, decoder); err != nil {
		return nil, errors.Wrap(err, "reading generic datum")
	}
	return decodedRecord.Map(), nil
}

// Encoder frames record graphs for a registered schema id.
type Encoder struct {
	ID    int32
	codec *goavro.Codec
}

// NewEncoder creates an Encoder for the given schema id.
func NewEncoder(id int32) (*Encoder, error) {
	codec, err := NewCodec()
	if err != nil {
		return nil, err
	}
	return &Encoder{ID: id, codec: codec}, nil
}

// Marshal returns the Confluent framed Avro encoding of e.
func (enc *Encoder) Marshal(e *mdk.Entity) ([]byte, error) {
	native, err := Native(e)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, 5, 256)
	binary.BigEndian.PutUint32(buf[1:], uint32(enc.ID))
	buf, err = enc.codec.BinaryFromNative(buf, native)
	return buf, errors.Wrapf(err, "encoding %s", e.Subject)
}
