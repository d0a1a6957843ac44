package span

import (
	"encoding/binary"
	"fmt"
	"reflect"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// bsonCodec is the binary structured codec. It round-trips UUIDs (binary
// subtype 4), datetimes, and raw binary natively, and honors two
// conventions from the wire contract:
//
//   - a bson.Raw value encodes to its own bytes untouched (the pre-encoded
//     document escape hatch), and
//   - a top-level slice encodes as a stream of concatenated documents,
//     which Decode reassembles into a list.
type bsonCodec struct{}

func (bsonCodec) ContentType() string { return ContentTypeBSON }

func (bsonCodec) Encode(v any) ([]byte, error) {
	if raw, ok := v.(bson.Raw); ok {
		return []byte(raw), nil
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Slice && rv.Type() != reflect.TypeFor[[]byte]() {
		var out []byte
		for i := range rv.Len() {
			doc, err := encodeBSONDoc(rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			out = append(out, doc...)
		}
		return out, nil
	}

	return encodeBSONDoc(v)
}

func (bsonCodec) Decode(data []byte) (any, error) {
	var docs []any
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("bson: truncated document")
		}
		n := int(binary.LittleEndian.Uint32(data))
		if n < 5 || n > len(data) {
			return nil, fmt.Errorf("bson: malformed document length %d", n)
		}

		var m bson.M
		if err := bson.Unmarshal(data[:n], &m); err != nil {
			return nil, err
		}
		docs = append(docs, fromBSONValue(m))
		data = data[n:]
	}

	switch len(docs) {
	case 0:
		return nil, nil
	case 1:
		return docs[0], nil
	default:
		return docs, nil
	}
}

func encodeBSONDoc(v any) ([]byte, error) {
	if raw, ok := v.(bson.Raw); ok {
		return []byte(raw), nil
	}
	return bson.Marshal(toBSONValue(v))
}

// toBSONValue rewrites generic values into driver-native ones so UUIDs and
// nested containers encode with their proper BSON types.
func toBSONValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		m := make(bson.M, len(val))
		for k, e := range val {
			m[k] = toBSONValue(e)
		}
		return m
	case bson.M:
		m := make(bson.M, len(val))
		for k, e := range val {
			m[k] = toBSONValue(e)
		}
		return m
	case []any:
		a := make(bson.A, len(val))
		for i, e := range val {
			a[i] = toBSONValue(e)
		}
		return a
	case uuid.UUID:
		return primitive.Binary{Subtype: 0x04, Data: val[:]}
	case time.Time:
		// BSON datetimes carry millisecond precision.
		return primitive.NewDateTimeFromTime(val.Truncate(time.Millisecond))
	default:
		return v
	}
}

// fromBSONValue normalizes driver types back to the pipeline's generic
// decoded shapes: maps, slices, uuid.UUID, time.Time, int64.
func fromBSONValue(v any) any {
	switch val := v.(type) {
	case bson.M:
		m := make(map[string]any, len(val))
		for k, e := range val {
			m[k] = fromBSONValue(e)
		}
		return m
	case bson.A:
		a := make([]any, len(val))
		for i, e := range val {
			a[i] = fromBSONValue(e)
		}
		return a
	case primitive.Binary:
		if (val.Subtype == 0x04 || val.Subtype == 0x03) && len(val.Data) == 16 {
			id, err := uuid.FromBytes(val.Data)
			if err == nil {
				return id
			}
		}
		return val.Data
	case primitive.DateTime:
		return val.Time().UTC()
	case int32:
		return int64(val)
	default:
		return v
	}
}

// decodeRawDocument converts a pre-encoded BSON document to generic decoded
// form, for when raw media must be re-encoded by a different codec.
func decodeRawDocument(raw bson.Raw) (any, error) {
	return bsonCodec{}.Decode([]byte(raw))
}
