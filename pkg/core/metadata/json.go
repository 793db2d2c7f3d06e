package metadata

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/oasysai/oasysdb/pkg/core/oaserr"
)

// JSON interoperability. Numbers are split between Integer and Float by exact
// representability: a JSON number becomes an Integer iff it parses as a
// signed 64-bit integer, otherwise a Float. JSON null has no metadata
// counterpart and is rejected.

// MarshalJSON implementations delegate to the natural Go encodings; the
// stdlib sorts object keys, so JSON output is deterministic as well.

func (t Text) MarshalJSON() ([]byte, error)    { return json.Marshal(string(t)) }
func (i Integer) MarshalJSON() ([]byte, error) { return json.Marshal(int64(i)) }
func (f Float) MarshalJSON() ([]byte, error)   { return json.Marshal(float64(f)) }
func (b Boolean) MarshalJSON() ([]byte, error) { return json.Marshal(bool(b)) }

func (a Array) MarshalJSON() ([]byte, error) {
	return json.Marshal([]Metadata(a))
}

func (o Object) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Metadata(o))
}

// ToJSON encodes a metadata value as JSON text.
func ToJSON(m Metadata) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, oaserr.New(oaserr.KindUnsupported, "metadata is not JSON-encodable: %v", err)
	}
	return data, nil
}

// FromJSON decodes JSON text into a metadata value.
func FromJSON(data []byte) (Metadata, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, oaserr.New(oaserr.KindUnsupported, "invalid metadata JSON: %v", err)
	}
	return fromJSONValue(raw)
}

func fromJSONValue(raw any) (Metadata, error) {
	switch v := raw.(type) {
	case string:
		return Text(v), nil
	case bool:
		return Boolean(v), nil
	case json.Number:
		if i, err := strconv.ParseInt(v.String(), 10, 64); err == nil {
			return Integer(i), nil
		}
		f, err := v.Float64()
		if err != nil {
			return nil, oaserr.New(oaserr.KindUnsupported, "invalid metadata number %q", v.String())
		}
		return Float(f), nil
	case []any:
		arr := make(Array, len(v))
		for i, item := range v {
			m, err := fromJSONValue(item)
			if err != nil {
				return nil, err
			}
			arr[i] = m
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(v))
		for k, item := range v {
			m, err := fromJSONValue(item)
			if err != nil {
				return nil, err
			}
			obj[k] = m
		}
		return obj, nil
	}
	return nil, oaserr.New(oaserr.KindUnsupported, "unsupported JSON type for metadata")
}
