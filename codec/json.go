package codec

import "encoding/json"

// JSON is the default codec. Values round-trip through their json tags, which
// keeps cached bytes identical in shape to what the REST API returns.
type JSON[V any] struct{}

func (JSON[V]) Encode(v V) ([]byte, error) { return json.Marshal(v) }
func (JSON[V]) Decode(b []byte) (V, error) {
	var v V
	err := json.Unmarshal(b, &v)
	return v, err
}
