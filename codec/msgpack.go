package codec

import "github.com/vmihailenco/msgpack/v5"

// Msgpack is a compact binary codec. It reads `msgpack` struct tags, so the
// domain types carry them next to their json tags to keep field names stable.
type Msgpack[V any] struct{}

func (Msgpack[V]) Encode(v V) ([]byte, error) {
	return msgpack.Marshal(v)
}

func (Msgpack[V]) Decode(b []byte) (V, error) {
	var v V
	err := msgpack.Unmarshal(b, &v)
	return v, err
}
