package codec

import "google.golang.org/protobuf/proto"

// Protobuf encodes proto messages with the binary wire format. Scalar query
// results (the users count) are cached as well-known wrapper messages so a
// shared Redis provider stores them compactly and language-neutrally.
type Protobuf[T proto.Message] struct {
	ctor func() T
}

var _ Codec[proto.Message] = Protobuf[proto.Message]{}

// NewProtobuf takes a constructor for an empty message, e.g.
// func() *wrapperspb.Int64Value { return &wrapperspb.Int64Value{} }.
func NewProtobuf[T proto.Message](ctor func() T) Protobuf[T] {
	return Protobuf[T]{ctor: ctor}
}

func (c Protobuf[T]) Encode(v T) ([]byte, error) {
	return proto.Marshal(v)
}

func (c Protobuf[T]) Decode(b []byte) (T, error) {
	m := c.ctor()
	err := proto.Unmarshal(b, m)
	return m, err
}
