package codec

import (
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/types/known/wrapperspb"
)

type post struct {
	ID        string    `json:"id" cbor:"id" msgpack:"id"`
	UserID    string    `json:"user_id" cbor:"user_id" msgpack:"user_id"`
	Title     string    `json:"title" cbor:"title" msgpack:"title"`
	CreatedAt time.Time `json:"created_at" cbor:"created_at" msgpack:"created_at"`
}

func TestByNameRoundTrip(t *testing.T) {
	in := []post{
		{ID: "p1", UserID: "u1", Title: "first", CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
		{ID: "p2", UserID: "u1", Title: "second", CreatedAt: time.Date(2024, 2, 1, 12, 30, 0, 0, time.UTC)},
	}
	for _, name := range []string{"", NameJSON, NameCBOR, NameMsgpack} {
		c, err := ByName[[]post](name)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%q encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%q decode: %v", name, err)
		}
		if len(out) != len(in) {
			t.Fatalf("%q: got %d items want %d", name, len(out), len(in))
		}
		for i := range in {
			if out[i].ID != in[i].ID || out[i].Title != in[i].Title || !out[i].CreatedAt.Equal(in[i].CreatedAt) {
				t.Fatalf("%q item %d: got %+v want %+v", name, i, out[i], in[i])
			}
		}
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName[int]("gob"); err == nil || !strings.Contains(err.Error(), "gob") {
		t.Fatalf("expected unknown codec error, got %v", err)
	}
}

func TestLimitCodecRejectsOversized(t *testing.T) {
	lc := LimitCodec[[]int]{Inner: JSON[[]int]{}, MaxDecode: 5}
	if _, err := lc.Decode([]byte("[1,2,3]")); err == nil {
		t.Fatalf("expected size error")
	}
	v, err := lc.Decode([]byte("[1,2]"))
	if err != nil || len(v) != 2 || v[1] != 2 {
		t.Fatalf("got %v err=%v", v, err)
	}
}

func TestProtobufInt64(t *testing.T) {
	pc := NewProtobuf(func() *wrapperspb.Int64Value { return &wrapperspb.Int64Value{} })
	b, err := pc.Encode(wrapperspb.Int64(42))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := pc.Decode(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.GetValue() != 42 {
		t.Fatalf("got %d want 42", got.GetValue())
	}
}
