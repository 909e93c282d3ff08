package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func mustDecodeEntry(t *testing.T, b []byte) (uint64, int64, []byte) {
	t.Helper()
	gen, ts, p, err := DecodeEntry(b)
	if err != nil {
		t.Fatalf("DecodeEntry error: %v", err)
	}
	return gen, ts, p
}

func TestEntryRTEmptyAndNonEmpty(t *testing.T) {
	now := time.Now().UnixNano()
	cases := []struct {
		gen     uint64
		ts      int64
		payload []byte
	}{
		{0, 0, nil},
		{42, now, []byte("hello")},
		{math.MaxUint64, math.MaxInt64, []byte{0, 1, 2, 3, 4}},
		{7, -1, []byte(`[{"id":"p1"}]`)},
	}
	for _, tc := range cases {
		enc := EncodeEntry(tc.gen, tc.ts, tc.payload)
		gen, ts, p := mustDecodeEntry(t, enc)
		if gen != tc.gen {
			t.Fatalf("gen mismatch: got %d want %d", gen, tc.gen)
		}
		if ts != tc.ts {
			t.Fatalf("timestamp mismatch: got %d want %d", ts, tc.ts)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestEntryRejectsTrailingBytes(t *testing.T) {
	enc := EncodeEntry(7, 1, []byte("x"))
	enc = append(enc, 0xDE, 0xAD)
	if _, _, _, err := DecodeEntry(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestEntryCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeEntry(1, 2, []byte("abc"))

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, _, err := DecodeEntry(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, _, err := DecodeEntry(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindEntry + 1
	if _, _, _, err := DecodeEntry(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen sits after magic, ver, kind, gen and timestamp
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[22:26], uint32(len("abc")+1))
	if _, _, _, err := DecodeEntry(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	trunc := enc[:len(enc)-1]
	if _, _, _, err := DecodeEntry(trunc); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}

	if _, _, _, err := DecodeEntry([]byte("not-wire-format")); err == nil {
		t.Fatalf("expected error on foreign bytes")
	}
}

func TestEntryZeroCopyPayload(t *testing.T) {
	enc := EncodeEntry(1, 0, []byte("Z"))
	_, _, p := mustDecodeEntry(t, enc)
	if len(p) != 1 {
		t.Fatalf("unexpected payload len")
	}
	p[0] = 'Q'
	_, _, p2 := mustDecodeEntry(t, enc)
	if p2[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}
