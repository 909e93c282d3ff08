package querycache

import "testing"

func TestKeyHasPrefix(t *testing.T) {
	k := Key{"posts", "u1"}
	if !k.HasPrefix(Key{"posts"}) {
		t.Fatalf("expected family match")
	}
	if !k.HasPrefix(nil) {
		t.Fatalf("empty prefix matches everything")
	}
	if !k.HasPrefix(Key{"posts", "u1"}) {
		t.Fatalf("key is its own prefix")
	}
	if k.HasPrefix(Key{"posts", "u2"}) {
		t.Fatalf("different user must not match")
	}
	if k.HasPrefix(Key{"posts", "u1", 1}) {
		t.Fatalf("longer prefix must not match")
	}
}

func TestKeyIntegerNormalisation(t *testing.T) {
	if !(Key{"users", 0, 10}).Equal(Key{"users", int64(0), uint8(10)}) {
		t.Fatalf("integer kinds should normalise")
	}
	if (Key{"users", "1"}).Equal(Key{"users", 1}) {
		t.Fatalf("string and int parts must differ")
	}
}

func TestKeyString(t *testing.T) {
	if got := (Key{"users", 2, 25}).String(); got != `["users",2,25]` {
		t.Fatalf("got %s", got)
	}
}
