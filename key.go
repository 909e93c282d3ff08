package querycache

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies one cached query result, e.g. Key{"posts", userID}.
// Parts are primitives: strings, integers, bools and floats. All integer
// kinds normalise to the same form, so Key{"users", 1} and
// Key{"users", int64(1)} address the same entry.
type Key []any

// HasPrefix reports whether prefix is a leading sub-tuple of k.
// The empty prefix matches every key.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if normalizePart(prefix[i]) != normalizePart(k[i]) {
			return false
		}
	}
	return true
}

// Equal compares normalised parts.
func (k Key) Equal(o Key) bool {
	return len(k) == len(o) && k.HasPrefix(o)
}

func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, p := range k {
		if i > 0 {
			b.WriteByte(',')
		}
		if s, ok := p.(string); ok {
			b.WriteString(strconv.Quote(s))
			continue
		}
		fmt.Fprint(&b, p)
	}
	b.WriteByte(']')
	return b.String()
}

func (k Key) parts() []string {
	out := make([]string, len(k))
	for i, p := range k {
		out[i] = normalizePart(p)
	}
	return out
}

func normalizePart(p any) string {
	switch v := p.(type) {
	case string:
		return "s:" + v
	case bool:
		return "b:" + strconv.FormatBool(v)
	case int:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int8:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int16:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int32:
		return "i:" + strconv.FormatInt(int64(v), 10)
	case int64:
		return "i:" + strconv.FormatInt(v, 10)
	case uint:
		return "i:" + strconv.FormatUint(uint64(v), 10)
	case uint8:
		return "i:" + strconv.FormatUint(uint64(v), 10)
	case uint16:
		return "i:" + strconv.FormatUint(uint64(v), 10)
	case uint32:
		return "i:" + strconv.FormatUint(uint64(v), 10)
	case uint64:
		return "i:" + strconv.FormatUint(v, 10)
	case float32:
		return "f:" + strconv.FormatFloat(float64(v), 'g', -1, 32)
	case float64:
		return "f:" + strconv.FormatFloat(v, 'g', -1, 64)
	case nil:
		return "n:"
	default:
		return fmt.Sprintf("%T:%v", v, v)
	}
}
