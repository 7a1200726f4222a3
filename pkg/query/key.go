package query

import (
	"fmt"
	"strconv"
	"strings"
)

// Key identifies a cached view, e.g. ["post", 42] or ["myLikes"].
// Segments are strings or ints; K normalizes other integer types to int.
type Key []any

// K builds a Key from segments.
func K(segments ...any) Key {
	k := make(Key, len(segments))
	for i, seg := range segments {
		k[i] = normalize(seg)
	}
	return k
}

func normalize(seg any) any {
	switch v := seg.(type) {
	case string:
		return v
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case uint64:
		return int(v)
	default:
		return fmt.Sprint(v)
	}
}

// Head returns the first segment, or nil for an empty key.
func (k Key) Head() any {
	if len(k) == 0 {
		return nil
	}
	return k[0]
}

// Equal reports whether k and other have the same segments.
func (k Key) Equal(other Key) bool {
	if len(k) != len(other) {
		return false
	}
	for i := range k {
		if k[i] != other[i] {
			return false
		}
	}
	return true
}

// HasPrefix reports whether k starts with the given segments.
func (k Key) HasPrefix(prefix Key) bool {
	if len(prefix) > len(k) {
		return false
	}
	for i := range prefix {
		if k[i] != prefix[i] {
			return false
		}
	}
	return true
}

// String renders the key as ["post",42]. It is also the key's identity in
// the cache: ["post",42] and ["post","42"] are different keys.
func (k Key) String() string {
	var b strings.Builder
	b.WriteByte('[')
	for i, seg := range k {
		if i > 0 {
			b.WriteByte(',')
		}
		switch v := seg.(type) {
		case int:
			b.WriteString(strconv.Itoa(v))
		case string:
			b.WriteString(strconv.Quote(v))
		default:
			b.WriteString(strconv.Quote(fmt.Sprint(v)))
		}
	}
	b.WriteByte(']')
	return b.String()
}
