package wire

import (
	"sort"
	"strconv"
)

// Token tags.
const (
	tagInteger byte = 'i'
	tagMap     byte = 'h'
	tagList    byte = 'l'
	tagEnd     byte = 's'
	tagSep     byte = ':'
)

// Value is one decoded token. The concrete types are Int, Text, Map and List.
type Value interface {
	isValue()
}

// Int is a signed integer token.
type Int int64

// Text is a length-prefixed byte string token. It may carry arbitrary
// bytes, such as a hand-built RF pulse train.
type Text string

// Map is a dictionary token. Keys are always Text on the wire.
type Map map[string]Value

// List is the list token. It exists so callers can name it; encoding or
// decoding one fails with ErrUnsupported.
type List []Value

func (Int) isValue()  {}
func (Text) isValue() {}
func (Map) isValue()  {}
func (List) isValue() {}

// Int returns the integer stored under key.
func (m Map) Int(key string) (int64, bool) {
	v, ok := m[key].(Int)
	return int64(v), ok
}

// Text returns the string stored under key.
func (m Map) Text(key string) (string, bool) {
	v, ok := m[key].(Text)
	return string(v), ok
}

// Keys returns the map keys in ascending order.
func (m Map) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy of the map.
func (m Map) Clone() Map {
	out := make(Map, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Native converts the map into plain Go values (int64, string,
// map[string]any) for JSON output and logging.
func (m Map) Native() map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = native(v)
	}
	return out
}

func native(v Value) any {
	switch t := v.(type) {
	case Int:
		return int64(t)
	case Text:
		return string(t)
	case Map:
		return t.Native()
	case List:
		items := make([]any, len(t))
		for i, item := range t {
			items[i] = native(item)
		}
		return items
	default:
		return nil
	}
}

// String renders the integer the way the appliance writes it.
func (i Int) String() string {
	return strconv.FormatInt(int64(i), 16)
}
