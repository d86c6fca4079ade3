package cache

import (
	"fmt"
	"reflect"
	"strings"
)

// KeySeparator defines the delimiter used between cache key segments.
// Keys must stay bit-exact with entries written by earlier deployments:
// "user:42", "channel:5:followers", "user:7:channels:limit=10".
const KeySeparator = ":"

// KeySerializer builds a cache key from ordered segments.
type KeySerializer interface {
	SerializeKey(segments ...any) string
}

// Param is a named query parameter embedded in a listing key.
type Param struct {
	Name  string
	Value any
}

// P is shorthand for Param{Name: name, Value: value}.
func P(name string, value any) Param {
	return Param{Name: name, Value: value}
}

// defaultKeySerializer joins segments with KeySeparator. Params render as
// name=value, pointers are dereferenced and slices render as comma lists.
type defaultKeySerializer struct{}

// NewDefaultKeySerializer creates a new instance of the default key serializer.
func NewDefaultKeySerializer() KeySerializer {
	return &defaultKeySerializer{}
}

// SerializeKey renders every segment and joins them with KeySeparator.
// Empty segments are skipped so optional parts do not leave "::" behind.
func (s *defaultKeySerializer) SerializeKey(segments ...any) string {
	parts := make([]string, 0, len(segments))
	for _, seg := range segments {
		if p, ok := seg.(Param); ok {
			parts = append(parts, p.Name+"="+s.serializeValue(p.Value))
			continue
		}
		if str := s.serializeValue(seg); str != "" {
			parts = append(parts, str)
		}
	}
	return strings.Join(parts, KeySeparator)
}

func (s *defaultKeySerializer) serializeValue(v any) string {
	if v == nil {
		return ""
	}

	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Interface:
		if rv.IsNil() {
			return ""
		}
		return s.serializeValue(rv.Elem().Interface())
	case reflect.Slice, reflect.Array:
		items := make([]string, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			items[i] = s.serializeValue(rv.Index(i).Interface())
		}
		return strings.Join(items, ",")
	default:
		return fmt.Sprintf("%v", v)
	}
}

var defaultKeys = NewDefaultKeySerializer()

// Key returns the single entity key "<type>:<id>".
func Key(entityType string, id any) string {
	return defaultKeys.SerializeKey(entityType, id)
}

// RelationKey returns the relational listing key "<type>:<id>:<relation>".
func RelationKey(entityType string, id any, relation string) string {
	return defaultKeys.SerializeKey(entityType, id, relation)
}

// QueryKey appends params, in the given order, to base:
// QueryKey("user:7:channels", P("limit", 10)) == "user:7:channels:limit=10".
func QueryKey(base string, params ...Param) string {
	segments := make([]any, 0, len(params)+1)
	segments = append(segments, base)
	for _, p := range params {
		segments = append(segments, p)
	}
	return defaultKeys.SerializeKey(segments...)
}
