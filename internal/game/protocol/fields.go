package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// The server emits payload fields with inconsistent shapes: objects
// sometimes arrive as loosely typed maps, numbers arrive as different
// widths, and key casing varies between snake_case and camelCase.
// fieldMap normalizes all of that once at the codec boundary so the
// session logic never has to type-check raw JSON.

type fieldMap map[string]any

// asFields decodes a raw payload into a fieldMap. Numbers are kept as
// json.Number so integer fields survive regardless of wire width.
func asFields(raw json.RawMessage) (fieldMap, error) {
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return fieldMap{}, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("payload is not an object: %w", err)
	}
	return fieldMap(m), nil
}

// lookup returns the first present key among the given aliases.
// Unknown keys in the map are simply never looked at.
func (m fieldMap) lookup(keys ...string) (any, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// str extracts a string field, returning "" when absent or mistyped
func (m fieldMap) str(keys ...string) string {
	v, ok := m.lookup(keys...)
	if !ok {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

// integer extracts a numeric field regardless of the width it arrived
// in, returning 0 when absent or unparseable.
func (m fieldMap) integer(keys ...string) int {
	v, ok := m.lookup(keys...)
	if !ok {
		return 0
	}
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return int(i)
		}
		if f, err := n.Float64(); err == nil {
			return int(f)
		}
	case float64:
		return int(n)
	case string:
		var i int
		if _, err := fmt.Sscanf(n, "%d", &i); err == nil {
			return i
		}
	}
	return 0
}

// boolean extracts a bool field, defaulting to false
func (m fieldMap) boolean(keys ...string) bool {
	v, ok := m.lookup(keys...)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// object extracts a nested object field as another fieldMap. Absent or
// mistyped fields yield an empty map so extraction can continue with
// safe defaults.
func (m fieldMap) object(keys ...string) fieldMap {
	v, ok := m.lookup(keys...)
	if !ok {
		return fieldMap{}
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return fieldMap{}
	}
	return fieldMap(sub)
}

// has reports whether any of the keys is present and non-null
func (m fieldMap) has(keys ...string) bool {
	_, ok := m.lookup(keys...)
	return ok
}

// objects extracts an array-of-objects field, skipping entries that are
// not objects.
func (m fieldMap) objects(keys ...string) []fieldMap {
	v, ok := m.lookup(keys...)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]fieldMap, 0, len(list))
	for _, item := range list {
		if sub, ok := item.(map[string]any); ok {
			out = append(out, fieldMap(sub))
		}
	}
	return out
}

// strings extracts an array-of-strings field, skipping non-strings
func (m fieldMap) strings(keys ...string) []string {
	v, ok := m.lookup(keys...)
	if !ok {
		return nil
	}
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// intMap extracts a map-of-string-to-int field, e.g. player scores
func (m fieldMap) intMap(keys ...string) map[string]int {
	v, ok := m.lookup(keys...)
	if !ok {
		return nil
	}
	sub, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]int, len(sub))
	for k := range sub {
		out[k] = fieldMap(sub).integer(k)
	}
	return out
}
