// Package tree searches the loosely typed JSON documents Workday returns.
//
// Workday responses have no schema that stays stable between contexts, so
// fragments are found by the values they carry (a label, a widget type)
// instead of by their position in the document.
package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
)

// Parse decodes a JSON document into maps, slices and scalars. Numbers are
// kept as json.Number so that a tree can be forwarded without losing precision.
func Parse(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var out any
	err := dec.Decode(&out)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("unexpected data after json document")
	}
	return out, nil
}

// Search returns every mapping in root that has key mapped to exactly value,
// in depth-first pre-order. A matching mapping is not searched any further.
func Search(root any, key, value string) []map[string]any {
	return collect(root, func(m map[string]any) bool {
		v, ok := m[key].(string)
		return ok && v == value
	}, nil)
}

// SearchKey returns every mapping in root that contains key, in the same
// order as Search.
func SearchKey(root any, key string) []map[string]any {
	return collect(root, func(m map[string]any) bool {
		_, ok := m[key]
		return ok
	}, nil)
}

func collect(node any, match func(map[string]any) bool, out []map[string]any) []map[string]any {
	switch v := node.(type) {
	case map[string]any:
		if match(v) {
			return append(out, v)
		}
		// go maps are unordered, sorting keeps results stable between calls
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out = collect(v[k], match, out)
		}
	case []any:
		for _, item := range v {
			out = collect(item, match, out)
		}
	}
	return out
}

// Map asserts that v is a mapping.
func Map(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

// String returns m[key] if it is a string.
func String(m map[string]any, key string) (string, bool) {
	s, ok := m[key].(string)
	return s, ok
}

// Slice returns m[key] if it is a sequence.
func Slice(m map[string]any, key string) ([]any, bool) {
	s, ok := m[key].([]any)
	return s, ok
}

// Dump renders v as compact JSON for logs, it never fails.
func Dump(v any) string {
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("<unserializable: %s>", err.Error())
	}
	return string(out)
}
