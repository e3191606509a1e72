package models

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
)

// Metadata is an ordered mapping of field name to untyped value. Values are
// what the decoder produced (string, bool, int, float64, []any, map[string]any)
// and are only interpreted through a schema.
type Metadata struct {
	keys   []string
	values map[string]any
}

// NewMetadata builds Metadata from alternating key/value pairs.
func NewMetadata(pairs ...any) Metadata {
	var m Metadata
	for i := 0; i+1 < len(pairs); i += 2 {
		m.Set(pairs[i].(string), pairs[i+1])
	}
	return m
}

// Set adds or replaces a value, keeping the original position of an
// existing key.
func (m *Metadata) Set(key string, v any) {
	if m.values == nil {
		m.values = make(map[string]any)
	}
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = v
}

// Get returns the value stored under key.
func (m Metadata) Get(key string) (any, bool) {
	v, ok := m.values[key]
	return v, ok
}

// Has reports whether key is present.
func (m Metadata) Has(key string) bool {
	_, ok := m.values[key]
	return ok
}

// Keys returns the keys in insertion order.
func (m Metadata) Keys() []string { return slices.Clone(m.keys) }

// Len returns the number of fields.
func (m Metadata) Len() int { return len(m.keys) }

// Without returns a copy with key removed.
func (m Metadata) Without(key string) Metadata {
	var out Metadata
	for _, k := range m.keys {
		if k != key {
			out.Set(k, m.values[k])
		}
	}
	return out
}

// Select returns a copy holding only the listed keys that are present, in
// the order given.
func (m Metadata) Select(keys []string) Metadata {
	var out Metadata
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out.Set(k, v)
		}
	}
	return out
}

// Map returns the fields as a plain map.
func (m Metadata) Map() map[string]any {
	out := make(map[string]any, len(m.keys))
	for _, k := range m.keys {
		out[k] = m.values[k]
	}
	return out
}

// MarshalJSON writes the fields as an object in key order.
func (m Metadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		vb, err := json.Marshal(m.values[k])
		if err != nil {
			return nil, fmt.Errorf("metadata field %q: %w", k, err)
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads a JSON object, preserving key order. Nested values are
// decoded as with encoding/json into any.
func (m *Metadata) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return errors.New("metadata must be a JSON object")
	}
	out := Metadata{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v", tok)
		}
		var v any
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("metadata field %q: %w", key, err)
		}
		out.Set(key, v)
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*m = out
	return nil
}
