package response

import (
	"bytes"
	"encoding/json"
)

// OrderedMap maintains insertion order of keys
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewOrderedMap creates a new OrderedMap
func NewOrderedMap() *OrderedMap {
	return newOrderedMapSize(0)
}

func newOrderedMapSize(n int) *OrderedMap {
	return &OrderedMap{
		keys:   make([]string, 0, n),
		values: make(map[string]any, n),
	}
}

// Set adds or updates a key-value pair. A nil value is kept and marshals as null.
func (om *OrderedMap) Set(key string, value any) {
	if _, exists := om.values[key]; !exists {
		om.keys = append(om.keys, key)
	}
	om.values[key] = value
}

// Get returns the value stored under key.
func (om *OrderedMap) Get(key string) (any, bool) {
	v, ok := om.values[key]
	return v, ok
}

// Delete removes a key-value pair from the ordered map
func (om *OrderedMap) Delete(key string) {
	if _, exists := om.values[key]; exists {
		delete(om.values, key)
		for i, k := range om.keys {
			if k == key {
				om.keys = append(om.keys[:i], om.keys[i+1:]...)
				break
			}
		}
	}
}

// Keys returns the keys in insertion order.
func (om *OrderedMap) Keys() []string {
	return append([]string(nil), om.keys...)
}

// Len returns the number of keys.
func (om *OrderedMap) Len() int {
	return len(om.keys)
}

// MarshalJSON implements json.Marshaler to maintain field order. HTML characters are
// not escaped.
func (om *OrderedMap) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	buf.WriteByte('{')
	for i, key := range om.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := enc.Encode(key); err != nil {
			return nil, err
		}
		trimNewline(&buf)
		buf.WriteByte(':')
		if err := enc.Encode(om.values[key]); err != nil {
			return nil, err
		}
		trimNewline(&buf)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// trimNewline drops the newline json.Encoder appends after each value.
func trimNewline(buf *bytes.Buffer) {
	if n := buf.Len(); n > 0 && buf.Bytes()[n-1] == '\n' {
		buf.Truncate(n - 1)
	}
}
