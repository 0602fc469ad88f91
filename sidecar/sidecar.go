// Package sidecar reads and writes the JSON sidecar documents that sit next
// to every entity and data file of a dataset.
//
// A Document is an ordered string keyed mapping: keys keep the order in
// which they were set or read from disk, nested objects are Documents too,
// and numbers keep their textual form, so a document read and written back
// is byte-for-byte stable.
package sidecar

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"slices"

	"github.com/jmgilman/go/fs/core"

	"github.com/kleenlab/ucsfbids/errors"
)

// Document is an ordered JSON object.
type Document struct {
	keys   []string
	values map[string]any
}

// New returns an empty document.
func New() *Document {
	return &Document{values: make(map[string]any)}
}

// FromPairs builds a document from alternating key/value pairs.
func FromPairs(kv ...any) *Document {
	d := New()
	for i := 0; i+1 < len(kv); i += 2 {
		d.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return d
}

// Get returns the value stored under key.
func (d *Document) Get(key string) (any, bool) {
	if d == nil {
		return nil, false
	}
	v, ok := d.values[key]
	return v, ok
}

// GetString returns the value under key when it is a string.
func (d *Document) GetString(key string) string {
	v, _ := d.Get(key)
	s, _ := v.(string)
	return s
}

// Set stores value under key. New keys are appended; existing keys keep
// their position.
func (d *Document) Set(key string, value any) {
	if d.values == nil {
		d.values = make(map[string]any)
	}
	if _, ok := d.values[key]; !ok {
		d.keys = append(d.keys, key)
	}
	d.values[key] = value
}

// SetDefault stores value only when key is absent.
func (d *Document) SetDefault(key string, value any) {
	if _, ok := d.values[key]; !ok {
		d.Set(key, value)
	}
}

// Delete removes key and reports whether it was present.
func (d *Document) Delete(key string) bool {
	if _, ok := d.values[key]; !ok {
		return false
	}
	delete(d.values, key)
	d.keys = slices.DeleteFunc(d.keys, func(k string) bool { return k == key })
	return true
}

// Keys returns the keys in document order.
func (d *Document) Keys() []string {
	if d == nil {
		return nil
	}
	return slices.Clone(d.keys)
}

// Len returns the number of keys.
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.keys)
}

// Merge sets every key of other on d, in other's order.
func (d *Document) Merge(other *Document) {
	for _, k := range other.Keys() {
		v, _ := other.Get(k)
		d.Set(k, v)
	}
}

// Clone returns a deep copy of d.
func (d *Document) Clone() *Document {
	out := New()
	for _, k := range d.Keys() {
		out.Set(k, cloneValue(d.values[k]))
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case *Document:
		return t.Clone()
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}

// Equal reports whether d and other hold the same keys with the same JSON
// values, ignoring key order.
func (d *Document) Equal(other *Document) bool {
	if d.Len() != other.Len() {
		return false
	}
	for _, k := range d.Keys() {
		ov, ok := other.Get(k)
		if !ok {
			return false
		}
		a, errA := json.Marshal(d.values[k])
		b, errB := json.Marshal(ov)
		if errA != nil || errB != nil || !bytes.Equal(a, b) {
			return false
		}
	}
	return true
}

// MarshalJSON writes the keys in document order.
func (d *Document) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range d.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(d.values[k])
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON replaces the content of d with the object in data.
func (d *Document) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("sidecar: expected JSON object, got %v", tok)
	}

	parsed, err := decodeObject(dec)
	if err != nil {
		return err
	}
	*d = *parsed

	if _, err := dec.Token(); err != io.EOF {
		return fmt.Errorf("sidecar: trailing data after object")
	}
	return nil
}

// decodeObject reads the members of an object whose '{' was consumed.
func decodeObject(dec *json.Decoder) (*Document, error) {
	d := New()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("sidecar: expected object key, got %v", tok)
		}
		val, err := decodeValue(dec)
		if err != nil {
			return nil, err
		}
		d.Set(key, val)
	}
	if _, err := dec.Token(); err != nil {
		return nil, err
	}
	return d, nil
}

func decodeValue(dec *json.Decoder) (any, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	delim, ok := tok.(json.Delim)
	if !ok {
		return tok, nil
	}

	switch delim {
	case '{':
		return decodeObject(dec)
	case '[':
		arr := []any{}
		for dec.More() {
			v, err := decodeValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		if _, err := dec.Token(); err != nil {
			return nil, err
		}
		return arr, nil
	default:
		return nil, fmt.Errorf("sidecar: unexpected delimiter %v", delim)
	}
}

// Read loads the document stored at path.
// A missing file returns a CodeNotFound error; malformed JSON returns
// CodeMetadataInvalid.
func Read(fsys core.ReadFS, path string) (*Document, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if exists, _ := fsys.Exists(path); !exists {
			return nil, errors.WrapWithContext(err, errors.CodeNotFound, "sidecar does not exist", map[string]interface{}{"path": path})
		}
		return nil, errors.WrapWithContext(err, errors.CodeIO, "failed to read sidecar", map[string]interface{}{"path": path})
	}

	d := New()
	if err := json.Unmarshal(data, d); err != nil {
		return nil, errors.WrapWithContext(err, errors.CodeMetadataInvalid, "failed to parse sidecar", map[string]interface{}{"path": path})
	}
	return d, nil
}

// Write stores d at path as indented JSON with a trailing newline, creating
// the parent directory when needed.
func Write(fsys core.WriteFS, path string, d *Document) error {
	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return errors.WrapWithContext(err, errors.CodeInternal, "failed to encode sidecar", map[string]interface{}{"path": path})
	}
	data = append(data, '\n')

	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to create sidecar directory", map[string]interface{}{"path": path})
	}
	if err := fsys.WriteFile(path, data, 0o644); err != nil {
		return errors.WrapWithContext(err, errors.CodeIO, "failed to write sidecar", map[string]interface{}{"path": path})
	}
	return nil
}
