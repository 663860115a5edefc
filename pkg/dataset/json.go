package dataset

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/goccy/go-yaml"
)

// MarshalValue encodes a cell value as JSON. Ordered [yaml.MapSlice]
// objects keep their key order; plain maps are encoded with sorted keys so
// output is deterministic either way.
func MarshalValue(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := encodeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeValue(buf *bytes.Buffer, v any) error {
	switch t := v.(type) {
	case yaml.MapSlice:
		buf.WriteByte('{')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(keyString(item.Key))
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encodeValue(buf, item.Value); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			key, err := json.Marshal(k)
			if err != nil {
				return err
			}
			buf.Write(key)
			buf.WriteByte(':')
			if err := encodeValue(buf, t[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	case []any:
		buf.WriteByte('[')
		for i, item := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := encodeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		buf.Write(b)
	}
	return nil
}

func keyString(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	if k == nil {
		return ""
	}
	return fmt.Sprint(k)
}

// DecodeValue parses a JSON (or YAML) document into cell values, decoding
// objects into ordered [yaml.MapSlice] so document key order survives.
func DecodeValue(data []byte) (any, error) {
	var v any
	if err := yaml.UnmarshalWithOptions(data, &v, yaml.UseOrderedMap()); err != nil {
		return nil, fmt.Errorf("dataset: decode value: %w", err)
	}
	return NormalizeValue(v), nil
}

// NormalizeValue rewrites decoder-specific scalar types to the canonical
// cell types: int64, float64, bool, string, nil, []any, yaml.MapSlice.
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case yaml.MapSlice:
		for i := range t {
			t[i].Value = NormalizeValue(t[i].Value)
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = NormalizeValue(t[k])
		}
		return t
	case []any:
		for i := range t {
			t[i] = NormalizeValue(t[i])
		}
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case uint64:
		if t <= math.MaxInt64 {
			return int64(t)
		}
		return float64(t)
	case float32:
		return float64(t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	}
	return v
}
