package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"golang.org/x/text/unicode/norm"
)

// MarshalFields produces deterministic JSON for a record's field map.
//
// Object keys are sorted, strings are NFC normalized, and resolved
// whole-record references marshal as the referenced record's id (JSON null
// if the target was never flushed and so has no id). The same input always
// produces the same bytes, which keeps persisted rows and golden files
// stable across loads.
func MarshalFields(fields map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshalValue(&buf, fields); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshalValue(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
		return nil
	case bool:
		buf.WriteString(strconv.FormatBool(val))
		return nil
	case string:
		return marshalString(buf, val)
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
		return nil
	case float64:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Errorf("marshal float: %w", err)
		}
		buf.Write(b)
		return nil
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := marshalValue(buf, elem); err != nil {
				return fmt.Errorf("list[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
		return nil
	case map[string]any:
		return marshalObject(buf, val)
	case Record:
		// Whole-record substitution persists as the target's identity.
		if val.ID() == "" {
			buf.WriteString("null")
			return nil
		}
		return marshalString(buf, val.ID())
	default:
		return fmt.Errorf("unsupported field value type: %T", v)
	}
}

func marshalObject(buf *bytes.Buffer, obj map[string]any) error {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := marshalString(buf, k); err != nil {
			return fmt.Errorf("key %q: %w", k, err)
		}
		buf.WriteByte(':')
		if err := marshalValue(buf, obj[k]); err != nil {
			return fmt.Errorf("field %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

func marshalString(buf *bytes.Buffer, s string) error {
	b, err := json.Marshal(norm.NFC.String(s))
	if err != nil {
		return fmt.Errorf("marshal string: %w", err)
	}
	buf.Write(b)
	return nil
}

// UnmarshalFields decodes a persisted field JSON blob back into a normalized
// field map. Numbers decode to int64 when they parse exactly, float64
// otherwise, matching Normalize.
func UnmarshalFields(data []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode fields: %w", err)
	}
	return NormalizeMap(raw)
}
