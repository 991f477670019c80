package record

import (
	"encoding/json"
	"fmt"
	"math"
)

// Normalize converts a decoded YAML/JSON value into the normalized value set
// used throughout the seeder: nil, bool, string, int64, float64, []any, and
// map[string]any (recursively normalized).
//
// Integers of any width collapse to int64 so that equality between decoded
// document values and values read back from the store is well defined.
// json.Number is resolved to int64 when it parses exactly, float64 otherwise.
func Normalize(v any) (any, error) {
	switch val := v.(type) {
	case nil:
		return nil, nil
	case bool, string, int64, float64:
		return val, nil
	case int:
		return int64(val), nil
	case int8:
		return int64(val), nil
	case int16:
		return int64(val), nil
	case int32:
		return int64(val), nil
	case uint:
		return int64(val), nil
	case uint8:
		return int64(val), nil
	case uint16:
		return int64(val), nil
	case uint32:
		return int64(val), nil
	case uint64:
		if val > math.MaxInt64 {
			return nil, fmt.Errorf("integer out of int64 range: %d", val)
		}
		return int64(val), nil
	case float32:
		return float64(val), nil
	case json.Number:
		if n, err := val.Int64(); err == nil {
			return n, nil
		}
		f, err := val.Float64()
		if err != nil {
			return nil, fmt.Errorf("invalid number %q: %w", string(val), err)
		}
		return f, nil
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			norm, err := Normalize(elem)
			if err != nil {
				return nil, fmt.Errorf("list[%d]: %w", i, err)
			}
			out[i] = norm
		}
		return out, nil
	case map[string]any:
		return NormalizeMap(val)
	default:
		return nil, fmt.Errorf("unsupported value type: %T", v)
	}
}

// NormalizeMap normalizes every value of a field map. Keys are kept as-is.
func NormalizeMap(m map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(m))
	for k, v := range m {
		norm, err := Normalize(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		out[k] = norm
	}
	return out, nil
}
