package settings

import (
	"encoding/json"
	"fmt"
	"time"
)

// ValueType declares the shape a setting's values must have. Stored values
// round-trip through JSON (and catalog files through YAML), so Coerce
// normalises the loosely typed decode results back into the declared type.
type ValueType string

const (
	TypeBool     ValueType = "bool"
	TypeString   ValueType = "string"
	TypeInt      ValueType = "int"
	TypeFloat    ValueType = "float"
	TypeDuration ValueType = "duration"
	TypeStrings  ValueType = "strings"
)

// Valid reports whether t names a supported value type.
func (t ValueType) Valid() bool {
	switch t {
	case TypeBool, TypeString, TypeInt, TypeFloat, TypeDuration, TypeStrings:
		return true
	default:
		return false
	}
}

// Coerce normalises value into the canonical Go representation for t:
// bool, string, int64, float64, time.Duration or []string. It accepts the
// aliases JSON and YAML decoding produce (float64 for integers, json.Number,
// strings for durations, []any for lists).
func (t ValueType) Coerce(value any) (any, error) {
	if value == nil {
		return nil, fmt.Errorf("settings: %s value must not be nil", t)
	}
	switch t {
	case TypeBool:
		if v, ok := value.(bool); ok {
			return v, nil
		}
	case TypeString:
		if v, ok := value.(string); ok {
			return v, nil
		}
	case TypeInt:
		switch v := value.(type) {
		case int:
			return int64(v), nil
		case int32:
			return int64(v), nil
		case int64:
			return v, nil
		case float64:
			if v == float64(int64(v)) {
				return int64(v), nil
			}
		case json.Number:
			if parsed, err := v.Int64(); err == nil {
				return parsed, nil
			}
		}
	case TypeFloat:
		switch v := value.(type) {
		case float64:
			return v, nil
		case float32:
			return float64(v), nil
		case int:
			return float64(v), nil
		case int64:
			return float64(v), nil
		case json.Number:
			if parsed, err := v.Float64(); err == nil {
				return parsed, nil
			}
		}
	case TypeDuration:
		switch v := value.(type) {
		case time.Duration:
			return v, nil
		case string:
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed, nil
			}
		case int64:
			return time.Duration(v), nil
		case float64:
			if v == float64(int64(v)) {
				return time.Duration(int64(v)), nil
			}
		}
	case TypeStrings:
		switch v := value.(type) {
		case []string:
			out := make([]string, len(v))
			copy(out, v)
			return out, nil
		case []any:
			out := make([]string, len(v))
			for i, item := range v {
				s, ok := item.(string)
				if !ok {
					return nil, fmt.Errorf("settings: strings value contains non-string element %v", item)
				}
				out[i] = s
			}
			return out, nil
		}
	default:
		return nil, fmt.Errorf("settings: unsupported value type %q", t)
	}
	return nil, fmt.Errorf("settings: cannot coerce %T (%v) into %s", value, value, t)
}

// Truthy reports whether a coerced value should count as enabled for
// IsAllowed checks. Only boolean-typed settings participate.
func Truthy(value any) bool {
	v, ok := value.(bool)
	return ok && v
}

// formatValue renders a coerced value for storage. Durations persist as
// their string form so they survive the JSON round-trip unambiguously.
func formatValue(value any) any {
	if d, ok := value.(time.Duration); ok {
		return d.String()
	}
	return value
}
