package wire

import (
	"math"
	"strconv"
	"strings"
)

// toFloat accepts every numeric CBOR representation.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

// requireFloat reads a required numeric field.
func requireFloat(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, missing(key)
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, wrongType(key, "number", v)
	}
	return f, nil
}

// coerceFloat is requireFloat plus numeric strings. Only speed and course
// are coerced; other fields must already be numbers.
func coerceFloat(m map[string]any, key string) (float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return 0, missing(key)
	}
	f, ok := toFloat(v)
	if !ok {
		s, isString := v.(string)
		if !isString {
			return 0, wrongType(key, "number", v)
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, &ValidationError{Field: key, Reason: "must be a float"}
		}
		f = parsed
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &ValidationError{Field: key, Reason: "must be finite"}
	}
	return f, nil
}

func requireString(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", missing(key)
	}
	s, ok := v.(string)
	if !ok {
		return "", wrongType(key, "string", v)
	}
	return s, nil
}
