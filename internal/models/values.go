package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// AsList returns v as a []any when it is a list.
func AsList(v any) ([]any, bool) {
	switch l := v.(type) {
	case []any:
		return l, true
	case []map[string]any:
		out := make([]any, len(l))
		for i, m := range l {
			out[i] = m
		}

		return out, true
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}

		return out, true
	}

	return nil, false
}

// AsMap returns v as a map[string]any when it is an object.
func AsMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)

	return m, ok
}

// CloneMap deep-copies a JSON-shaped map.
func CloneMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}

	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = CloneValue(v)
	}

	return out
}

// CloneValue deep-copies a JSON-shaped value.
func CloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return CloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneValue(e)
		}

		return out
	case []map[string]any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = CloneMap(e)
		}

		return out
	}

	return v
}

// Equal compares two values by their JSON encoding. Map keys are encoded in
// sorted order so the comparison is structural.
func Equal(a, b any) bool {
	aj, aerr := json.Marshal(a)
	bj, berr := json.Marshal(b)

	if aerr != nil || berr != nil {
		return false
	}

	return bytes.Equal(aj, bj)
}

// Normalize round-trips attributes through JSON so values have the same
// shape as ones read back from a store.
func Normalize(m map[string]any) (map[string]any, error) {
	if m == nil {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding attributes: %w", err)
	}

	out := map[string]any{}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decoding attributes: %w", err)
	}

	return out, nil
}

// IsBlank reports whether v carries no value: nil, a whitespace-only string,
// or an empty list or map. false and 0 are values.
func IsBlank(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}

	return false
}

// ToInt64 converts a stored numeric attribute. Missing or non-numeric values are 0.
func ToInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return 0
		}

		return int64(n)
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0
		}

		return i
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		if err != nil {
			return 0
		}

		return i
	}

	return 0
}

// StringID renders an _id attribute as a string.
func StringID(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	}

	return fmt.Sprint(v)
}
