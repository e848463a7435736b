package auth

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ClaimSet is a decoded token payload. Keys vary by issuer so values are
// resolved through fallback key lists rather than a fixed schema.
type ClaimSet map[string]any

// Has reports whether key is present, even with a null value
func (c ClaimSet) Has(key string) bool {
	if c == nil {
		return false
	}
	_, ok := c[key]
	return ok
}

// String returns the first non-empty value found under keys, coerced to text.
func (c ClaimSet) String(keys ...string) string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		val, ok := c[key]
		if !ok {
			continue
		}
		if str := strings.TrimSpace(stringFromAny(val)); str != "" {
			return str
		}
	}
	return ""
}

// Strings returns the values under the first key holding a string or a list of strings.
func (c ClaimSet) Strings(keys ...string) []string {
	for _, key := range keys {
		if key == "" {
			continue
		}
		val, ok := c[key]
		if !ok {
			continue
		}
		if values := stringSliceFromAny(val); len(values) > 0 {
			return values
		}
	}
	return nil
}

// Number returns key as a float64. Numeric strings are accepted.
func (c ClaimSet) Number(key string) (float64, bool) {
	val, ok := c[key]
	if !ok {
		return 0, false
	}

	var out float64
	switch typed := val.(type) {
	case json.Number:
		f, err := typed.Float64()
		if err != nil {
			return 0, false
		}
		out = f
	case float64:
		out = typed
	case float32:
		out = float64(typed)
	case int:
		out = float64(typed)
	case int64:
		out = float64(typed)
	case int32:
		out = float64(typed)
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil {
			return 0, false
		}
		out = f
	default:
		return 0, false
	}

	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}

func stringFromAny(val any) string {
	switch typed := val.(type) {
	case string:
		return typed
	case json.Number:
		return typed.String()
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(typed), 'f', -1, 32)
	case int:
		return strconv.Itoa(typed)
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case bool:
		return strconv.FormatBool(typed)
	}
	return ""
}

func stringSliceFromAny(val any) []string {
	switch typed := val.(type) {
	case []string:
		return append([]string(nil), typed...)
	case []any:
		out := make([]string, 0, len(typed))
		for _, entry := range typed {
			if str := strings.TrimSpace(stringFromAny(entry)); str != "" {
				out = append(out, str)
			}
		}
		return out
	default:
		if str := strings.TrimSpace(stringFromAny(typed)); str != "" {
			return []string{str}
		}
	}
	return nil
}

func uniqueKeys(values ...string) []string {
	seen := map[string]struct{}{}
	keys := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		keys = append(keys, value)
	}
	return keys
}
