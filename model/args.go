package model

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Args is the loosely typed argument object a model sends with a tool call.
// Accessors tolerate numbers encoded as strings, booleans encoded as strings,
// and absent keys, returning the supplied default instead.
type Args map[string]interface{}

// ParseArgs decodes a JSON arguments string. Malformed input yields an empty map.
func ParseArgs(raw string) Args {
	args := Args{}
	if strings.TrimSpace(raw) == "" {
		return args
	}
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return Args{}
	}
	return args
}

// Has reports whether key is present with a non-nil, non-empty value
func (a Args) Has(key string) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// String returns the value as trimmed text
func (a Args) String(key, def string) string {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	s := strings.TrimSpace(AsString(v))
	if s == "" {
		return def
	}
	return s
}

// Float returns the value as a float64
func (a Args) Float(key string, def float64) float64 {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	if f, ok := AsFloat(v); ok {
		return f
	}
	return def
}

// Int returns the value as an int (floats are truncated)
func (a Args) Int(key string, def int) int {
	f := a.Float(key, float64(def))
	return int(f)
}

// Bool returns the value as a bool; "true"/"yes"/"1" are accepted as strings
func (a Args) Bool(key string, def bool) bool {
	v, ok := a[key]
	if !ok || v == nil {
		return def
	}
	if b, ok := AsBool(v); ok {
		return b
	}
	return def
}

// OptionalBool returns nil when the key is absent or not boolean-like
func (a Args) OptionalBool(key string) *bool {
	v, ok := a[key]
	if !ok || v == nil {
		return nil
	}
	b, ok := AsBool(v)
	if !ok {
		return nil
	}
	return &b
}

// Without returns a copy of the args minus the given keys and any "__" keys
// injected by the engine.
func (a Args) Without(keys ...string) Args {
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	out := make(Args, len(a))
	for k, v := range a {
		if skip[k] || strings.HasPrefix(k, "__") {
			continue
		}
		out[k] = v
	}
	return out
}

// AsString converts a loosely typed scalar to text
func AsString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int32:
		return strconv.FormatInt(int64(t), 10)
	case int64:
		return strconv.FormatInt(t, 10)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

// AsFloat converts a loosely typed scalar to float64
func AsFloat(v interface{}) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// AsBool converts a loosely typed scalar to bool
func AsBool(v interface{}) (bool, bool) {
	switch t := v.(type) {
	case bool:
		return t, true
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "1":
			return true, true
		case "false", "no", "0":
			return false, true
		}
	case float64:
		return t != 0, true
	case int:
		return t != 0, true
	}
	return false, false
}
