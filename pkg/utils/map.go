package utils

import (
	"fmt"
	"sort"
	"strings"

	"github.com/mitchellh/copystructure"
)

// ConvertToStringKeyMap converts map[interface{}]interface{} to map[string]interface{}
// recursively. YAML documents with non-string keys decode into the former.
func ConvertToStringKeyMap(m map[interface{}]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(m))
	for k, v := range m {
		result[fmt.Sprintf("%v", k)] = NormalizeKeys(v)
	}
	return result
}

// NormalizeKeys walks v and converts every nested map[interface{}]interface{}
// into map[string]interface{}
func NormalizeKeys(v interface{}) interface{} {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		return ConvertToStringKeyMap(val)
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			out[k] = NormalizeKeys(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = NormalizeKeys(item)
		}
		return out
	default:
		return v
	}
}

// DeepCopy returns a deep copy of v using github.com/mitchellh/copystructure.
func DeepCopy(v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	copied, err := copystructure.Copy(v)
	if err != nil {
		return nil, fmt.Errorf("deep copy %T: %w", v, err)
	}
	return copied, nil
}

// DeepCopyMap creates a deep copy of a map.
func DeepCopyMap(m map[string]interface{}) (map[string]interface{}, error) {
	if m == nil {
		return nil, nil
	}
	copied, err := DeepCopy(m)
	if err != nil {
		return nil, err
	}
	result, ok := copied.(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("deep copy returned %T, expected map", copied)
	}
	return result, nil
}

// MustDeepCopyMap is DeepCopyMap for values known to hold only plain data
// (maps, slices and scalars decoded from JSON or YAML).
func MustDeepCopyMap(m map[string]interface{}) map[string]interface{} {
	out, err := DeepCopyMap(m)
	if err != nil {
		panic(err)
	}
	return out
}

// GetNestedValue retrieves a nested value from a map using a dot-separated path.
func GetNestedValue(m map[string]interface{}, path string) (interface{}, bool) {
	if path == "" {
		return nil, false
	}
	parts := strings.Split(path, ".")
	var current interface{} = m

	for _, part := range parts {
		v, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		val, ok := v[part]
		if !ok {
			return nil, false
		}
		current = val
	}

	return current, true
}

// GetNestedString returns the value at path when it is a non-empty string
func GetNestedString(m map[string]interface{}, path string) (string, bool) {
	v, ok := GetNestedValue(m, path)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok && s != ""
}

// SetNestedValue sets value at a dot-separated path, creating intermediate maps.
func SetNestedValue(m map[string]interface{}, path string, value interface{}) error {
	parts := strings.Split(path, ".")
	current := m
	for i, part := range parts {
		if i == len(parts)-1 {
			current[part] = value
			return nil
		}
		next, ok := current[part]
		if !ok || next == nil {
			child := make(map[string]interface{})
			current[part] = child
			current = child
			continue
		}
		child, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("path %q: %q is %T, not a mapping", path, strings.Join(parts[:i+1], "."), next)
		}
		current = child
	}
	return nil
}

// DeleteNestedValue removes the value at a dot-separated path. Empty parent
// mappings are left in place.
func DeleteNestedValue(m map[string]interface{}, path string) {
	parts := strings.Split(path, ".")
	current := m
	for i, part := range parts {
		if i == len(parts)-1 {
			delete(current, part)
			return
		}
		child, ok := current[part].(map[string]interface{})
		if !ok {
			return
		}
		current = child
	}
}

// SortedKeys returns the keys of m in lexical order
func SortedKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
