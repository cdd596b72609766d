package diff

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/go-cmp/cmp"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// normalize returns the comparable form of v: strings trimmed, numbers as
// float64, nested mappings and sequences normalized recursively. Sequences
// with a list member rule are sorted into canonical order.
func normalize(v interface{}, rule *descriptor.ListMember) interface{} {
	switch x := v.(type) {
	case string:
		return strings.TrimSpace(x)
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		f, err := utils.ConvertToFloat64(x)
		if err != nil {
			return x
		}
		return f
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, item := range x {
			out[k] = normalize(item, nil)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = normalize(item, nil)
		}
		if rule != nil {
			sortCanonical(out, rule)
		}
		return out
	case []string:
		out := make([]interface{}, len(x))
		for i, item := range x {
			out[i] = strings.TrimSpace(item)
		}
		if rule != nil {
			sortCanonical(out, rule)
		}
		return out
	}
	return v
}

// sortCanonical orders a normalized list by the rule's key, or by value for
// sets. Lists with neither keep user order.
func sortCanonical(items []interface{}, rule *descriptor.ListMember) {
	if rule.Key == "" && !rule.Set {
		return
	}
	sort.SliceStable(items, func(i, j int) bool {
		return sortKey(items[i], rule) < sortKey(items[j], rule)
	})
}

// sortKey is the canonical ordering key of one list member
func sortKey(item interface{}, rule *descriptor.ListMember) string {
	if rule.Key != "" {
		if m, ok := item.(map[string]interface{}); ok {
			return fmt.Sprint(normalize(m[rule.Key], nil))
		}
	}
	// fmt prints maps with sorted keys
	return fmt.Sprint(normalize(item, nil))
}

// canonicalList returns a copy of a user-supplied list in canonical order
// without normalizing its members.
func canonicalList(v interface{}, rule *descriptor.ListMember) interface{} {
	items, ok := v.([]interface{})
	if !ok || rule == nil || (rule.Key == "" && !rule.Set) {
		return v
	}
	out := make([]interface{}, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool {
		return sortKey(out[i], rule) < sortKey(out[j], rule)
	})
	return out
}

// covers reports whether the normalized observed value satisfies the
// normalized desired value. Mappings compare only the keys the desired value
// declares; sequences compare member by member.
func covers(observed, desired interface{}) bool {
	switch d := desired.(type) {
	case map[string]interface{}:
		o, ok := observed.(map[string]interface{})
		if !ok {
			return len(d) == 0 && observed == nil
		}
		for k, dv := range d {
			if dv == nil {
				continue
			}
			if !covers(o[k], dv) {
				return false
			}
		}
		return true
	case []interface{}:
		o, ok := observed.([]interface{})
		if !ok {
			return len(d) == 0 && observed == nil
		}
		if len(o) != len(d) {
			return false
		}
		for i := range d {
			if !covers(o[i], d[i]) {
				return false
			}
		}
		return true
	}
	return cmp.Equal(observed, desired)
}

// isEmptyList reports a nil value or an empty sequence
func isEmptyList(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []interface{}:
		return len(x) == 0
	case []string:
		return len(x) == 0
	}
	return false
}
