// Package diff compares a desired record against an observed one under the
// comparison rules of a resource descriptor. Every function is pure: inputs
// are deep-copied before normalization and never mutated.
package diff

import (
	"fmt"
	"sort"
	"strings"

	"dario.cat/mergo"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// ActionType is the outcome of a comparison
type ActionType string

const (
	ActionNone    ActionType = "NONE"
	ActionUpdate  ActionType = "UPDATE"
	ActionCreate  ActionType = "CREATE"
	ActionReplace ActionType = "REPLACE"
)

// Change is one differing comparable field
type Change struct {
	Path   string      `json:"path" yaml:"path"`
	Before interface{} `json:"before" yaml:"before"`
	After  interface{} `json:"after" yaml:"after"`
}

// MemberChanges are the per-member sets of a member-wise list, by member key
type MemberChanges struct {
	Added   []string `json:"added,omitempty" yaml:"added,omitempty"`
	Updated []string `json:"updated,omitempty" yaml:"updated,omitempty"`
	Removed []string `json:"removed,omitempty" yaml:"removed,omitempty"`
}

// IsZero reports whether no member changed
func (m *MemberChanges) IsZero() bool {
	return len(m.Added) == 0 && len(m.Updated) == 0 && len(m.Removed) == 0
}

// Result is the action decided for one resource
type Result struct {
	Action ActionType
	// Changes are the differing fields in path order
	Changes []Change
	// Delta maps every differing path to the value to send
	Delta map[string]interface{}
	// Members holds the member-wise sets of changed lists
	Members map[string]*MemberChanges
	// Immutable lists the differing immutable paths
	Immutable []string
}

// Changed reports whether the action changes the controller
func (r *Result) Changed() bool {
	return r.Action != ActionNone
}

// Paths returns the differing paths, or nil when nothing differs
func (r *Result) Paths() []string {
	var paths []string
	for _, c := range r.Changes {
		paths = append(paths, c.Path)
	}
	return paths
}

// Compute decides the action converging observed to desired. A nil observed
// record yields CREATE. observed must already be projected into the desired
// shape (see Project).
//
// When an immutable field differs and the descriptor forbids replacement,
// the REPLACE result is returned together with an immutable_violation error.
func Compute(observed, desired map[string]interface{}, d *descriptor.Descriptor) (*Result, error) {
	if d == nil {
		return nil, apperrors.NewTaskError(apperrors.KindInternal, "diff called without a descriptor")
	}
	desiredCopy, err := utils.DeepCopyMap(desired)
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot copy desired record: %v", err)
	}
	if desiredCopy == nil {
		desiredCopy = map[string]interface{}{}
	}
	if observed == nil {
		return &Result{Action: ActionCreate, Delta: desiredCopy}, nil
	}
	observedCopy, err := utils.DeepCopyMap(observed)
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot copy observed record: %v", err)
	}

	result := &Result{Action: ActionNone, Delta: map[string]interface{}{}}
	paths := append([]string(nil), d.Comparable...)
	sort.Strings(paths)

	for _, path := range paths {
		desiredValue, ok := utils.GetNestedValue(desiredCopy, path)
		if !ok || desiredValue == nil {
			// Fields the user did not declare are left as they are
			continue
		}
		observedValue, observedOK := utils.GetNestedValue(observedCopy, path)

		rule := listRule(d, path)
		var (
			differs bool
			after   interface{}
		)
		switch {
		case d.IsWriteOnly(path):
			differs, after = true, desiredValue
		case rule != nil && rule.Memberwise:
			members, merged, err := compareMembers(observedValue, desiredValue, rule)
			if err != nil {
				return nil, fmt.Errorf("failed to merge members of %s: %w", path, err)
			}
			if !members.IsZero() {
				if result.Members == nil {
					result.Members = map[string]*MemberChanges{}
				}
				result.Members[path] = members
				differs, after = true, merged
			}
		default:
			differs = !equalValues(observedValue, observedOK, desiredValue, rule, d.IsAbsentMeansEmpty(path))
			after = canonicalList(desiredValue, rule)
		}
		if !differs {
			continue
		}

		if err := utils.SetNestedValue(result.Delta, path, after); err != nil {
			return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot build delta: %v", err)
		}
		result.Changes = append(result.Changes, Change{
			Path:   path,
			Before: mask(d, path, canonicalList(observedValue, rule)),
			After:  mask(d, path, after),
		})
		if d.IsImmutable(path) {
			result.Immutable = append(result.Immutable, path)
		}
	}

	switch {
	case len(result.Immutable) > 0:
		result.Action = ActionReplace
		if !d.AllowReplace {
			return result, apperrors.NewTaskError(apperrors.KindImmutableViolation,
				"cannot change immutable field(s) %s of %s; delete and recreate it instead",
				strings.Join(result.Immutable, ", "), d.Title())
		}
	case len(result.Changes) > 0:
		result.Action = ActionUpdate
	}
	return result, nil
}

// equalValues compares one comparable field after normalization
func equalValues(observed interface{}, observedOK bool, desired interface{}, rule *descriptor.ListMember, absentMeansEmpty bool) bool {
	if !observedOK || observed == nil {
		if absentMeansEmpty && isEmptyList(desired) {
			return true
		}
		return false
	}
	return covers(normalize(observed, rule), normalize(desired, rule))
}

// compareMembers computes the member-wise sets of a keyed list and the
// merged list to send. Observed members missing from the desired list are
// kept unless the rule purges them.
func compareMembers(observed, desired interface{}, rule *descriptor.ListMember) (*MemberChanges, interface{}, error) {
	changes := &MemberChanges{}
	desiredItems, _ := desired.([]interface{})
	observedItems, _ := observed.([]interface{})

	observedByKey := make(map[string]map[string]interface{}, len(observedItems))
	for _, item := range observedItems {
		if m, ok := item.(map[string]interface{}); ok {
			observedByKey[sortKey(m, rule)] = m
		}
	}

	desiredKeys := make(map[string]bool, len(desiredItems))
	merged := make([]interface{}, 0, len(desiredItems)+len(observedItems))
	for _, item := range desiredItems {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		key := sortKey(m, rule)
		desiredKeys[key] = true
		current, exists := observedByKey[key]
		switch {
		case !exists:
			changes.Added = append(changes.Added, key)
			merged = append(merged, m)
		case !covers(normalize(current, nil), normalize(m, nil)):
			changes.Updated = append(changes.Updated, key)
			member := utils.MustDeepCopyMap(current)
			if err := mergo.Merge(&member, m, mergo.WithOverride); err != nil {
				return nil, nil, fmt.Errorf("member %s: %w", key, err)
			}
			merged = append(merged, member)
		default:
			merged = append(merged, current)
		}
	}
	for _, item := range observedItems {
		m, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		key := sortKey(m, rule)
		if desiredKeys[key] {
			continue
		}
		if rule.Purge {
			changes.Removed = append(changes.Removed, key)
			continue
		}
		merged = append(merged, m)
	}

	sort.Strings(changes.Added)
	sort.Strings(changes.Updated)
	sort.Strings(changes.Removed)
	return changes, canonicalList(merged, &descriptor.ListMember{Key: rule.Key}), nil
}

// listRule returns the list member rule declared for path, or nil
func listRule(d *descriptor.Descriptor, path string) *descriptor.ListMember {
	rule, ok := d.ListMembers[path]
	if !ok {
		return nil
	}
	return &rule
}

// Masked replaces secret values in diffs and snapshots
const Masked = "********"

func mask(d *descriptor.Descriptor, path string, v interface{}) interface{} {
	if v == nil || !isSecret(d, path) {
		return v
	}
	return Masked
}

func isSecret(d *descriptor.Descriptor, path string) bool {
	p := descriptor.FindParameterByKeyPath(d.Parameters, path)
	return p != nil && p.NoLog
}

// MaskSecrets returns a copy of record with every no-log parameter masked
func MaskSecrets(d *descriptor.Descriptor, record map[string]interface{}) map[string]interface{} {
	if record == nil {
		return nil
	}
	out := utils.MustDeepCopyMap(record)
	maskLevel(out, d.Parameters)
	return out
}

func maskLevel(m map[string]interface{}, params []descriptor.Parameter) {
	for i := range params {
		p := &params[i]
		v, ok := m[p.Key()]
		if !ok || v == nil {
			continue
		}
		if p.NoLog {
			m[p.Key()] = Masked
			continue
		}
		switch x := v.(type) {
		case map[string]interface{}:
			maskLevel(x, p.Options)
		case []interface{}:
			for _, item := range x {
				if child, ok := item.(map[string]interface{}); ok {
					maskLevel(child, p.Options)
				}
			}
		}
	}
}

// String renders the changed paths for messages
func (r *Result) String() string {
	switch r.Action {
	case ActionNone, ActionCreate:
		return string(r.Action)
	}
	return fmt.Sprintf("%s(%s)", r.Action, strings.Join(r.Paths(), ", "))
}
