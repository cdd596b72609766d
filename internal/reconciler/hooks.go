package reconciler

import (
	"strings"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/diff"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// Hooks adapt the generic reconcile loop to one resource kind. The generic
// implementation interprets the descriptor; resource kinds whose records
// differ in shape from their argument schema override it.
type Hooks interface {
	// Prepare completes the desired record before lookup (inferred fields)
	Prepare(d *descriptor.Descriptor, desired map[string]interface{}) map[string]interface{}
	// Name returns the human-readable name of the desired resource
	Name(d *descriptor.Descriptor, desired map[string]interface{}) string
	// LookupParams returns the get parameters that narrow the lookup
	LookupParams(d *descriptor.Descriptor, desired map[string]interface{}) map[string]interface{}
	// Project maps a raw controller record into the desired record's shape
	Project(d *descriptor.Descriptor, raw map[string]interface{}) map[string]interface{}
	// Candidate reports whether a projected record carries the desired name
	Candidate(d *descriptor.Descriptor, desired, projected, raw map[string]interface{}) bool
	// Matches reports whether a candidate's full identity matches
	Matches(d *descriptor.Descriptor, desired, projected, raw map[string]interface{}) bool
}

// HooksFor returns the hooks selected by the descriptor
func HooksFor(d *descriptor.Descriptor) Hooks {
	switch d.Hooks {
	case "site":
		return siteHooks{}
	default:
		return genericHooks{}
	}
}

type genericHooks struct{}

func (genericHooks) Prepare(d *descriptor.Descriptor, desired map[string]interface{}) map[string]interface{} {
	return desired
}

func (genericHooks) Name(d *descriptor.Descriptor, desired map[string]interface{}) string {
	if d.Identity.Name != "" {
		if name, ok := utils.GetNestedString(desired, d.Identity.Name); ok {
			return name
		}
	}
	if id, ok := utils.GetNestedString(desired, d.Identity.IDPath()); ok {
		return id
	}
	return ""
}

func (genericHooks) LookupParams(d *descriptor.Descriptor, desired map[string]interface{}) map[string]interface{} {
	params := make(map[string]interface{}, len(d.Identity.Lookup))
	for param, path := range d.Identity.Lookup {
		if v, ok := utils.GetNestedValue(desired, path); ok && !utils.IsEmpty(v) {
			params[param] = v
		}
	}
	return params
}

func (genericHooks) Project(d *descriptor.Descriptor, raw map[string]interface{}) map[string]interface{} {
	return diff.Project(raw, d)
}

func (genericHooks) Candidate(d *descriptor.Descriptor, desired, projected, raw map[string]interface{}) bool {
	// A desired id pins the record
	if id, ok := utils.GetNestedString(desired, d.Identity.IDPath()); ok {
		observedID, _ := utils.GetNestedString(raw, d.Identity.IDPath())
		return observedID == id
	}
	if d.Identity.Name == "" {
		return true
	}
	want, ok := utils.GetNestedString(desired, d.Identity.Name)
	if !ok {
		return false
	}
	got, _ := utils.GetNestedString(projected, d.Identity.Name)
	return strings.TrimSpace(got) == strings.TrimSpace(want)
}

func (genericHooks) Matches(d *descriptor.Descriptor, desired, projected, raw map[string]interface{}) bool {
	for _, path := range d.Identity.Match {
		want, ok := utils.GetNestedValue(desired, path)
		if !ok {
			continue
		}
		got, _ := utils.GetNestedValue(projected, path)
		if !sameScalar(got, want) {
			return false
		}
	}
	return true
}

func sameScalar(a, b interface{}) bool {
	as, errA := utils.ConvertToString(a)
	bs, errB := utils.ConvertToString(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.TrimSpace(as) == strings.TrimSpace(bs)
}
