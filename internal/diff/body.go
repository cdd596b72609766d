package diff

import (
	"fmt"
	"sort"

	"dario.cat/mergo"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// Project maps a raw controller record into the desired record's shape: the
// descriptor's observed root is selected and aliased fields are moved to
// their desired paths. raw is not modified.
func Project(raw map[string]interface{}, d *descriptor.Descriptor) map[string]interface{} {
	if raw == nil {
		return nil
	}
	record := utils.MustDeepCopyMap(raw)
	if d.Observed.Root != "" {
		inner, ok := utils.GetNestedValue(record, d.Observed.Root)
		m, isMap := inner.(map[string]interface{})
		if !ok || !isMap {
			return map[string]interface{}{}
		}
		record = m
	}

	desiredPaths := make([]string, 0, len(d.Aliases))
	for desiredPath := range d.Aliases {
		desiredPaths = append(desiredPaths, desiredPath)
	}
	sort.Strings(desiredPaths)
	for _, desiredPath := range desiredPaths {
		observedPath := d.AliasOf(desiredPath)
		v, ok := utils.GetNestedValue(record, observedPath)
		if !ok {
			continue
		}
		utils.DeleteNestedValue(record, observedPath)
		_ = utils.SetNestedValue(record, desiredPath, v)
	}
	return record
}

// BuildCreate returns the POST body for a desired record
func BuildCreate(d *descriptor.Descriptor, desired map[string]interface{}) (interface{}, error) {
	body, err := utils.DeepCopyMap(desired)
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot copy desired record: %v", err)
	}
	if body == nil {
		body = map[string]interface{}{}
	}
	omit(d, body)
	return wrap(d, body)
}

// BuildUpdate returns the PUT body converging observed to desired under the
// descriptor's body rules. observed is the projected record and id the
// controller-assigned key of the resource.
func BuildUpdate(d *descriptor.Descriptor, observed, desired map[string]interface{}, id string, result *Result) (interface{}, error) {
	delta := map[string]interface{}{}
	if result != nil && result.Delta != nil {
		delta = result.Delta
	}
	var body map[string]interface{}
	var err error
	if d.Body.FullUpdate {
		body, err = utils.DeepCopyMap(desired)
	} else {
		body, err = utils.DeepCopyMap(delta)
	}
	if err != nil {
		return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot copy update body: %v", err)
	}
	if body == nil {
		body = map[string]interface{}{}
	}

	// Member-wise lists and canonical ordering come from the delta
	if d.Body.FullUpdate {
		if err := mergo.Merge(&body, utils.MustDeepCopyMap(delta), mergo.WithOverride); err != nil {
			return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot merge delta: %v", err)
		}
	}

	for _, path := range d.Body.UpdateBase {
		if _, ok := utils.GetNestedValue(body, path); ok {
			continue
		}
		if v, ok := utils.GetNestedValue(desired, path); ok {
			if err := utils.SetNestedValue(body, path, v); err != nil {
				return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "update base %s: %v", path, err)
			}
		}
	}

	if d.Body.MergeObserved && observed != nil {
		merged := utils.MustDeepCopyMap(observed)
		if err := mergo.Merge(&merged, body, mergo.WithOverride); err != nil {
			return nil, apperrors.WrapTaskError(apperrors.KindInternal, err, "cannot merge observed record: %v", err)
		}
		body = merged
		// The full record goes back under the controller's field names
		for desiredPath, observedPath := range d.Aliases {
			if v, ok := utils.GetNestedValue(body, desiredPath); ok {
				utils.DeleteNestedValue(body, desiredPath)
				_ = utils.SetNestedValue(body, observedPath, v)
			}
		}
	}

	if d.Body.IDField != "" {
		if id == "" {
			return nil, apperrors.NewTaskError(apperrors.KindInternal, "%s update requires the observed %s", d.Title(), d.Identity.IDPath())
		}
		body[d.Body.IDField] = id
	}

	omit(d, body)
	return wrap(d, body)
}

func omit(d *descriptor.Descriptor, body map[string]interface{}) {
	for _, path := range d.Body.Omit {
		utils.DeleteNestedValue(body, path)
	}
}

// wrap nests body under the descriptor's body root and list wrapper
func wrap(d *descriptor.Descriptor, body map[string]interface{}) (interface{}, error) {
	var out interface{} = body
	if d.Body.List {
		out = []interface{}{body}
	}
	if d.Body.Root == "" {
		return out, nil
	}
	root := map[string]interface{}{}
	if err := utils.SetNestedValue(root, d.Body.Root, out); err != nil {
		return nil, fmt.Errorf("invalid body root %q: %w", d.Body.Root, err)
	}
	return root, nil
}

// Snapshots returns the before and after records for diff output, with
// secrets masked. before is nil when the resource does not exist, after is
// nil when it is deleted.
func Snapshots(d *descriptor.Descriptor, observed, desired map[string]interface{}, deleting bool) (before, after map[string]interface{}, err error) {
	before = MaskSecrets(d, observed)
	if deleting {
		return before, nil, nil
	}
	after = map[string]interface{}{}
	if observed != nil {
		after = utils.MustDeepCopyMap(observed)
	}
	if desired != nil {
		if err := mergo.Merge(&after, utils.MustDeepCopyMap(desired), mergo.WithOverride); err != nil {
			return nil, nil, fmt.Errorf("failed to merge snapshot: %w", err)
		}
	}
	return before, MaskSecrets(d, after), nil
}
