package reconciler

import (
	"strings"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// Site types in hierarchy order
var siteTypes = []string{"area", "building", "floor"}

// siteNumericFields are reported as strings by the v1 site API
var siteNumericFields = map[string]bool{
	"latitude":    true,
	"longitude":   true,
	"width":       true,
	"length":      true,
	"height":      true,
	"floorNumber": true,
}

// siteHooks handle the site hierarchy: a site is named by its parent path plus
// its own name, and the controller reports records either in the v1 shape
// (siteNameHierarchy plus additionalInfo namespaces) or the flat v2 shape.
type siteHooks struct {
	genericHooks
}

// siteType returns the desired type, inferring it from the site mapping
func siteType(desired map[string]interface{}) string {
	if t, ok := utils.GetNestedString(desired, "type"); ok {
		return t
	}
	for _, t := range siteTypes {
		if v, ok := utils.GetNestedValue(desired, "site."+t); ok && v != nil {
			return t
		}
	}
	return ""
}

// hierarchy returns "parentName/name" of the desired site
func hierarchy(desired map[string]interface{}) string {
	t := siteType(desired)
	if t == "" {
		return ""
	}
	name, _ := utils.GetNestedString(desired, "site."+t+".name")
	parent, _ := utils.GetNestedString(desired, "site."+t+".parentName")
	name = strings.TrimSpace(name)
	parent = strings.Trim(strings.TrimSpace(parent), "/")
	switch {
	case name == "":
		return ""
	case parent == "":
		return name
	}
	return parent + "/" + name
}

func (siteHooks) Prepare(d *descriptor.Descriptor, desired map[string]interface{}) map[string]interface{} {
	if _, ok := desired["type"]; ok {
		return desired
	}
	if t := siteType(desired); t != "" {
		out := utils.MustDeepCopyMap(desired)
		out["type"] = t
		return out
	}
	return desired
}

func (siteHooks) Name(d *descriptor.Descriptor, desired map[string]interface{}) string {
	if h := hierarchy(desired); h != "" {
		return h
	}
	id, _ := utils.GetNestedString(desired, "siteId")
	return id
}

func (siteHooks) LookupParams(d *descriptor.Descriptor, desired map[string]interface{}) map[string]interface{} {
	if id, ok := utils.GetNestedString(desired, "siteId"); ok {
		return map[string]interface{}{"siteId": id}
	}
	if h := hierarchy(desired); h != "" {
		return map[string]interface{}{"name": h}
	}
	return map[string]interface{}{}
}

// Project builds {type, site: {<type>: {...}}} from a v1 or v2 record
func (siteHooks) Project(d *descriptor.Descriptor, raw map[string]interface{}) map[string]interface{} {
	if raw == nil {
		return nil
	}
	fields := map[string]interface{}{}
	siteKind, _ := utils.GetNestedString(raw, "type")

	if info, ok := raw["additionalInfo"].([]interface{}); ok {
		for _, entry := range info {
			ns, ok := entry.(map[string]interface{})
			if !ok {
				continue
			}
			attrs, _ := ns["attributes"].(map[string]interface{})
			for k, v := range attrs {
				switch k {
				case "type":
					if siteKind == "" {
						siteKind, _ = v.(string)
					}
				case "floorIndex":
					fields["floorNumber"] = v
				case "addressInheritedFrom", "locationInheritedFrom", "countryInheritedFrom":
				default:
					fields[k] = v
				}
			}
		}
	} else {
		for _, k := range []string{"address", "latitude", "longitude", "country", "rfModel", "width", "length", "height", "floorNumber"} {
			if v, ok := raw[k]; ok && v != nil {
				fields[k] = v
			}
		}
	}

	path, _ := utils.GetNestedString(raw, "siteNameHierarchy")
	if path == "" {
		path, _ = utils.GetNestedString(raw, "nameHierarchy")
	}
	name, _ := utils.GetNestedString(raw, "name")
	parent := ""
	if i := strings.LastIndex(path, "/"); i >= 0 {
		parent = path[:i]
		if name == "" {
			name = path[i+1:]
		}
	}
	fields["name"] = name
	fields["parentName"] = parent

	for k := range fields {
		if siteNumericFields[k] {
			if f, err := utils.ConvertToFloat64(fields[k]); err == nil {
				fields[k] = f
			}
		}
	}

	projected := map[string]interface{}{}
	if siteKind != "" {
		projected["type"] = siteKind
		projected["site"] = map[string]interface{}{siteKind: fields}
	}
	return projected
}

func (siteHooks) Candidate(d *descriptor.Descriptor, desired, projected, raw map[string]interface{}) bool {
	if id, ok := utils.GetNestedString(desired, "siteId"); ok {
		observedID, _ := utils.GetNestedString(raw, "id")
		return observedID == id
	}
	want := hierarchy(desired)
	if want == "" {
		return false
	}
	return lastSegment(want) == lastSegment(observedHierarchy(projected))
}

// Matches requires the full parent path; a same-named site under another
// parent is a different site.
func (siteHooks) Matches(d *descriptor.Descriptor, desired, projected, raw map[string]interface{}) bool {
	if _, ok := utils.GetNestedString(desired, "siteId"); ok {
		return true
	}
	return strings.EqualFold(hierarchy(desired), observedHierarchy(projected))
}

func observedHierarchy(projected map[string]interface{}) string {
	t, _ := utils.GetNestedString(projected, "type")
	if t == "" {
		return ""
	}
	name, _ := utils.GetNestedString(projected, "site."+t+".name")
	parent, _ := utils.GetNestedString(projected, "site."+t+".parentName")
	if parent == "" {
		return name
	}
	return parent + "/" + name
}

func lastSegment(path string) string {
	if i := strings.LastIndex(path, "/"); i >= 0 {
		return path[i+1:]
	}
	return path
}
