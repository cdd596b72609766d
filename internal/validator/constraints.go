package validator

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// checkConstraints enforces cross-field rules over one level. named holds
// the coerced values supplied by the user, keyed by parameter name.
func (v *argValidator) checkConstraints(path string, params []descriptor.Parameter, c descriptor.Constraints, named map[string]interface{}) {
	if c.IsZero() {
		return
	}
	present := func(name string) bool {
		_, ok := lookupNamed(params, named, name)
		return ok
	}

	for _, group := range c.MutuallyExclusive {
		var set []string
		for _, name := range group {
			if present(name) {
				set = append(set, name)
			}
		}
		if len(set) > 1 {
			v.errs.Addf(path, "parameters are mutually exclusive: %s", strings.Join(group, "|"))
		}
	}

	for _, group := range c.RequiredOneOf {
		found := false
		for _, name := range group {
			if present(name) {
				found = true
				break
			}
		}
		if !found {
			v.errs.Addf(path, "one of the following is required: %s", strings.Join(group, ", "))
		}
	}

	for _, group := range c.RequiredTogether {
		count := 0
		for _, name := range group {
			if present(name) {
				count++
			}
		}
		if count > 0 && count < len(group) {
			v.errs.Addf(path, "parameters are required together: %s", strings.Join(group, ", "))
		}
	}

	var env *descriptor.ConstraintEnv
	for _, rule := range c.RequiredIf {
		var missing []string
		for _, name := range rule.Requires {
			if !present(name) {
				missing = append(missing, name)
			}
		}
		if len(missing) == 0 {
			continue
		}

		if rule.Key != "" {
			actual, ok := lookupNamed(params, named, rule.Key)
			if !ok || !valuesEqual(actual, rule.Value) {
				continue
			}
			v.errs.Addf(path, "%s is %v but all of the following are missing: %s", rule.Key, rule.Value, strings.Join(missing, ", "))
			continue
		}

		if env == nil {
			var err error
			if env, err = descriptor.NewConstraintEnv(params); err != nil {
				v.errs.Addf(path, "failed to create expression environment: %v", err)
				return
			}
		}
		// CEL sees the same user-facing names the expression was written with
		matched, err := env.Eval(rule.Expression, named)
		if err != nil {
			v.errs.Add(path, err.Error())
			continue
		}
		if matched {
			v.errs.Addf(path, "%s but all of the following are missing: %s", rule.Expression, strings.Join(missing, ", "))
		}
	}
}

// lookupNamed resolves a user-facing, possibly dotted, parameter name. The
// first segment is looked up by name; nested segments by canonical key.
func lookupNamed(params []descriptor.Parameter, named map[string]interface{}, name string) (interface{}, bool) {
	head, rest, nested := strings.Cut(name, ".")
	p := descriptor.FindParameter(params, head)
	if p == nil {
		return nil, false
	}
	value, ok := named[p.Name]
	if !ok || !nested {
		return value, ok
	}
	m, ok := value.(map[string]interface{})
	if !ok {
		return nil, false
	}
	return utils.GetNestedValue(m, keyPath(p.Options, rest))
}

// keyPath translates a dotted user-facing name into canonical keys
func keyPath(params []descriptor.Parameter, name string) string {
	parts := strings.Split(name, ".")
	keys := make([]string, 0, len(parts))
	current := params
	for _, part := range parts {
		p := descriptor.FindParameter(current, part)
		if p == nil {
			keys = append(keys, part)
			current = nil
			continue
		}
		keys = append(keys, p.Key())
		current = p.Options
	}
	return strings.Join(keys, ".")
}

// valuesEqual compares a coerced value with a descriptor literal. YAML
// decodes literals as int, float64, bool or string.
func valuesEqual(actual, expected interface{}) bool {
	if reflect.DeepEqual(actual, expected) {
		return true
	}
	if af, err := utils.ConvertToFloat64(actual); err == nil {
		if ef, err := utils.ConvertToFloat64(expected); err == nil {
			return af == ef
		}
	}
	return fmt.Sprint(actual) == fmt.Sprint(expected)
}
