// Package validator coerces loosely-typed task arguments against a
// descriptor's parameter schema and enforces its cross-field constraints.
// It runs to completion before any controller call is made.
package validator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/internal/descriptor"
	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
	"github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/utils"
)

// Task is a validated task invocation
type Task struct {
	Descriptor *descriptor.Descriptor
	Mode       descriptor.Mode
	// State is the declared state; StateQuery for reads
	State string
	// Args is the canonical argument mapping: controller key casing, no
	// ambient fields, absent optional keys omitted
	Args map[string]interface{}
}

// Direction returns present, absent or query
func (t *Task) Direction() string {
	return descriptor.Direction(t.State)
}

// ValidateTask validates the raw task mapping for d. Ambient keys are
// dropped, state is checked against the descriptor and the remaining
// arguments are canonicalized. All problems are returned together as a
// *errors.ValidationErrors.
func ValidateTask(d *descriptor.Descriptor, mode descriptor.Mode, state string, raw map[string]interface{}) (*Task, error) {
	if d == nil {
		return nil, apperrors.NewTaskError(apperrors.KindInternal, "no descriptor for task")
	}
	errs := &apperrors.ValidationErrors{}

	args, _ := SplitAmbient(raw)
	task := &Task{Descriptor: d, Mode: mode}

	params, constraints := d.Parameters, d.Constraints
	if mode == descriptor.ModeRead {
		task.State = descriptor.StateQuery
		op := d.Operation(descriptor.OpGet)
		if op == nil {
			return nil, apperrors.NewTaskError(apperrors.KindUnsupported, "%s does not support reads", d.Title())
		}
		params, constraints = op.Parameters, op.Constraints
	} else {
		resolved, err := ResolveState(d, state)
		if err != nil {
			errs.Add("state", err.Error())
		}
		task.State = resolved
	}

	v := &argValidator{errs: errs}
	task.Args = v.validateLevel("", params, constraints, args)

	if task.State != "" && mode != descriptor.ModeRead {
		checkRequiredForState(errs, d, task.State, task.Args)
	}

	if err := errs.OrNil(); err != nil {
		return nil, err
	}
	return task, nil
}

// ValidateArgs validates raw against one parameter schema level
func ValidateArgs(params []descriptor.Parameter, constraints descriptor.Constraints, raw map[string]interface{}) (map[string]interface{}, error) {
	v := &argValidator{errs: &apperrors.ValidationErrors{}}
	out := v.validateLevel("", params, constraints, raw)
	if err := v.errs.OrNil(); err != nil {
		return nil, err
	}
	return out, nil
}

// ResolveState applies the default state and rejects states the descriptor
// does not declare.
func ResolveState(d *descriptor.Descriptor, state string) (string, error) {
	if state == "" {
		return d.DefaultState(), nil
	}
	if !d.AllowsState(state) {
		return "", fmt.Errorf("value of state must be one of: %s, got: %s", strings.Join(d.States, ", "), state)
	}
	return state, nil
}

func checkRequiredForState(errs *apperrors.ValidationErrors, d *descriptor.Descriptor, state string, args map[string]interface{}) {
	var missing []string
	for _, p := range d.RequiredForState[state] {
		if _, ok := utils.GetNestedValue(args, p); !ok {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		errs.Addf("", "state is %s but all of the following are missing: %s", state, strings.Join(missing, ", "))
	}
}

// -----------------------------------------------------------------------------
// Schema walk
// -----------------------------------------------------------------------------

type argValidator struct {
	errs *apperrors.ValidationErrors
}

func joinPath(parent, key string) string {
	if parent == "" {
		return key
	}
	return parent + "." + key
}

// validateLevel validates one mapping against sibling parameters and returns
// it keyed by canonical keys.
func (v *argValidator) validateLevel(path string, params []descriptor.Parameter, constraints descriptor.Constraints, raw map[string]interface{}) map[string]interface{} {
	supplied := v.resolveKeys(path, params, raw)

	out := make(map[string]interface{}, len(supplied))
	named := make(map[string]interface{}, len(supplied))
	for i := range params {
		p := &params[i]
		value, ok := supplied[p.Name]
		if !ok {
			continue
		}
		coerced, ok := v.coerce(joinPath(path, p.Name), p, value)
		if !ok {
			continue
		}
		out[p.Key()] = coerced
		named[p.Name] = coerced
	}

	v.checkConstraints(path, params, constraints, named)

	for i := range params {
		p := &params[i]
		if _, ok := named[p.Name]; ok {
			continue
		}
		if _, failed := supplied[p.Name]; failed {
			// Coercion already reported
			continue
		}
		if p.Default != nil {
			if coerced, ok := v.coerce(joinPath(path, p.Name), p, p.Default); ok {
				out[p.Key()] = coerced
				named[p.Name] = coerced
			}
			continue
		}
		if p.Required {
			v.errs.Add(joinPath(path, p.Name), "missing required argument")
		}
	}
	return out
}

// resolveKeys maps raw keys (names or aliases) to parameter names. Unknown
// keys are reported; null values count as absent.
func (v *argValidator) resolveKeys(path string, params []descriptor.Parameter, raw map[string]interface{}) map[string]interface{} {
	index := make(map[string]*descriptor.Parameter, len(params))
	for i := range params {
		p := &params[i]
		index[p.Name] = p
		for _, alias := range p.Aliases {
			index[alias] = p
		}
	}

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	supplied := make(map[string]interface{}, len(raw))
	via := make(map[string]string, len(raw))
	for _, key := range keys {
		p, ok := index[key]
		if !ok {
			v.errs.Add(joinPath(path, key), "unsupported parameter")
			continue
		}
		value := raw[key]
		if value == nil {
			continue
		}
		if first, dup := via[p.Name]; dup {
			v.errs.Addf(joinPath(path, key), "conflicts with %s; both name %s", joinPath(path, first), p.Name)
			continue
		}
		via[p.Name] = key
		supplied[p.Name] = value
	}
	return supplied
}

// -----------------------------------------------------------------------------
// Type coercion
// -----------------------------------------------------------------------------

func (v *argValidator) coerce(path string, p *descriptor.Parameter, value interface{}) (interface{}, bool) {
	switch p.Type {
	case descriptor.TypeString:
		s, err := utils.ConvertToString(value)
		if err != nil {
			v.errs.Addf(path, "must be a string: %v", err)
			return nil, false
		}
		return s, true

	case descriptor.TypeInt:
		n, err := utils.ConvertToInt64(value)
		if err != nil {
			v.errs.Addf(path, "must be an integer: %v", err)
			return nil, false
		}
		return n, true

	case descriptor.TypeFloat:
		f, err := utils.ConvertToFloat64(value)
		if err != nil {
			v.errs.Addf(path, "must be a number: %v", err)
			return nil, false
		}
		return f, true

	case descriptor.TypeBool:
		b, err := utils.ConvertToBool(value)
		if err != nil {
			v.errs.Addf(path, "must be a boolean: %v", err)
			return nil, false
		}
		return b, true

	case descriptor.TypeEnum:
		return v.coerceEnum(path, p, value)

	case descriptor.TypeList:
		return v.coerceList(path, p, value)

	case descriptor.TypeDict:
		m, ok := utils.NormalizeKeys(value).(map[string]interface{})
		if !ok {
			v.errs.Addf(path, "must be a mapping, got %s", describe(value))
			return nil, false
		}
		if len(p.Options) == 0 {
			copied, err := utils.DeepCopyMap(m)
			if err != nil {
				v.errs.Addf(path, "cannot copy mapping: %v", err)
				return nil, false
			}
			return copied, true
		}
		return v.validateLevel(path, p.Options, p.Constraints, m), true

	case descriptor.TypeRaw, "":
		copied, err := utils.DeepCopy(utils.NormalizeKeys(value))
		if err != nil {
			v.errs.Addf(path, "cannot copy value: %v", err)
			return nil, false
		}
		return copied, true
	}

	v.errs.Addf(path, "unknown parameter type %q", p.Type)
	return nil, false
}

func (v *argValidator) coerceEnum(path string, p *descriptor.Parameter, value interface{}) (interface{}, bool) {
	s, err := utils.ConvertToString(value)
	if err != nil {
		v.errs.Addf(path, "must be one of: %s, got %s", strings.Join(p.Choices, ", "), describe(value))
		return nil, false
	}
	for _, choice := range p.Choices {
		if s == choice || (p.CaseInsensitive && strings.EqualFold(s, choice)) {
			return choice, true
		}
	}
	v.errs.Addf(path, "value must be one of: %s, got: %s", strings.Join(p.Choices, ", "), s)
	return nil, false
}

func (v *argValidator) coerceList(path string, p *descriptor.Parameter, value interface{}) (interface{}, bool) {
	var items []interface{}
	switch typed := value.(type) {
	case []interface{}:
		items = typed
	case []string:
		for _, s := range typed {
			items = append(items, s)
		}
	case []map[string]interface{}:
		for _, m := range typed {
			items = append(items, m)
		}
	case string:
		// Comma-separated scalars are accepted for lists of scalars
		if p.Elements == descriptor.TypeDict {
			v.errs.Addf(path, "must be a list of mappings, got string")
			return nil, false
		}
		for _, part := range strings.Split(typed, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
	default:
		v.errs.Addf(path, "must be a list, got %s", describe(value))
		return nil, false
	}

	out := make([]interface{}, 0, len(items))
	if p.Elements == "" {
		for _, item := range items {
			out = append(out, utils.NormalizeKeys(item))
		}
		return out, true
	}

	element := descriptor.Parameter{
		Name:            p.Name,
		Type:            p.Elements,
		Choices:         p.Choices,
		CaseInsensitive: p.CaseInsensitive,
		Options:         p.Options,
		Constraints:     p.Constraints,
	}
	ok := true
	for i, item := range items {
		itemPath := fmt.Sprintf("%s[%d]", path, i)
		if item == nil {
			v.errs.Add(itemPath, "must not be null")
			ok = false
			continue
		}
		coerced, itemOK := v.coerce(itemPath, &element, item)
		if !itemOK {
			ok = false
			continue
		}
		out = append(out, coerced)
	}
	return out, ok
}

func describe(value interface{}) string {
	switch value.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		return "mapping"
	case []interface{}:
		return "list"
	case string:
		return "string"
	case bool:
		return "bool"
	case nil:
		return "null"
	}
	return fmt.Sprintf("%T", value)
}
