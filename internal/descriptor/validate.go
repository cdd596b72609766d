package descriptor

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

var (
	structValidatorOnce sync.Once
	structValidator     *validator.Validate
)

func getStructValidator() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Report YAML key names instead of Go field names
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" || name == "" {
				return field.Name
			}
			return name
		})
		structValidator = v
	})
	return structValidator
}

// Validate checks d structurally and semantically. All problems are
// reported together as *errors.ValidationErrors.
func Validate(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("descriptor is nil")
	}
	errs := &apperrors.ValidationErrors{}

	if err := getStructValidator().Struct(d); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("descriptor %s: %w", d.Name, err)
		}
		for _, fe := range fieldErrs {
			errs.Add(trimNamespace(fe.Namespace()), describeFieldError(fe))
		}
		// Semantic checks assume a structurally sound descriptor
		return errs
	}

	sv := &semanticValidator{d: d, errs: errs}
	sv.validate()
	return errs.OrNil()
}

func trimNamespace(ns string) string {
	if i := strings.IndexByte(ns, '.'); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "oneof":
		return fmt.Sprintf("must be one of [%s], got %v", fe.Param(), fe.Value())
	case "min":
		return fmt.Sprintf("must have at least %s element(s)", fe.Param())
	case "startswith":
		return fmt.Sprintf("must start with %q", fe.Param())
	default:
		return fmt.Sprintf("failed %q validation", fe.Tag())
	}
}

type semanticValidator struct {
	d    *Descriptor
	errs *apperrors.ValidationErrors
}

func (v *semanticValidator) validate() {
	v.validateOperations()
	v.validateStates()
	v.validateParameters("parameters", v.d.Parameters, v.d.Constraints)
	for kind, op := range v.d.Operations {
		v.validateParameters(fmt.Sprintf("operations.%s.parameters", kind), op.Parameters, op.Constraints)
	}
	v.validatePaths()
	v.validateVersionHint()
}

func (v *semanticValidator) validateOperations() {
	for kind, op := range v.d.Operations {
		if kind == OpGet && op.Method != "GET" {
			v.errs.Addf("operations.get.method", "must be GET, got %s", op.Method)
		}
		for i, variant := range op.Variants {
			if _, err := semver.NewConstraint(variant.Version); err != nil {
				v.errs.Addf(fmt.Sprintf("operations.%s.variants[%d].version", kind, i), "invalid constraint %q: %v", variant.Version, err)
			}
		}
		if op.Paging != nil && op.Method != "GET" {
			v.errs.Addf(fmt.Sprintf("operations.%s.paging", kind), "paging requires a GET operation")
		}
	}
}

func (v *semanticValidator) validateStates() {
	if v.d.IsReadOnly() {
		if v.d.Operation(OpGet) == nil {
			v.errs.Add("operations", "a query-only resource requires a get operation")
		}
		return
	}
	for _, state := range v.d.States {
		switch Direction(state) {
		case StatePresent:
			for _, kind := range []string{OpGet, OpPost} {
				if v.d.Operation(kind) == nil {
					v.errs.Addf("operations", "state %q requires a %s operation", state, kind)
				}
			}
		case StateAbsent:
			for _, kind := range []string{OpGet, OpDelete} {
				if v.d.Operation(kind) == nil {
					v.errs.Addf("operations", "state %q requires a %s operation", state, kind)
				}
			}
		}
	}
	for state := range v.d.RequiredForState {
		if !v.d.AllowsState(state) {
			v.errs.Addf("requiredForState."+state, "state is not one of %v", v.d.States)
		}
	}
	if v.d.Identity.Name == "" && len(v.d.Identity.Lookup) == 0 && v.d.Hooks == "" {
		v.errs.Add("identity", "name or lookup is required for a reconciled resource")
	}
}

func (v *semanticValidator) validateParameters(path string, params []Parameter, constraints Constraints) {
	seen := make(map[string]bool, len(params))
	for i, p := range params {
		pPath := fmt.Sprintf("%s[%d]", path, i)
		if seen[p.Name] {
			v.errs.Addf(pPath+".name", "duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true
		for _, alias := range p.Aliases {
			seen[alias] = true
		}
		if p.Type == TypeEnum && len(p.Choices) == 0 {
			v.errs.Add(pPath+".choices", "an enum requires choices")
		}
		if p.Type == TypeList && p.Elements == TypeDict && len(p.Options) == 0 {
			v.errs.Add(pPath+".options", "a list of dicts requires options")
		}
		if len(p.Options) > 0 {
			v.validateParameters(pPath+".options", p.Options, p.Constraints)
		}
	}
	v.validateConstraints(path, params, constraints)
}

func (v *semanticValidator) validateConstraints(path string, params []Parameter, c Constraints) {
	if c.IsZero() {
		return
	}
	check := func(where string, names []string) {
		for _, name := range names {
			if FindParameter(params, name) == nil {
				v.errs.Addf(where, "references unknown parameter %q", name)
			}
		}
	}
	var env *ConstraintEnv
	for i, rule := range c.RequiredIf {
		where := fmt.Sprintf("%s.constraints.requiredIf[%d]", path, i)
		switch {
		case rule.Key != "" && rule.Expression != "":
			v.errs.Add(where, "key and expression are mutually exclusive")
		case rule.Key == "" && rule.Expression == "":
			v.errs.Add(where, "key or expression is required")
		case rule.Key != "":
			check(where+".key", []string{rule.Key})
		default:
			if env == nil {
				var err error
				if env, err = NewConstraintEnv(params); err != nil {
					v.errs.Addf(where, "failed to create expression environment: %v", err)
					continue
				}
			}
			if _, err := env.Compile(rule.Expression); err != nil {
				v.errs.Add(where+".expression", err.Error())
			}
		}
		check(where+".requires", rule.Requires)
	}
	for i, group := range c.RequiredOneOf {
		check(fmt.Sprintf("%s.constraints.requiredOneOf[%d]", path, i), group)
	}
	for i, group := range c.MutuallyExclusive {
		check(fmt.Sprintf("%s.constraints.mutuallyExclusive[%d]", path, i), group)
	}
	for i, group := range c.RequiredTogether {
		check(fmt.Sprintf("%s.constraints.requiredTogether[%d]", path, i), group)
	}
}

func (v *semanticValidator) validatePaths() {
	check := func(where string, paths []string) {
		for _, p := range paths {
			if FindParameterByKeyPath(v.d.Parameters, p) == nil {
				v.errs.Addf(where, "references unknown field %q", p)
			}
		}
	}
	check("comparable", v.d.Comparable)
	check("immutable", v.d.Immutable)
	check("writeOnly", v.d.WriteOnly)
	check("absentMeansEmpty", v.d.AbsentMeansEmpty)
	check("body.updateBase", v.d.Body.UpdateBase)
	check("body.omit", v.d.Body.Omit)
	check("identity.match", v.d.Identity.Match)
	if v.d.Identity.Name != "" {
		check("identity.name", []string{v.d.Identity.Name})
	}
	for param, p := range v.d.Identity.Lookup {
		check("identity.lookup."+param, []string{p})
	}
	for state, fields := range v.d.RequiredForState {
		check("requiredForState."+state, fields)
	}
	for p, rule := range v.d.ListMembers {
		param := FindParameterByKeyPath(v.d.Parameters, p)
		if param == nil {
			v.errs.Addf("listMembers", "references unknown field %q", p)
			continue
		}
		if param.Type != TypeList {
			v.errs.Addf("listMembers."+p, "field is %s, not list", param.Type)
		}
		if rule.Memberwise && rule.Key == "" {
			v.errs.Add("listMembers."+p, "memberwise lists require a key")
		}
		if rule.Key != "" && FindParameterByKeyPath(param.Options, rule.Key) == nil {
			v.errs.Addf("listMembers."+p+".key", "references unknown member field %q", rule.Key)
		}
	}
	for _, p := range v.d.Immutable {
		if !containsString(v.d.Comparable, p) {
			v.errs.Addf("immutable", "field %q must also be comparable", p)
		}
	}
}

func (v *semanticValidator) validateVersionHint() {
	for i, rule := range v.d.VersionHint.StatusSynonyms {
		if _, err := semver.NewConstraint(rule.Version); err != nil {
			v.errs.Addf(fmt.Sprintf("versionHint.statusSynonyms[%d].version", i), "invalid constraint %q: %v", rule.Version, err)
		}
	}
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// FindParameter returns the parameter for a user-facing name or alias.
// Dotted names descend into Options.
func FindParameter(params []Parameter, name string) *Parameter {
	head, rest, nested := strings.Cut(name, ".")
	for i := range params {
		p := &params[i]
		if p.Name != head && !containsString(p.Aliases, head) {
			continue
		}
		if !nested {
			return p
		}
		return FindParameter(p.Options, rest)
	}
	return nil
}

// FindParameterByKeyPath returns the parameter for a canonical key path
// such as "site.area.parentName".
func FindParameterByKeyPath(params []Parameter, path string) *Parameter {
	head, rest, nested := strings.Cut(path, ".")
	for i := range params {
		p := &params[i]
		if p.Key() != head {
			continue
		}
		if !nested {
			return p
		}
		return FindParameterByKeyPath(p.Options, rest)
	}
	return nil
}
