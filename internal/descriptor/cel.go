package descriptor

import (
	"fmt"

	"github.com/google/cel-go/cel"

	apperrors "github.com/cisco-en-programmability/dnacenter-ansible-sub018/pkg/errors"
)

// ConstraintEnv compiles and evaluates requiredIf expressions over one
// level of sibling parameters.
type ConstraintEnv struct {
	env   *cel.Env
	names []string
}

// NewConstraintEnv declares every parameter name as a dynamic CEL variable.
func NewConstraintEnv(params []Parameter) (*ConstraintEnv, error) {
	options := make([]cel.EnvOption, 0, len(params)+1)
	// Optional chaining (site.?area.?name) keeps expressions safe on absent keys
	options = append(options, cel.OptionalTypes())

	names := make([]string, 0, len(params))
	for _, p := range params {
		options = append(options, cel.Variable(p.Name, cel.DynType))
		names = append(names, p.Name)
	}

	env, err := cel.NewEnv(options...)
	if err != nil {
		return nil, err
	}
	return &ConstraintEnv{env: env, names: names}, nil
}

// Compile parses and checks expr
func (e *ConstraintEnv) Compile(expr string) (cel.Program, error) {
	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, apperrors.NewCELParseError(expr, issues.Err())
	}
	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, apperrors.NewCELProgramError(expr, err)
	}
	return prg, nil
}

// Eval compiles expr and evaluates it against values. Declared parameters
// missing from values are bound to null.
func (e *ConstraintEnv) Eval(expr string, values map[string]interface{}) (bool, error) {
	prg, err := e.Compile(expr)
	if err != nil {
		return false, err
	}
	activation := make(map[string]interface{}, len(e.names))
	for _, name := range e.names {
		activation[name] = values[name]
	}
	out, _, err := prg.Eval(activation)
	if err != nil {
		return false, apperrors.NewCELEvalError(expr, err)
	}
	b, ok := out.Value().(bool)
	if !ok {
		return false, apperrors.NewCELResultError(expr, fmt.Sprintf("%T", out.Value()))
	}
	return b, nil
}
