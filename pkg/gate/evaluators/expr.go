package evaluators

import (
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/cel"

	"github.com/cuilabs/aios/pkg/gate"
)

// exprCostLimit bounds the evaluation cost of a policy expression.
const exprCostLimit = 10000

// NewExpr compiles a CEL boolean expression over the variable `artifact`
// and returns an evaluator for it. Compilation errors surface at policy load.
func NewExpr(expression string) (gate.Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable("artifact", cel.MapType(cel.StringType, cel.DynType)),
		cel.CrossTypeNumericComparisons(true),
	)
	if err != nil {
		return nil, fmt.Errorf("create CEL env: %w", err)
	}

	ast, issues := env.Compile(expression)
	if issues.Err() != nil {
		return nil, fmt.Errorf("compile %q: %w", expression, issues.Err())
	}
	if out := ast.OutputType(); !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("compile %q: expression must be boolean, got %s", expression, out)
	}

	prg, err := env.Program(ast, cel.CostLimit(exprCostLimit))
	if err != nil {
		return nil, fmt.Errorf("program %q: %w", expression, err)
	}

	return func(a *gate.Artifact, s gate.Spec) (gate.Verdict, error) {
		if a == nil {
			return absent(s, s.Name), nil
		}
		out, _, err := prg.Eval(map[string]any{"artifact": normalize(a.Data)})
		if err != nil {
			return gate.Verdict{}, fmt.Errorf("evaluate %q: %w", expression, err)
		}
		ok, isBool := out.Value().(bool)
		if !isBool {
			return gate.Verdict{}, fmt.Errorf("evaluate %q: result is %T, not bool", expression, out.Value())
		}
		if !ok {
			return gate.Fail(s.Name, fmt.Sprintf("Expression not satisfied: %s", expression)), nil
		}
		return gate.Pass(s.Name, fmt.Sprintf("Expression satisfied: %s", expression)), nil
	}, nil
}

// normalize converts json.Number leaves into int64 or float64 so CEL can
// compare them against literals.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, child := range t {
			out[k] = normalize(child)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, child := range t {
			out[i] = normalize(child)
		}
		return out
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	default:
		return v
	}
}
