package evaluators

import (
	"fmt"
	"sort"

	"golang.org/x/text/unicode/norm"

	"github.com/cuilabs/aios/pkg/config"
	"github.com/cuilabs/aios/pkg/gate"
)

// Kind describes a built-in gate kind and its defaults.
type Kind struct {
	Evaluate gate.Evaluator
	Required bool
	Input    string
}

var kinds = map[string]Kind{
	"integration": {Evaluate: Integration, Required: true, Input: "integration"},
	"performance": {Evaluate: Performance, Input: "perf"},
	"chaos":       {Evaluate: Chaos, Input: "chaos"},
	"models":      {Evaluate: Models, Input: "models"},
	"drift":       {Evaluate: Drift, Input: "models"},
	"expr":        {},
}

// Kinds returns the names of the built-in gate kinds, sorted.
func Kinds() []string {
	names := make([]string, 0, len(kinds))
	for k := range kinds {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Build creates an engine with one gate per policy entry, in policy order.
// inputs maps input keys (integration, perf, chaos, models, ...) to artifact
// locations; a gate whose input is not supplied evaluates with no artifact.
func Build(policy *config.Policy, inputs map[string]string) (*gate.Engine, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := gate.NewEngine()
	for _, g := range policy.Gates {
		spec, err := specFor(g, inputs)
		if err != nil {
			return nil, err
		}
		if err := e.Register(spec); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// DefaultEngine returns an engine with the integration, performance, chaos
// and models gates using their default thresholds.
func DefaultEngine(inputs map[string]string) (*gate.Engine, error) {
	return Build(config.DefaultPolicy(), inputs)
}

func specFor(g config.GateConfig, inputs map[string]string) (gate.Spec, error) {
	kind, ok := kinds[g.Kind]
	if !ok {
		return gate.Spec{}, fmt.Errorf("%w: gate %q has unknown kind %q", config.ErrInvalidPolicy, g.Name, g.Kind)
	}

	evaluate := kind.Evaluate
	if g.Kind == "expr" {
		var err error
		evaluate, err = NewExpr(g.Expr)
		if err != nil {
			return gate.Spec{}, fmt.Errorf("%w: gate %q: %v", config.ErrInvalidPolicy, g.Name, err)
		}
	}

	required := kind.Required
	if g.Required != nil {
		required = *g.Required
	}

	source := g.Source
	if source == "" {
		input := g.Input
		if input == "" {
			input = kind.Input
		}
		source = inputs[input]
	}

	return gate.Spec{
		Name:       norm.NFC.String(g.Name),
		Kind:       g.Kind,
		Required:   required,
		Source:     source,
		Thresholds: g.Thresholds,
		Expr:       g.Expr,
		Evaluate:   evaluate,
	}, nil
}
