// Package gate implements the release gate engine.
//
// It evaluates a declared, ordered set of gates against release artifacts,
// isolates evaluator failures per gate, and produces an immutable Report
// whose overall verdict is the conjunction of every gate verdict.
package gate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrDuplicateGate is returned when two specs share a name.
	ErrDuplicateGate = errors.New("gate: duplicate gate name")
	// ErrInvalidSpec is returned for specs without a name or evaluator.
	ErrInvalidSpec = errors.New("gate: invalid spec")
	// ErrFieldShape is returned when a field path crosses a value that is
	// present but not an object.
	ErrFieldShape = errors.New("gate: field is not an object")
)

// Artifact is a loosely structured result document produced by an external
// tool. Numbers are decoded as json.Number.
type Artifact struct {
	Location string
	Data     map[string]any
}

// Field walks nested objects by key and returns the value at path.
// ok is false when a segment is missing or null. A segment that is present
// but not an object is an ErrFieldShape error, not a missing field.
func (a *Artifact) Field(path ...string) (v any, ok bool, err error) {
	if a == nil {
		return nil, false, nil
	}
	var cur any = a.Data
	for i, key := range path {
		if cur == nil {
			return nil, false, nil
		}
		m, isObj := cur.(map[string]any)
		if !isObj {
			return nil, false, fmt.Errorf("%w: %s is %T", ErrFieldShape, strings.Join(path[:i], "."), cur)
		}
		cur, ok = m[key]
		if !ok {
			return nil, false, nil
		}
	}
	return cur, true, nil
}

// Evaluator maps an optional artifact to a verdict. A nil artifact means the
// document is unavailable. Returning an error (or panicking) marks the gate
// as failed with an internal-error message.
type Evaluator func(a *Artifact, s Spec) (Verdict, error)

// Spec is the static configuration of one gate.
type Spec struct {
	Name       string
	Kind       string
	Required   bool
	Source     string // artifact location; empty when not supplied
	Thresholds map[string]float64
	Expr       string
	Evaluate   Evaluator
}

// Threshold returns the configured threshold for key, or def.
func (s Spec) Threshold(key string, def float64) float64 {
	if v, ok := s.Thresholds[key]; ok {
		return v
	}
	return def
}

func (s Spec) validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return errors.Join(ErrInvalidSpec, errors.New("empty name"))
	}
	if s.Evaluate == nil {
		return errors.Join(ErrInvalidSpec, errors.New("gate "+s.Name+" has no evaluator"))
	}
	return nil
}

// Verdict is the outcome of evaluating one gate.
type Verdict struct {
	Name    string `json:"-"`
	Passed  bool   `json:"passed"`
	Message string `json:"message"`
}

// Pass builds a passing verdict.
func Pass(name, message string) Verdict {
	return Verdict{Name: name, Passed: true, Message: message}
}

// Fail builds a failing verdict.
func Fail(name, message string) Verdict {
	return Verdict{Name: name, Passed: false, Message: message}
}
