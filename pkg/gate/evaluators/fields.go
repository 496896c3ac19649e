// Package evaluators provides the built-in gate kinds and the registry that
// binds a gate policy to an engine.
package evaluators

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/cuilabs/aios/pkg/gate"
)

// number reads a numeric field. A missing field reads as zero; a present
// field that is not a number is a structural error.
func number(a *gate.Artifact, path ...string) (float64, error) {
	f, _, err := optionalNumber(a, path...)
	return f, err
}

// optionalNumber is number, but reports whether a non-null value was read.
func optionalNumber(a *gate.Artifact, path ...string) (float64, bool, error) {
	v, ok, err := a.Field(path...)
	if err != nil {
		return 0, false, err
	}
	if !ok || v == nil {
		return 0, false, nil
	}
	f, err := toFloat(v, strings.Join(path, "."))
	if err != nil {
		return 0, false, err
	}
	return f, true, nil
}

func toFloat(v any, field string) (float64, error) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0, fmt.Errorf("field %s: %w", field, err)
		}
		return f, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("field %s: expected number, got %T", field, v)
	}
}

// list reads an array field. A missing field reads as empty.
func list(a *gate.Artifact, path ...string) ([]any, error) {
	v, ok, err := a.Field(path...)
	if err != nil {
		return nil, err
	}
	if !ok || v == nil {
		return nil, nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("field %s: expected array, got %T", strings.Join(path, "."), v)
	}
	return items, nil
}

// absent is the verdict for a gate whose artifact is unavailable.
func absent(s gate.Spec, label string) gate.Verdict {
	if s.Required {
		return gate.Fail(s.Name, label+" results not found")
	}
	return gate.Pass(s.Name, label+" data not available (optional)")
}

func pct(ratio float64) string {
	return fmt.Sprintf("%.1f%%", ratio*100)
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
