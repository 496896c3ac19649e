package evaluators

import (
	"fmt"

	"github.com/cuilabs/aios/pkg/gate"
)

const (
	// MinPassRate is the integration threshold key.
	MinPassRate = "min_pass_rate"
	// DefaultMinPassRate is the minimum fraction of passing integration tests.
	DefaultMinPassRate = 0.80
)

// Integration fails on an empty suite or a pass rate below the threshold.
// Reads {summary: {total, passed, failed}}.
func Integration(a *gate.Artifact, s gate.Spec) (gate.Verdict, error) {
	if a == nil {
		return absent(s, "Integration test"), nil
	}
	total, err := number(a, "summary", "total")
	if err != nil {
		return gate.Verdict{}, err
	}
	passed, err := number(a, "summary", "passed")
	if err != nil {
		return gate.Verdict{}, err
	}

	// Checked before computing a rate.
	if total <= 0 {
		return gate.Fail(s.Name, "No integration tests run"), nil
	}

	threshold := s.Threshold(MinPassRate, DefaultMinPassRate)
	rate := passed / total
	if rate < threshold {
		return gate.Fail(s.Name, fmt.Sprintf("Integration pass rate too low: %s (required: %s)",
			pct(rate), pct(threshold))), nil
	}
	return gate.Pass(s.Name, fmt.Sprintf("Integration tests passed: %s/%s (%s, required: %s)",
		num(passed), num(total), pct(rate), pct(threshold))), nil
}
