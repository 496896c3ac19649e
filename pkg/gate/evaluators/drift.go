package evaluators

import (
	"fmt"

	"github.com/cuilabs/aios/pkg/gate"
)

const (
	// MaxDrift is the drift threshold key.
	MaxDrift = "max_drift"
	// DefaultMaxDrift matches the drift boundary used by validate-models.
	DefaultMaxDrift = 0.10
)

// Drift reads drift_scores.vs_baseline from a model validation report and
// fails when it reaches the threshold. A report without a baseline score is
// treated like an absent artifact.
func Drift(a *gate.Artifact, s gate.Spec) (gate.Verdict, error) {
	if a == nil {
		return absent(s, "Model drift"), nil
	}
	score, ok, err := optionalNumber(a, "drift_scores", "vs_baseline")
	if err != nil {
		return gate.Verdict{}, err
	}
	if !ok {
		if s.Required {
			return gate.Fail(s.Name, "Model drift score not recorded"), nil
		}
		return gate.Pass(s.Name, "Model drift score not recorded (optional)"), nil
	}

	threshold := s.Threshold(MaxDrift, DefaultMaxDrift)
	if score >= threshold {
		return gate.Fail(s.Name, fmt.Sprintf("Model drift too high: %s (threshold: %s)",
			num(round(score, 4)), num(threshold))), nil
	}
	return gate.Pass(s.Name, fmt.Sprintf("Model drift within bounds: %s (threshold: %s)",
		num(round(score, 4)), num(threshold))), nil
}
