package evaluators

import (
	"fmt"

	"github.com/cuilabs/aios/pkg/gate"
)

const (
	// MinAccuracy is the model-quality threshold key.
	MinAccuracy = "min_accuracy"
	// DefaultMinAccuracy is the minimum model accuracy.
	DefaultMinAccuracy = 0.90
)

// Models fails when accuracy is below the threshold.
func Models(a *gate.Artifact, s gate.Spec) (gate.Verdict, error) {
	if a == nil {
		return absent(s, "Model validation"), nil
	}
	accuracy, err := number(a, "accuracy")
	if err != nil {
		return gate.Verdict{}, err
	}

	threshold := s.Threshold(MinAccuracy, DefaultMinAccuracy)
	if accuracy < threshold {
		return gate.Fail(s.Name, fmt.Sprintf("Model accuracy too low: %s (required: %s)",
			pct(accuracy), pct(threshold))), nil
	}
	return gate.Pass(s.Name, fmt.Sprintf("Model validation passed: accuracy %s (required: %s)",
		pct(accuracy), pct(threshold))), nil
}
