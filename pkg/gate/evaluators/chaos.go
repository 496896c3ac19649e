package evaluators

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/cuilabs/aios/pkg/gate"
)

const (
	// MaxMeanRecoveryMs is the chaos threshold key.
	MaxMeanRecoveryMs = "max_mean_recovery_ms"
	// DefaultMaxMeanRecoveryMs is the mean self-healing recovery ceiling.
	DefaultMaxMeanRecoveryMs = 5000.0
)

// Chaos passes a run with no healing events and otherwise bounds the mean
// recovery_time_ms across healing_events.
func Chaos(a *gate.Artifact, s gate.Spec) (gate.Verdict, error) {
	if a == nil {
		return absent(s, "Chaos test"), nil
	}
	events, err := list(a, "healing_events")
	if err != nil {
		return gate.Verdict{}, err
	}
	if len(events) == 0 {
		return gate.Pass(s.Name, "No healing events (system stable)"), nil
	}

	recovery := make([]float64, 0, len(events))
	for i, ev := range events {
		obj, ok := ev.(map[string]any)
		if !ok {
			return gate.Verdict{}, fmt.Errorf("healing_events[%d]: expected object, got %T", i, ev)
		}
		ms, err := number(&gate.Artifact{Data: obj}, "recovery_time_ms")
		if err != nil {
			return gate.Verdict{}, fmt.Errorf("healing_events[%d]: %w", i, err)
		}
		recovery = append(recovery, ms)
	}

	mean := stat.Mean(recovery, nil)
	threshold := s.Threshold(MaxMeanRecoveryMs, DefaultMaxMeanRecoveryMs)
	if mean > threshold {
		return gate.Fail(s.Name, fmt.Sprintf("Average recovery time too high: %sms (threshold: %sms)",
			num(round(mean, 2)), num(threshold))), nil
	}
	return gate.Pass(s.Name, fmt.Sprintf("Chaos tests passed: %d healing events, avg recovery: %sms (threshold: %sms)",
		len(events), num(round(mean, 2)), num(threshold))), nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
