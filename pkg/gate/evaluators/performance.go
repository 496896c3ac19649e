package evaluators

import (
	"fmt"

	"github.com/cuilabs/aios/pkg/gate"
)

const (
	// MaxP95LatencyMs is the performance threshold key.
	MaxP95LatencyMs = "max_p95_latency_ms"
	// DefaultMaxP95LatencyMs is the P95 latency ceiling in milliseconds.
	DefaultMaxP95LatencyMs = 1000.0
)

// Performance fails when latency.p95 exceeds the ceiling. The ceiling itself passes.
func Performance(a *gate.Artifact, s gate.Spec) (gate.Verdict, error) {
	if a == nil {
		return absent(s, "Performance"), nil
	}
	p95, err := number(a, "latency", "p95")
	if err != nil {
		return gate.Verdict{}, err
	}

	threshold := s.Threshold(MaxP95LatencyMs, DefaultMaxP95LatencyMs)
	if p95 > threshold {
		return gate.Fail(s.Name, fmt.Sprintf("P95 latency too high: %sms (threshold: %sms)",
			num(p95), num(threshold))), nil
	}

	msg := fmt.Sprintf("Performance metrics acceptable (P95: %sms, threshold: %sms)", num(p95), num(threshold))
	p50, ok, err := optionalNumber(a, "latency", "p50")
	if err != nil {
		return gate.Verdict{}, err
	}
	if ok {
		msg = fmt.Sprintf("Performance metrics acceptable (P50: %sms, P95: %sms, threshold: %sms)",
			num(p50), num(p95), num(threshold))
	}
	return gate.Pass(s.Name, msg), nil
}
