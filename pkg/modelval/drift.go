package modelval

import "math"

// DriftThreshold separates normal from drifted models.
const DriftThreshold = 0.1

// Drift status values.
const (
	StatusNormal     = "normal"
	StatusDrifted    = "drifted"
	StatusNoBaseline = "no_baseline"
)

// DriftScores compares current metrics to a recorded baseline. Scores are
// nil when no baseline exists.
type DriftScores struct {
	VsBaseline    *float64 `json:"vs_baseline,omitempty"`
	Threshold     float64  `json:"threshold"`
	Status        string   `json:"status"`
	AccuracyDrift *float64 `json:"accuracy_drift,omitempty"`
	F1Drift       *float64 `json:"f1_drift,omitempty"`
}

// ComputeDrift is the mean absolute change in accuracy and F1. Metrics the
// baseline does not record count as zero.
func ComputeDrift(current EvalMetrics, baseline map[string]any) DriftScores {
	if baseline == nil {
		return DriftScores{Threshold: DriftThreshold, Status: StatusNoBaseline}
	}
	accDrift := math.Abs(current.Accuracy - metricValue(baseline, "accuracy"))
	f1Drift := math.Abs(current.F1Score - metricValue(baseline, "f1_score"))
	score := (accDrift + f1Drift) / 2

	status := StatusNormal
	if score >= DriftThreshold {
		status = StatusDrifted
	}
	return DriftScores{
		VsBaseline:    &score,
		Threshold:     DriftThreshold,
		Status:        status,
		AccuracyDrift: &accDrift,
		F1Drift:       &f1Drift,
	}
}

func metricValue(m map[string]any, key string) float64 {
	if f, ok := m[key].(float64); ok {
		return f
	}
	return 0
}
