package evaluators

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuilabs/aios/pkg/config"
	"github.com/cuilabs/aios/pkg/gate"
)

type mapLoader map[string]*gate.Artifact

func (m mapLoader) Load(_ context.Context, location string) *gate.Artifact {
	return m[location]
}

func TestDefaultEngine_Specs(t *testing.T) {
	e, err := DefaultEngine(map[string]string{"integration": "it.json", "perf": "perf.json"})
	require.NoError(t, err)

	specs := e.Specs()
	require.Len(t, specs, 4)
	assert.Equal(t, "integration", specs[0].Name)
	assert.True(t, specs[0].Required)
	assert.Equal(t, "it.json", specs[0].Source)
	assert.Equal(t, "performance", specs[1].Name)
	assert.False(t, specs[1].Required)
	assert.Equal(t, "perf.json", specs[1].Source)
	assert.Empty(t, specs[2].Source)
	assert.Empty(t, specs[3].Source)
}

func TestDefaultEngine_OnlyRequiredMissing(t *testing.T) {
	e, err := DefaultEngine(nil)
	require.NoError(t, err)

	report := e.Run(context.Background(), mapLoader{}, gate.RunOptions{})
	require.False(t, report.OverallPassed())
	require.Equal(t, []string{"integration"}, report.Failed())
	require.Len(t, report.Verdicts(), 4, "every configured gate appears in the report")
}

func TestDefaultEngine_AllPass(t *testing.T) {
	inputs := map[string]string{"integration": "it", "perf": "perf", "chaos": "chaos", "models": "models"}
	loader := mapLoader{
		"it":     doc(t, `{"summary":{"total":10,"passed":10}}`),
		"perf":   doc(t, `{"latency":{"p95":300}}`),
		"chaos":  doc(t, `{"healing_events":[]}`),
		"models": doc(t, `{"accuracy":0.97}`),
	}
	e, err := DefaultEngine(inputs)
	require.NoError(t, err)

	report := e.Run(context.Background(), loader, gate.RunOptions{})
	require.True(t, report.OverallPassed())
}

func TestBuild_PolicyOverrides(t *testing.T) {
	off := false
	policy := &config.Policy{Gates: []config.GateConfig{
		{Name: "integration", Kind: "integration", Required: &off},
		{Name: "drift", Kind: "drift"},
		{Name: "fast", Kind: "performance", Thresholds: map[string]float64{MaxP95LatencyMs: 200}},
		{Name: "canary", Kind: "expr", Source: "canary.json", Expr: "artifact.healthy == true"},
	}}
	e, err := Build(policy, map[string]string{"models": "m.json", "perf": "p.json"})
	require.NoError(t, err)

	specs := e.Specs()
	require.Len(t, specs, 4)
	assert.False(t, specs[0].Required)
	assert.Equal(t, "m.json", specs[1].Source, "drift reads the models input by default")
	assert.Equal(t, 200.0, specs[2].Threshold(MaxP95LatencyMs, 0))
	assert.Equal(t, "canary.json", specs[3].Source)

	loader := mapLoader{
		"p.json":      doc(t, `{"latency":{"p95":250}}`),
		"canary.json": doc(t, `{"healthy":true}`),
	}
	report := e.Run(context.Background(), loader, gate.RunOptions{})
	assert.Equal(t, []string{"fast"}, report.Failed())
}

func TestBuild_UnknownKind(t *testing.T) {
	policy := &config.Policy{Gates: []config.GateConfig{{Name: "x", Kind: "security"}}}
	_, err := Build(policy, nil)
	require.ErrorIs(t, err, config.ErrInvalidPolicy)
}

func TestBuild_BadExpression(t *testing.T) {
	policy := &config.Policy{Gates: []config.GateConfig{{Name: "x", Kind: "expr", Expr: "artifact.("}}}
	_, err := Build(policy, nil)
	require.ErrorIs(t, err, config.ErrInvalidPolicy)
}

func TestKinds(t *testing.T) {
	assert.Equal(t, []string{"chaos", "drift", "expr", "integration", "models", "performance"}, Kinds())
}

func TestDefaultEngine_WrongShapeFailsGate(t *testing.T) {
	inputs := map[string]string{"integration": "it", "perf": "perf"}
	loader := mapLoader{
		"it":   doc(t, `{"summary":{"total":10,"passed":10}}`),
		"perf": doc(t, `{"latency":[1500]}`),
	}
	e, err := DefaultEngine(inputs)
	require.NoError(t, err)

	report := e.Run(context.Background(), loader, gate.RunOptions{})
	require.False(t, report.OverallPassed())

	v, ok := report.Verdict("performance")
	require.True(t, ok)
	assert.False(t, v.Passed)
	assert.Contains(t, v.Message, "internal error evaluating performance gate")
	assert.Contains(t, v.Message, "latency")
	assert.Equal(t, []string{"performance"}, report.Failed())
}
