package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"OTEL_EXPORTER_OTLP_ENDPOINT", "RELEASEGATE_HISTORY_DSN", "RELEASEGATE_REDIS_ADDR",
		"RELEASEGATE_SIGNING_KEY", "RELEASEGATE_SIGNING_KEY_ID", "LOG_LEVEL",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

type fixture struct {
	dir         string
	integration string
	perf        string
	chaos       string
	models      string
}

func newFixture(t *testing.T, integrationPassed int) fixture {
	t.Helper()
	dir := t.TempDir()
	return fixture{
		dir:         dir,
		integration: writeFile(t, dir, "integration.json", `{"summary":{"total":10,"passed":`+itoa(integrationPassed)+`}}`),
		perf:        writeFile(t, dir, "perf.json", `{"latency":{"p50":80,"p95":200}}`),
		chaos:       writeFile(t, dir, "chaos.json", `{"healing_events":[{"recovery_time_ms":1000},{"recovery_time_ms":2000}]}`),
		models:      writeFile(t, dir, "models.json", `{"accuracy":0.95}`),
	}
}

func itoa(n int) string {
	b, _ := json.Marshal(n)
	return string(b)
}

func (f fixture) args(extra ...string) []string {
	args := []string{"releasegate", "check",
		"--integration", f.integration,
		"--perf", f.perf,
		"--chaos", f.chaos,
		"--models", f.models,
	}
	return append(args, extra...)
}

func TestRun_NoArgs(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, Run([]string{"releasegate"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Usage: releasegate")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, Run([]string{"releasegate", "deploy"}, &stdout, &stderr))
	assert.Contains(t, stderr.String(), "Unknown command: deploy")
}

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, Run([]string{"releasegate", "help"}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "validate-models")
}

func TestCheck_AllPass(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 10)
	out := filepath.Join(f.dir, "out", "gates.json")

	var stdout, stderr bytes.Buffer
	code := Run(f.args("--output", out), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	summary := stdout.String()
	assert.Contains(t, summary, "Release Gate Check Results:")
	assert.Contains(t, summary, "✅ PASS integration: Integration tests passed: 10/10")
	assert.Contains(t, summary, "✅ PASS chaos: Chaos tests passed: 2 healing events, avg recovery: 1500ms")
	assert.Contains(t, summary, "Overall: ✅ PASSED")
	assert.Less(t, strings.Index(summary, "integration:"), strings.Index(summary, "performance:"))
	assert.Less(t, strings.Index(summary, "chaos:"), strings.Index(summary, "models:"))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, true, doc["passed"])
	assert.Len(t, doc["gates"], 4)
	assert.NotEmpty(t, doc["run_id"])
}

func TestCheck_DefaultCommandFromFlags(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 10)
	args := f.args("--output", filepath.Join(f.dir, "gates.json"))
	args = append(args[:1], args[2:]...)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 0, Run(args, &stdout, &stderr), stderr.String())
}

func TestCheck_GateFails(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 5)

	var stdout, stderr bytes.Buffer
	code := Run(f.args("--output", filepath.Join(f.dir, "gates.json")), &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "❌ FAIL integration: Integration pass rate too low: 50.0% (required: 80.0%)")
	assert.Contains(t, stdout.String(), "Overall: ❌ FAILED")
}

func TestCheck_MissingRequiredArtifact(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := Run([]string{"releasegate", "check",
		"--integration", filepath.Join(dir, "absent.json"),
		"--output", filepath.Join(dir, "gates.json"),
	}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stdout.String(), "❌ FAIL integration")
	assert.Contains(t, stdout.String(), "✅ PASS models")
}

func TestCheck_JSONOutput(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 10)

	var stdout, stderr bytes.Buffer
	code := Run(f.args("--output", filepath.Join(f.dir, "gates.json"), "--json", "--release", "1.4.0"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())

	var doc map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &doc))
	assert.Equal(t, "1.4.0", doc["release"])
}

func TestCheck_UsageErrors(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 10)
	out := filepath.Join(f.dir, "gates.json")

	cases := map[string][]string{
		"no output":   f.args(),
		"bad release": f.args("--output", out, "--release", "latest"),
		"bad input":   f.args("--output", out, "--input", "novalue"),
		"bad policy":  f.args("--output", out, "--config", filepath.Join(f.dir, "missing.yaml")),
		"bad flag":    f.args("--output", out, "--frobnicate"),
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, 2, Run(args, &stdout, &stderr))
		})
	}
}

func TestCheck_UnwritableOutput(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 10)
	blocker := writeFile(t, f.dir, "blocker", "x")

	var stdout, stderr bytes.Buffer
	code := Run(f.args("--output", filepath.Join(blocker, "gates.json")), &stdout, &stderr)
	assert.Equal(t, 2, code)
}

func TestCheck_PolicyWithExprGate(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 10)
	errs := writeFile(t, f.dir, "errors.json", `{"error_rate":0.002}`)
	policy := writeFile(t, f.dir, "gates.yaml", `
gates:
  - name: integration
    kind: integration
    thresholds:
      min_pass_rate: 0.99
  - name: error-budget
    kind: expr
    input: errors
    expr: artifact.error_rate < 0.01
`)

	var stdout, stderr bytes.Buffer
	code := Run(f.args("--output", filepath.Join(f.dir, "gates.json"),
		"--config", policy, "--input", "errors="+errs, "--parallel"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "✅ PASS error-budget: Expression satisfied")
	assert.NotContains(t, stdout.String(), "chaos")
}

func TestSignAndVerify(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 10)
	keys := filepath.Join(f.dir, "keys")
	out := filepath.Join(f.dir, "gates.json")

	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, Run([]string{"releasegate", "keygen", "--out", keys}, &stdout, &stderr), stderr.String())

	code := Run(f.args("--output", out, "--release", "2.0.0",
		"--sign-key", filepath.Join(keys, "releasegate.key"), "--key-id", "ci"), &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	require.FileExists(t, out+".jwt")

	stdout.Reset()
	code = Run([]string{"releasegate", "verify", "--report", out,
		"--pub-key", filepath.Join(keys, "releasegate.pub")}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "✅ Attestation verified")

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	tampered := strings.Replace(string(data), "Integration tests passed", "Integration tests PASSED", 1)
	require.NoError(t, os.WriteFile(out, []byte(tampered), 0o600))

	stderr.Reset()
	code = Run([]string{"releasegate", "verify", "--report", out,
		"--pub-key", filepath.Join(keys, "releasegate.pub")}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Attestation invalid")
}

func TestVerify_InconsistentReport(t *testing.T) {
	report := writeFile(t, t.TempDir(), "gates.json", `{
  "passed": true,
  "gates": {"integration": {"passed": false, "message": "Integration pass rate too low"}},
  "timestamp": "2026-01-02T03:04:05.000000Z"
}`)

	var stdout, stderr bytes.Buffer
	assert.Equal(t, 1, Run([]string{"releasegate", "verify", "--report", report}, &stdout, &stderr))
}

func TestVerify_MissingReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	code := Run([]string{"releasegate", "verify", "--report", filepath.Join(t.TempDir(), "nope.json")}, &stdout, &stderr)
	assert.Equal(t, 2, code)
}

func TestHistory(t *testing.T) {
	isolateEnv(t)
	f := newFixture(t, 10)
	dsn := filepath.Join(f.dir, "history.db")

	var stdout, stderr bytes.Buffer
	for _, release := range []string{"1.2.0", "1.10.0"} {
		code := Run(f.args("--output", filepath.Join(f.dir, release+".json"), "--release", release, "--history", dsn), &stdout, &stderr)
		require.Equal(t, 0, code, stderr.String())
	}

	stdout.Reset()
	require.Equal(t, 0, Run([]string{"releasegate", "history", "--dsn", dsn}, &stdout, &stderr), stderr.String())
	assert.Contains(t, stdout.String(), "1.2.0")
	assert.Contains(t, stdout.String(), "1.10.0")

	stdout.Reset()
	require.Equal(t, 0, Run([]string{"releasegate", "history", "--dsn", dsn, "--latest-passing"}, &stdout, &stderr))
	assert.Equal(t, "1.10.0\n", stdout.String())
}

func TestHistory_RequiresDSN(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	assert.Equal(t, 2, Run([]string{"releasegate", "history"}, &stdout, &stderr))
}

func TestValidateModels(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	require.NoError(t, os.MkdirAll(models, 0o750))
	writeFile(t, models, "predictions.json", `{"y_true":[0,1,0,1],"y_pred":[0,1,0,1],"y_score":[0.1,0.9,0.2,0.8]}`)
	writeFile(t, models, "baseline_metrics.json", `{"accuracy":1.0,"f1_score":1.0}`)
	out := filepath.Join(dir, "reports")

	var stdout, stderr bytes.Buffer
	code := Run([]string{"releasegate", "validate-models", "--models-dir", models, "--out", out}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "Model validation complete. Report saved to:")
	assert.Contains(t, stdout.String(), "Drift Status: normal")
	require.FileExists(t, filepath.Join(out, "report.json"))

	// The written report feeds the models gate directly.
	stdout.Reset()
	code = Run([]string{"releasegate", "check", "--output", filepath.Join(dir, "gates.json"),
		"--integration", writeFile(t, dir, "i.json", `{"summary":{"total":1,"passed":1}}`),
		"--models", filepath.Join(out, "report.json")}, &stdout, &stderr)
	require.Equal(t, 0, code, stderr.String())
	assert.Contains(t, stdout.String(), "✅ PASS models: Model validation passed: accuracy 100.0%")
}

func TestValidateModels_Drifted(t *testing.T) {
	isolateEnv(t)
	models := t.TempDir()
	writeFile(t, models, "predictions.json", `{"y_true":[0,1,0,1],"y_pred":[0,1,0,1]}`)
	writeFile(t, models, "baseline_metrics.json", `{"accuracy":0.5,"f1_score":0.5}`)

	var stdout, stderr bytes.Buffer
	code := Run([]string{"releasegate", "validate-models", "--models-dir", models, "--out", t.TempDir()}, &stdout, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), "Model has drifted from baseline")
}

func TestValidateModels_NoPredictions(t *testing.T) {
	isolateEnv(t)
	var stdout, stderr bytes.Buffer
	code := Run([]string{"releasegate", "validate-models", "--models-dir", t.TempDir(), "--out", t.TempDir()}, &stdout, &stderr)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr.String(), "no predictions to evaluate")
}
