package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuilabs/aios/pkg/artifacts"
	"github.com/cuilabs/aios/pkg/gate"
)

var ts = time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)

func failingReport() *gate.Report {
	return gate.NewReport("run-7", "2.0.0", ts, []gate.Verdict{
		gate.Pass("integration", "Integration tests passed: 95/100 (95.0%, required: 80.0%)"),
		gate.Fail("performance", "P95 latency too high: 1500ms (threshold: 1000ms)"),
	})
}

func TestSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, failingReport()))

	want := "Release Gate Check Results:\n" +
		"==================================================\n" +
		"✅ PASS integration: Integration tests passed: 95/100 (95.0%, required: 80.0%)\n" +
		"❌ FAIL performance: P95 latency too high: 1500ms (threshold: 1000ms)\n" +
		"==================================================\n" +
		"Overall: ❌ FAILED\n"
	assert.Equal(t, want, buf.String())
}

func TestSummary_Passed(t *testing.T) {
	var buf bytes.Buffer
	r := gate.NewReport("", "", ts, []gate.Verdict{gate.Pass("chaos", "No healing events (system stable)")})
	require.NoError(t, Summary(&buf, r))
	assert.Contains(t, buf.String(), "Overall: ✅ PASSED\n")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 1, ExitCode(failingReport()))
	assert.Equal(t, 0, ExitCode(gate.NewReport("", "", ts, []gate.Verdict{gate.Pass("a", "")})))
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "out", "gates", "report.json")
	store := artifacts.NewRouter("")
	ctx := context.Background()

	require.NoError(t, Write(ctx, store, failingReport(), dest))

	data, err := os.ReadFile(dest)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, false, raw["passed"])
	assert.Equal(t, "2026-03-01T09:30:00.000000Z", raw["timestamp"])
	gates := raw["gates"].(map[string]any)
	assert.Len(t, gates, 2)

	back, err := Read(ctx, store, dest)
	require.NoError(t, err)
	assert.Equal(t, failingReport().Verdicts(), back.Verdicts())
}

func TestWrite_Overwrites(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "report.json")
	store := artifacts.NewRouter("")
	ctx := context.Background()

	require.NoError(t, Write(ctx, store, failingReport(), dest))
	passing := gate.NewReport("", "", ts, []gate.Verdict{gate.Pass("a", "ok")})
	require.NoError(t, Write(ctx, store, passing, dest))

	back, err := Read(ctx, store, dest)
	require.NoError(t, err)
	assert.True(t, back.OverallPassed())
}

func TestWrite_Unwritable(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))

	err := Write(context.Background(), artifacts.NewRouter(""), failingReport(), filepath.Join(blocker, "report.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	require.NoError(t, Validate([]byte(`{"passed":true,"gates":{},"timestamp":"2026-03-01T09:30:00.000000Z"}`)))

	bad := []string{
		`{"gates":{},"timestamp":"2026-03-01T09:30:00Z"}`,
		`{"passed":true,"gates":{"a":{"passed":"yes","message":""}},"timestamp":"2026-03-01T09:30:00Z"}`,
		`{"passed":true,"gates":{},"timestamp":"2026-03-01 09:30:00"}`,
		`{"passed":true,"gates":{},"timestamp":"2026-03-01T09:30:00Z","extra":1}`,
	}
	for _, doc := range bad {
		assert.Error(t, Validate([]byte(doc)), doc)
	}
}

func TestRead_RejectsTamperedOverall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.json")
	doc := `{"passed":true,"gates":{"a":{"passed":false,"message":"x"}},"timestamp":"2026-03-01T09:30:00Z"}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	_, err := Read(context.Background(), artifacts.NewRouter(""), path)
	require.ErrorIs(t, err, gate.ErrInconsistentReport)
}
