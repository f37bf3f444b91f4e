package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const passingScenario = `name: empty_sync
description: a sync against an empty backend writes nothing
seed: empty
steps:
  - do: sync
    expect: ok
assertions:
  - type: backend_writes
    count: 0
`

const failingScenario = `name: wrong_count
description: expects a write that never happens
steps:
  - do: sync
assertions:
  - type: backend_writes
    count: 5
`

func writeScenario(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, "scenarios", name+".yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestScenarioRun_HarnessScenarios(t *testing.T) {
	fx := newFixture(t)

	out, err := fx.run(t, "scenario", "run", filepath.Join("..", "harness", "testdata", "scenarios"), "--format", "json")
	require.NoError(t, err, out)

	report := decodeData[ScenarioReport](t, out)
	assert.Equal(t, 3, report.Total)
	assert.Equal(t, 3, report.Passed)
	for _, s := range report.Scenarios {
		assert.True(t, s.Pass, "%s: %v", s.Name, s.Errors)
	}
}

func TestScenarioRun_UpdateThenCompare(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	path := writeScenario(t, dir, "empty_sync", passingScenario)
	golden := filepath.Join(dir, "golden", "empty_sync.golden")

	out, err := fx.run(t, "scenario", "run", path, "--update")
	require.NoError(t, err, out)
	assert.FileExists(t, golden)

	out, err = fx.run(t, "scenario", "run", path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ empty_sync")
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")

	require.NoError(t, os.WriteFile(golden, []byte(`{"scenario_name":"empty_sync"}`), 0o644))
	out, err = fx.run(t, "scenario", "run", path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "does not match golden file")
}

func TestScenarioRun_FailureAndFilter(t *testing.T) {
	fx := newFixture(t)
	dir := t.TempDir()
	writeScenario(t, dir, "empty_sync", passingScenario)
	writeScenario(t, dir, "wrong_count", failingScenario)

	out, err := fx.run(t, "scenario", "run", filepath.Join(dir, "scenarios"), "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	report := decodeData[ScenarioReport](t, out)
	assert.Equal(t, 2, report.Total)
	assert.Equal(t, 1, report.Failed)

	out, err = fx.run(t, "scenario", "run", filepath.Join(dir, "scenarios"), "--filter", "empty_*")
	require.NoError(t, err)
	assert.Contains(t, out, "1 passed, 0 failed, 1 total")
}

func TestScenarioRun_MissingPath(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.run(t, "scenario", "run", filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestGoldenFilePath(t *testing.T) {
	assert.Equal(t,
		filepath.Join("testdata", "golden", "x.golden"),
		goldenFilePath(filepath.Join("testdata", "scenarios", "x.yaml"), "x"))
}
