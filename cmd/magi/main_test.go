package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/go-magi/infrastructure/llm"
	"github.com/ahrav/go-magi/infrastructure/ml"
	"github.com/ahrav/go-magi/internal/domain"
)

const raceYAML = `race_id: 42
venue_name: 住之江
race_date: 2025-06-01
race_no: 12
entries:
  - lane: 1
    racer_class: A1
    win_rate_all: 7.1
    win_rate_local: 6.8
    motor_rate: 42
    boat_rate: 35
  - lane: 2
    racer_class: B1
    win_rate_all: 5.2
    win_rate_local: 4.9
    motor_rate: 31
    boat_rate: 30
  - lane: 3
    racer_class: A2
    win_rate_all: 6.0
    win_rate_local: 5.5
    motor_rate: 38
    boat_rate: 33
`

// clearProviderEnv keeps credentials from the developer's shell out of the
// run.
func clearProviderEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MAGI_CLAUDE_API_KEY", "MAGI_OPENAI_API_KEY", "MAGI_GEMINI_API_KEY", "MAGI_GROK_API_KEY",
		"MAGI_ML_ENDPOINT",
	} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(t *testing.T, args ...string) (int, report, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)

	var out report
	if stdout.Len() > 0 {
		require.NoError(t, json.Unmarshal(stdout.Bytes(), &out), stdout.String())
	}
	return code, out, stderr.String()
}

func TestRun_AllModesWithoutProviders(t *testing.T) {
	clearProviderEnv(t)
	race := writeFile(t, "race.yaml", raceYAML)

	code, out, _ := runCLI(t, "-race", race)
	require.Equal(t, 0, code)

	assert.Equal(t, 42, out.RaceID)
	require.NotNil(t, out.Statistical)
	assert.NotEmpty(t, out.Statistical.RecommendedOrder)
	require.NotNil(t, out.Machine)
	assert.Equal(t, ml.SourceHeuristic, out.Machine.Source)
	assert.Equal(t, "1-3-2", out.Machine.PredictedOrder)
	assert.Nil(t, out.Consensus)
	assert.Equal(t, statusUnconfigured, out.MAGIStatus)
	assert.Empty(t, out.Errors)
}

func TestRun_StatOnly(t *testing.T) {
	clearProviderEnv(t)
	race := writeFile(t, "race.yaml", raceYAML)

	code, out, _ := runCLI(t, "-race", race, "-mode", "stat")
	require.Equal(t, 0, code)
	assert.NotNil(t, out.Statistical)
	assert.Nil(t, out.Machine)
	assert.Empty(t, out.MAGIStatus)
}

func TestRun_JSONRace(t *testing.T) {
	clearProviderEnv(t)
	race := writeFile(t, "race.json", `{"race_id": 9, "race_date": "2025-06-01T00:00:00Z",
		"entries": [{"lane": 1, "win_rate_all": 6}, {"lane": 2, "win_rate_all": 5}]}`)

	code, out, _ := runCLI(t, "-race", race, "-mode", "ml")
	require.Equal(t, 0, code)
	assert.Equal(t, 9, out.RaceID)
	require.NotNil(t, out.Machine)
	assert.Equal(t, "1-2", out.Machine.PredictedOrder)
}

func TestRun_ModelServerFromConfig(t *testing.T) {
	clearProviderEnv(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"probabilities": [[0.1, 0.2, 0.3], [0.2, 0.3, 0.2], [0.7, 0.1, 0.1]]}`))
	}))
	defer srv.Close()

	race := writeFile(t, "race.yaml", raceYAML)
	cfg := writeFile(t, "magi.yaml", "ml:\n  endpoint: "+srv.URL+"\n  timeout: 2s\n")

	code, out, _ := runCLI(t, "-race", race, "-config", cfg, "-mode", "ml")
	require.Equal(t, 0, code)
	require.NotNil(t, out.Machine)
	assert.Equal(t, ml.SourceModel, out.Machine.Source)
	assert.Equal(t, "3-2-1", out.Machine.PredictedOrder)
}

func TestRun_InvalidRaceReportsError(t *testing.T) {
	clearProviderEnv(t)
	race := writeFile(t, "race.yaml", "race_id: 1\nentries:\n  - lane: 1\n  - lane: 1\n")

	code, out, _ := runCLI(t, "-race", race, "-mode", "stat")
	assert.Equal(t, 1, code)
	assert.Contains(t, out.Errors, modeStat)
}

func TestRun_MetricsFile(t *testing.T) {
	clearProviderEnv(t)
	race := writeFile(t, "race.yaml", raceYAML)
	metricsPath := filepath.Join(t.TempDir(), "magi.prom")

	code, _, _ := runCLI(t, "-race", race, "-mode", "stat", "-metrics-file", metricsPath)
	require.Equal(t, 0, code)
	assert.FileExists(t, metricsPath)
}

func TestRun_ListModels(t *testing.T) {
	var stdout, stderr bytes.Buffer
	require.Equal(t, 0, run(context.Background(), []string{"-mode", "models"}, &stdout, &stderr))

	var catalog map[domain.ProviderID][]llm.ModelInfo
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &catalog))
	require.Len(t, catalog, 4)
	for _, id := range domain.Providers() {
		require.NotEmpty(t, catalog[id], id)
		assert.Equal(t, llm.DefaultModel(id), catalog[id][0].ID)
		assert.True(t, catalog[id][0].Recommended)
	}
}

func TestRun_AnalyzeWithoutCredential(t *testing.T) {
	clearProviderEnv(t)
	race := writeFile(t, "race.yaml", raceYAML)

	code, out, _ := runCLI(t, "-race", race, "-mode", "analyze", "-provider", "claude")
	assert.Equal(t, 1, code)
	assert.Nil(t, out.Analysis)
	assert.Contains(t, out.Errors[modeAnalyze], "claude has no credential")
	assert.Nil(t, out.Statistical, "analyze runs only the named provider")
}

func TestRun_UnknownModelIsLogged(t *testing.T) {
	clearProviderEnv(t)
	race := writeFile(t, "race.yaml", raceYAML)
	cfg := writeFile(t, "magi.yaml", "magi:\n  openai:\n    model: gpt-9-preview\n")

	code, _, stderr := runCLI(t, "-race", race, "-config", cfg, "-mode", "stat")
	require.Equal(t, 0, code)
	assert.Contains(t, stderr, "model is not in the catalog")
	assert.Contains(t, stderr, "gpt-9-preview")
}

func TestRun_UsageErrors(t *testing.T) {
	clearProviderEnv(t)
	race := writeFile(t, "race.yaml", raceYAML)

	tests := []struct {
		name string
		args []string
		code int
	}{
		{"MissingRace", nil, 2},
		{"UnknownMode", []string{"-race", race, "-mode", "oracle"}, 2},
		{"AnalyzeWithoutProvider", []string{"-race", race, "-mode", "analyze"}, 2},
		{"AnalyzeUnknownProvider", []string{"-race", race, "-mode", "analyze", "-provider", "mistral"}, 2},
		{"MissingRaceFile", []string{"-race", filepath.Join(t.TempDir(), "nope.yaml")}, 1},
		{"MissingConfig", []string{"-race", race, "-config", filepath.Join(t.TempDir(), "nope.yaml")}, 1},
		{"BadConfig", []string{"-race", race, "-config", writeFile(t, "bad.yaml", "magi:\n  policy: unanimous\n")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			assert.Equal(t, tt.code, run(context.Background(), tt.args, &stdout, &stderr))
			assert.Empty(t, stdout.String())
			assert.NotEmpty(t, stderr.String())
		})
	}
}
