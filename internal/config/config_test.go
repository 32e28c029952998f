package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8990, cfg.Server.Port)
	assert.Equal(t, "sqlite", cfg.Storage.Engine)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 30, cfg.Retrieval.CandidateK)
	assert.Equal(t, 8, cfg.Retrieval.MaxResults)
	assert.Equal(t, 2000, cfg.Context.TokenBudget)
	assert.Equal(t, "development", cfg.Security.Mode)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("ZOE_PORT", "9100")
	t.Setenv("ZOE_LLM_PROVIDER", "openai")
	t.Setenv("ZOE_RETRIEVAL_MAX_RESULTS", "5")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "openai", cfg.LLM.Provider)
	assert.Equal(t, 5, cfg.Retrieval.MaxResults)
}

func TestLoad_UnparseableIntFallsBackToDefault(t *testing.T) {
	t.Setenv("ZOE_PORT", "not-a-number")

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8990, cfg.Server.Port)
}

func TestValidate_WeightsMustSumToOne(t *testing.T) {
	t.Setenv("ZOE_RETRIEVAL_W_SIMILARITY", "0.9")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sum to 1.0")
}

func TestValidate_CandidateKBelowMaxResults(t *testing.T) {
	t.Setenv("ZOE_RETRIEVAL_CANDIDATES", "4")
	t.Setenv("ZOE_RETRIEVAL_MAX_RESULTS", "10")

	_, err := Load()

	assert.Error(t, err)
}

func TestValidate_UnknownStorageEngine(t *testing.T) {
	t.Setenv("ZOE_STORAGE_ENGINE", "cassandra")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "storage engine")
}

func TestValidate_PostgresRequiresDSN(t *testing.T) {
	t.Setenv("ZOE_STORAGE_ENGINE", "postgres")

	_, err := Load()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "ZOE_POSTGRES_DSN")
}

func TestLoadExpertsFile_MissingFileUsesDefaults(t *testing.T) {
	ef, err := LoadExpertsFile(filepath.Join(t.TempDir(), "nope.yaml"))

	require.NoError(t, err)
	assert.Equal(t, defaultThreshold, ef.Threshold)
	assert.Empty(t, ef.Experts)
}

func TestLoadExpertsFile_ParsesTuning(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experts.yaml")
	content := `
threshold: 0.6
experts:
  list:
    triggers:
      - "add to my list"
    keywords:
      - shopping
    trigger_score: 0.95
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	ef, err := LoadExpertsFile(path)

	require.NoError(t, err)
	assert.Equal(t, 0.6, ef.Threshold)
	tuning := ef.Tuning("list")
	assert.Equal(t, []string{"add to my list"}, tuning.Triggers)
	assert.Equal(t, 0.95, tuning.TriggerScore)
	// Unknown experts come back zero-valued.
	assert.Empty(t, ef.Tuning("home").Triggers)
}

func TestLoadExpertsFile_MalformedIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experts.yaml")
	require.NoError(t, os.WriteFile(path, []byte("threshold: [not a number"), 0o644))

	_, err := LoadExpertsFile(path)

	assert.Error(t, err)
}

func TestLoadExpertsFile_RejectsOutOfRangeScores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experts.yaml")
	content := `
experts:
  list:
    trigger_score: 1.5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadExpertsFile(path)

	assert.Error(t, err)
}
