package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const minimalConfig = `
app:
  log_level: debug
ai:
  provider_presets:
    openai:
      api_url: https://api.example.com/v1
      api_key: test-key
      expect_json: true
  models:
    - id: m1
      preset: openai
      model: test-model
      enabled: true
  embedding:
    api_url: https://api.example.com/v1
    model: test-embedding
`

func writeConfig(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9982", cfg.App.HTTPAddr)
	assert.Equal(t, 120, cfg.AI.TimeoutSeconds)
	assert.Equal(t, 30, cfg.AI.Embedding.TimeoutSeconds)
	assert.InDelta(t, 0.3, cfg.Arbitration.DivergenceThreshold, 1e-9)
	assert.InDelta(t, 0.4, cfg.Arbitration.SemanticWeight, 1e-9)
	assert.InDelta(t, 0.4, cfg.Arbitration.SafetyWeight, 1e-9)
	assert.InDelta(t, 0.2, cfg.Arbitration.CoherenceWeight, 1e-9)
	assert.InDelta(t, 0.7, cfg.Pipeline.ConfidenceThreshold, 1e-9)
}

func TestLoadResolvesPreset(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "config.yaml", minimalConfig)
	cfg, err := Load(path)
	require.NoError(t, err)

	models := cfg.AI.MustResolveModelConfigs()
	require.Len(t, models, 1)
	assert.Equal(t, "https://api.example.com/v1", models[0].APIURL)
	assert.Equal(t, "test-key", models[0].APIKey)
	assert.True(t, models[0].ExpectJSON)
}

func TestLoadExplicitZeroThresholdKept(t *testing.T) {
	content := minimalConfig + `
arbitration:
  divergence_threshold: 0.0
`
	path := writeConfig(t, t.TempDir(), "config.yaml", content)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 显式写 0 不能被默认值覆盖
	assert.Equal(t, 0.0, cfg.Arbitration.DivergenceThreshold)
}

func TestLoadExplicitZeroConfidenceThresholdKept(t *testing.T) {
	content := minimalConfig + `
pipeline:
  confidence_threshold: 0.0
`
	path := writeConfig(t, t.TempDir(), "config.yaml", content)
	cfg, err := Load(path)
	require.NoError(t, err)
	// 0 表示永不触发复核，不能被默认的 0.7 覆盖
	assert.Equal(t, 0.0, cfg.Pipeline.ConfidenceThreshold)
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", `include: ["b.yaml"]`)
	writeConfig(t, dir, "b.yaml", `include: ["a.yaml"]`)

	_, err := Load(filepath.Join(dir, "a.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestLoadRejectsInvalidWeights(t *testing.T) {
	content := minimalConfig + `
arbitration:
  semantic_weight: 0.8
  safety_weight: 0.8
  coherence_weight: 0.2
`
	path := writeConfig(t, t.TempDir(), "config.yaml", content)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weights")
}

func TestLoadRejectsMissingEmbedding(t *testing.T) {
	content := `
ai:
  models:
    - id: m1
      model: test-model
      api_url: https://api.example.com/v1
      enabled: true
`
	path := writeConfig(t, t.TempDir(), "config.yaml", content)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding")
}

func TestLoadMergesIncludeFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "models.yaml", `
ai:
  provider_presets:
    openai:
      api_url: https://api.example.com/v1
      api_key: test-key
  models:
    - id: m1
      preset: openai
      model: test-model
      enabled: true
  embedding:
    api_url: https://api.example.com/v1
    model: test-embedding
`)
	main := writeConfig(t, dir, "config.yaml", `
include: ["models.yaml"]
app:
  log_level: warn
`)
	cfg, err := Load(main)
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.App.LogLevel)
	require.Len(t, cfg.AI.Models, 1)
	assert.Equal(t, "m1", cfg.AI.Models[0].ID)
}
