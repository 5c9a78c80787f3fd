package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/pkg/models"
)

func clearStrixEnv(t *testing.T) {
	t.Helper()
	keys := []string{
		"STRIX_LLM", "LLM_API_KEY", "LLM_API_BASE", "LLM_TIMEOUT",
		"LLM_RATE_LIMIT_DELAY", "LLM_RATE_LIMIT_CONCURRENT", "PERPLEXITY_API_KEY",
		"STRIX_DISABLE_BROWSER", "STRIX_IMAGE", "STRIX_SANDBOX_EXECUTION_TIMEOUT", "DOCKER_HOST",
	}
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnvRequiresLLMProvider(t *testing.T) {
	clearStrixEnv(t)
	_, err := FromEnv("https://example.com", models.ScanModeStandard, false, "")
	require.Error(t, err)
	kind, ok := strixerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, strixerr.KindConfig, kind)
}

func TestFromEnvRequiresAPIKeyWhenProviderSet(t *testing.T) {
	clearStrixEnv(t)
	t.Setenv("STRIX_LLM", "anthropic/claude-opus-4-6")
	_, err := FromEnv("https://example.com", models.ScanModeStandard, false, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_API_KEY")
}

func TestFromEnvAppliesDefaultsWhenOptionalVarsAbsent(t *testing.T) {
	clearStrixEnv(t)
	t.Setenv("STRIX_LLM", "anthropic/claude-opus-4-6")
	t.Setenv("LLM_API_KEY", "sk-test")

	cfg, err := FromEnv("https://example.com", models.ScanModeDeep, true, "nightly-run")
	require.NoError(t, err)

	assert.Equal(t, "https://example.com", cfg.Target)
	assert.Equal(t, models.ScanModeDeep, cfg.ScanMode)
	assert.True(t, cfg.NonInteractive)
	assert.Equal(t, "nightly-run", cfg.RunName)
	assert.Equal(t, 300*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 4, cfg.RateLimitConcurrent)
	assert.Equal(t, time.Duration(0), cfg.RateLimitDelay)
	assert.False(t, cfg.DisableBrowser)
	assert.Equal(t, "strix/sandbox:latest", cfg.Image)
	assert.Equal(t, 500*time.Second, cfg.ExecutionTimeout)
}

func TestFromEnvHonorsOverrides(t *testing.T) {
	clearStrixEnv(t)
	t.Setenv("STRIX_LLM", "anthropic/claude-opus-4-6")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_TIMEOUT", "60")
	t.Setenv("LLM_RATE_LIMIT_CONCURRENT", "8")
	t.Setenv("LLM_RATE_LIMIT_DELAY", "2")
	t.Setenv("STRIX_DISABLE_BROWSER", "true")
	t.Setenv("STRIX_IMAGE", "custom/sandbox:v2")
	t.Setenv("STRIX_SANDBOX_EXECUTION_TIMEOUT", "120")
	t.Setenv("DOCKER_HOST", "tcp://localhost:2375")

	cfg, err := FromEnv("https://example.com", models.ScanModeQuick, false, "")
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.LLMTimeout)
	assert.Equal(t, 8, cfg.RateLimitConcurrent)
	assert.Equal(t, 2*time.Second, cfg.RateLimitDelay)
	assert.True(t, cfg.DisableBrowser)
	assert.Equal(t, "custom/sandbox:v2", cfg.Image)
	assert.Equal(t, 120*time.Second, cfg.ExecutionTimeout)
	assert.Equal(t, "tcp://localhost:2375", cfg.DockerHost)
}

func TestFromEnvIgnoresMalformedIntegerOverrides(t *testing.T) {
	clearStrixEnv(t)
	t.Setenv("STRIX_LLM", "anthropic/claude-opus-4-6")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_TIMEOUT", "not-a-number")

	cfg, err := FromEnv("https://example.com", models.ScanModeStandard, false, "")
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, cfg.LLMTimeout)
}
