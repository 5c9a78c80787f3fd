// Package config resolves Strix's CLI flags and environment variables
// into a single Config struct, once at startup (§6, SPEC_FULL.md §0).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/pkg/models"
)

// Config is the resolved, immutable startup configuration for one scan.
type Config struct {
	Target        string
	ScanMode      models.ScanMode
	NonInteractive bool
	RunName       string

	LLMProvider string // STRIX_LLM
	LLMAPIKey   string // LLM_API_KEY
	LLMAPIBase  string // LLM_API_BASE
	LLMTimeout  time.Duration

	RateLimitDelay      time.Duration
	RateLimitConcurrent int

	PerplexityAPIKey string

	DisableBrowser bool
	Image          string // STRIX_IMAGE
	ExecutionTimeout time.Duration // STRIX_SANDBOX_EXECUTION_TIMEOUT
	DockerHost       string
}

// FromEnv resolves environment variables over the given CLI flag values,
// validating the required ones per §6. Returns a KindConfig error (fatal
// at startup) if a required variable is missing.
func FromEnv(target string, scanMode models.ScanMode, nonInteractive bool, runName string) (Config, error) {
	cfg := Config{
		Target:         target,
		ScanMode:       scanMode,
		NonInteractive: nonInteractive,
		RunName:        runName,

		LLMProvider: os.Getenv("STRIX_LLM"),
		LLMAPIKey:   os.Getenv("LLM_API_KEY"),
		LLMAPIBase:  os.Getenv("LLM_API_BASE"),
		LLMTimeout:  durationSecondsEnv("LLM_TIMEOUT", 300),

		RateLimitDelay:      durationSecondsEnv("LLM_RATE_LIMIT_DELAY", 0),
		RateLimitConcurrent: intEnv("LLM_RATE_LIMIT_CONCURRENT", 4),

		PerplexityAPIKey: os.Getenv("PERPLEXITY_API_KEY"),

		DisableBrowser:   boolEnv("STRIX_DISABLE_BROWSER"),
		Image:            envOr("STRIX_IMAGE", "strix/sandbox:latest"),
		ExecutionTimeout: durationSecondsEnv("STRIX_SANDBOX_EXECUTION_TIMEOUT", 500),
		DockerHost:       os.Getenv("DOCKER_HOST"),
	}

	if cfg.LLMProvider == "" {
		return cfg, strixerr.New(strixerr.KindConfig, "STRIX_LLM is required")
	}
	if cfg.LLMAPIKey == "" {
		return cfg, strixerr.New(strixerr.KindConfig, "LLM_API_KEY is required")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationSecondsEnv(key string, fallbackSeconds int) time.Duration {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return time.Duration(fallbackSeconds) * time.Second
}

func intEnv(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func boolEnv(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}
