package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "hash", cfg.Embedding.Provider)
	assert.Equal(t, 2, cfg.Detector.MinSupport)
	assert.Equal(t, 10, cfg.Scanner.MinStatisticalSample)
	assert.Equal(t, []string{"decision", "interaction"}, cfg.Scanner.OverloadTypes)
	assert.Equal(t, 5, cfg.Simulator.TopK)
	assert.Equal(t, ":8000", cfg.Server.Addr)

	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Detector.MinSupport, cfg.Detector.MinSupport)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cognos.yaml")
	data := `
subject: test-subject
detector:
  min_support: 3
scanner:
  overload_rate: 20
server:
  addr: ":9999"
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test-subject", cfg.Subject)
	assert.Equal(t, 3, cfg.Detector.MinSupport)
	assert.Equal(t, 20, cfg.Scanner.OverloadRate)
	assert.Equal(t, ":9999", cfg.Server.Addr)
	// Untouched values keep defaults.
	assert.Equal(t, 0.30, cfg.Detector.DecisionJaccardCutoff)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("COGNOS_DB_PATH", "/tmp/test.db")
	t.Setenv("COGNOS_ADDR", ":7777")
	t.Setenv("COGNOS_OLLAMA_ENDPOINT", "http://ollama:11434")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "/tmp/test.db", cfg.Storage.DatabasePath)
	assert.Equal(t, ":7777", cfg.Server.Addr)
	assert.Equal(t, "http://ollama:11434", cfg.Embedding.OllamaEndpoint)
	// Setting an ollama endpoint promotes the provider.
	assert.Equal(t, "ollama", cfg.Embedding.Provider)
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.Embedding.Provider = "tfidf" }},
		{"min support below two", func(c *Config) { c.Detector.MinSupport = 1 }},
		{"jaccard cutoff out of range", func(c *Config) { c.Detector.DecisionJaccardCutoff = 1.5 }},
		{"completion floor out of range", func(c *Config) { c.Scanner.CompletionRateFloor = -0.1 }},
		{"outlier cutoff out of range", func(c *Config) { c.Scanner.OutlierCutoff = 1.0 }},
		{"top k zero", func(c *Config) { c.Simulator.TopK = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestDurationParsing(t *testing.T) {
	assert.Equal(t, 10*time.Second, EmbeddingConfig{}.EmbedTimeout())
	assert.Equal(t, 3*time.Second, EmbeddingConfig{Timeout: "3s"}.EmbedTimeout())
	assert.Equal(t, time.Hour, ScannerConfig{}.OverloadWindowDuration())
	assert.Equal(t, 30*time.Minute, ScannerConfig{OverloadWindow: "30m"}.OverloadWindowDuration())
}
