// Package config loads the engine configuration from yaml with environment
// overrides. Every numeric threshold the detectors and scanners depend on is
// a tunable here; the defaults below are the documented baseline.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all cognos configuration.
type Config struct {
	// Core settings
	Subject string `yaml:"subject"`
	Version string `yaml:"version"`

	// Embedding backend configuration
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage"`

	// Seed profile configuration
	Profile ProfileConfig `yaml:"profile"`

	// Pattern detector thresholds
	Detector DetectorConfig `yaml:"detector"`

	// Anomaly scanner thresholds
	Scanner ScannerConfig `yaml:"scanner"`

	// Scenario simulator settings
	Simulator SimulatorConfig `yaml:"simulator"`

	// HTTP/WebSocket collaborator
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// EmbeddingConfig configures the embedding engine.
type EmbeddingConfig struct {
	// Provider: "hash", "ollama" or "genai"
	Provider string `yaml:"provider"`

	// Ollama configuration
	OllamaEndpoint string `yaml:"ollama_endpoint"`
	OllamaModel    string `yaml:"ollama_model"`

	// GenAI configuration
	GenAIAPIKey string `yaml:"genai_api_key"`
	GenAIModel  string `yaml:"genai_model"`

	// Per-call timeout for backend requests; on expiry callers degrade to
	// the lexical fallback rather than hanging.
	Timeout string `yaml:"timeout"`

	// Workers bounds the batch-embed worker pool.
	Workers int `yaml:"workers"`
}

// EmbedTimeout parses Timeout, defaulting to 10s.
func (c EmbeddingConfig) EmbedTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// StorageConfig configures the durable sink. An empty DatabasePath means
// in-memory only; the engine must function correctly either way.
type StorageConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// ProfileConfig configures the seed cognitive profile.
type ProfileConfig struct {
	// SeedPath points at a yaml profile; empty uses the built-in seed.
	SeedPath string `yaml:"seed_path"`
}

// DetectorConfig holds pattern detector thresholds.
type DetectorConfig struct {
	// Minimum supporting events for any pattern emission.
	MinSupport int `yaml:"min_support"`

	// Jaccard similarity cutoff for grouping decision-logic texts.
	DecisionJaccardCutoff float64 `yaml:"decision_jaccard_cutoff"`

	// Number of most recent events the emerging-pattern rule inspects.
	EmergingWindow int `yaml:"emerging_window"`

	// Minimum mutual embedding similarity for an emerging cluster.
	EmergingSimilarityFloor float64 `yaml:"emerging_similarity_floor"`

	// Confidence cap for emerging patterns (weaker evidence).
	EmergingBaselineConfidence float64 `yaml:"emerging_baseline_confidence"`
}

// ScannerConfig holds anomaly scanner thresholds.
type ScannerConfig struct {
	// Embedding similarity below which two decision logics sharing context
	// count as contradictory.
	ContradictionSimilarityCeiling float64 `yaml:"contradiction_similarity_ceiling"`

	// Completion-rate floor for project events and the minimum sample to
	// apply it.
	CompletionRateFloor float64 `yaml:"completion_rate_floor"`
	MinProjectSample    int     `yaml:"min_project_sample"`

	// Similarity floor an event must keep against a pattern it is tagged
	// with; below it the event violates the pattern envelope.
	PatternEnvelopeFloor float64 `yaml:"pattern_envelope_floor"`

	// Cognitive overload: more than OverloadRate high-intensity events
	// inside OverloadWindow trips the rule. OverloadTypes names the event
	// types that count as high-intensity; an empty list counts every type.
	OverloadWindow string   `yaml:"overload_window"`
	OverloadRate   int      `yaml:"overload_rate"`
	OverloadTypes  []string `yaml:"overload_types"`

	// Statistical outlier detector (isolation forest).
	MinStatisticalSample int     `yaml:"min_statistical_sample"`
	OutlierCutoff        float64 `yaml:"outlier_cutoff"`
	OutlierTrees         int     `yaml:"outlier_trees"`
	OutlierSampleSize    int     `yaml:"outlier_sample_size"`
}

// OverloadWindowDuration parses OverloadWindow, defaulting to 1h.
func (c ScannerConfig) OverloadWindowDuration() time.Duration {
	d, err := time.ParseDuration(c.OverloadWindow)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// SimulatorConfig holds scenario simulator settings.
type SimulatorConfig struct {
	// TopK similar events/patterns retrieved per simulation.
	TopK int `yaml:"top_k"`
}

// ServerConfig configures the HTTP/WebSocket collaborator.
type ServerConfig struct {
	Addr string `yaml:"addr"`

	// Per-subscriber broadcast buffer; oldest updates are dropped when a
	// slow subscriber falls behind.
	BroadcastBuffer int `yaml:"broadcast_buffer"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	File   string `yaml:"file"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Subject: "operator-996",
		Version: "1.0.0",

		Embedding: EmbeddingConfig{
			Provider:       "hash",
			OllamaEndpoint: "http://localhost:11434",
			OllamaModel:    "embeddinggemma",
			GenAIModel:     "gemini-embedding-001",
			Timeout:        "10s",
			Workers:        4,
		},

		Storage: StorageConfig{
			DatabasePath: "", // in-memory only unless configured
		},

		Detector: DetectorConfig{
			MinSupport:                 2,
			DecisionJaccardCutoff:      0.30,
			EmergingWindow:             10,
			EmergingSimilarityFloor:    0.55,
			EmergingBaselineConfidence: 0.45,
		},

		Scanner: ScannerConfig{
			ContradictionSimilarityCeiling: 0.55,
			CompletionRateFloor:            0.40,
			MinProjectSample:               3,
			PatternEnvelopeFloor:           0.40,
			OverloadWindow:                 "1h",
			OverloadRate:                   8,
			OverloadTypes:                  []string{"decision", "interaction"},
			MinStatisticalSample:           10,
			OutlierCutoff:                  0.60,
			OutlierTrees:                   100,
			OutlierSampleSize:              64,
		},

		Simulator: SimulatorConfig{
			TopK: 5,
		},

		Server: ServerConfig{
			Addr:            ":8000",
			BroadcastBuffer: 16,
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a yaml file, overlaying defaults, then
// applies environment overrides. A missing file is not an error: defaults
// plus environment are returned.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variables on top of file values.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COGNOS_DB_PATH"); v != "" {
		c.Storage.DatabasePath = v
	}
	if v := os.Getenv("COGNOS_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("COGNOS_OLLAMA_ENDPOINT"); v != "" {
		c.Embedding.OllamaEndpoint = v
		if c.Embedding.Provider == "" || c.Embedding.Provider == "hash" {
			c.Embedding.Provider = "ollama"
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		c.Embedding.GenAIAPIKey = v
		if c.Embedding.Provider == "" || c.Embedding.Provider == "hash" {
			c.Embedding.Provider = "genai"
		}
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	switch c.Embedding.Provider {
	case "hash", "ollama", "genai":
	default:
		return fmt.Errorf("unsupported embedding provider: %s (use 'hash', 'ollama' or 'genai')", c.Embedding.Provider)
	}
	if c.Detector.MinSupport < 2 {
		return fmt.Errorf("detector.min_support must be at least 2, got %d", c.Detector.MinSupport)
	}
	if c.Detector.DecisionJaccardCutoff <= 0 || c.Detector.DecisionJaccardCutoff > 1 {
		return fmt.Errorf("detector.decision_jaccard_cutoff must be in (0,1], got %v", c.Detector.DecisionJaccardCutoff)
	}
	if c.Scanner.CompletionRateFloor < 0 || c.Scanner.CompletionRateFloor > 1 {
		return fmt.Errorf("scanner.completion_rate_floor must be in [0,1], got %v", c.Scanner.CompletionRateFloor)
	}
	if c.Scanner.OutlierCutoff <= 0 || c.Scanner.OutlierCutoff >= 1 {
		return fmt.Errorf("scanner.outlier_cutoff must be in (0,1), got %v", c.Scanner.OutlierCutoff)
	}
	if c.Simulator.TopK <= 0 {
		return fmt.Errorf("simulator.top_k must be positive, got %d", c.Simulator.TopK)
	}
	return nil
}
