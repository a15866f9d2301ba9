package config

// #region imports
import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// #endregion imports

// #region types

// DetectionConfig tunes the detector.
type DetectionConfig struct {
	Threshold float64 `yaml:"threshold"`
	Policy    string  `yaml:"policy"` // "any_overlap" | "threshold"
}

// GeneratorConfig points at the external paraphrase service.
type GeneratorConfig struct {
	URL               string  `yaml:"url"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
	Count             int     `yaml:"count"`
	Diversity         float64 `yaml:"diversity"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// EngineConfig bounds the learning pipeline.
type EngineConfig struct {
	MaxRetries    int `yaml:"max_retries"`
	MaxMissLength int `yaml:"max_miss_length"`
	TopKeywords   int `yaml:"top_keywords"`
}

// Config is the full runtime configuration.
type Config struct {
	Secret     string          `yaml:"secret"`
	DBPath     string          `yaml:"db_path"`
	CorpusPath string          `yaml:"corpus_path"`
	Detection  DetectionConfig `yaml:"detection"`
	Generator  GeneratorConfig `yaml:"generator"`
	Engine     EngineConfig    `yaml:"engine"`
}

// #endregion types

// #region defaults

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Secret: "TEST_FLAG_2025_LEARNING",
		DBPath: "leakwatch.db",
		Detection: DetectionConfig{
			Threshold: 0.7,
			Policy:    "any_overlap",
		},
		Generator: GeneratorConfig{
			URL:               "http://localhost:8750/expand",
			TimeoutSeconds:    30,
			Count:             15,
			Diversity:         0.9,
			RequestsPerSecond: 2,
		},
		Engine: EngineConfig{
			MaxRetries:    2,
			MaxMissLength: 4096,
			TopKeywords:   8,
		},
	}
}

// #endregion defaults

// #region load

// Load builds the configuration: defaults, then the YAML file at path (if
// non-empty), then env-var overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnv overlays LEAKWATCH_* environment variables.
func (c *Config) applyEnv() {
	c.Secret = envOr("LEAKWATCH_SECRET", c.Secret)
	c.DBPath = envOr("LEAKWATCH_DB", c.DBPath)
	c.CorpusPath = envOr("LEAKWATCH_CORPUS", c.CorpusPath)
	c.Generator.URL = envOr("LEAKWATCH_GENERATOR_URL", c.Generator.URL)
	c.Detection.Policy = envOr("LEAKWATCH_POLICY", c.Detection.Policy)
	if v := os.Getenv("LEAKWATCH_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.Detection.Threshold = f
		}
	}
	if v := os.Getenv("LEAKWATCH_GENERATOR_TIMEOUT"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			c.Generator.TimeoutSeconds = sec
		}
	}
	if v := os.Getenv("LEAKWATCH_MAX_RETRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Engine.MaxRetries = n
		}
	}
}

// validate rejects configurations the engine cannot run with.
func (c *Config) validate() error {
	if c.Secret == "" {
		return fmt.Errorf("config: secret must not be empty")
	}
	if c.Detection.Policy != "any_overlap" && c.Detection.Policy != "threshold" {
		return fmt.Errorf("config: unknown detection policy %q", c.Detection.Policy)
	}
	if c.Generator.Count < 1 {
		return fmt.Errorf("config: generator count must be positive, got %d", c.Generator.Count)
	}
	return nil
}

// GeneratorTimeout returns the generator timeout as a duration.
func (c *Config) GeneratorTimeout() time.Duration {
	return time.Duration(c.Generator.TimeoutSeconds) * time.Second
}

// #endregion load

// #region helpers

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// #endregion helpers
