// Package config handles loading and managing SampleForge configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sampleforge/sampleforge/pkg/artifact"
	"github.com/sampleforge/sampleforge/pkg/sampling"
	"github.com/sampleforge/sampleforge/pkg/scoring"
	"github.com/sampleforge/sampleforge/pkg/selection"
)

// Config is the top-level configuration for SampleForge.
type Config struct {
	Sampling   SamplingConfig   `yaml:"sampling"`
	TieBreak   TieBreakConfig   `yaml:"tie_break"`
	Scoring    ScoringConfig    `yaml:"scoring"`
	Cache      CacheConfig      `yaml:"cache"`
	ContentGen ContentGenConfig `yaml:"content_generator"`
	Events     EventsConfig     `yaml:"events"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SamplingConfig controls candidate generation.
type SamplingConfig struct {
	CandidateCount int           `yaml:"candidate_count"` // 0 keeps every candidate
	Timeout        time.Duration `yaml:"timeout"`
	Concurrency    int           `yaml:"concurrency"`
	Truncate       string        `yaml:"truncate"`   // invocation-order | best-score
	EarlyStop      int           `yaml:"early_stop"` // 0 disables
	// Strategies lists the default strategies per artifact kind. A kind
	// with no entry runs everything registered for it.
	Strategies map[string][]string `yaml:"strategies"`
}

// TieBreakConfig controls how near-equal leaders are resolved.
type TieBreakConfig struct {
	Policy        string `yaml:"policy"`
	Margin        int    `yaml:"margin"`
	MetadataField string `yaml:"metadata_field"`
}

// ScoringConfig holds per-kind criterion overrides on top of the presets.
type ScoringConfig struct {
	Criteria map[string]map[string]scoring.Override `yaml:"criteria"`
}

// CacheConfig selects and configures the result cache backend.
type CacheConfig struct {
	Backend     string        `yaml:"backend"` // memory | redis | local | s3 | gcs | postgres
	TTL         time.Duration `yaml:"ttl"`
	Prefix      string        `yaml:"prefix"`
	RedisURL    string        `yaml:"redis_url"`
	Dir         string        `yaml:"dir"`
	S3Bucket    string        `yaml:"s3_bucket"`
	S3Region    string        `yaml:"s3_region"`
	S3Endpoint  string        `yaml:"s3_endpoint"`
	S3AccessKey string        `yaml:"s3_access_key"`
	S3SecretKey string        `yaml:"s3_secret_key"`
	GCSBucket   string        `yaml:"gcs_bucket"`
	PostgresDSN string        `yaml:"postgres_dsn"`
}

// ContentGenConfig points the ai-assisted strategy at a content service.
type ContentGenConfig struct {
	URL              string        `yaml:"url"`
	APIKey           string        `yaml:"api_key"`
	Model            string        `yaml:"model"`
	Timeout          time.Duration `yaml:"timeout"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Cooldown         time.Duration `yaml:"cooldown"`
}

// EventsConfig controls decision event publishing.
type EventsConfig struct {
	NATSURL string `yaml:"nats_url"` // empty logs events instead
	Subject string `yaml:"subject"`
}

// LoggingConfig controls the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | console
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Sampling: SamplingConfig{
			Timeout:     30 * time.Second,
			Concurrency: 4,
			Truncate:    "invocation-order",
			Strategies:  map[string][]string{},
		},
		TieBreak: TieBreakConfig{
			Policy: string(selection.PolicyStableFirst),
			Margin: 5,
		},
		Scoring: ScoringConfig{
			Criteria: map[string]map[string]scoring.Override{},
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     time.Hour,
			Prefix:  "sampleforge:",
		},
		ContentGen: ContentGenConfig{
			Timeout:          20 * time.Second,
			FailureThreshold: 5,
			Cooldown:         30 * time.Second,
		},
		Events: EventsConfig{
			Subject: "sampleforge.events",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load reads a config file from the given path.
// If the file does not exist, it returns the default config.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks values that would otherwise fail deep inside a run.
func (c *Config) Validate() error {
	if c.Sampling.CandidateCount < 0 {
		return fmt.Errorf("sampling.candidate_count must not be negative")
	}
	if c.Sampling.Concurrency < 0 {
		return fmt.Errorf("sampling.concurrency must not be negative")
	}
	switch c.Sampling.Truncate {
	case "", "invocation-order", "best-score":
	default:
		return fmt.Errorf("sampling.truncate: unknown policy %q", c.Sampling.Truncate)
	}
	if c.Sampling.EarlyStop < 0 || c.Sampling.EarlyStop > 100 {
		return fmt.Errorf("sampling.early_stop must be within [0,100]")
	}
	for kind := range c.Sampling.Strategies {
		if _, err := artifact.ParseKind(kind); err != nil {
			return fmt.Errorf("sampling.strategies: %w", err)
		}
	}
	if _, err := selection.ParsePolicy(c.TieBreak.Policy); err != nil {
		return fmt.Errorf("tie_break: %w", err)
	}
	if c.TieBreak.Margin < 0 {
		return fmt.Errorf("tie_break.margin must not be negative")
	}
	for kind := range c.Scoring.Criteria {
		if _, err := c.Criteria(artifact.Kind(kind)); err != nil {
			return err
		}
	}
	return nil
}

// TieBreaker builds the configured tie-breaker. Validate has already
// rejected unknown policies.
func (c *Config) TieBreaker() selection.TieBreaker {
	p, err := selection.ParsePolicy(c.TieBreak.Policy)
	if err != nil {
		p = selection.PolicyStableFirst
	}
	return selection.TieBreaker{Policy: p, Margin: c.TieBreak.Margin, MetadataField: c.TieBreak.MetadataField}
}

// Criteria returns the rubric for kind: the preset with configured
// overrides applied.
func (c *Config) Criteria(kind artifact.Kind) (sampling.Criteria, error) {
	if _, err := artifact.ParseKind(string(kind)); err != nil {
		return nil, fmt.Errorf("scoring.criteria: %w", err)
	}
	criteria, err := scoring.Merge(kind, c.Scoring.Criteria[string(kind)])
	if err != nil {
		return nil, fmt.Errorf("scoring.criteria.%s: %w", kind, err)
	}
	return criteria, nil
}

// StrategiesFor returns the configured default strategies for kind, or
// nil to run all of them.
func (c *Config) StrategiesFor(kind artifact.Kind) []string {
	return c.Sampling.Strategies[string(kind)]
}

// ApplyEnv overrides fields from SAMPLEFORGE_* environment variables. The
// daemon is configured this way; the CLI reads the YAML file.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	dur := func(key string, dst *time.Duration) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = d
		return nil
	}

	str("SAMPLEFORGE_TRUNCATE", &c.Sampling.Truncate)
	str("SAMPLEFORGE_TIE_BREAK_POLICY", &c.TieBreak.Policy)
	str("SAMPLEFORGE_TIE_BREAK_FIELD", &c.TieBreak.MetadataField)
	str("SAMPLEFORGE_CACHE_BACKEND", &c.Cache.Backend)
	str("SAMPLEFORGE_CACHE_PREFIX", &c.Cache.Prefix)
	str("SAMPLEFORGE_CACHE_DIR", &c.Cache.Dir)
	str("SAMPLEFORGE_REDIS_URL", &c.Cache.RedisURL)
	str("SAMPLEFORGE_S3_BUCKET", &c.Cache.S3Bucket)
	str("SAMPLEFORGE_S3_REGION", &c.Cache.S3Region)
	str("SAMPLEFORGE_S3_ENDPOINT", &c.Cache.S3Endpoint)
	str("SAMPLEFORGE_S3_ACCESS_KEY", &c.Cache.S3AccessKey)
	str("SAMPLEFORGE_S3_SECRET_KEY", &c.Cache.S3SecretKey)
	str("SAMPLEFORGE_GCS_BUCKET", &c.Cache.GCSBucket)
	str("SAMPLEFORGE_DATABASE_URL", &c.Cache.PostgresDSN)
	str("SAMPLEFORGE_CONTENTGEN_URL", &c.ContentGen.URL)
	str("SAMPLEFORGE_CONTENTGEN_API_KEY", &c.ContentGen.APIKey)
	str("SAMPLEFORGE_CONTENTGEN_MODEL", &c.ContentGen.Model)
	str("SAMPLEFORGE_NATS_URL", &c.Events.NATSURL)
	str("SAMPLEFORGE_NATS_SUBJECT", &c.Events.Subject)
	str("SAMPLEFORGE_LOG_LEVEL", &c.Logging.Level)
	str("SAMPLEFORGE_LOG_FORMAT", &c.Logging.Format)

	for key, dst := range map[string]*int{
		"SAMPLEFORGE_CANDIDATE_COUNT":  &c.Sampling.CandidateCount,
		"SAMPLEFORGE_CONCURRENCY":      &c.Sampling.Concurrency,
		"SAMPLEFORGE_EARLY_STOP":       &c.Sampling.EarlyStop,
		"SAMPLEFORGE_TIE_BREAK_MARGIN": &c.TieBreak.Margin,
	} {
		if err := num(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*time.Duration{
		"SAMPLEFORGE_TIMEOUT":   &c.Sampling.Timeout,
		"SAMPLEFORGE_CACHE_TTL": &c.Cache.TTL,
	} {
		if err := dur(key, dst); err != nil {
			return err
		}
	}

	if v := getenv("SAMPLEFORGE_STRATEGIES"); v != "" {
		// kind=a,b;kind=c
		for _, entry := range strings.Split(v, ";") {
			kind, names, ok := strings.Cut(entry, "=")
			if !ok {
				return fmt.Errorf("SAMPLEFORGE_STRATEGIES: malformed entry %q", entry)
			}
			if c.Sampling.Strategies == nil {
				c.Sampling.Strategies = map[string][]string{}
			}
			c.Sampling.Strategies[strings.TrimSpace(kind)] = splitList(names)
		}
	}
	return c.Validate()
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// FindConfigFile looks for .sampleforge/config.yaml in the given directory
// and its parents, returning the path if found, or "" if not.
func FindConfigFile(dir string) string {
	for {
		candidate := filepath.Join(dir, ".sampleforge", "config.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// CacheDir returns the directory used by the local cache backend when none
// is configured: ~/.cache/sampleforge/results.
func CacheDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		// Fallback to temp dir if HOME isn't available
		home = os.TempDir()
	}
	return filepath.Join(home, ".cache", "sampleforge", "results")
}
