package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kailas-cloud/clipsearch/internal/domain"
)

// Config holds the clipsearch configuration shared by all binaries.
type Config struct {
	HTTP      HTTPConfig      `yaml:"http"`
	Auth      AuthConfig      `yaml:"auth"`
	Database  DatabaseConfig  `yaml:"database"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Dataset   DatasetConfig   `yaml:"dataset"`
	Ingest    IngestConfig    `yaml:"ingest"`
	Search    SearchConfig    `yaml:"search"`
	Eval      EvalConfig      `yaml:"eval"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error (default: determined by env)
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	APIKeys []string `yaml:"api_keys"`
}

// HTTPConfig holds HTTP server settings.
type HTTPConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeoutSec  int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec int      `yaml:"write_timeout_sec"`
	ShutdownSec     int      `yaml:"shutdown_timeout_sec"`
	StaticDir       string   `yaml:"static_dir"` // served under /data/ (default: dataset.root)
	AllowedOrigins  []string `yaml:"allowed_origins"`
}

// Database drivers.
const (
	DriverValkey = "valkey"
	DriverRedis  = "redis"
	DriverQdrant = "qdrant"
)

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Driver           string   `yaml:"driver"` // valkey, redis, qdrant (default: valkey)
	Addrs            []string `yaml:"addrs"`
	Username         string   `yaml:"username"`
	Password         string   `yaml:"password"`
	DB               int      `yaml:"db"`
	ReadinessTimeout int      `yaml:"readiness_timeout_sec"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Algorithm       string `yaml:"algorithm"`       // hnsw, flat
	DistanceMetric  string `yaml:"distance_metric"` // cosine, l2, ip
	HNSWM           int    `yaml:"hnsw_m"`
	HNSWEFConstruct int    `yaml:"hnsw_ef_construction"`
}

// RateLimitConfig holds the local embedding rate limit.
type RateLimitConfig struct {
	RPS    float64 `yaml:"rps"` // 0 = unlimited
	Burst  int     `yaml:"burst"`
	Action string  `yaml:"action"` // "reject" (default) | "wait"
}

// EmbeddingConfig holds CLIP provider settings.
type EmbeddingConfig struct {
	Provider         string          `yaml:"provider"`
	APIKey           string          `yaml:"api_key"`
	BaseURL          string          `yaml:"base_url"`
	Model            string          `yaml:"model"`
	Dimensions       int             `yaml:"dimensions"`
	ImageInputFormat string          `yaml:"image_input_format"` // data_uri, jina
	QueryInstruction string          `yaml:"query_instruction"`
	TimeoutSec       int             `yaml:"timeout_sec"`
	Cache            bool            `yaml:"cache"`
	RateLimit        RateLimitConfig `yaml:"rate_limit"`
}

// DatasetConfig locates the COCO captions and images.
type DatasetConfig struct {
	Root  string `yaml:"root"`
	Split string `yaml:"split"` // val, train
}

// IngestConfig holds ingestion settings.
type IngestConfig struct {
	BatchSize       int `yaml:"batch_size"`
	LogMissingEvery int `yaml:"log_missing_every"`
}

// SearchConfig holds retrieval settings.
type SearchConfig struct {
	Collection string `yaml:"collection"` // default: image_search_<split>
}

// EvalConfig holds evaluation settings.
type EvalConfig struct {
	K             int `yaml:"k"`
	ProgressEvery int `yaml:"progress_every"`
	Limit         int `yaml:"limit"`
}

// Load reads configuration from a YAML file by environment name (local, dev, prod).
func Load(env string) (Config, error) {
	configPath := findConfigPath(env)

	data, err := os.ReadFile(filepath.Clean(configPath))
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	// Substitute env variables of the form ${VAR}
	data = expandEnvVars(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration or panics.
func MustLoad(env string) Config {
	cfg, err := Load(env)
	if err != nil {
		panic(err)
	}
	return cfg
}

// GetEnv returns the current environment from the ENV variable, defaulting to "local".
func GetEnv() string {
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "local"
}

// ApplyDefaults fills empty fields with default values.
func (c *Config) ApplyDefaults() {
	vec := domain.DefaultVectorConfig()

	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8000
	}
	if c.HTTP.ReadTimeoutSec <= 0 {
		c.HTTP.ReadTimeoutSec = 10
	}
	if c.HTTP.WriteTimeoutSec <= 0 {
		c.HTTP.WriteTimeoutSec = 30
	}
	if c.HTTP.ShutdownSec <= 0 {
		c.HTTP.ShutdownSec = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = DriverValkey
	}
	if c.Database.ReadinessTimeout <= 0 {
		c.Database.ReadinessTimeout = 10
	}
	if c.Index.Algorithm == "" {
		c.Index.Algorithm = vec.Algorithm
	}
	if c.Index.DistanceMetric == "" {
		c.Index.DistanceMetric = vec.DistanceMetric
	}
	if c.Index.HNSWM <= 0 {
		c.Index.HNSWM = vec.HNSWM
	}
	if c.Index.HNSWEFConstruct <= 0 {
		c.Index.HNSWEFConstruct = vec.HNSWEFConstruct
	}
	if c.Embedding.Provider == "" {
		c.Embedding.Provider = "clip"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = vec.Model
	}
	if c.Embedding.Dimensions <= 0 {
		c.Embedding.Dimensions = vec.Dimensions
	}
	if c.Embedding.ImageInputFormat == "" {
		c.Embedding.ImageInputFormat = "data_uri"
	}
	if c.Embedding.TimeoutSec <= 0 {
		c.Embedding.TimeoutSec = 30
	}
	if c.Dataset.Root == "" {
		c.Dataset.Root = "data"
	}
	if c.Dataset.Split == "" {
		c.Dataset.Split = "val"
	}
	if c.HTTP.StaticDir == "" {
		c.HTTP.StaticDir = c.Dataset.Root
	}
	if c.Ingest.BatchSize <= 0 {
		c.Ingest.BatchSize = 50
	}
	if c.Ingest.LogMissingEvery <= 0 {
		c.Ingest.LogMissingEvery = 100
	}
	if c.Search.Collection == "" {
		c.Search.Collection = domain.CollectionName(c.Dataset.Split)
	}
	if c.Eval.K <= 0 {
		c.Eval.K = 10
	}
	if c.Eval.ProgressEvery <= 0 {
		c.Eval.ProgressEvery = 100
	}
}

// Validate checks the configuration for correctness.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	switch c.Database.Driver {
	case DriverValkey, DriverRedis, DriverQdrant:
	default:
		return fmt.Errorf("database.driver must be valkey, redis or qdrant, got %q", c.Database.Driver)
	}
	if len(c.Database.Addrs) == 0 {
		return fmt.Errorf("database.addrs is required")
	}
	switch c.Index.Algorithm {
	case "hnsw", "flat":
	default:
		return fmt.Errorf("index.algorithm must be \"hnsw\" or \"flat\", got %q", c.Index.Algorithm)
	}
	if c.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding.base_url is required")
	}
	switch c.Embedding.ImageInputFormat {
	case "data_uri", "jina":
	default:
		return fmt.Errorf(
			"embedding.image_input_format must be \"data_uri\" or \"jina\", got %q",
			c.Embedding.ImageInputFormat,
		)
	}
	switch c.Embedding.RateLimit.Action {
	case "", "reject", "wait":
	default:
		return fmt.Errorf(
			"embedding.rate_limit.action must be \"reject\" or \"wait\", got %q",
			c.Embedding.RateLimit.Action,
		)
	}
	if c.Embedding.RateLimit.RPS < 0 {
		return fmt.Errorf("embedding.rate_limit.rps must not be negative")
	}
	if c.Eval.K < 1 {
		return fmt.Errorf("eval.k must be positive, got %d", c.Eval.K)
	}
	return nil
}

// VectorConfig returns the index settings shared by ingestion and search.
func (c *Config) VectorConfig() domain.VectorConfig {
	return domain.VectorConfig{
		Model:            c.Embedding.Model,
		Dimensions:       c.Embedding.Dimensions,
		DistanceMetric:   c.Index.DistanceMetric,
		Algorithm:        c.Index.Algorithm,
		HNSWM:            c.Index.HNSWM,
		HNSWEFConstruct:  c.Index.HNSWEFConstruct,
		QueryInstruction: c.Embedding.QueryInstruction,
	}
}

// findConfigPath locates the config file.
func findConfigPath(env string) string {
	filename := fmt.Sprintf("%s.yaml", env)

	// 1. Check ./config/
	if path := filepath.Join("config", filename); fileExists(path) {
		return path
	}

	// 2. Check relative to the source file
	_, b, _, _ := runtime.Caller(0)
	projectRoot := filepath.Dir(filepath.Dir(filepath.Dir(b))) // internal/config -> project root
	if path := filepath.Join(projectRoot, "config", filename); fileExists(path) {
		return path
	}

	// 3. Fallback to ./config/
	return filepath.Join("config", filename)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment variable values.
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

func expandEnvVars(data []byte) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1]) // strip ${ and }
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val := os.Getenv(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
