package config

import (
	_ "embed"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

type Config struct {
	Embedding EmbeddingConfig
	Cluster   ClusterConfig
	Registry  RegistryConfig
	Database  DatabaseConfig
	Detector  DetectorConfig
	Web       WebConfig
}

type EmbeddingConfig struct {
	Dim int // embedding dimensionality, defaults to 512
}

type ClusterConfig struct {
	Eps        float64 `yaml:"eps"`         // max cosine distance, defaults to 0.35
	MinSamples int     `yaml:"min_samples"` // min dense-neighborhood size, defaults to 2
	DedupeIoU  float64 `yaml:"dedupe_iou"`  // same-frame overlap collapse, defaults to 0.6
}

type RegistryConfig struct {
	MatchThreshold float64 `yaml:"match_threshold"` // min similarity to merge, defaults to 0.65
}

type DatabaseConfig struct {
	URL           string // PostgreSQL connection URL
	MaxOpenConns  int    // Maximum open connections (default 25)
	MaxIdleConns  int    // Maximum idle connections (default 5)
	HNSWIndexPath string // Path to persist the identity HNSW index (optional, if empty index is rebuilt on startup)
}

type DetectorConfig struct {
	DatabaseURL string // MariaDB DSN for reading the detector service directly (e.g., detector:detector@tcp(mariadb:3306)/detector)
}

type WebConfig struct {
	Host string // defaults to 0.0.0.0
	Port int    // defaults to 8080
}

// defaults mirrors defaults.yaml; env vars override field by field.
type defaults struct {
	Embedding struct {
		Dim int `yaml:"dim"`
	} `yaml:"embedding"`
	Cluster  ClusterConfig  `yaml:"cluster"`
	Registry RegistryConfig `yaml:"registry"`
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

func envDefault(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func Load() *Config {
	var def defaults
	if err := yaml.Unmarshal(defaultsYAML, &def); err != nil {
		// This is an embedded file so this error should never happen in practice
		panic("failed to unmarshal embedded defaults.yaml: " + err.Error())
	}

	return &Config{
		Embedding: EmbeddingConfig{
			Dim: envInt("EMBEDDING_DIM", def.Embedding.Dim),
		},
		Cluster: ClusterConfig{
			Eps:        envFloat("CLUSTER_EPS", def.Cluster.Eps),
			MinSamples: envInt("CLUSTER_MIN_SAMPLES", def.Cluster.MinSamples),
			DedupeIoU:  envFloat("CLUSTER_DEDUPE_IOU", def.Cluster.DedupeIoU),
		},
		Registry: RegistryConfig{
			MatchThreshold: envFloat("MATCH_THRESHOLD", def.Registry.MatchThreshold),
		},
		Database: DatabaseConfig{
			URL:           os.Getenv("DATABASE_URL"),
			MaxOpenConns:  envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:  envInt("DATABASE_MAX_IDLE_CONNS", 5),
			HNSWIndexPath: os.Getenv("HNSW_INDEX_PATH"),
		},
		Detector: DetectorConfig{
			DatabaseURL: os.Getenv("DETECTOR_DATABASE_URL"),
		},
		Web: WebConfig{
			Host: envDefault("WEB_HOST", "0.0.0.0"),
			Port: envInt("WEB_PORT", 8080),
		},
	}
}
