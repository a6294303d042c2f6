// Package config loads service configuration from defaults, an optional
// YAML file named by CONFIG_FILE, and environment variables, in that order
// of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend names.
const (
	VectorMemory = "memory"
	VectorQdrant = "qdrant"
	EmbedHashing = "hashing"
	EmbedOllama  = "ollama"
)

// Config holds all settings for the mealscout binaries.
type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	CatalogPath           string `yaml:"catalog_path"`
	Collection            string `yaml:"collection"`
	CollectionDescription string `yaml:"collection_description"`

	VectorBackend string `yaml:"vector_backend"`
	QdrantURL     string `yaml:"qdrant_url"`

	EmbedBackend string  `yaml:"embed_backend"`
	EmbedModel   string  `yaml:"embed_model"`
	EmbedDims    int     `yaml:"embed_dims"`
	OllamaURL    string  `yaml:"ollama_url"`
	RateLimit    float64 `yaml:"rate_limit"`

	ChatModel         string  `yaml:"chat_model"`
	GenerationEnabled bool    `yaml:"generation_enabled"`
	Temperature       float64 `yaml:"temperature"`
	MaxNewTokens      int     `yaml:"max_new_tokens"`
	MinNewTokens      int     `yaml:"min_new_tokens"`
	TopK              int     `yaml:"top_k"`
	TopP              float64 `yaml:"top_p"`
	DoSample          bool    `yaml:"do_sample"`

	SimilarityTopK int           `yaml:"similarity_top_k"`
	Workers        int           `yaml:"workers"`
	QueueSize      int           `yaml:"queue_size"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	NATSURL      string  `yaml:"nats_url"`
	NATSSubject  string  `yaml:"nats_subject"`
	CORSOrigin   string  `yaml:"cors_origin"`
	APIRateLimit float64 `yaml:"api_rate_limit"`
}

// Default returns the built-in configuration: an in-memory index over the
// hashing embedder with generation disabled.
func Default() Config {
	return Config{
		Port:                  "8080",
		LogLevel:              "info",
		CatalogPath:           "FoodDataSet.json",
		Collection:            "food_recommendations",
		CollectionDescription: "Food recommendation collection",
		VectorBackend:         VectorMemory,
		QdrantURL:             "localhost:6334",
		EmbedBackend:          EmbedHashing,
		EmbedModel:            "all-minilm",
		OllamaURL:             "http://localhost:11434",
		ChatModel:             "granite3.2:2b",
		Temperature:           0.1,
		MaxNewTokens:          500,
		MinNewTokens:          1,
		TopK:                  50,
		TopP:                  1.0,
		DoSample:              true,
		SimilarityTopK:        5,
		Workers:               1,
		QueueSize:             64,
		RequestTimeout:        30 * time.Second,
		NATSURL:               "nats://localhost:4222",
		NATSSubject:           "mealscout.recommend",
		CORSOrigin:            "*",
	}
}

// Load builds the configuration and validates it.
func Load() (Config, error) {
	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.mergeFile(path); err != nil {
			return Config{}, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	var errs []error
	c.Port = envOr("PORT", c.Port)
	c.LogLevel = envOr("LOG_LEVEL", c.LogLevel)
	c.CatalogPath = envOr("CATALOG_PATH", c.CatalogPath)
	c.Collection = envOr("COLLECTION", c.Collection)
	c.CollectionDescription = envOr("COLLECTION_DESCRIPTION", c.CollectionDescription)
	c.VectorBackend = envOr("VECTOR_BACKEND", c.VectorBackend)
	c.QdrantURL = envOr("QDRANT_URL", c.QdrantURL)
	c.EmbedBackend = envOr("EMBED_BACKEND", c.EmbedBackend)
	c.EmbedModel = envOr("EMBED_MODEL", c.EmbedModel)
	c.OllamaURL = envOr("OLLAMA_URL", c.OllamaURL)
	c.ChatModel = envOr("CHAT_MODEL", c.ChatModel)
	c.NATSURL = envOr("NATS_URL", c.NATSURL)
	c.NATSSubject = envOr("NATS_SUBJECT", c.NATSSubject)
	c.CORSOrigin = envOr("CORS_ORIGIN", c.CORSOrigin)

	envInt("EMBED_DIMS", &c.EmbedDims, &errs)
	envInt("MAX_NEW_TOKENS", &c.MaxNewTokens, &errs)
	envInt("MIN_NEW_TOKENS", &c.MinNewTokens, &errs)
	envInt("GEN_TOP_K", &c.TopK, &errs)
	envInt("SIMILARITY_TOP_K", &c.SimilarityTopK, &errs)
	envInt("WORKERS", &c.Workers, &errs)
	envInt("QUEUE_SIZE", &c.QueueSize, &errs)
	envFloat("TEMPERATURE", &c.Temperature, &errs)
	envFloat("GEN_TOP_P", &c.TopP, &errs)
	envFloat("RATE_LIMIT", &c.RateLimit, &errs)
	envFloat("API_RATE_LIMIT", &c.APIRateLimit, &errs)
	envBool("GENERATION_ENABLED", &c.GenerationEnabled, &errs)
	envBool("DO_SAMPLE", &c.DoSample, &errs)
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: REQUEST_TIMEOUT: %w", err))
		} else {
			c.RequestTimeout = d
		}
	}
	return errors.Join(errs...)
}

// Validate checks cross-field constraints.
func (c Config) Validate() error {
	var errs []error
	switch c.VectorBackend {
	case VectorMemory, VectorQdrant:
	default:
		errs = append(errs, fmt.Errorf("config: unknown vector backend %q", c.VectorBackend))
	}
	switch c.EmbedBackend {
	case EmbedHashing, EmbedOllama:
	default:
		errs = append(errs, fmt.Errorf("config: unknown embed backend %q", c.EmbedBackend))
	}
	if c.Collection == "" {
		errs = append(errs, errors.New("config: collection name is empty"))
	}
	if c.EmbedDims < 0 {
		errs = append(errs, fmt.Errorf("config: embed dims %d is negative", c.EmbedDims))
	}
	if c.SimilarityTopK <= 0 {
		errs = append(errs, fmt.Errorf("config: similarity top k must be positive, got %d", c.SimilarityTopK))
	}
	if c.Workers <= 0 || c.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("config: workers (%d) and queue size (%d) must be positive", c.Workers, c.QueueSize))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("config: request timeout must be positive, got %s", c.RequestTimeout))
	}
	if c.Temperature < 0 || c.TopP <= 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("config: invalid sampling temperature=%g top_p=%g", c.Temperature, c.TopP))
	}
	return errors.Join(errs...)
}

// SlogLevel maps LogLevel to a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, dst *int, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
		return
	}
	*dst = n
}

func envFloat(key string, dst *float64, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
		return
	}
	*dst = f
}

func envBool(key string, dst *bool, errs *[]error) {
	v := os.Getenv(key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("config: %s: %w", key, err))
		return
	}
	*dst = b
}
