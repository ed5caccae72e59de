// Package config loads command line settings from a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/poiesic/recall/ai"
	"gopkg.in/yaml.v3"
)

// Settings is everything the recall command needs to open an engine.
type Settings struct {
	// DBPath is the Badger directory for structured records.
	DBPath string `yaml:"db"`
	// VectorPath is the chromem directory for embeddings. Empty keeps vectors in memory.
	VectorPath string `yaml:"vectors"`
	// CompressVectors gzips persisted vector files.
	CompressVectors bool   `yaml:"compress_vectors"`
	LogLevel        string `yaml:"log_level"`

	AI        AISettings        `yaml:"ai"`
	Chunking  ChunkSettings     `yaml:"chunking"`
	Search    SearchSettings    `yaml:"search"`
	Tasks     TaskSettings      `yaml:"tasks"`
	Embedding EmbeddingSettings `yaml:"embedding"`
}

type AISettings struct {
	EmbeddingHost      string        `yaml:"embedding_host"`
	EmbeddingModel     string        `yaml:"embedding_model"`
	CompletionHost     string        `yaml:"completion_host"`
	CompletionModel    string        `yaml:"completion_model"`
	CompletionProvider string        `yaml:"completion_provider"`
	APIKey             string        `yaml:"api_key"`
	MaxTokens          int           `yaml:"max_tokens"`
	MaxRetries         int           `yaml:"max_retries"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
}

type ChunkSettings struct {
	MinTokens     int `yaml:"min_tokens"`
	MaxTokens     int `yaml:"max_tokens"`
	OverlapTokens int `yaml:"overlap_tokens"`
	ImageTokens   int `yaml:"image_tokens"`
}

type SearchSettings struct {
	Limit           int     `yaml:"limit"`
	Threshold       float32 `yaml:"threshold"`
	RetainRatio     float64 `yaml:"retain_ratio"`
	VectorWeight    float64 `yaml:"vector_weight"`
	FallbackMinHits int     `yaml:"fallback_min_hits"`
	// Reranker is "identity", "keyword" or "completion".
	Reranker string `yaml:"reranker"`
}

type TaskSettings struct {
	Capacity  int           `yaml:"capacity"`
	Retention time.Duration `yaml:"retention"`
}

type EmbeddingSettings struct {
	// CacheBytes bounds the embedding cache. Zero disables it.
	CacheBytes int64 `yaml:"cache_bytes"`
}

// Default returns settings for a local OpenAI-compatible server.
func Default() *Settings {
	a := ai.DefaultConfig()
	return &Settings{
		DBPath:   "recall.db",
		LogLevel: "info",
		AI: AISettings{
			EmbeddingHost:      a.EmbeddingHost,
			EmbeddingModel:     a.EmbeddingModel,
			CompletionHost:     a.CompletionHost,
			CompletionModel:    a.CompletionModel,
			CompletionProvider: a.CompletionProvider,
			APIKey:             a.APIKey,
			MaxTokens:          a.MaxTokens,
			MaxRetries:         a.MaxRetries,
			RetryDelay:         a.RetryDelay,
		},
		Chunking: ChunkSettings{
			MinTokens:     900,
			MaxTokens:     2100,
			OverlapTokens: 150,
			ImageTokens:   512,
		},
		Search: SearchSettings{
			Limit:           10,
			RetainRatio:     0.5,
			VectorWeight:    0.5,
			FallbackMinHits: 1,
			Reranker:        "identity",
		},
		Tasks: TaskSettings{
			Capacity:  64,
			Retention: 24 * time.Hour,
		},
		Embedding: EmbeddingSettings{CacheBytes: 64 << 20},
	}
}

// Load reads path over the defaults. A missing file is an error only when
// required is set.
func Load(path string, required bool) (*Settings, error) {
	s := Default()
	if path == "" {
		return s, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) && !required {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return s, nil
}

// Environment variables read by ApplyEnv.
const (
	EnvDB                 = "RECALL_DB"
	EnvVectors            = "RECALL_VECTORS"
	EnvLogLevel           = "RECALL_LOG_LEVEL"
	EnvEmbeddingHost      = "RECALL_EMBEDDING_HOST"
	EnvEmbeddingModel     = "RECALL_EMBEDDING_MODEL"
	EnvCompletionHost     = "RECALL_COMPLETION_HOST"
	EnvCompletionModel    = "RECALL_COMPLETION_MODEL"
	EnvCompletionProvider = "RECALL_COMPLETION_PROVIDER"
	EnvAPIKey             = "RECALL_API_KEY"
	EnvThreshold          = "RECALL_THRESHOLD"
	EnvOpenAIKey          = "OPENAI_API_KEY"
	EnvAnthropicKey       = "ANTHROPIC_API_KEY"
)

// ApplyEnv overrides settings from the environment. lookup is usually os.LookupEnv.
// A provider specific key applies only when RECALL_API_KEY is unset.
func (s *Settings) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(name); ok && v != "" {
			*dst = v
		}
	}
	str(EnvDB, &s.DBPath)
	str(EnvVectors, &s.VectorPath)
	str(EnvLogLevel, &s.LogLevel)
	str(EnvEmbeddingHost, &s.AI.EmbeddingHost)
	str(EnvEmbeddingModel, &s.AI.EmbeddingModel)
	str(EnvCompletionHost, &s.AI.CompletionHost)
	str(EnvCompletionModel, &s.AI.CompletionModel)
	str(EnvCompletionProvider, &s.AI.CompletionProvider)

	if v, ok := lookup(EnvAPIKey); ok && v != "" {
		s.AI.APIKey = v
	} else {
		vendor := EnvOpenAIKey
		if strings.EqualFold(s.AI.CompletionProvider, ai.ProviderAnthropic) {
			vendor = EnvAnthropicKey
		}
		str(vendor, &s.AI.APIKey)
	}

	if v, ok := lookup(EnvThreshold); ok && v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvThreshold, err)
		}
		s.Search.Threshold = float32(f)
	}
	return nil
}

// AIConfig converts the AI section to an ai.Config. The default local completion
// host is dropped for the anthropic provider so it talks to the hosted API.
func (s *Settings) AIConfig() *ai.Config {
	host := s.AI.CompletionHost
	if strings.EqualFold(s.AI.CompletionProvider, ai.ProviderAnthropic) && host == ai.DefaultConfig().CompletionHost {
		host = ""
	}
	return ai.NewConfig(
		ai.WithEmbeddingHost(s.AI.EmbeddingHost),
		ai.WithEmbeddingModel(s.AI.EmbeddingModel),
		ai.WithCompletionHost(host),
		ai.WithCompletionModel(s.AI.CompletionModel),
		ai.WithCompletionProvider(s.AI.CompletionProvider),
		ai.WithAPIKey(s.AI.APIKey),
		ai.WithMaxTokens(s.AI.MaxTokens),
		ai.WithRetry(s.AI.MaxRetries, s.AI.RetryDelay),
	)
}

// Validate checks every section.
func (s *Settings) Validate() error {
	var errs []error
	if s.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	c := s.Chunking
	if c.MinTokens <= 0 || c.MaxTokens < c.MinTokens || c.OverlapTokens < 0 || c.ImageTokens < 0 {
		errs = append(errs, fmt.Errorf("invalid chunking bounds: min=%d max=%d overlap=%d images=%d",
			c.MinTokens, c.MaxTokens, c.OverlapTokens, c.ImageTokens))
	}
	if s.Search.RetainRatio < 0 || s.Search.RetainRatio > 1 {
		errs = append(errs, fmt.Errorf("search retain_ratio must be within [0,1], got %v", s.Search.RetainRatio))
	}
	if s.Search.VectorWeight < 0 || s.Search.VectorWeight > 1 {
		errs = append(errs, fmt.Errorf("search vector_weight must be within [0,1], got %v", s.Search.VectorWeight))
	}
	switch strings.ToLower(s.Search.Reranker) {
	case "", "identity", "keyword", "completion":
	default:
		errs = append(errs, fmt.Errorf("unknown reranker %q", s.Search.Reranker))
	}
	if err := s.AIConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
