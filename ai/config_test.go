package ai

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "http://localhost:11434/v1", cfg.EmbeddingHost)
	assert.Equal(t, "http://localhost:11434/v1", cfg.CompletionHost)
	assert.Equal(t, ProviderOpenAI, cfg.CompletionProvider)
	assert.Equal(t, 3, cfg.MaxRetries)
	require.NoError(t, cfg.Validate())
}

func TestNewConfig(t *testing.T) {
	t.Run("with custom host", func(t *testing.T) {
		cfg := NewConfig(WithHost("http://custom:8080/v1"))

		assert.Equal(t, "http://custom:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://custom:8080/v1", cfg.CompletionHost)
	})

	t.Run("with separate hosts", func(t *testing.T) {
		cfg := NewConfig(
			WithEmbeddingHost("http://embed:8080/v1"),
			WithCompletionHost("http://complete:9090/v1"),
		)

		assert.Equal(t, "http://embed:8080/v1", cfg.EmbeddingHost)
		assert.Equal(t, "http://complete:9090/v1", cfg.CompletionHost)
	})

	t.Run("with retry", func(t *testing.T) {
		cfg := NewConfig(WithRetry(5, time.Second))

		assert.Equal(t, 5, cfg.MaxRetries)
		assert.Equal(t, time.Second, cfg.RetryDelay)
	})
}

func TestConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		host string
		want string
	}{
		{"adds suffix", "http://localhost:11434", "http://localhost:11434/v1"},
		{"strips trailing slash", "http://localhost:11434/", "http://localhost:11434/v1"},
		{"keeps suffix", "http://localhost:11434/v1", "http://localhost:11434/v1"},
		{"empty stays empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig(WithHost(tt.host))
			cfg.Normalize()
			assert.Equal(t, tt.want, cfg.EmbeddingHost)
			assert.Equal(t, tt.want, cfg.CompletionHost)
		})
	}

	t.Run("anthropic host untouched", func(t *testing.T) {
		cfg := NewConfig(WithCompletionProvider("Anthropic"), WithCompletionHost("https://api.example.com"))
		cfg.Normalize()
		assert.Equal(t, ProviderAnthropic, cfg.CompletionProvider)
		assert.Equal(t, "https://api.example.com", cfg.CompletionHost)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []ConfigOption
		wantErr bool
	}{
		{"defaults", nil, false},
		{"missing embedding host", []ConfigOption{WithEmbeddingHost("")}, true},
		{"missing completion model", []ConfigOption{WithCompletionModel("")}, true},
		{"unknown provider", []ConfigOption{WithCompletionProvider("palm")}, true},
		{"anthropic without key", []ConfigOption{WithCompletionProvider(ProviderAnthropic)}, true},
		{"anthropic with key", []ConfigOption{WithCompletionProvider(ProviderAnthropic), WithAPIKey("k")}, false},
		{"zero retries", []ConfigOption{WithRetry(0, time.Second)}, true},
		{"zero max tokens", []ConfigOption{WithMaxTokens(0)}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewConfig(tt.opts...).Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
