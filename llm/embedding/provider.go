// Package embedding provides query/chunk embedding providers: an
// OpenAI-compatible REST provider, an Ollama provider, and a
// Redis-backed caching wrapper.
package embedding

import (
	"context"
	"fmt"
	"math"
	"time"
)

// Provider 向量化能力。返回的向量归一化到单位长度。
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	EmbedOne(ctx context.Context, text string) ([]float64, error)
	Name() string
}

// Config 向量化配置
type Config struct {
	Provider string        `yaml:"provider" json:"provider"` // openai | ollama
	Model    string        `yaml:"model" json:"model"`
	BaseURL  string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey   string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Timeout  time.Duration `yaml:"timeout" json:"timeout"`
}

// DefaultConfig 返回默认向量化配置
func DefaultConfig() Config {
	return Config{
		Provider: "ollama",
		Model:    "nomic-embed-text",
		Timeout:  60 * time.Second,
	}
}

// New 按配置构造向量化提供方。
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(cfg), nil
	case "ollama", "":
		return NewOllamaProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s", cfg.Provider)
	}
}

// normalize 归一化到单位长度。零向量原样返回。
func normalize(vec []float64) []float64 {
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = v / norm
	}
	return out
}
