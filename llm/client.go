// Package llm provides text generation clients for the answer, compression
// and query transform stages: a Groq (OpenAI-compatible) client, an Ollama
// client, and a rate-limited wrapper.
package llm

import (
	"context"
	"fmt"
	"time"
)

// Client 文本生成能力。lang 为空时由提示词决定输出语言。
// 实现必须在提供方返回空响应时报错，不得静默返回空串。
type Client interface {
	Generate(ctx context.Context, prompt string, lang string) (string, error)
	Name() string
}

// Config LLM 客户端配置
type Config struct {
	Provider    string        `yaml:"provider" json:"provider"` // groq | ollama
	Model       string        `yaml:"model" json:"model"`
	BaseURL     string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey      string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Temperature float64       `yaml:"temperature" json:"temperature"`
	MaxTokens   int           `yaml:"max_tokens" json:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout" json:"timeout"`

	// RequestsPerMinute > 0 时用令牌桶限速包装客户端
	RequestsPerMinute float64 `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// DefaultConfig 返回默认 LLM 配置
func DefaultConfig() Config {
	return Config{
		Provider:          "groq",
		Model:             "llama-3.3-70b-versatile",
		Temperature:       0.2,
		MaxTokens:         1024,
		Timeout:           60 * time.Second,
		RequestsPerMinute: 25,
	}
}

// New 按配置构造客户端，必要时套上限速包装。
func New(cfg Config) (Client, error) {
	var client Client
	switch cfg.Provider {
	case "groq", "":
		client = NewGroqClient(cfg)
	case "ollama":
		client = NewOllamaClient(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %s", cfg.Provider)
	}

	if cfg.RequestsPerMinute > 0 {
		client = NewRateLimitedClient(client, cfg.RequestsPerMinute)
	}
	return client, nil
}
