// Package config loads the application configuration from YAML with
// environment variable overrides and validates it.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/askbase/askbase/llm"
	"github.com/askbase/askbase/llm/embedding"
	"github.com/askbase/askbase/llm/rerank"
	"github.com/askbase/askbase/rag"
)

// =============================================================================
// ⚙️ 应用配置
// =============================================================================

// StoreConfig 存储后端选择
type StoreConfig struct {
	// Backend memory | qdrant
	Backend string           `yaml:"backend" json:"backend"`
	Qdrant  rag.QdrantConfig `yaml:"qdrant" json:"qdrant"`
}

// LexicalConfig 词法索引后端选择
type LexicalConfig struct {
	// Backend memory | elasticsearch
	Backend       string            `yaml:"backend" json:"backend"`
	Elasticsearch rag.ElasticConfig `yaml:"elasticsearch" json:"elasticsearch"`
	BM25          rag.BM25Config    `yaml:"bm25" json:"bm25"`
}

// ACLConfig 访问控制配置
type ACLConfig struct {
	Enabled   bool   `yaml:"enabled" json:"enabled"`
	RulesPath string `yaml:"rules_path" json:"rules_path"`
}

// AuthConfig 用户库配置
type AuthConfig struct {
	DBPath      string `yaml:"db_path" json:"db_path"`
	MaxAttempts int    `yaml:"max_attempts" json:"max_attempts"`
}

// EmbeddingConfig 向量化配置（含可选 Redis 缓存）
type EmbeddingConfig struct {
	embedding.Config `yaml:",inline" json:",inline"`
	CacheEnabled     bool                  `yaml:"cache_enabled" json:"cache_enabled"`
	Cache            embedding.CacheConfig `yaml:"cache" json:"cache"`
}

// Config 应用配置树
type Config struct {
	Ingest     rag.IngestConfig     `yaml:"ingest" json:"ingest"`
	Chunking   rag.ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Store      StoreConfig          `yaml:"store" json:"store"`
	Lexical    LexicalConfig        `yaml:"lexical" json:"lexical"`
	Hybrid     rag.HybridConfig     `yaml:"hybrid" json:"hybrid"`
	Rerank     rag.RerankConfig     `yaml:"rerank" json:"rerank"`
	Window     rag.WindowConfig     `yaml:"window" json:"window"`
	Compressor rag.CompressorConfig `yaml:"compressor" json:"compressor"`
	Decomposer rag.DecomposerConfig `yaml:"decomposer" json:"decomposer"`
	Enhancer   rag.EnhancerConfig   `yaml:"enhancer" json:"enhancer"`
	Answer     rag.AnswerConfig     `yaml:"answer" json:"answer"`
	Pipeline   rag.PipelineConfig   `yaml:"pipeline" json:"pipeline"`
	ACL        ACLConfig            `yaml:"acl" json:"acl"`
	Auth       AuthConfig           `yaml:"auth" json:"auth"`

	LLM          llm.Config      `yaml:"llm" json:"llm"`
	Embedding    EmbeddingConfig `yaml:"embedding" json:"embedding"`
	RerankEngine rerank.Config   `yaml:"rerank_engine" json:"rerank_engine"`

	// MetricsAddr 非空时在该地址暴露 /metrics
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	LogLevel    string `yaml:"log_level" json:"log_level"`
}

// Default 返回全部组件的默认配置
func Default() *Config {
	return &Config{
		Ingest:     rag.DefaultIngestConfig(),
		Chunking:   rag.DefaultChunkingConfig(),
		Store:      StoreConfig{Backend: "memory", Qdrant: rag.DefaultQdrantConfig()},
		Lexical:    LexicalConfig{Backend: "memory", Elasticsearch: rag.DefaultElasticConfig(), BM25: rag.DefaultBM25Config()},
		Hybrid:     rag.DefaultHybridConfig(),
		Rerank:     rag.DefaultRerankConfig(),
		Window:     rag.DefaultWindowConfig(),
		Compressor: rag.DefaultCompressorConfig(),
		Decomposer: rag.DefaultDecomposerConfig(),
		Enhancer:   rag.DefaultEnhancerConfig(),
		Answer:     rag.DefaultAnswerConfig(),
		Pipeline:   rag.DefaultPipelineConfig(),
		ACL:        ACLConfig{Enabled: false, RulesPath: "./acl.yaml"},
		Auth:       AuthConfig{DBPath: "./askbase.db", MaxAttempts: 3},
		LLM:        llm.DefaultConfig(),
		Embedding:  EmbeddingConfig{Config: embedding.DefaultConfig(), Cache: embedding.DefaultCacheConfig()},
		RerankEngine: rerank.Config{
			Provider: "jina",
			Timeout:  30 * time.Second,
		},
		LogLevel: "info",
	}
}

// Load 从 YAML 文件加载配置，再套环境变量覆盖。
// path 为空时只用默认值 + 环境变量。
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides 环境变量覆盖（密钥和连接串这类部署期参数）
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ASKBASE_LLM_API_KEY"); v != "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("ASKBASE_LLM_BASE_URL"); v != "" {
		cfg.LLM.BaseURL = v
	}
	if v := os.Getenv("ASKBASE_EMBEDDING_API_KEY"); v != "" {
		cfg.Embedding.APIKey = v
	}
	if v := os.Getenv("ASKBASE_RERANK_API_KEY"); v != "" {
		cfg.RerankEngine.APIKey = v
	}
	if v := os.Getenv("ASKBASE_ELASTIC_URL"); v != "" {
		cfg.Lexical.Elasticsearch.BaseURL = v
	}
	if v := os.Getenv("ASKBASE_QDRANT_URL"); v != "" {
		cfg.Store.Qdrant.BaseURL = v
	}
	if v := os.Getenv("ASKBASE_REDIS_ADDR"); v != "" {
		cfg.Embedding.Cache.Addr = v
	}
	if v := os.Getenv("ASKBASE_DOCS_DIR"); v != "" {
		cfg.Ingest.DocsDir = v
	}
	if v := os.Getenv("ASKBASE_ACL_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.ACL.Enabled = b
		}
	}
	if v := os.Getenv("ASKBASE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}

// Validate 硬校验。切分参数非法直接报错；
// 组合模式这类软参数由流水线构造时告警回退，不在这里拦。
func (c *Config) Validate() error {
	if err := c.Chunking.Validate(); err != nil {
		return err
	}

	switch c.Store.Backend {
	case "memory", "qdrant":
	default:
		return fmt.Errorf("unknown store backend: %s", c.Store.Backend)
	}
	switch c.Lexical.Backend {
	case "memory", "elasticsearch":
	default:
		return fmt.Errorf("unknown lexical backend: %s", c.Lexical.Backend)
	}

	if c.Hybrid.Alpha < 0 || c.Hybrid.Alpha > 1 {
		return fmt.Errorf("hybrid alpha must be in [0,1], got %g", c.Hybrid.Alpha)
	}
	if c.Auth.MaxAttempts <= 0 {
		c.Auth.MaxAttempts = 3
	}
	return nil
}
