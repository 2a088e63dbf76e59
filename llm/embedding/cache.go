package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// CacheConfig Redis 向量缓存配置
type CacheConfig struct {
	Addr     string        `yaml:"addr" json:"addr"`
	Password string        `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int           `yaml:"db" json:"db"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
	Prefix   string        `yaml:"prefix" json:"prefix"`
}

// DefaultCacheConfig 返回默认缓存配置
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		Addr:   "localhost:6379",
		TTL:    24 * time.Hour,
		Prefix: "askbase:emb",
	}
}

// CachedProvider 在任意 Provider 外面套一层 Redis 缓存。
// 相同文本只向量化一次；缓存不可用时直接透传，不影响正确性。
type CachedProvider struct {
	inner  Provider
	cfg    CacheConfig
	redis  *redis.Client
	logger *zap.Logger
}

// NewCachedProvider 创建缓存包装。构造时 ping 一次，连不上直接报错。
func NewCachedProvider(inner Provider, cfg CacheConfig, logger *zap.Logger) (*CachedProvider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "askbase:emb"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("embedding cache redis ping: %w", err)
	}

	return &CachedProvider{
		inner:  inner,
		cfg:    cfg,
		redis:  client,
		logger: logger.With(zap.String("component", "embedding_cache")),
	}, nil
}

func (p *CachedProvider) Name() string { return p.inner.Name() }

// Close 关闭 Redis 连接
func (p *CachedProvider) Close() error { return p.redis.Close() }

func (p *CachedProvider) key(text string) string {
	sum := sha256.Sum256([]byte(p.inner.Name() + "\x00" + text))
	return p.cfg.Prefix + ":" + hex.EncodeToString(sum[:])
}

// Embed 批量向量化，命中缓存的文本不再请求提供方。
func (p *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	missIdx := make([]int, 0)
	missTexts := make([]string, 0)

	for i, t := range texts {
		vec, ok := p.get(ctx, t)
		if ok {
			out[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, t)
	}

	p.logger.Debug("embedding cache lookup",
		zap.Int("total", len(texts)),
		zap.Int("misses", len(missTexts)))

	if len(missTexts) == 0 {
		return out, nil
	}

	fresh, err := p.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for j, i := range missIdx {
		out[i] = fresh[j]
		p.put(ctx, texts[i], fresh[j])
	}
	return out, nil
}

// EmbedOne 单条向量化，带缓存。
func (p *CachedProvider) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	if vec, ok := p.get(ctx, text); ok {
		return vec, nil
	}
	vec, err := p.inner.EmbedOne(ctx, text)
	if err != nil {
		return nil, err
	}
	p.put(ctx, text, vec)
	return vec, nil
}

func (p *CachedProvider) get(ctx context.Context, text string) ([]float64, bool) {
	raw, err := p.redis.Get(ctx, p.key(text)).Bytes()
	if err != nil {
		return nil, false
	}
	var vec []float64
	if err := json.Unmarshal(raw, &vec); err != nil {
		return nil, false
	}
	return vec, true
}

func (p *CachedProvider) put(ctx context.Context, text string, vec []float64) {
	raw, err := json.Marshal(vec)
	if err != nil {
		return
	}
	if err := p.redis.Set(ctx, p.key(text), raw, p.cfg.TTL).Err(); err != nil {
		p.logger.Warn("embedding cache write failed", zap.Error(err))
	}
}
