package llm

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// RateLimitedClient 令牌桶限速包装：每次生成前等待配额，
// 避免把免费层 API 的配额打爆。
type RateLimitedClient struct {
	inner   Client
	limiter *rate.Limiter
}

// NewRateLimitedClient 按每分钟请求数包装客户端。
func NewRateLimitedClient(inner Client, requestsPerMinute float64) *RateLimitedClient {
	return &RateLimitedClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerMinute/60.0), 1),
	}
}

func (c *RateLimitedClient) Name() string { return c.inner.Name() }

// Generate 等到配额可用后转发。
func (c *RateLimitedClient) Generate(ctx context.Context, prompt string, lang string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}
	return c.inner.Generate(ctx, prompt, lang)
}
