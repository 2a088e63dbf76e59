package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// =============================================================================
// 🗜️ 上下文压缩
// =============================================================================

// CompressorConfig 压缩配置
type CompressorConfig struct {
	// MaxTokensPerResult 每个窗口块的 token 预算，
	// 窗口总预算 = MaxTokensPerResult * 窗口内块数
	MaxTokensPerResult int `yaml:"max_tokens_per_result" json:"max_tokens_per_result"`
	// Encoding tiktoken 编码名
	Encoding string `yaml:"encoding" json:"encoding"`
}

// DefaultCompressorConfig 返回默认压缩配置
func DefaultCompressorConfig() CompressorConfig {
	return CompressorConfig{
		MaxTokensPerResult: 300,
		Encoding:           "cl100k_base",
	}
}

// Compressor 把上下文窗口压成只含问题相关内容的短文。
// 压缩是优化不是闸门：生成器返回空时回退为原文拼接，
// 绝不静默返回空串（下游靠非空上下文区分“无数据”和“压缩失败”）。
type Compressor struct {
	cfg       CompressorConfig
	generator Generator
	encoder   *tiktoken.Tiktoken // 可能为 nil，此时按字符估算
	logger    *zap.Logger
}

// NewCompressor 创建压缩器。tiktoken 编码加载失败降级为字符估算。
func NewCompressor(cfg CompressorConfig, generator Generator, logger *zap.Logger) *Compressor {
	if cfg.MaxTokensPerResult <= 0 {
		cfg.MaxTokensPerResult = 300
	}
	if cfg.Encoding == "" {
		cfg.Encoding = "cl100k_base"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "compressor"))

	encoder, err := tiktoken.GetEncoding(cfg.Encoding)
	if err != nil {
		logger.Warn("tiktoken encoding unavailable, falling back to char estimate",
			zap.String("encoding", cfg.Encoding), zap.Error(err))
		encoder = nil
	}

	return &Compressor{
		cfg:       cfg,
		generator: generator,
		encoder:   encoder,
		logger:    logger,
	}
}

const compressPromptTemplate = `Извлеки из фрагментов только то, что напрямую относится к вопросу.
Не добавляй ничего от себя, не пересказывай и не делай выводов.
Сохрани формулировки источника. Если ничего релевантного нет, верни пустой ответ.

ВОПРОС: %s

ФРАГМЕНТЫ:
%s

ИЗВЛЕЧЁННЫЙ ТЕКСТ:`

// Compress 压缩一个上下文窗口。
func (c *Compressor) Compress(ctx context.Context, question string, chunks []Chunk) (string, error) {
	if len(chunks) == 0 {
		return "", nil
	}

	raw := concatChunks(chunks)
	budget := c.cfg.MaxTokensPerResult * len(chunks)
	raw = c.truncate(raw, budget)

	var fragments strings.Builder
	offset := 0
	for i, chunk := range chunks {
		text := chunk.Text
		if offset >= len(raw) {
			break
		}
		fmt.Fprintf(&fragments, "[Фрагмент %d]\n%s\n\n", i+1, text)
		offset += len(text)
	}

	prompt := fmt.Sprintf(compressPromptTemplate, question, strings.TrimSpace(fragments.String()))

	compressed, err := c.generator.Generate(ctx, prompt, "")
	if err != nil {
		c.logger.Warn("compression generation failed, using raw context", zap.Error(err))
		return raw, nil
	}

	compressed = strings.TrimSpace(compressed)
	if compressed == "" {
		c.logger.Warn("compressor returned empty output, using raw context")
		return raw, nil
	}

	return compressed, nil
}

// truncate 把文本截断到 token 预算内。
func (c *Compressor) truncate(text string, budget int) string {
	if budget <= 0 {
		return text
	}
	if c.encoder != nil {
		tokens := c.encoder.Encode(text, nil, nil)
		if len(tokens) <= budget {
			return text
		}
		return c.encoder.Decode(tokens[:budget])
	}
	// 无编码器时按约 4 字符/token 估算
	limit := budget * 4
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}

// concatChunks 按顺序拼接块文本
func concatChunks(chunks []Chunk) string {
	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, c.Text)
	}
	return strings.Join(parts, "\n\n")
}
