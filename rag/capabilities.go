package rag

import "context"

// =============================================================================
// 🔌 模型能力接口
// =============================================================================

// Embedder 向量化能力。向量应归一化到单位长度。
type Embedder interface {
	// Embed 批量向量化
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	// EmbedOne 单条向量化
	EmbedOne(ctx context.Context, text string) ([]float64, error)
}

// Scorer 交叉编码器式的相关性打分能力。
// 分数越高越相关，无界。
type Scorer interface {
	Score(ctx context.Context, query string, texts []string) ([]float64, error)
}

// Generator 文本生成能力。lang 为空表示由提示词决定语言。
// 提供方返回空响应必须报错，不得静默返回空串。
type Generator interface {
	Generate(ctx context.Context, prompt string, lang string) (string, error)
}
