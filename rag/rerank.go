package rag

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// =============================================================================
// 🏆 重排序
// =============================================================================

// RerankConfig 重排序配置
type RerankConfig struct {
	TopK      int `yaml:"top_k" json:"top_k"`           // 重排后保留的候选数
	BatchSize int `yaml:"batch_size" json:"batch_size"` // 每次打分调用的 pair 数，性能旋钮
}

// DefaultRerankConfig 返回默认重排序配置
func DefaultRerankConfig() RerankConfig {
	return RerankConfig{
		TopK:      3,
		BatchSize: 16,
	}
}

// Reranker 用交叉编码器式打分能力对候选做二次精排。
type Reranker struct {
	cfg    RerankConfig
	scorer Scorer
	logger *zap.Logger
}

// NewReranker 创建重排序器
func NewReranker(cfg RerankConfig, scorer Scorer, logger *zap.Logger) *Reranker {
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reranker{
		cfg:    cfg,
		scorer: scorer,
		logger: logger.With(zap.String("component", "reranker")),
	}
}

// Rerank 对每个 (query, text) 对打分，降序截断到 top-k。
// 空候选直接返回空，不调用打分器。
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]Candidate, error) {
	if len(candidates) == 0 {
		return []Candidate{}, nil
	}

	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	// 分批打分
	for start := 0; start < len(out); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(out) {
			end = len(out)
		}

		texts := make([]string, 0, end-start)
		for _, c := range out[start:end] {
			texts = append(texts, c.Chunk.Text)
		}

		scores, err := r.scorer.Score(ctx, query, texts)
		if err != nil {
			return nil, fmt.Errorf("score candidates: %w", err)
		}
		if len(scores) != len(texts) {
			return nil, fmt.Errorf("scorer returned %d scores for %d texts", len(scores), len(texts))
		}

		for i, s := range scores {
			out[start+i].RerankScore = s
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RerankScore > out[j].RerankScore
	})

	if len(out) > r.cfg.TopK {
		out = out[:r.cfg.TopK]
	}

	r.logger.Debug("rerank completed",
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(out)))

	return out, nil
}
