package rag

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// =============================================================================
// ⚡ 混合检索融合引擎
// =============================================================================

// HybridConfig 融合配置
type HybridConfig struct {
	// Alpha 稠密通道权重：score = alpha*dense + (1-alpha)*lex_norm
	Alpha float64 `yaml:"alpha" json:"alpha"`
	// CandidateK 每个通道取的候选池大小
	CandidateK int `yaml:"candidate_k" json:"candidate_k"`
}

// DefaultHybridConfig 返回默认融合配置
func DefaultHybridConfig() HybridConfig {
	return HybridConfig{
		Alpha:      0.6,
		CandidateK: 24,
	}
}

// HybridSearcher 合并稠密与词法两条独立打分通道。
//
// 融合规则：
//   - 同一通道内同一 chunk 出现多次取 max，不累加（避免重复计分）；
//   - 只归一化词法通道（引擎分数无界），稠密分数本身已约在 [0,1]；
//   - 两个来源的并集全部保留，单通道命中不会被丢弃，
//     缺失通道的分量记 0。
type HybridSearcher struct {
	cfg     HybridConfig
	dense   *DenseRetriever
	lexical *LexicalRetriever
	logger  *zap.Logger
}

// NewHybridSearcher 创建混合检索器
func NewHybridSearcher(cfg HybridConfig, dense *DenseRetriever, lexical *LexicalRetriever, logger *zap.Logger) *HybridSearcher {
	if cfg.Alpha <= 0 || cfg.Alpha > 1 {
		cfg.Alpha = 0.6
	}
	if cfg.CandidateK <= 0 {
		cfg.CandidateK = 24
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HybridSearcher{
		cfg:     cfg,
		dense:   dense,
		lexical: lexical,
		logger:  logger.With(zap.String("component", "hybrid_searcher")),
	}
}

// Search 两条通道并发取 top-K 后融合。
// 两边都为空返回空列表，调用方按“无结果”处理而非错误。
func (h *HybridSearcher) Search(ctx context.Context, query string, filter SearchFilter) ([]Candidate, error) {
	var denseHits, lexicalHits []Candidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := h.dense.Retrieve(gctx, query, h.cfg.CandidateK, filter)
		if err != nil {
			return err
		}
		denseHits = hits
		return nil
	})
	g.Go(func() error {
		hits, err := h.lexical.Retrieve(gctx, query, h.cfg.CandidateK, filter)
		if err != nil {
			return err
		}
		lexicalHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	fused := Fuse(denseHits, lexicalHits, h.cfg.Alpha)

	h.logger.Debug("hybrid search completed",
		zap.Int("dense_hits", len(denseHits)),
		zap.Int("lexical_hits", len(lexicalHits)),
		zap.Int("fused", len(fused)))

	return fused, nil
}

// Fuse 按 chunk id 合并两个命中集并计算混合分数。
// 输出包含两个来源 id 的精确并集，按混合分数降序排列。
func Fuse(denseHits, lexicalHits []Candidate, alpha float64) []Candidate {
	merged := make(map[string]*Candidate)
	order := make([]string, 0, len(denseHits)+len(lexicalHits))

	get := func(chunk Chunk) *Candidate {
		if c, ok := merged[chunk.ID]; ok {
			return c
		}
		c := &Candidate{Chunk: chunk}
		merged[chunk.ID] = c
		order = append(order, chunk.ID)
		return c
	}

	// 通道内 max 聚合
	for _, hit := range denseHits {
		c := get(hit.Chunk)
		if hit.DenseScore > c.DenseScore {
			c.DenseScore = hit.DenseScore
		}
	}
	for _, hit := range lexicalHits {
		c := get(hit.Chunk)
		if hit.LexicalScore > c.LexicalScore {
			c.LexicalScore = hit.LexicalScore
		}
	}

	// 词法通道按 max 归一化；全零时 lex_norm 全为 0，避免除零
	maxLex := 0.0
	for _, c := range merged {
		if c.LexicalScore > maxLex {
			maxLex = c.LexicalScore
		}
	}
	if maxLex == 0 {
		maxLex = 1.0
	}

	out := make([]Candidate, 0, len(merged))
	for _, id := range order {
		c := merged[id]
		c.LexicalNorm = c.LexicalScore / maxLex
		c.Score = alpha*c.DenseScore + (1.0-alpha)*c.LexicalNorm
		out = append(out, *c)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	return out
}
