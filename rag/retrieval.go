package rag

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// =============================================================================
// 🎯 稠密检索
// =============================================================================

// DenseRetriever 向量相似度检索：向量化查询、查 ChunkStore、
// 把距离转成有界相似度分数。邻居扩展不在这里做（交给窗口装配器）。
type DenseRetriever struct {
	store    ChunkStore
	embedder Embedder
	logger   *zap.Logger
}

// NewDenseRetriever 创建稠密检索器
func NewDenseRetriever(store ChunkStore, embedder Embedder, logger *zap.Logger) *DenseRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DenseRetriever{
		store:    store,
		embedder: embedder,
		logger:   logger.With(zap.String("component", "dense_retriever")),
	}
}

// Retrieve 向量检索 top-k。
// 向量化失败是硬错误：坏掉的 embedder 会破坏相关性保证，不做静默回退。
// score = 1/(1+distance)，约束在 (0,1]。
func (r *DenseRetriever) Retrieve(ctx context.Context, query string, k int, filter SearchFilter) ([]Candidate, error) {
	vector, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := r.store.Query(ctx, vector, k, filter)
	if err != nil {
		return nil, fmt.Errorf("query chunk store: %w", err)
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		score := 1.0 / (1.0 + hit.Distance)
		candidates = append(candidates, Candidate{
			Chunk:      hit.Chunk,
			DenseScore: score,
			Score:      score,
		})
	}

	r.logger.Debug("dense retrieval completed",
		zap.Int("k", k),
		zap.Int("hits", len(candidates)))

	return candidates, nil
}

// =============================================================================
// 📖 词法检索
// =============================================================================

// LexicalRetriever 全文检索：查 LexicalIndex，保留引擎原始分数。
type LexicalRetriever struct {
	index  LexicalIndex
	logger *zap.Logger
}

// NewLexicalRetriever 创建词法检索器
func NewLexicalRetriever(index LexicalIndex, logger *zap.Logger) *LexicalRetriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LexicalRetriever{
		index:  index,
		logger: logger.With(zap.String("component", "lexical_retriever")),
	}
}

// Retrieve 全文检索 top-k，分数未归一化。
func (r *LexicalRetriever) Retrieve(ctx context.Context, query string, k int, filter SearchFilter) ([]Candidate, error) {
	hits, err := r.index.Search(ctx, query, k, filter)
	if err != nil {
		return nil, fmt.Errorf("search lexical index: %w", err)
	}

	candidates := make([]Candidate, 0, len(hits))
	for _, hit := range hits {
		candidates = append(candidates, Candidate{
			Chunk:        hit.Chunk,
			LexicalScore: hit.Score,
		})
	}

	r.logger.Debug("lexical retrieval completed",
		zap.Int("k", k),
		zap.Int("hits", len(candidates)))

	return candidates, nil
}
