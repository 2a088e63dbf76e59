package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// 🗄️ Chunk 存储接口与内存实现
// =============================================================================

// SearchFilter 检索端的元数据过滤：
// 语言按 “等于目标或 mixed” 匹配，类别为 general/空时不过滤。
type SearchFilter struct {
	Language string `json:"language,omitempty"`
	Category string `json:"category,omitempty"`
}

// NeighborQuery 邻居窗口的元数据查询：同一 doc_id 下的 order 闭区间。
type NeighborQuery struct {
	DocID    string `json:"doc_id"`
	MinOrder int    `json:"min_order"`
	MaxOrder int    `json:"max_order"`
}

// StoreHit 向量查询命中
type StoreHit struct {
	Chunk    Chunk   `json:"chunk"`
	Distance float64 `json:"distance"`
}

// ChunkStore 向量数据库抽象。长生命周期、读多写少，
// 在流水线构造时初始化一次。
type ChunkStore interface {
	// Index 批量写入 chunk 及其向量
	Index(ctx context.Context, chunks []Chunk, vectors [][]float64) error

	// Query 相似度查询，带元数据过滤
	Query(ctx context.Context, vector []float64, k int, filter SearchFilter) ([]StoreHit, error)

	// QueryByMetadata 按 doc_id + order 区间取 chunk（窗口装配用）
	QueryByMetadata(ctx context.Context, q NeighborQuery) ([]Chunk, error)

	// Clear 清空全部数据（重建索引用）
	Clear(ctx context.Context) error

	// Count 返回已存 chunk 数
	Count(ctx context.Context) (int, error)
}

// ====== 内存实现（测试和小规模语料）======

type storedChunk struct {
	chunk  Chunk
	vector []float64
}

// InMemoryChunkStore 内存 Chunk 存储
type InMemoryChunkStore struct {
	chunks []storedChunk
	mu     sync.RWMutex
	logger *zap.Logger
}

// NewInMemoryChunkStore 创建内存存储
func NewInMemoryChunkStore(logger *zap.Logger) *InMemoryChunkStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InMemoryChunkStore{
		chunks: make([]storedChunk, 0),
		logger: logger.With(zap.String("component", "memory_store")),
	}
}

// Index 批量写入
func (s *InMemoryChunkStore) Index(ctx context.Context, chunks []Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, c := range chunks {
		if len(vectors[i]) == 0 {
			return fmt.Errorf("chunk %s has no vector", c.ID)
		}
		s.chunks = append(s.chunks, storedChunk{chunk: c, vector: vectors[i]})
	}

	s.logger.Info("chunks indexed",
		zap.Int("count", len(chunks)),
		zap.Int("total", len(s.chunks)))

	return nil
}

// Query 余弦距离相似度查询
func (s *InMemoryChunkStore) Query(ctx context.Context, vector []float64, k int, filter SearchFilter) ([]StoreHit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if k <= 0 || len(s.chunks) == 0 {
		return []StoreHit{}, nil
	}

	hits := make([]StoreHit, 0, len(s.chunks))
	for _, sc := range s.chunks {
		if !LanguageMatches(sc.chunk.Language, filter.Language) {
			continue
		}
		if !CategoryMatches(sc.chunk.Category, filter.Category) {
			continue
		}
		hits = append(hits, StoreHit{
			Chunk:    sc.chunk,
			Distance: 1.0 - cosineSimilarity(vector, sc.vector),
		})
	}

	sort.Slice(hits, func(i, j int) bool {
		return hits[i].Distance < hits[j].Distance
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// QueryByMetadata 按 doc_id + order 区间查询，结果按 order 升序
func (s *InMemoryChunkStore) QueryByMetadata(ctx context.Context, q NeighborQuery) ([]Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Chunk, 0)
	for _, sc := range s.chunks {
		c := sc.chunk
		if c.DocID == q.DocID && c.Order >= q.MinOrder && c.Order <= q.MaxOrder {
			out = append(out, c)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

// Clear 清空
func (s *InMemoryChunkStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make([]storedChunk, 0)
	s.logger.Info("chunk store cleared")
	return nil
}

// Count 返回 chunk 数
func (s *InMemoryChunkStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// cosineSimilarity 余弦相似度
func cosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) {
		return 0.0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	if normA == 0 || normB == 0 {
		return 0.0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
