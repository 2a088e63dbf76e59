package rag

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

// =============================================================================
// 🪟 上下文窗口装配
// =============================================================================

// WindowConfig 邻居窗口配置
type WindowConfig struct {
	Backward int `yaml:"backward" json:"backward"` // 向前取的邻居数
	Forward  int `yaml:"forward" json:"forward"`   // 向后取的邻居数
}

// DefaultWindowConfig 返回默认窗口配置
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		Backward: 1,
		Forward:  2,
	}
}

// ContextWindow 同一文档内围绕候选的有序去重 Chunk 序列
type ContextWindow struct {
	DocID  string
	Chunks []Chunk // 按 order 升序
}

// WindowAssembler 把幸存候选扩展成邻居窗口。
// 窗口只按 doc_id 和 order 约束，不跨文档；
// 多个候选的窗口在压缩前按 chunk id 跨窗口去重，
// 避免相邻候选让压缩器看到同一句话两次。
type WindowAssembler struct {
	cfg    WindowConfig
	store  ChunkStore
	logger *zap.Logger
}

// NewWindowAssembler 创建窗口装配器
func NewWindowAssembler(cfg WindowConfig, store ChunkStore, logger *zap.Logger) *WindowAssembler {
	if cfg.Backward < 0 {
		cfg.Backward = 0
	}
	if cfg.Forward < 0 {
		cfg.Forward = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WindowAssembler{
		cfg:    cfg,
		store:  store,
		logger: logger.With(zap.String("component", "window_assembler")),
	}
}

// Assemble 为一批候选装配窗口。
// 每个候选取同文档 [order-backward, order+forward] 区间（自动被
// 文档实际 order 范围截断），跨候选按 chunk id 去重，按文档分组、
// 组内 order 升序。
func (w *WindowAssembler) Assemble(ctx context.Context, candidates []Candidate) ([]ContextWindow, error) {
	seen := make(map[string]struct{})
	byDoc := make(map[string][]Chunk)
	docOrder := make([]string, 0)

	for _, c := range candidates {
		minOrder := c.Chunk.Order - w.cfg.Backward
		if minOrder < 0 {
			minOrder = 0
		}
		maxOrder := c.Chunk.Order + w.cfg.Forward

		neighbors, err := w.store.QueryByMetadata(ctx, NeighborQuery{
			DocID:    c.Chunk.DocID,
			MinOrder: minOrder,
			MaxOrder: maxOrder,
		})
		if err != nil {
			return nil, fmt.Errorf("query neighbors for %s: %w", c.Chunk.ID, err)
		}

		for _, n := range neighbors {
			if _, ok := seen[n.ID]; ok {
				continue
			}
			seen[n.ID] = struct{}{}
			if _, ok := byDoc[n.DocID]; !ok {
				docOrder = append(docOrder, n.DocID)
			}
			byDoc[n.DocID] = append(byDoc[n.DocID], n)
		}
	}

	windows := make([]ContextWindow, 0, len(byDoc))
	for _, docID := range docOrder {
		chunks := byDoc[docID]
		sort.Slice(chunks, func(i, j int) bool { return chunks[i].Order < chunks[j].Order })
		windows = append(windows, ContextWindow{DocID: docID, Chunks: chunks})
	}

	w.logger.Debug("windows assembled",
		zap.Int("candidates", len(candidates)),
		zap.Int("documents", len(windows)),
		zap.Int("chunks", len(seen)))

	return windows, nil
}
