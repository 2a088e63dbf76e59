package rag

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// ✂️ 文本切分
// =============================================================================

// ChunkingConfig 切分配置
type ChunkingConfig struct {
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"` // 每块最大字符数
	Overlap   int `yaml:"overlap" json:"overlap"`       // 相邻块的重叠字符数
}

// DefaultChunkingConfig 返回默认切分配置
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		ChunkSize: 800,
		Overlap:   200,
	}
}

// Validate 校验切分参数。非法的 size/overlap 组合是硬错误。
func (c ChunkingConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be > 0, got %d", c.ChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("overlap must be in [0, chunk_size), got overlap=%d chunk_size=%d", c.Overlap, c.ChunkSize)
	}
	return nil
}

// Splitter 固定大小+重叠的文本切分器
type Splitter struct {
	cfg    ChunkingConfig
	logger *zap.Logger
}

// NewSplitter 创建切分器。配置非法时返回错误。
func NewSplitter(cfg ChunkingConfig, logger *zap.Logger) (*Splitter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunking config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Splitter{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "splitter")),
	}, nil
}

// Split 把文档切成有序 Chunk 序列。
// Order 从 0 严格递增，ID 由 doc_id+序号确定性派生，偏移为字符偏移。
// 每块独立做语言检测；章节标题取块起点之前最近的 Markdown 标题。
func (s *Splitter) Split(doc RawDocument) []Chunk {
	runes := []rune(doc.Text)
	if len(runes) == 0 {
		return []Chunk{}
	}

	step := s.cfg.ChunkSize - s.cfg.Overlap
	chunks := make([]Chunk, 0, len(runes)/step+1)
	titles := sectionTitleIndex(doc.Text)

	order := 0
	for start := 0; start < len(runes); start += step {
		end := start + s.cfg.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}

		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			chunks = append(chunks, Chunk{
				ID:           ChunkID(doc.ID, order),
				DocID:        doc.ID,
				DocName:      doc.Name,
				Text:         text,
				Order:        order,
				StartChar:    start,
				EndChar:      end,
				Language:     DetectLanguage(text),
				Category:     doc.Category,
				AllowedRoles: doc.AllowedRoles.String(),
				SectionTitle: titles.titleAt(start),
			})
			order++
		}

		if end == len(runes) {
			break
		}
	}

	s.logger.Debug("document split",
		zap.String("doc_id", doc.ID),
		zap.Int("chars", len(runes)),
		zap.Int("chunks", len(chunks)))

	return chunks
}

// titleIndex 记录每个 Markdown 标题及其字符偏移
type titleIndex struct {
	offsets []int
	titles  []string
}

func sectionTitleIndex(text string) titleIndex {
	var idx titleIndex
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "#") {
			title := strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			if title != "" {
				idx.offsets = append(idx.offsets, offset)
				idx.titles = append(idx.titles, title)
			}
		}
		offset += len([]rune(line))
	}
	return idx
}

// titleAt 返回给定偏移之前最近的标题，没有则为空串。
func (t titleIndex) titleAt(offset int) string {
	title := ""
	for i, off := range t.offsets {
		if off > offset {
			break
		}
		title = t.titles[i]
	}
	return title
}
