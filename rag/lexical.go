package rag

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// 📚 词法索引接口与内存 BM25 实现
// =============================================================================

// LexicalHit 全文检索命中，Score 为引擎原始相关性分数（无界）。
type LexicalHit struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// LexicalIndex 搜索引擎抽象。
type LexicalIndex interface {
	// Index 批量写入 chunk
	Index(ctx context.Context, chunks []Chunk) error

	// Search 多字段全文检索，带与向量侧相同语义的元数据过滤
	Search(ctx context.Context, query string, k int, filter SearchFilter) ([]LexicalHit, error)

	// Clear 清空索引（重建索引用）
	Clear(ctx context.Context) error

	// Ping 健康检查，流水线构造时急切调用
	Ping(ctx context.Context) error
}

// ====== 内存 BM25 实现 ======

// BM25Config BM25 参数
type BM25Config struct {
	K1         float64 `yaml:"k1" json:"k1"`                   // 1.2-2.0
	B          float64 `yaml:"b" json:"b"`                     // 0.75
	TitleBoost float64 `yaml:"title_boost" json:"title_boost"` // 章节标题命中的加权倍数
}

// DefaultBM25Config 返回默认 BM25 参数
func DefaultBM25Config() BM25Config {
	return BM25Config{
		K1:         1.5,
		B:          0.75,
		TitleBoost: 2.0,
	}
}

// InMemoryLexicalIndex 内存 BM25 索引
type InMemoryLexicalIndex struct {
	cfg BM25Config

	mu     sync.RWMutex
	chunks []Chunk

	// BM25 统计
	docLens   []int
	avgDocLen float64
	idf       map[string]float64

	logger *zap.Logger
}

// NewInMemoryLexicalIndex 创建内存词法索引
func NewInMemoryLexicalIndex(cfg BM25Config, logger *zap.Logger) *InMemoryLexicalIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.K1 == 0 {
		cfg.K1 = 1.5
	}
	if cfg.B == 0 {
		cfg.B = 0.75
	}
	return &InMemoryLexicalIndex{
		cfg:    cfg,
		chunks: make([]Chunk, 0),
		idf:    make(map[string]float64),
		logger: logger.With(zap.String("component", "memory_lexical")),
	}
}

// Index 写入并重算 BM25 统计
func (x *InMemoryLexicalIndex) Index(ctx context.Context, chunks []Chunk) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	x.chunks = append(x.chunks, chunks...)
	x.computeStats()

	x.logger.Info("chunks indexed",
		zap.Int("count", len(chunks)),
		zap.Int("total", len(x.chunks)))
	return nil
}

// computeStats 计算文档长度、平均长度与 IDF。调用方持有写锁。
func (x *InMemoryLexicalIndex) computeStats() {
	totalLen := 0
	x.docLens = make([]int, len(x.chunks))
	termDocCount := make(map[string]int)

	for i, c := range x.chunks {
		terms := tokenize(c.Text)
		x.docLens[i] = len(terms)
		totalLen += len(terms)

		seen := make(map[string]bool)
		for _, term := range terms {
			if !seen[term] {
				termDocCount[term]++
				seen[term] = true
			}
		}
	}

	x.avgDocLen = 0
	if len(x.chunks) > 0 {
		x.avgDocLen = float64(totalLen) / float64(len(x.chunks))
	}

	x.idf = make(map[string]float64, len(termDocCount))
	n := float64(len(x.chunks))
	for term, df := range termDocCount {
		x.idf[term] = math.Log((n-float64(df)+0.5)/(float64(df)+0.5) + 1.0)
	}
}

// Search BM25 打分检索，标题命中按 TitleBoost 加权
func (x *InMemoryLexicalIndex) Search(ctx context.Context, query string, k int, filter SearchFilter) ([]LexicalHit, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || len(x.chunks) == 0 {
		return []LexicalHit{}, nil
	}

	queryTerms := tokenize(query)
	hits := make([]LexicalHit, 0)

	for i, c := range x.chunks {
		if !LanguageMatches(c.Language, filter.Language) {
			continue
		}
		if !CategoryMatches(c.Category, filter.Category) {
			continue
		}

		score := x.bm25Score(queryTerms, c.Text, float64(x.docLens[i]))
		if x.cfg.TitleBoost > 0 && c.SectionTitle != "" {
			score += x.cfg.TitleBoost * titleOverlap(queryTerms, c.SectionTitle)
		}
		if score <= 0 {
			continue
		}
		hits = append(hits, LexicalHit{Chunk: c, Score: score})
	}

	sort.Slice(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// bm25Score 单文档 BM25 分数
func (x *InMemoryLexicalIndex) bm25Score(queryTerms []string, text string, docLen float64) float64 {
	termFreq := make(map[string]int)
	for _, term := range tokenize(text) {
		termFreq[term]++
	}

	score := 0.0
	for _, qTerm := range queryTerms {
		tf, ok := termFreq[qTerm]
		if !ok {
			continue
		}
		idf := x.idf[qTerm]

		numerator := float64(tf) * (x.cfg.K1 + 1.0)
		denominator := float64(tf) + x.cfg.K1*(1.0-x.cfg.B+x.cfg.B*(docLen/math.Max(x.avgDocLen, 1.0)))
		score += idf * (numerator / denominator)
	}
	return score
}

// titleOverlap 查询词在标题中的命中比例
func titleOverlap(queryTerms []string, title string) float64 {
	if len(queryTerms) == 0 {
		return 0
	}
	titleTerms := make(map[string]bool)
	for _, t := range tokenize(title) {
		titleTerms[t] = true
	}
	matched := 0
	for _, q := range queryTerms {
		if titleTerms[q] {
			matched++
		}
	}
	return float64(matched) / float64(len(queryTerms))
}

// Clear 清空索引
func (x *InMemoryLexicalIndex) Clear(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.chunks = make([]Chunk, 0)
	x.docLens = nil
	x.avgDocLen = 0
	x.idf = make(map[string]float64)
	x.logger.Info("lexical index cleared")
	return nil
}

// Ping 内存实现恒可用
func (x *InMemoryLexicalIndex) Ping(ctx context.Context) error {
	return nil
}

// tokenize 简化分词：小写 + 去标点 + 空白切分
func tokenize(text string) []string {
	text = strings.ToLower(text)
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !isLetterOrDigit(r)
	})
	return fields
}

func isLetterOrDigit(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r >= 0x80
}
