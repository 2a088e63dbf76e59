package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// 🔀 查询分解
// =============================================================================

// DecomposerConfig 分解配置
type DecomposerConfig struct {
	// MinWordsForDecomposition 词数不超过该阈值的查询视为原子查询
	MinWordsForDecomposition int `yaml:"min_words_for_decomposition" json:"min_words_for_decomposition"`
	// MaxSubqueries 最多保留的子查询数
	MaxSubqueries int `yaml:"max_subqueries" json:"max_subqueries"`
}

// DefaultDecomposerConfig 返回默认分解配置
func DefaultDecomposerConfig() DecomposerConfig {
	return DecomposerConfig{
		MinWordsForDecomposition: 8,
		MaxSubqueries:            4,
	}
}

// Decomposition 分解结果。显式结果类型而非异常控制流，
// 调用方能区分“无需分解”和“分解失败回退”。
type Decomposition struct {
	Subqueries []string
	Fallback   bool   // 是否回退为 [原查询]
	Reason     string // 回退原因（short/generation_failed/empty_parse），用于观测
}

// Decomposer 把复合查询拆成独立的自包含子查询。
// 分解永远不能把召回降到零：任何失败都回退为 [原查询]。
type Decomposer struct {
	cfg       DecomposerConfig
	generator Generator
	logger    *zap.Logger
}

// NewDecomposer 创建查询分解器
func NewDecomposer(cfg DecomposerConfig, generator Generator, logger *zap.Logger) *Decomposer {
	if cfg.MinWordsForDecomposition <= 0 {
		cfg.MinWordsForDecomposition = 8
	}
	if cfg.MaxSubqueries <= 0 {
		cfg.MaxSubqueries = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decomposer{
		cfg:       cfg,
		generator: generator,
		logger:    logger.With(zap.String("component", "decomposer")),
	}
}

const decomposePromptTemplate = `Разбей вопрос на независимые, самодостаточные подвопросы.
Каждый подвопрос на отдельной строке, без нумерации и пояснений.
Если вопрос нельзя разбить, верни его как есть.

ВОПРОС: %s

ПОДВОПРОСЫ:`

// Decompose 分解查询。
// 短查询直接返回 [query]；生成失败或解析为空同样回退。
func (d *Decomposer) Decompose(ctx context.Context, query string) Decomposition {
	query = strings.TrimSpace(query)

	if len(strings.Fields(query)) <= d.cfg.MinWordsForDecomposition {
		return Decomposition{Subqueries: []string{query}, Fallback: true, Reason: "short"}
	}

	raw, err := d.generator.Generate(ctx, fmt.Sprintf(decomposePromptTemplate, query), "")
	if err != nil {
		d.logger.Warn("decomposition generation failed, using original query", zap.Error(err))
		return Decomposition{Subqueries: []string{query}, Fallback: true, Reason: "generation_failed"}
	}

	subqueries := parseSubqueries(raw, d.cfg.MaxSubqueries)
	if len(subqueries) == 0 {
		d.logger.Warn("decomposition produced no subqueries, using original query")
		return Decomposition{Subqueries: []string{query}, Fallback: true, Reason: "empty_parse"}
	}

	d.logger.Debug("query decomposed",
		zap.Int("subqueries", len(subqueries)))

	return Decomposition{Subqueries: subqueries}
}

// parseSubqueries 逐行解析：去重、丢弃少于 3 个字符的行。
func parseSubqueries(raw string, limit int) []string {
	seen := make(map[string]struct{})
	out := make([]string, 0)

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-•*0123456789. ")
		if len([]rune(line)) < 3 {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
		if len(out) >= limit {
			break
		}
	}

	return out
}
