package rag

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// ✨ 查询增强
// =============================================================================

// 查询组合模式
const (
	CombineModeSingle = "single" // 折叠成一个组合查询，单次检索
	CombineModeMulti  = "multi"  // 每个子查询/变体独立检索后汇总
)

// EnhancerConfig 增强配置
type EnhancerConfig struct {
	NumVariations int  `yaml:"num_variations" json:"num_variations"`
	Hypothetical  bool `yaml:"hypothetical" json:"hypothetical"` // 是否生成假设答案（HyDE）
}

// DefaultEnhancerConfig 返回默认增强配置
func DefaultEnhancerConfig() EnhancerConfig {
	return EnhancerConfig{
		NumVariations: 2,
		Hypothetical:  true,
	}
}

// Enhancement 增强结果。失败时 Failed+Reason 标记，从不返回错误：
// 增强是纯加性的，绝不能阻塞检索。
type Enhancement struct {
	Variations         []string
	HypotheticalAnswer string
	Failed             bool
	Reason             string
}

// Enhancer 生成查询改写与假设答案。
type Enhancer struct {
	cfg       EnhancerConfig
	generator Generator
	logger    *zap.Logger
}

// NewEnhancer 创建查询增强器
func NewEnhancer(cfg EnhancerConfig, generator Generator, logger *zap.Logger) *Enhancer {
	if cfg.NumVariations <= 0 {
		cfg.NumVariations = 2
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enhancer{
		cfg:       cfg,
		generator: generator,
		logger:    logger.With(zap.String("component", "enhancer")),
	}
}

const enhancePromptTemplate = `Для вопроса ниже составь %d переформулировки и короткий гипотетический ответ.
Переформулировки и ответ должны быть на том же языке, что и вопрос.
Ответь строго в формате JSON без пояснений:
{"variations": ["...", "..."], "hypothetical_answer": "..."}

ВОПРОС: %s`

// enhancerPayload 增强器期望的结构化输出
type enhancerPayload struct {
	Variations         []string `json:"variations"`
	HypotheticalAnswer string   `json:"hypothetical_answer"`
}

// Enhance 生成改写与假设答案。
// 任何失败（生成错误、坏 JSON）都软降级为空增强。
// 语言过滤：与原查询文字不一致的变体/假设答案一律丢弃。
func (e *Enhancer) Enhance(ctx context.Context, query string) Enhancement {
	prompt := fmt.Sprintf(enhancePromptTemplate, e.cfg.NumVariations, query)

	raw, err := e.generator.Generate(ctx, prompt, "")
	if err != nil {
		e.logger.Warn("enhancement generation failed", zap.Error(err))
		return Enhancement{Failed: true, Reason: "generation_failed"}
	}

	payload, err := parseEnhancerJSON(raw)
	if err != nil {
		e.logger.Warn("enhancement output unparsable", zap.Error(err))
		return Enhancement{Failed: true, Reason: "parse_failed"}
	}

	variations := make([]string, 0, e.cfg.NumVariations)
	for _, v := range payload.Variations {
		v = strings.TrimSpace(v)
		if v == "" || !SameScript(query, v) {
			continue
		}
		variations = append(variations, v)
		if len(variations) >= e.cfg.NumVariations {
			break
		}
	}

	hypothetical := strings.TrimSpace(payload.HypotheticalAnswer)
	if !e.cfg.Hypothetical || (hypothetical != "" && !SameScript(query, hypothetical)) {
		hypothetical = ""
	}

	e.logger.Debug("query enhanced",
		zap.Int("variations", len(variations)),
		zap.Bool("hypothetical", hypothetical != ""))

	return Enhancement{
		Variations:         variations,
		HypotheticalAnswer: hypothetical,
	}
}

// parseEnhancerJSON 解析生成器输出的 JSON。
// 容忍 ```json 代码块包裹和前后杂文。
func parseEnhancerJSON(raw string) (enhancerPayload, error) {
	var payload enhancerPayload

	raw = strings.TrimSpace(raw)
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return payload, fmt.Errorf("no JSON object in output")
	}

	if err := json.Unmarshal([]byte(raw[start:end+1]), &payload); err != nil {
		return payload, fmt.Errorf("unmarshal enhancer output: %w", err)
	}
	return payload, nil
}
