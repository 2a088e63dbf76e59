package rag

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// =============================================================================
// 💬 答案生成
// =============================================================================

// NoDataResponse 知识库没有相关内容时的固定回答
const NoDataResponse = "Данных в базе знаний не нашлось."

// AnswerConfig 答案生成配置
type AnswerConfig struct {
	NoDataResponse string `yaml:"no_data_response" json:"no_data_response"`
	WithCitations  bool   `yaml:"with_citations" json:"with_citations"`
}

// DefaultAnswerConfig 返回默认答案配置
func DefaultAnswerConfig() AnswerConfig {
	return AnswerConfig{
		NoDataResponse: NoDataResponse,
		WithCitations:  true,
	}
}

// Answer 最终回答
type Answer struct {
	Text      string   `json:"text"`
	Citations []string `json:"citations,omitempty"` // 去重后的来源文档名
	NoData    bool     `json:"no_data"`
}

// CompressedContext 一个文档窗口压缩后的上下文
type CompressedContext struct {
	DocName string
	Text    string
}

// AnswerGenerator 基于压缩上下文合成最终回答。
// 严格限定在上下文内作答，不许编造；上下文为空时直接返回
// 固定的“无数据”回答，不调用生成器。
type AnswerGenerator struct {
	cfg       AnswerConfig
	generator Generator
	logger    *zap.Logger
}

// NewAnswerGenerator 创建答案生成器
func NewAnswerGenerator(cfg AnswerConfig, generator Generator, logger *zap.Logger) *AnswerGenerator {
	if cfg.NoDataResponse == "" {
		cfg.NoDataResponse = NoDataResponse
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnswerGenerator{
		cfg:       cfg,
		generator: generator,
		logger:    logger.With(zap.String("component", "answer_generator")),
	}
}

const answerPromptRU = `Ты — ассистент по базе знаний. Отвечай строго по контексту ниже.
Правила:
- Используй только факты из контекста, ничего не придумывай.
- Если в контексте нет ответа, напиши: %s
- Отвечай на языке вопроса, кратко и по делу.

КОНТЕКСТ:
%s

ВОПРОС: %s

ОТВЕТ:`

const answerPromptEN = `You are a knowledge base assistant. Answer strictly from the context below.
Rules:
- Use only facts from the context, never invent anything.
- If the context does not contain the answer, reply: %s
- Answer in the language of the question, briefly and to the point.

CONTEXT:
%s

QUESTION: %s

ANSWER:`

// Generate 合成回答。上下文为空返回无数据回答；生成失败是硬错误。
func (g *AnswerGenerator) Generate(ctx context.Context, question string, contexts []CompressedContext) (Answer, error) {
	nonEmpty := make([]CompressedContext, 0, len(contexts))
	for _, c := range contexts {
		if strings.TrimSpace(c.Text) != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}

	if len(nonEmpty) == 0 {
		g.logger.Info("no context available, returning no-data answer")
		return Answer{Text: g.cfg.NoDataResponse, NoData: true}, nil
	}

	var contextText strings.Builder
	for i, c := range nonEmpty {
		fmt.Fprintf(&contextText, "[%d] %s\n%s\n\n", i+1, c.DocName, c.Text)
	}

	template := answerPromptEN
	lang := DetectLanguage(question)
	if lang == LanguageRU || lang == LanguageMixed {
		template = answerPromptRU
	}
	prompt := fmt.Sprintf(template, g.cfg.NoDataResponse, strings.TrimSpace(contextText.String()), question)

	text, err := g.generator.Generate(ctx, prompt, lang)
	if err != nil {
		return Answer{}, fmt.Errorf("generate answer: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Answer{}, fmt.Errorf("generator returned empty answer")
	}

	answer := Answer{Text: text}
	if g.cfg.WithCitations {
		answer.Citations = uniqueDocNames(nonEmpty)
	}

	return answer, nil
}

// uniqueDocNames 保序去重来源文档名
func uniqueDocNames(contexts []CompressedContext) []string {
	seen := make(map[string]struct{})
	names := make([]string, 0, len(contexts))
	for _, c := range contexts {
		name := strings.TrimSpace(c.DocName)
		if name == "" {
			continue
		}
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names
}
