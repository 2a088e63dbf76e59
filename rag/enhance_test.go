package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestEnhancer_ParsesJSON(t *testing.T) {
	gen := &stubGenerator{response: `{"variations": ["что значит ворота", "смысл ворот"], "hypothetical_answer": "Ворота определяют темы."}`}
	e := NewEnhancer(DefaultEnhancerConfig(), gen, zap.NewNop())

	enh := e.Enhance(context.Background(), "что такое ворота")
	assert.False(t, enh.Failed)
	assert.Equal(t, []string{"что значит ворота", "смысл ворот"}, enh.Variations)
	assert.Equal(t, "Ворота определяют темы.", enh.HypotheticalAnswer)
}

func TestEnhancer_ToleratesCodeFence(t *testing.T) {
	gen := &stubGenerator{response: "```json\n{\"variations\": [\"смысл ворот\"], \"hypothetical_answer\": \"\"}\n```"}
	e := NewEnhancer(DefaultEnhancerConfig(), gen, zap.NewNop())

	enh := e.Enhance(context.Background(), "что такое ворота")
	assert.False(t, enh.Failed)
	assert.Equal(t, []string{"смысл ворот"}, enh.Variations)
	assert.Empty(t, enh.HypotheticalAnswer)
}

func TestEnhancer_UnparsableFailsSoft(t *testing.T) {
	gen := &stubGenerator{response: "извини, не могу помочь"}
	e := NewEnhancer(DefaultEnhancerConfig(), gen, zap.NewNop())

	enh := e.Enhance(context.Background(), "что такое ворота")
	assert.True(t, enh.Failed)
	assert.Equal(t, "parse_failed", enh.Reason)
	assert.Empty(t, enh.Variations)
	assert.Empty(t, enh.HypotheticalAnswer)
}

func TestEnhancer_GenerationFailureFailsSoft(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("llm down")}
	e := NewEnhancer(DefaultEnhancerConfig(), gen, zap.NewNop())

	enh := e.Enhance(context.Background(), "что такое ворота")
	assert.True(t, enh.Failed)
	assert.Equal(t, "generation_failed", enh.Reason)
}

func TestEnhancer_LanguageMismatchDiscarded(t *testing.T) {
	// 俄语查询：英文变体和英文假设答案要被丢弃
	gen := &stubGenerator{response: `{"variations": ["what is a gate", "что значит ворота"], "hypothetical_answer": "A gate defines themes."}`}
	e := NewEnhancer(EnhancerConfig{NumVariations: 3, Hypothetical: true}, gen, zap.NewNop())

	enh := e.Enhance(context.Background(), "что такое ворота")
	assert.False(t, enh.Failed)
	assert.Equal(t, []string{"что значит ворота"}, enh.Variations)
	assert.Empty(t, enh.HypotheticalAnswer)
}

func TestEnhancer_TruncatesVariations(t *testing.T) {
	gen := &stubGenerator{response: `{"variations": ["вариант один", "вариант два", "вариант три"], "hypothetical_answer": ""}`}
	e := NewEnhancer(EnhancerConfig{NumVariations: 2, Hypothetical: true}, gen, zap.NewNop())

	enh := e.Enhance(context.Background(), "что такое ворота")
	assert.Len(t, enh.Variations, 2)
}

func TestEnhancer_HypotheticalDisabled(t *testing.T) {
	gen := &stubGenerator{response: `{"variations": [], "hypothetical_answer": "Ворота определяют темы."}`}
	e := NewEnhancer(EnhancerConfig{NumVariations: 2, Hypothetical: false}, gen, zap.NewNop())

	enh := e.Enhance(context.Background(), "что такое ворота")
	assert.Empty(t, enh.HypotheticalAnswer)
}
