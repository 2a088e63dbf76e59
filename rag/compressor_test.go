package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func compressorChunks() []Chunk {
	return []Chunk{
		{ID: "d::chunk_0", DocID: "d", Text: "Ворота определяют темы."},
		{ID: "d::chunk_1", DocID: "d", Text: "Каналы соединяют центры."},
	}
}

func TestCompressor_HappyPath(t *testing.T) {
	gen := &stubGenerator{response: "Ворота определяют темы."}
	c := NewCompressor(DefaultCompressorConfig(), gen, zap.NewNop())

	out, err := c.Compress(context.Background(), "что такое ворота", compressorChunks())
	require.NoError(t, err)
	assert.Equal(t, "Ворота определяют темы.", out)

	// 提示词里要带上问题和编号片段
	require.Len(t, gen.prompts, 1)
	assert.Contains(t, gen.prompts[0], "что такое ворота")
	assert.Contains(t, gen.prompts[0], "[Фрагмент 1]")
	assert.Contains(t, gen.prompts[0], "[Фрагмент 2]")
}

func TestCompressor_EmptyOutputFallsBackToRaw(t *testing.T) {
	gen := &stubGenerator{response: "   "}
	c := NewCompressor(DefaultCompressorConfig(), gen, zap.NewNop())

	out, err := c.Compress(context.Background(), "вопрос", compressorChunks())
	require.NoError(t, err)
	// 压缩是优化不是闸门：空输出回退为原文拼接
	assert.Contains(t, out, "Ворота определяют темы.")
	assert.Contains(t, out, "Каналы соединяют центры.")
}

func TestCompressor_GenerationFailureFallsBackToRaw(t *testing.T) {
	gen := &stubGenerator{err: fmt.Errorf("llm down")}
	c := NewCompressor(DefaultCompressorConfig(), gen, zap.NewNop())

	out, err := c.Compress(context.Background(), "вопрос", compressorChunks())
	require.NoError(t, err)
	assert.NotEmpty(t, out)
	assert.Contains(t, out, "Ворота определяют темы.")
}

func TestCompressor_EmptyWindow(t *testing.T) {
	gen := &stubGenerator{response: "unused"}
	c := NewCompressor(DefaultCompressorConfig(), gen, zap.NewNop())

	out, err := c.Compress(context.Background(), "вопрос", nil)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, gen.prompts)
}
