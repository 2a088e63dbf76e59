package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func lexicalCorpus() []Chunk {
	return []Chunk{
		{ID: "d1::chunk_0", DocID: "d1", Text: "ворота определяют устойчивые темы", Language: LanguageRU, Category: "gate"},
		{ID: "d1::chunk_1", DocID: "d1", Text: "каналы соединяют два центра", Language: LanguageRU, Category: "channel"},
		{ID: "d2::chunk_0", DocID: "d2", Text: "a gate defines stable themes", Language: LanguageEN, Category: "gate"},
	}
}

func newLexicalIndex(t *testing.T, chunks []Chunk) *InMemoryLexicalIndex {
	t.Helper()
	index := NewInMemoryLexicalIndex(DefaultBM25Config(), zap.NewNop())
	require.NoError(t, index.Index(context.Background(), chunks))
	return index
}

func TestInMemoryLexicalIndex_Ranking(t *testing.T) {
	index := newLexicalIndex(t, lexicalCorpus())

	hits, err := index.Search(context.Background(), "ворота темы", 10, SearchFilter{})
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "d1::chunk_0", hits[0].Chunk.ID)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestInMemoryLexicalIndex_NoMatchesOmitted(t *testing.T) {
	index := newLexicalIndex(t, lexicalCorpus())

	hits, err := index.Search(context.Background(), "планеты", 10, SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits, "zero-score chunks are not returned")
}

func TestInMemoryLexicalIndex_LanguageFilter(t *testing.T) {
	index := newLexicalIndex(t, lexicalCorpus())

	hits, err := index.Search(context.Background(), "gate themes", 10, SearchFilter{Language: LanguageEN})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d2::chunk_0", hits[0].Chunk.ID)
}

func TestInMemoryLexicalIndex_MixedChunkVisibleForTarget(t *testing.T) {
	chunks := []Chunk{
		{ID: "m::chunk_0", DocID: "m", Text: "ворота это gate", Language: LanguageMixed},
	}
	index := newLexicalIndex(t, chunks)

	hits, err := index.Search(context.Background(), "ворота", 10, SearchFilter{Language: LanguageRU})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestInMemoryLexicalIndex_CategoryFilter(t *testing.T) {
	index := newLexicalIndex(t, lexicalCorpus())

	hits, err := index.Search(context.Background(), "ворота каналы центра темы", 10, SearchFilter{Category: "channel"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "d1::chunk_1", hits[0].Chunk.ID)

	// general 不过滤
	hits, err = index.Search(context.Background(), "ворота каналы центра темы", 10, SearchFilter{Category: CategoryGeneral})
	require.NoError(t, err)
	assert.Greater(t, len(hits), 1)
}

func TestInMemoryLexicalIndex_TitleBoost(t *testing.T) {
	// 两个块正文相同，带命中标题的排在前面
	chunks := []Chunk{
		{ID: "a::chunk_0", DocID: "a", Text: "описание раздела"},
		{ID: "b::chunk_0", DocID: "b", Text: "описание раздела", SectionTitle: "Ворота"},
	}
	index := newLexicalIndex(t, chunks)

	hits, err := index.Search(context.Background(), "ворота описание", 10, SearchFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b::chunk_0", hits[0].Chunk.ID)
	assert.Greater(t, hits[0].Score, hits[1].Score)
}

func TestInMemoryLexicalIndex_TopK(t *testing.T) {
	index := newLexicalIndex(t, lexicalCorpus())

	hits, err := index.Search(context.Background(), "ворота каналы центра темы", 1, SearchFilter{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestInMemoryLexicalIndex_ClearAndPing(t *testing.T) {
	index := newLexicalIndex(t, lexicalCorpus())
	require.NoError(t, index.Ping(context.Background()))

	require.NoError(t, index.Clear(context.Background()))
	hits, err := index.Search(context.Background(), "ворота", 10, SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestTokenize(t *testing.T) {
	assert.Equal(t,
		[]string{"ворота", "gate", "41", "тема"},
		tokenize("Ворота (gate) #41, тема!"))
	assert.Empty(t, tokenize("!!! ..."))
}
