package rag

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"
)

// =============================================================================
// 🧪 融合引擎测试
// =============================================================================

func denseHit(id string, score float64) Candidate {
	return Candidate{Chunk: Chunk{ID: id}, DenseScore: score}
}

func lexHit(id string, score float64) Candidate {
	return Candidate{Chunk: Chunk{ID: id}, LexicalScore: score}
}

func TestFuse_SingleCandidateBothChannels(t *testing.T) {
	// 稠密 0.9 + 词法 12.0（即 max_lex）⇒ 0.6*0.9 + 0.4*1.0 = 0.94
	fused := Fuse(
		[]Candidate{denseHit("d1::chunk_0", 0.9)},
		[]Candidate{lexHit("d1::chunk_0", 12.0)},
		0.6,
	)

	require.Len(t, fused, 1)
	c := fused[0]
	assert.Equal(t, "d1::chunk_0", c.Chunk.ID)
	assert.InDelta(t, 0.9, c.DenseScore, 1e-9)
	assert.InDelta(t, 12.0, c.LexicalScore, 1e-9)
	assert.InDelta(t, 1.0, c.LexicalNorm, 1e-9)
	assert.InDelta(t, 0.94, c.Score, 1e-9)
}

func TestFuse_EmptyBothChannels(t *testing.T) {
	fused := Fuse(nil, nil, 0.6)
	assert.Empty(t, fused)
}

func TestFuse_LexicalOnlyStillSurfaces(t *testing.T) {
	fused := Fuse(nil, []Candidate{lexHit("c1", 3.0), lexHit("c2", 1.5)}, 0.6)

	require.Len(t, fused, 2)
	assert.Equal(t, "c1", fused[0].Chunk.ID)
	assert.Zero(t, fused[0].DenseScore)
	assert.InDelta(t, 1.0, fused[0].LexicalNorm, 1e-9)
	assert.InDelta(t, 0.5, fused[1].LexicalNorm, 1e-9)
}

func TestFuse_MaxAggregationWithinChannel(t *testing.T) {
	// 同一 chunk 在一个通道出现两次取 max，不累加
	fused := Fuse(
		[]Candidate{denseHit("c1", 0.5), denseHit("c1", 0.8)},
		[]Candidate{lexHit("c1", 2.0), lexHit("c1", 5.0)},
		0.6,
	)

	require.Len(t, fused, 1)
	assert.InDelta(t, 0.8, fused[0].DenseScore, 1e-9)
	assert.InDelta(t, 5.0, fused[0].LexicalScore, 1e-9)
}

func TestFuse_AllZeroLexical(t *testing.T) {
	fused := Fuse(
		[]Candidate{denseHit("c1", 0.7)},
		[]Candidate{lexHit("c2", 0.0)},
		0.6,
	)

	require.Len(t, fused, 2)
	for _, c := range fused {
		assert.Zero(t, c.LexicalNorm, "no division by zero when all lexical scores are 0")
	}
}

func TestFuse_UnionCompletenessProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		nd := rapid.IntRange(0, 15).Draw(t, "nd")
		nl := rapid.IntRange(0, 15).Draw(t, "nl")

		want := make(map[string]struct{})
		dense := make([]Candidate, 0, nd)
		for i := 0; i < nd; i++ {
			id := fmt.Sprintf("d%d", rapid.IntRange(0, 9).Draw(t, "did"))
			score := rapid.Float64Range(0, 1).Draw(t, "ds")
			dense = append(dense, denseHit(id, score))
			want[id] = struct{}{}
		}
		lexical := make([]Candidate, 0, nl)
		for i := 0; i < nl; i++ {
			id := fmt.Sprintf("l%d", rapid.IntRange(0, 9).Draw(t, "lid"))
			score := rapid.Float64Range(0, 50).Draw(t, "ls")
			lexical = append(lexical, lexHit(id, score))
			want[id] = struct{}{}
		}

		fused := Fuse(dense, lexical, 0.6)

		got := make(map[string]struct{})
		for _, c := range fused {
			got[c.Chunk.ID] = struct{}{}
		}
		// 输出恰好是两个来源 id 的并集
		assert.Equal(t, want, got)
		assert.Len(t, fused, len(want))
	})
}

func TestFuse_ScoreBoundsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(1, 20).Draw(t, "n")

		dense := make([]Candidate, 0, n)
		lexical := make([]Candidate, 0, n)
		for i := 0; i < n; i++ {
			id := fmt.Sprintf("c%d", i)
			dense = append(dense, denseHit(id, rapid.Float64Range(0, 1).Draw(t, "ds")))
			lexical = append(lexical, lexHit(id, rapid.Float64Range(0, 100).Draw(t, "ls")))
		}

		for _, c := range Fuse(dense, lexical, 0.6) {
			assert.GreaterOrEqual(t, c.Score, 0.0)
			assert.LessOrEqual(t, c.Score, 1.0+1e-9)
			assert.GreaterOrEqual(t, c.LexicalNorm, 0.0)
			assert.LessOrEqual(t, c.LexicalNorm, 1.0+1e-9)
		}
	})
}

// ====== HybridSearcher（双通道并发检索）======

// stubEmbedder 确定性向量：按文本哈希生成
type stubEmbedder struct {
	fail bool
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if s.fail {
		return nil, fmt.Errorf("embedder down")
	}
	out := make([][]float64, len(texts))
	for i, t := range texts {
		out[i] = stubVector(t)
	}
	return out, nil
}

func (s *stubEmbedder) EmbedOne(ctx context.Context, text string) ([]float64, error) {
	if s.fail {
		return nil, fmt.Errorf("embedder down")
	}
	return stubVector(text), nil
}

// stubVector 三维确定性向量，归一化
func stubVector(text string) []float64 {
	var a, b, c float64
	for i, r := range text {
		switch i % 3 {
		case 0:
			a += float64(r)
		case 1:
			b += float64(r)
		case 2:
			c += float64(r)
		}
	}
	sum := a + b + c
	if sum == 0 {
		return []float64{1, 0, 0}
	}
	return []float64{a / sum, b / sum, c / sum}
}

func newTestIndexes(t *testing.T, chunks []Chunk) (*InMemoryChunkStore, *InMemoryLexicalIndex) {
	t.Helper()
	store := NewInMemoryChunkStore(zap.NewNop())
	index := NewInMemoryLexicalIndex(DefaultBM25Config(), zap.NewNop())

	vectors := make([][]float64, len(chunks))
	for i, c := range chunks {
		vectors[i] = stubVector(c.Text)
	}
	require.NoError(t, store.Index(context.Background(), chunks, vectors))
	require.NoError(t, index.Index(context.Background(), chunks))
	return store, index
}

func TestHybridSearcher_Search(t *testing.T) {
	chunks := []Chunk{
		{ID: "d1::chunk_0", DocID: "d1", Text: "a gate defines stable themes in the chart", Language: LanguageEN, Category: "gate", AllowedRoles: "*"},
		{ID: "d1::chunk_1", DocID: "d1", Text: "channels connect two centers together", Language: LanguageEN, Category: "channel", AllowedRoles: "*"},
		{ID: "d2::chunk_0", DocID: "d2", Text: "centers are energy hubs", Language: LanguageEN, Category: "center", AllowedRoles: "*"},
	}
	store, index := newTestIndexes(t, chunks)

	dense := NewDenseRetriever(store, &stubEmbedder{}, zap.NewNop())
	lexical := NewLexicalRetriever(index, zap.NewNop())
	searcher := NewHybridSearcher(DefaultHybridConfig(), dense, lexical, zap.NewNop())

	fused, err := searcher.Search(context.Background(), "what is a gate", SearchFilter{Language: LanguageEN})
	require.NoError(t, err)
	require.NotEmpty(t, fused)

	// 词法强命中的 gate 块应当排在前面
	assert.Equal(t, "d1::chunk_0", fused[0].Chunk.ID)
}

func TestHybridSearcher_EmbedderFailureIsHard(t *testing.T) {
	chunks := []Chunk{{ID: "c", DocID: "d", Text: "text", AllowedRoles: "*"}}
	store, index := newTestIndexes(t, chunks)

	dense := NewDenseRetriever(store, &stubEmbedder{fail: true}, zap.NewNop())
	lexical := NewLexicalRetriever(index, zap.NewNop())
	searcher := NewHybridSearcher(DefaultHybridConfig(), dense, lexical, zap.NewNop())

	_, err := searcher.Search(context.Background(), "query", SearchFilter{})
	assert.Error(t, err)
}

func TestHybridSearcher_EmptyCorpus(t *testing.T) {
	store := NewInMemoryChunkStore(zap.NewNop())
	index := NewInMemoryLexicalIndex(DefaultBM25Config(), zap.NewNop())

	dense := NewDenseRetriever(store, &stubEmbedder{}, zap.NewNop())
	lexical := NewLexicalRetriever(index, zap.NewNop())
	searcher := NewHybridSearcher(DefaultHybridConfig(), dense, lexical, zap.NewNop())

	fused, err := searcher.Search(context.Background(), "anything", SearchFilter{})
	require.NoError(t, err)
	assert.Empty(t, fused)
}
