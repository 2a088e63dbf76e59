package rerank

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProviderSelection(t *testing.T) {
	p, err := New(Config{Provider: "jina"})
	require.NoError(t, err)
	assert.Equal(t, "jina-rerank", p.Name())

	p, err = New(Config{Provider: "cohere"})
	require.NoError(t, err)
	assert.Equal(t, "cohere-rerank", p.Name())

	// 空 provider 默认 jina
	p, err = New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "jina-rerank", p.Name())

	_, err = New(Config{Provider: "voyage"})
	assert.Error(t, err)
}

func TestJinaProvider_Rerank(t *testing.T) {
	var gotReq jinaRerankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rerank", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"model":"jina-reranker-v2-base-multilingual","results":[{"index":1,"relevance_score":0.9},{"index":0,"relevance_score":0.2}],"usage":{"total_tokens":42}}`))
	}))
	t.Cleanup(srv.Close)

	p := NewJinaProvider(Config{BaseURL: srv.URL, APIKey: "test-key"})

	resp, err := p.Rerank(context.Background(), &RerankRequest{
		Query: "что такое ворота",
		Documents: []Document{
			{ID: "c1", Text: "каналы"},
			{ID: "c2", Text: "ворота"},
		},
		TopN: 2,
	})
	require.NoError(t, err)

	assert.Equal(t, "jina-reranker-v2-base-multilingual", gotReq.Model)
	assert.Equal(t, []string{"каналы", "ворота"}, gotReq.Documents)

	require.Len(t, resp.Results, 2)
	assert.Equal(t, 1, resp.Results[0].Index)
	assert.InDelta(t, 0.9, resp.Results[0].RelevanceScore, 1e-9)
	assert.Equal(t, "c2", resp.Results[0].Document.ID, "document id mapped back by index")
	assert.Equal(t, 42, resp.Usage.TotalTokens)
}

func TestJinaProvider_ErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusPaymentRequired)
		w.Write([]byte(`{"detail":"quota exceeded"}`))
	}))
	t.Cleanup(srv.Close)

	p := NewJinaProvider(Config{BaseURL: srv.URL})
	_, err := p.Rerank(context.Background(), &RerankRequest{Query: "q", Documents: []Document{{Text: "t"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=402")
}

func TestCohereProvider_Rerank(t *testing.T) {
	var gotReq cohereRerankRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/rerank", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		w.Write([]byte(`{"results":[{"index":0,"relevance_score":0.7}],"meta":{"billed_units":{"search_units":1}}}`))
	}))
	t.Cleanup(srv.Close)

	p := NewCohereProvider(Config{BaseURL: srv.URL, APIKey: "test-key"})

	resp, err := p.Rerank(context.Background(), &RerankRequest{
		Query:     "q",
		Documents: []Document{{ID: "c1", Text: "текст"}},
	})
	require.NoError(t, err)

	assert.Equal(t, "rerank-multilingual-v3.0", gotReq.Model)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "c1", resp.Results[0].Document.ID)
	assert.InDelta(t, 0.7, resp.Results[0].RelevanceScore, 1e-9)
}

// fakeProvider 可编程的 Provider 桩
type fakeProvider struct {
	maxDocs int
	results []RerankResult
	err     error
	gotReq  *RerankRequest
}

func (f *fakeProvider) Name() string      { return "fake" }
func (f *fakeProvider) MaxDocuments() int { return f.maxDocs }

func (f *fakeProvider) Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &RerankResponse{Provider: f.Name(), Results: f.results}, nil
}

func TestScorer_MapsScoresBackToInputOrder(t *testing.T) {
	provider := &fakeProvider{
		maxDocs: 100,
		// 提供方按相关性降序返回
		results: []RerankResult{
			{Index: 2, RelevanceScore: 0.9},
			{Index: 0, RelevanceScore: 0.5},
			{Index: 1, RelevanceScore: 0.1},
		},
	}
	scorer := NewScorer(provider)

	scores, err := scorer.Score(context.Background(), "q", []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.1, 0.9}, scores)

	require.NotNil(t, provider.gotReq)
	assert.Equal(t, 3, provider.gotReq.TopN, "every document is scored")
}

func TestScorer_EmptyInput(t *testing.T) {
	scorer := NewScorer(&fakeProvider{maxDocs: 100})
	scores, err := scorer.Score(context.Background(), "q", nil)
	require.NoError(t, err)
	assert.Empty(t, scores)
}

func TestScorer_TooManyDocuments(t *testing.T) {
	scorer := NewScorer(&fakeProvider{maxDocs: 2})
	_, err := scorer.Score(context.Background(), "q", []string{"a", "b", "c"})
	assert.Error(t, err)
}

func TestScorer_OutOfRangeIndexIsError(t *testing.T) {
	provider := &fakeProvider{
		maxDocs: 100,
		results: []RerankResult{{Index: 5, RelevanceScore: 0.9}},
	}
	scorer := NewScorer(provider)

	_, err := scorer.Score(context.Background(), "q", []string{"a"})
	assert.Error(t, err)
}
