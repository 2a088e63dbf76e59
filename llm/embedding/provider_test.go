package embedding

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ProviderSelection(t *testing.T) {
	p, err := New(Config{Provider: "openai"})
	require.NoError(t, err)
	assert.Equal(t, "openai-embedding", p.Name())

	p, err = New(Config{Provider: "ollama"})
	require.NoError(t, err)
	assert.Equal(t, "ollama-embedding", p.Name())

	// 空 provider 默认 ollama
	p, err = New(Config{})
	require.NoError(t, err)
	assert.Equal(t, "ollama-embedding", p.Name())

	_, err = New(Config{Provider: "cohere"})
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	vec := normalize([]float64{3, 4})
	assert.InDelta(t, 0.6, vec[0], 1e-9)
	assert.InDelta(t, 0.8, vec[1], 1e-9)

	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-9)

	// 零向量原样返回，不除零
	assert.Equal(t, []float64{0, 0}, normalize([]float64{0, 0}))
}

func TestOpenAIProvider_EmbedBatch(t *testing.T) {
	var gotReq openAIEmbeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))
		// 乱序返回：index 映射要把顺序还原
		w.Write([]byte(`{"data":[{"index":1,"embedding":[0,2]},{"index":0,"embedding":[3,4]}]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(Config{BaseURL: srv.URL, APIKey: "test-key", Model: "test-model"})

	vecs, err := p.Embed(context.Background(), []string{"первый", "второй"})
	require.NoError(t, err)
	require.Len(t, vecs, 2)

	assert.Equal(t, []string{"первый", "второй"}, gotReq.Input)
	assert.InDelta(t, 0.6, vecs[0][0], 1e-9, "index 0 comes back normalized in slot 0")
	assert.InDelta(t, 1.0, vecs[1][1], 1e-9)
}

func TestOpenAIProvider_EmbedEmptyInput(t *testing.T) {
	p := NewOpenAIProvider(Config{BaseURL: "http://127.0.0.1:1"})
	vecs, err := p.Embed(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, vecs, "no request for empty input")
}

func TestOpenAIProvider_SizeMismatchIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"index":0,"embedding":[1,0]}]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(Config{BaseURL: srv.URL})
	_, err := p.Embed(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "size mismatch")
}

func TestOpenAIProvider_ErrorStatusSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"bad key"}`))
	}))
	t.Cleanup(srv.Close)

	p := NewOpenAIProvider(Config{BaseURL: srv.URL})
	_, err := p.EmbedOne(context.Background(), "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status=401")
}

func TestOllamaProvider_EmbedOnePerText(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/api/embeddings", r.URL.Path)
		w.Write([]byte(`{"embedding":[0,3]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewOllamaProvider(Config{BaseURL: srv.URL})

	vecs, err := p.Embed(context.Background(), []string{"a", "b", "c"})
	require.NoError(t, err)
	require.Len(t, vecs, 3)
	assert.Equal(t, 3, calls, "ollama has no batch endpoint")
	assert.InDelta(t, 1.0, vecs[0][1], 1e-9, "vectors are normalized")
}

func TestOllamaProvider_EmptyEmbeddingIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"embedding":[]}`))
	}))
	t.Cleanup(srv.Close)

	p := NewOllamaProvider(Config{BaseURL: srv.URL})
	_, err := p.EmbedOne(context.Background(), "text")
	assert.Error(t, err)
}
