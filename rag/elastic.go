package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ElasticConfig configures the Elasticsearch LexicalIndex implementation.
type ElasticConfig struct {
	BaseURL  string        `yaml:"base_url" json:"base_url"`
	Index    string        `yaml:"index" json:"index"`
	Username string        `yaml:"username,omitempty" json:"username,omitempty"`
	Password string        `yaml:"password,omitempty" json:"password,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	// TitleBoost weights section_title matches over body text.
	TitleBoost float64 `yaml:"title_boost" json:"title_boost"`
}

// DefaultElasticConfig returns the default Elasticsearch settings.
func DefaultElasticConfig() ElasticConfig {
	return ElasticConfig{
		BaseURL:    "http://localhost:9200",
		Index:      "askbase_chunks",
		Timeout:    30 * time.Second,
		TitleBoost: 2.0,
	}
}

// ElasticIndex implements LexicalIndex using Elasticsearch's REST API.
type ElasticIndex struct {
	cfg ElasticConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewElasticIndex creates an Elasticsearch-backed LexicalIndex.
func NewElasticIndex(cfg ElasticConfig, logger *zap.Logger) *ElasticIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:9200"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.TitleBoost <= 0 {
		cfg.TitleBoost = 2.0
	}

	return &ElasticIndex{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "elastic_index")),
	}
}

func (x *ElasticIndex) applyHeaders(req *http.Request, contentType string) {
	req.Header.Set("Content-Type", contentType)
	if x.cfg.Username != "" {
		req.SetBasicAuth(x.cfg.Username, x.cfg.Password)
	}
}

func (x *ElasticIndex) doJSON(ctx context.Context, method, path string, in any, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, x.baseURL+path, body)
	if err != nil {
		return err
	}
	x.applyHeaders(req, "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elasticsearch request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ensureIndex creates the index with an explicit mapping once.
func (x *ElasticIndex) ensureIndex(ctx context.Context) error {
	x.ensureOnce.Do(func() {
		mapping := map[string]any{
			"mappings": map[string]any{
				"properties": map[string]any{
					"chunk_id":      map[string]any{"type": "keyword"},
					"doc_id":        map[string]any{"type": "keyword"},
					"doc_name":      map[string]any{"type": "keyword"},
					"text":          map[string]any{"type": "text"},
					"order":         map[string]any{"type": "integer"},
					"start_char":    map[string]any{"type": "integer"},
					"end_char":      map[string]any{"type": "integer"},
					"language":      map[string]any{"type": "keyword"},
					"category":      map[string]any{"type": "keyword"},
					"allowed_roles": map[string]any{"type": "keyword"},
					"section_title": map[string]any{"type": "text"},
				},
			},
		}

		err := x.doJSON(ctx, http.MethodPut, "/"+url.PathEscape(x.cfg.Index), mapping, nil)
		if err != nil && strings.Contains(err.Error(), "resource_already_exists_exception") {
			err = nil
		}
		x.ensureErr = err
	})
	return x.ensureErr
}

// Index bulk-indexes chunks. Document IDs are the chunk IDs, so
// re-indexing the same chunk overwrites in place.
func (x *ElasticIndex) Index(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if err := x.ensureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}

	var buf bytes.Buffer
	for _, c := range chunks {
		action, _ := json.Marshal(map[string]any{
			"index": map[string]any{"_index": x.cfg.Index, "_id": c.ID},
		})
		doc, err := json.Marshal(chunkPayload(c))
		if err != nil {
			return fmt.Errorf("marshal chunk %s: %w", c.ID, err)
		}
		buf.Write(action)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, x.baseURL+"/_bulk?refresh=true", &buf)
	if err != nil {
		return err
	}
	x.applyHeaders(req, "application/x-ndjson")

	resp, err := x.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("elasticsearch bulk failed: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var bulkResp struct {
		Errors bool `json:"errors"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&bulkResp); err != nil {
		return err
	}
	if bulkResp.Errors {
		return fmt.Errorf("elasticsearch bulk reported item errors")
	}

	x.logger.Debug("elasticsearch bulk completed", zap.Int("count", len(chunks)))
	return nil
}

// Search runs a multi_match query over text and boosted section_title,
// restricted by the shared language/category filter semantics.
func (x *ElasticIndex) Search(ctx context.Context, query string, k int, filter SearchFilter) ([]LexicalHit, error) {
	if k <= 0 {
		return []LexicalHit{}, nil
	}

	must := []any{
		map[string]any{
			"multi_match": map[string]any{
				"query": query,
				"fields": []string{
					"text",
					fmt.Sprintf("section_title^%g", x.cfg.TitleBoost),
				},
			},
		},
	}

	filters := make([]any, 0, 2)
	if filter.Language != "" && filter.Language != LanguageMixed {
		filters = append(filters, map[string]any{
			"terms": map[string]any{"language": []string{filter.Language, LanguageMixed}},
		})
	}
	if filter.Category != "" && filter.Category != CategoryGeneral {
		filters = append(filters, map[string]any{
			"term": map[string]any{"category": filter.Category},
		})
	}

	body := map[string]any{
		"size": k,
		"query": map[string]any{
			"bool": map[string]any{
				"must":   must,
				"filter": filters,
			},
		},
	}

	var resp struct {
		Hits struct {
			Hits []struct {
				Score  float64        `json:"_score"`
				Source map[string]any `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	path := fmt.Sprintf("/%s/_search", url.PathEscape(x.cfg.Index))
	if err := x.doJSON(ctx, http.MethodPost, path, body, &resp); err != nil {
		return nil, err
	}

	hits := make([]LexicalHit, 0, len(resp.Hits.Hits))
	for _, h := range resp.Hits.Hits {
		hits = append(hits, LexicalHit{
			Chunk: chunkFromPayload(h.Source),
			Score: h.Score,
		})
	}
	return hits, nil
}

// Clear removes every document from the index.
func (x *ElasticIndex) Clear(ctx context.Context) error {
	body := map[string]any{
		"query": map[string]any{"match_all": map[string]any{}},
	}

	path := fmt.Sprintf("/%s/_delete_by_query?refresh=true", url.PathEscape(x.cfg.Index))
	err := x.doJSON(ctx, http.MethodPost, path, body, nil)
	if err != nil && strings.Contains(err.Error(), "index_not_found_exception") {
		return nil
	}
	if err != nil {
		return err
	}

	x.logger.Info("elasticsearch index cleared", zap.String("index", x.cfg.Index))
	return nil
}

// Ping checks cluster reachability. The pipeline calls this eagerly at
// construction and refuses to start when the engine is unreachable.
func (x *ElasticIndex) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, x.baseURL+"/", nil)
	if err != nil {
		return err
	}
	x.applyHeaders(req, "application/json")

	resp, err := x.client.Do(req)
	if err != nil {
		return fmt.Errorf("elasticsearch unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("elasticsearch ping failed: status=%d", resp.StatusCode)
	}
	return nil
}
