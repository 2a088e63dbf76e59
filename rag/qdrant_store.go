package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// QdrantConfig configures the Qdrant ChunkStore implementation.
//
// Notes:
// - Qdrant point IDs are UUIDs; a stable UUID is derived from Chunk.ID.
// - Chunk text and metadata are stored in the point payload.
type QdrantConfig struct {
	Host       string        `yaml:"host" json:"host"`
	Port       int           `yaml:"port" json:"port"`
	BaseURL    string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey     string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Collection string        `yaml:"collection" json:"collection"`
	Timeout    time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`

	AutoCreateCollection bool   `yaml:"auto_create_collection,omitempty" json:"auto_create_collection,omitempty"`
	Distance             string `yaml:"distance,omitempty" json:"distance,omitempty"` // Cosine (default), Dot, Euclid
	VectorSize           int    `yaml:"vector_size,omitempty" json:"vector_size,omitempty"`
}

// DefaultQdrantConfig returns the default Qdrant settings.
func DefaultQdrantConfig() QdrantConfig {
	return QdrantConfig{
		Host:                 "localhost",
		Port:                 6333,
		Collection:           "askbase_chunks",
		Timeout:              30 * time.Second,
		AutoCreateCollection: true,
		Distance:             "Cosine",
	}
}

// QdrantStore implements ChunkStore using Qdrant's REST API.
type QdrantStore struct {
	cfg QdrantConfig

	baseURL string
	client  *http.Client
	logger  *zap.Logger

	ensureOnce sync.Once
	ensureErr  error
}

// NewQdrantStore creates a Qdrant-backed ChunkStore.
func NewQdrantStore(cfg QdrantConfig, logger *zap.Logger) *QdrantStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = 6333
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Distance == "" {
		cfg.Distance = "Cosine"
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	}

	return &QdrantStore{
		cfg:     cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger.With(zap.String("component", "qdrant_store")),
	}
}

var qdrantNamespace = uuid.MustParse("a2e8f0c1-93d4-4b5a-9e6f-1c7d8b2a3f40")

func qdrantPointID(chunkID string) string {
	// Stable UUID derived from chunk ID (supports any string input).
	return uuid.NewSHA1(qdrantNamespace, []byte(chunkID)).String()
}

func (s *QdrantStore) ensureCollection(ctx context.Context, vectorSize int) error {
	if !s.cfg.AutoCreateCollection {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}
	if vectorSize <= 0 {
		return fmt.Errorf("qdrant vector size must be > 0")
	}

	s.ensureOnce.Do(func() {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     vectorSize,
				"distance": s.cfg.Distance,
			},
		}

		endpoint := fmt.Sprintf("%s/collections/%s", s.baseURL, url.PathEscape(s.cfg.Collection))
		reqBody, _ := json.Marshal(body)
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, endpoint, bytes.NewReader(reqBody))
		if err != nil {
			s.ensureErr = err
			return
		}
		s.applyHeaders(req)

		resp, err := s.client.Do(req)
		if err != nil {
			s.ensureErr = err
			return
		}
		defer resp.Body.Close()

		// Qdrant returns 409 if the collection exists.
		if resp.StatusCode == http.StatusConflict {
			s.ensureErr = nil
			return
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			raw, _ := io.ReadAll(resp.Body)
			s.ensureErr = fmt.Errorf("qdrant create collection failed: status=%d body=%s", resp.StatusCode, string(raw))
			return
		}
		s.ensureErr = nil
	})

	return s.ensureErr
}

func (s *QdrantStore) applyHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(s.cfg.APIKey) != "" {
		// Qdrant convention.
		req.Header.Set("api-key", s.cfg.APIKey)
	}
}

func (s *QdrantStore) doJSON(ctx context.Context, method, path string, in any, out any) error {
	endpoint := s.baseURL + path

	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	s.applyHeaders(req)

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("qdrant request failed: method=%s path=%s status=%d body=%s", method, path, resp.StatusCode, string(raw))
	}

	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func chunkPayload(c Chunk) map[string]any {
	return map[string]any{
		"chunk_id":      c.ID,
		"doc_id":        c.DocID,
		"doc_name":      c.DocName,
		"text":          c.Text,
		"order":         c.Order,
		"start_char":    c.StartChar,
		"end_char":      c.EndChar,
		"language":      c.Language,
		"category":      c.Category,
		"allowed_roles": c.AllowedRoles,
		"section_title": c.SectionTitle,
	}
}

func chunkFromPayload(p map[string]any) Chunk {
	str := func(key string) string {
		if v, ok := p[key].(string); ok {
			return v
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := p[key].(float64); ok {
			return int(v)
		}
		return 0
	}
	return Chunk{
		ID:           str("chunk_id"),
		DocID:        str("doc_id"),
		DocName:      str("doc_name"),
		Text:         str("text"),
		Order:        num("order"),
		StartChar:    num("start_char"),
		EndChar:      num("end_char"),
		Language:     str("language"),
		Category:     str("category"),
		AllowedRoles: str("allowed_roles"),
		SectionTitle: str("section_title"),
	}
}

// qdrantFilter translates SearchFilter into a Qdrant filter clause:
// language must equal the target or "mixed"; category must match
// unless it is the generic value.
func qdrantFilter(filter SearchFilter) map[string]any {
	must := make([]any, 0, 2)

	if filter.Language != "" && filter.Language != LanguageMixed {
		must = append(must, map[string]any{
			"should": []any{
				map[string]any{"key": "language", "match": map[string]any{"value": filter.Language}},
				map[string]any{"key": "language", "match": map[string]any{"value": LanguageMixed}},
			},
		})
	}
	if filter.Category != "" && filter.Category != CategoryGeneral {
		must = append(must, map[string]any{
			"key":   "category",
			"match": map[string]any{"value": filter.Category},
		})
	}

	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

// Index upserts chunks with their vectors.
func (s *QdrantStore) Index(ctx context.Context, chunks []Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks/vectors length mismatch: %d != %d", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}

	vectorSize := s.cfg.VectorSize
	for i, c := range chunks {
		if c.ID == "" {
			return fmt.Errorf("chunk[%d] has empty id", i)
		}
		if len(vectors[i]) == 0 {
			return fmt.Errorf("chunk %s has no vector", c.ID)
		}
		if vectorSize == 0 {
			vectorSize = len(vectors[i])
		}
		if len(vectors[i]) != vectorSize {
			return fmt.Errorf("chunk %s vector dimension mismatch: got=%d want=%d", c.ID, len(vectors[i]), vectorSize)
		}
	}

	if err := s.ensureCollection(ctx, vectorSize); err != nil {
		return err
	}

	type point struct {
		ID      string         `json:"id"`
		Vector  []float64      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}

	points := make([]point, 0, len(chunks))
	for i, c := range chunks {
		points = append(points, point{
			ID:      qdrantPointID(c.ID),
			Vector:  vectors[i],
			Payload: chunkPayload(c),
		})
	}

	req := struct {
		Points []point `json:"points"`
	}{Points: points}

	path := fmt.Sprintf("/collections/%s/points?wait=true", url.PathEscape(s.cfg.Collection))
	var resp any
	if err := s.doJSON(ctx, http.MethodPut, path, req, &resp); err != nil {
		return err
	}

	s.logger.Debug("qdrant upsert completed", zap.Int("count", len(chunks)))
	return nil
}

// Query performs filtered similarity search.
func (s *QdrantStore) Query(ctx context.Context, vector []float64, k int, filter SearchFilter) ([]StoreHit, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}
	if k <= 0 {
		return []StoreHit{}, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("query vector is required")
	}

	req := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"with_vector":  false,
	}
	if f := qdrantFilter(filter); f != nil {
		req["filter"] = f
	}

	var resp struct {
		Result []struct {
			ID      any            `json:"id"`
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/search", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}

	out := make([]StoreHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		chunk := chunkFromPayload(r.Payload)
		if chunk.ID == "" {
			chunk.ID = fmt.Sprint(r.ID)
		}
		// Cosine similarity comes back as score; distance is its complement.
		out = append(out, StoreHit{
			Chunk:    chunk,
			Distance: 1.0 - r.Score,
		})
	}
	return out, nil
}

// QueryByMetadata scrolls points matching doc_id + order range.
func (s *QdrantStore) QueryByMetadata(ctx context.Context, q NeighborQuery) ([]Chunk, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return nil, fmt.Errorf("qdrant collection is required")
	}

	filter := map[string]any{
		"must": []any{
			map[string]any{"key": "doc_id", "match": map[string]any{"value": q.DocID}},
			map[string]any{"key": "order", "range": map[string]any{"gte": q.MinOrder, "lte": q.MaxOrder}},
		},
	}

	path := fmt.Sprintf("/collections/%s/points/scroll", url.PathEscape(s.cfg.Collection))

	chunks := make([]Chunk, 0)
	var offset any
	for {
		req := map[string]any{
			"filter":       filter,
			"limit":        256,
			"with_payload": true,
			"with_vector":  false,
		}
		if offset != nil {
			req["offset"] = offset
		}

		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
			return nil, err
		}

		for _, p := range resp.Result.Points {
			chunks = append(chunks, chunkFromPayload(p.Payload))
		}

		if resp.Result.NextPageOffset == nil {
			break
		}
		offset = resp.Result.NextPageOffset
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].Order < chunks[j].Order })
	return chunks, nil
}

// Clear deletes all points in the collection.
func (s *QdrantStore) Clear(ctx context.Context) error {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return fmt.Errorf("qdrant collection is required")
	}

	req := map[string]any{
		"filter": map[string]any{},
	}

	path := fmt.Sprintf("/collections/%s/points/delete?wait=true", url.PathEscape(s.cfg.Collection))
	var resp any
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return err
	}

	s.logger.Info("qdrant collection cleared", zap.String("collection", s.cfg.Collection))
	return nil
}

// Count returns the exact number of stored points.
func (s *QdrantStore) Count(ctx context.Context) (int, error) {
	if strings.TrimSpace(s.cfg.Collection) == "" {
		return 0, fmt.Errorf("qdrant collection is required")
	}

	req := struct {
		Exact bool `json:"exact"`
	}{Exact: true}

	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}

	path := fmt.Sprintf("/collections/%s/points/count", url.PathEscape(s.cfg.Collection))
	if err := s.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.Count, nil
}
