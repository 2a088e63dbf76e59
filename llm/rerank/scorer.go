package rerank

import (
	"context"
	"fmt"
)

// Scorer 把 Provider 适配成简单的成对打分器：
// score(query, texts) -> 每个 text 一个相关性分数，顺序与输入一致。
type Scorer struct {
	provider Provider
}

// NewScorer 创建打分适配器。
func NewScorer(provider Provider) *Scorer {
	return &Scorer{provider: provider}
}

// Score 对每个 (query, text) 对打分。
// 提供方按相关性排序返回，这里按 index 映射回输入顺序。
func (s *Scorer) Score(ctx context.Context, query string, texts []string) ([]float64, error) {
	if len(texts) == 0 {
		return []float64{}, nil
	}
	if max := s.provider.MaxDocuments(); len(texts) > max {
		return nil, fmt.Errorf("too many documents for %s: %d > %d", s.provider.Name(), len(texts), max)
	}

	docs := make([]Document, len(texts))
	for i, t := range texts {
		docs[i] = Document{Text: t}
	}

	resp, err := s.provider.Rerank(ctx, &RerankRequest{
		Query:     query,
		Documents: docs,
		TopN:      len(docs),
	})
	if err != nil {
		return nil, err
	}

	scores := make([]float64, len(texts))
	for _, r := range resp.Results {
		if r.Index < 0 || r.Index >= len(scores) {
			return nil, fmt.Errorf("rerank result index out of range: %d", r.Index)
		}
		scores[r.Index] = r.RelevanceScore
	}
	return scores, nil
}
