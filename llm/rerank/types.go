// Package rerank provides cross-encoder relevance scoring providers
// (Jina, Cohere) and an adapter exposing them as a plain pairwise scorer.
package rerank

import (
	"context"
	"fmt"
	"time"
)

// Document represents a document to be reranked.
type Document struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text"`
}

// RerankRequest is a request to rerank documents against a query.
type RerankRequest struct {
	Query           string     `json:"query"`
	Documents       []Document `json:"documents"`
	Model           string     `json:"model,omitempty"`
	TopN            int        `json:"top_n,omitempty"`
	ReturnDocuments bool       `json:"return_documents,omitempty"`
}

// RerankResult is one scored document.
type RerankResult struct {
	Index          int      `json:"index"`
	RelevanceScore float64  `json:"relevance_score"`
	Document       Document `json:"document,omitempty"`
}

// RerankResponse is the provider's answer.
type RerankResponse struct {
	Provider  string         `json:"provider"`
	Model     string         `json:"model"`
	Results   []RerankResult `json:"results"`
	Usage     RerankUsage    `json:"usage"`
	CreatedAt time.Time      `json:"created_at"`
}

// RerankUsage tracks token usage.
type RerankUsage struct {
	TotalTokens int `json:"total_tokens"`
}

// Provider is a reranking backend.
type Provider interface {
	Name() string
	MaxDocuments() int
	Rerank(ctx context.Context, req *RerankRequest) (*RerankResponse, error)
}

// Config configures a reranking provider.
type Config struct {
	Provider string        `yaml:"provider" json:"provider"` // jina | cohere
	Model    string        `yaml:"model,omitempty" json:"model,omitempty"`
	BaseURL  string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey   string        `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	Timeout  time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// DefaultConfig returns the default reranking settings.
func DefaultConfig() Config {
	return Config{
		Provider: "jina",
		Timeout:  30 * time.Second,
	}
}

// New builds a provider from config.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "jina", "":
		return NewJinaProvider(cfg), nil
	case "cohere":
		return NewCohereProvider(cfg), nil
	default:
		return nil, fmt.Errorf("unknown rerank provider: %s", cfg.Provider)
	}
}
