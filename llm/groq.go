package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GroqClient implements Client against Groq's OpenAI-compatible
// chat completions endpoint.
type GroqClient struct {
	cfg    Config
	client *http.Client
}

// NewGroqClient creates a Groq-backed generation client.
func NewGroqClient(cfg Config) *GroqClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Model == "" {
		cfg.Model = "llama-3.3-70b-versatile"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &GroqClient{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
	}
}

func (c *GroqClient) Name() string { return "groq" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Generate sends one chat completion request and returns the text.
func (c *GroqClient) Generate(ctx context.Context, prompt string, lang string) (string, error) {
	messages := []chatMessage{}
	if lang != "" {
		messages = append(messages, chatMessage{
			Role:    "system",
			Content: fmt.Sprintf("Answer in language: %s", lang),
		})
	}
	messages = append(messages, chatMessage{Role: "user", Content: prompt})

	body := chatCompletionRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Temperature: c.cfg.Temperature,
		MaxTokens:   c.cfg.MaxTokens,
	}

	payload, _ := json.Marshal(body)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(c.cfg.BaseURL, "/")+"/chat/completions",
		bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("groq request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		raw, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("groq error: status=%d body=%s", resp.StatusCode, string(raw))
	}

	var cResp chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("failed to decode groq response: %w", err)
	}

	if len(cResp.Choices) == 0 {
		return "", fmt.Errorf("groq returned no choices")
	}
	text := strings.TrimSpace(cResp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("groq returned empty content")
	}
	return text, nil
}
