// Package openrouter is a chat-completions client for OpenRouter and other
// OpenAI-compatible endpoints.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hejijunhao/logwhisper/internal/httpclient"
)

const (
	DefaultEndpoint = "https://openrouter.ai/api/v1"
	DefaultModel    = "google/gemma-3n-e2b-it:free"
)

// Config configures the client.
type Config struct {
	APIKey    string
	Model     string
	Endpoint  string // base URL; /chat/completions is appended
	Timeout   time.Duration
	MaxTokens int
}

// Client completes prompts through the chat-completions API.
type Client struct {
	http      *httpclient.Client
	model     string
	maxTokens int
}

// New creates a Client. An API key is required.
func New(cfg Config, opts ...httpclient.Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openrouter: api key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 400
	}
	base := []httpclient.Option{
		httpclient.WithHeader("HTTP-Referer", "http://localhost"),
		httpclient.WithHeader("X-Title", "logwhisper"),
	}
	if cfg.Timeout > 0 {
		base = append(base, httpclient.WithTimeout(cfg.Timeout))
	}
	return &Client{
		http:      httpclient.New(cfg.Endpoint, cfg.APIKey, append(base, opts...)...),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
	}, nil
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

type response struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Complete sends prompt as a single user message at low temperature.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	req := request{
		Model:       c.model,
		Messages:    []message{{Role: "user", Content: prompt}},
		Temperature: 0.2,
		MaxTokens:   c.maxTokens,
	}
	var resp response
	if err := c.http.PostJSON(ctx, "/chat/completions", req, &resp); err != nil {
		return "", fmt.Errorf("openrouter: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openrouter: response has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}
