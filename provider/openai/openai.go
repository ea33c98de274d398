package openai_provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/mohammad-safakhou/searchrag/provider/models"
)

// Client calls the OpenAI chat completions API.
type Client struct {
	client *openai.Client
}

// NewOpenAIClient builds a client. baseURL may be empty for the public API.
func NewOpenAIClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errors.New("openai client requires an API key")
	}
	cfg := openai.DefaultConfig(key)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: timeout}
	return &Client{client: openai.NewClientWithConfig(cfg)}, nil
}

func (c *Client) Complete(ctx context.Context, req models.Request) (models.Response, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: req.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return models.Response{}, fmt.Errorf("openai completion failed: %w", err)
	}

	var out models.Response
	for _, choice := range resp.Choices {
		out.Segments = append(out.Segments, choice.Message.Content)
	}
	return out, nil
}
