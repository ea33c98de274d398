package anthropic_provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mohammad-safakhou/searchrag/provider/models"
)

// Client calls the Anthropic Messages API with a single user message.
type Client struct {
	client anthropic.Client
}

// NewAnthropicClient builds a client. baseURL may be empty. SDK retries are
// disabled so a failed call degrades to the fallback answer immediately.
func NewAnthropicClient(apiKey, baseURL string, timeout time.Duration) (*Client, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, errors.New("anthropic client requires an API key")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(key),
		option.WithMaxRetries(0),
	}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(timeout))
	}
	return &Client{client: anthropic.NewClient(opts...)}, nil
}

func (c *Client) Complete(ctx context.Context, req models.Request) (models.Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
		Temperature: anthropic.Float(req.Temperature),
	}

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return models.Response{}, fmt.Errorf("anthropic completion failed: %w", err)
	}

	var out models.Response
	for _, block := range msg.Content {
		if block.Type != "text" {
			continue
		}
		out.Segments = append(out.Segments, block.Text)
	}
	return out, nil
}
