package provider

import (
	"context"
	"fmt"

	"github.com/mohammad-safakhou/searchrag/config"
	anthropic_provider "github.com/mohammad-safakhou/searchrag/provider/anthropic"
	"github.com/mohammad-safakhou/searchrag/provider/models"
	openai_provider "github.com/mohammad-safakhou/searchrag/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

type (
	Request  = models.Request
	Response = models.Response
)

// Provider is the interface that all LLM implementations must satisfy
type Provider interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Provider) {
	case Anthropic, "", OpenAI:
	default:
		return nil, &config.ConfigurationError{Key: "llm.provider", Msg: fmt.Sprintf("unsupported LLM provider %q", cfg.Provider)}
	}
	if cfg.APIKey == "" {
		return nil, config.MissingKey("llm.api_key", "LLM provider API key is not configured")
	}
	switch Client(cfg.Provider) {
	case OpenAI:
		c, err := openai_provider.NewOpenAIClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		c, err := anthropic_provider.NewAnthropicClient(cfg.APIKey, cfg.BaseURL, cfg.Timeout)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}
