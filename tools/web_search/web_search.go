package web_search

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/tools/web_search/brave"
	"github.com/mohammad-safakhou/searchrag/tools/web_search/models"
	"github.com/mohammad-safakhou/searchrag/tools/web_search/serper"
)

type WebSearcher interface {
	Discover(ctx context.Context, q string, k int) ([]models.Result, error)
}

type Provider string

const (
	SerperProvider Provider = serper.Name
	BraveProvider  Provider = brave.Name
)

// ProviderError reports a failed or malformed provider response.
type ProviderError = models.ProviderError

var ErrUnsupportedProvider = errors.New("unsupported search provider")

// NewWebSearcher builds a provider client. endpoint and httpClient may be zero.
func NewWebSearcher(provider Provider, apiKey, endpoint string, httpClient *http.Client) (WebSearcher, error) {
	switch provider {
	case SerperProvider, BraveProvider:
	default:
		return nil, &config.ConfigurationError{Key: "search.provider", Msg: fmt.Sprintf("%v %q", ErrUnsupportedProvider, provider), Err: ErrUnsupportedProvider}
	}
	if strings.TrimSpace(apiKey) == "" {
		return nil, config.MissingKey("search.api_key", "search provider API key is not configured")
	}
	if provider == BraveProvider {
		return brave.Search{ApiKey: apiKey, Endpoint: endpoint, HTTP: httpClient}, nil
	}
	return serper.Search{ApiKey: apiKey, Endpoint: endpoint, HTTP: httpClient}, nil
}

// Client runs a single capped search per query and absorbs provider failures.
type Client struct {
	searcher   WebSearcher
	provider   string
	maxResults int
	timeout    time.Duration
	logger     *zap.Logger
	onFailure  func(provider string, err error)
}

type Option func(*Client)

func WithMaxResults(n int) Option        { return func(c *Client) { c.maxResults = n } }
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }
func WithLogger(l *zap.Logger) Option    { return func(c *Client) { c.logger = l } }
func WithProviderName(p string) Option   { return func(c *Client) { c.provider = p } }

// WithFailureHook is called once per absorbed provider failure.
func WithFailureHook(fn func(provider string, err error)) Option {
	return func(c *Client) { c.onFailure = fn }
}

func NewClient(searcher WebSearcher, opts ...Option) *Client {
	c := &Client{searcher: searcher, provider: "search", maxResults: config.MaxSearchResults}
	for _, opt := range opts {
		opt(c)
	}
	if c.maxResults <= 0 || c.maxResults > config.MaxSearchResults {
		c.maxResults = config.MaxSearchResults
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("search")
	return c
}

// Search returns at most maxResults results in provider order. Provider
// failures are logged and yield an empty slice; only a missing searcher is
// reported as an error.
func (c *Client) Search(ctx context.Context, query string) ([]models.Result, error) {
	if c == nil || c.searcher == nil {
		return nil, config.MissingKey("search.api_key", "search client is not configured")
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	t0 := time.Now()
	results, err := c.searcher.Discover(ctx, query, c.maxResults)
	if err != nil {
		var pe *ProviderError
		if !errors.As(err, &pe) {
			err = &ProviderError{Provider: c.provider, Err: err}
		}
		c.logger.Warn("search provider failed, continuing without results",
			zap.String("provider", c.provider),
			zap.String("query", query),
			zap.Duration("elapsed", time.Since(t0)),
			zap.Error(err),
		)
		if c.onFailure != nil {
			c.onFailure(c.provider, err)
		}
		return []models.Result{}, nil
	}

	out := make([]models.Result, 0, c.maxResults)
	for _, r := range results {
		if strings.TrimSpace(r.URL) == "" {
			continue
		}
		out = append(out, r)
		if len(out) == c.maxResults {
			break
		}
	}
	c.logger.Debug("search completed",
		zap.String("provider", c.provider),
		zap.Int("returned", len(results)),
		zap.Int("kept", len(out)),
		zap.Duration("elapsed", time.Since(t0)),
	)
	return out, nil
}
