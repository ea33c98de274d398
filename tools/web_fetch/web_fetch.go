package web_fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/chromedp"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/extract"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/httpfetch"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/models"
	searchmodels "github.com/mohammad-safakhou/searchrag/tools/web_search/models"
)

const (
	DefaultTimeout     = 15 * time.Second
	DefaultParallelism = 5
	MaxCharsDefault    = 20000
)

type WebFetcher interface {
	Exec(ctx context.Context, url string) (models.Result, error)
}

type FetcherType string

const (
	HTTPFetcherType     FetcherType = "http"
	ChromedpFetcherType FetcherType = "chromedp"
)

// FetchError reports why one page could not be fetched or reduced to text.
type FetchError = models.FetchError

// Fetch outcome labels reported to the result hook.
const (
	OutcomeOK      = "ok"
	OutcomeEmpty   = "empty"
	OutcomeError   = "error"
	OutcomeTimeout = "timeout"
	OutcomeSkipped = "skipped"
)

var ErrUnsupportedFetcher = errors.New("unsupported fetcher type")

// NewWebFetcher builds the page fetcher selected by cfg.Fetcher. httpClient is
// only used by the http fetcher and may be nil.
func NewWebFetcher(cfg config.FetchConfig, httpClient *http.Client) (WebFetcher, error) {
	maxChars := cfg.MaxChars
	if maxChars <= 0 {
		maxChars = MaxCharsDefault
	}
	mode := extract.Mode(cfg.Extractor)
	switch mode {
	case "", extract.ModeElements, extract.ModeReadability:
	default:
		return nil, &config.ConfigurationError{Key: "fetch.extractor", Msg: fmt.Sprintf("%v %q", extract.ErrUnsupportedMode, cfg.Extractor), Err: extract.ErrUnsupportedMode}
	}

	switch FetcherType(cfg.Fetcher) {
	case "", HTTPFetcherType:
		return httpfetch.Fetch{
			HTTP:         httpClient,
			UserAgent:    cfg.UserAgent,
			MaxBodyBytes: cfg.MaxBodyBytes,
			MaxChars:     maxChars,
			Extractor:    mode,
		}, nil
	case ChromedpFetcherType:
		return chromedp.Fetch{UserAgent: cfg.UserAgent, MaxChars: maxChars, Extractor: mode}, nil
	default:
		return nil, &config.ConfigurationError{Key: "fetch.fetcher", Msg: fmt.Sprintf("%v %q", ErrUnsupportedFetcher, cfg.Fetcher), Err: ErrUnsupportedFetcher}
	}
}

// Fetcher fans a batch of search results out to a WebFetcher.
type Fetcher struct {
	fetcher     WebFetcher
	parallelism int
	timeout     time.Duration
	logger      *zap.Logger
	permits     func(url string) bool
	onResult    func(outcome string)
}

type Option func(*Fetcher)

func WithParallelism(n int) Option       { return func(f *Fetcher) { f.parallelism = n } }
func WithTimeout(d time.Duration) Option { return func(f *Fetcher) { f.timeout = d } }
func WithLogger(l *zap.Logger) Option    { return func(f *Fetcher) { f.logger = l } }

// WithPolicy skips results whose URL the policy does not permit.
func WithPolicy(p config.CrawlPolicyConfig) Option {
	return func(f *Fetcher) { f.permits = p.Normalize().Permits }
}

// WithResultHook is called once per finished task with its outcome label.
func WithResultHook(fn func(outcome string)) Option {
	return func(f *Fetcher) { f.onResult = fn }
}

func NewFetcher(fetcher WebFetcher, opts ...Option) *Fetcher {
	f := &Fetcher{fetcher: fetcher, parallelism: DefaultParallelism, timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(f)
	}
	if f.parallelism <= 0 {
		f.parallelism = DefaultParallelism
	}
	if f.timeout <= 0 {
		f.timeout = DefaultTimeout
	}
	if f.logger == nil {
		f.logger = zap.NewNop()
	}
	f.logger = f.logger.Named("fetch")
	return f
}

// FetchAll fetches every result concurrently and waits for all of them.
// Texts of successful, non-empty fetches are returned in completion order;
// failed tasks are logged and contribute nothing.
func (f *Fetcher) FetchAll(ctx context.Context, results []searchmodels.Result) ([]string, error) {
	if f == nil || f.fetcher == nil {
		return nil, config.MissingKey("fetch.fetcher", "content fetcher is not configured")
	}

	var (
		mu       sync.Mutex
		contents = make([]string, 0, len(results))
	)
	var g errgroup.Group
	g.SetLimit(f.parallelism)

	for _, r := range results {
		url := strings.TrimSpace(r.URL)
		if url == "" {
			continue
		}
		if f.permits != nil && !f.permits(url) {
			f.report(OutcomeSkipped)
			f.logger.Debug("skipping url denied by crawl policy", zap.String("url", url))
			continue
		}
		g.Go(func() error {
			text, err := f.fetchOne(ctx, url)
			if err != nil {
				f.report(outcomeOf(err))
				f.logger.Warn("fetch failed",
					zap.String("url", url),
					zap.Error(err),
				)
				return nil
			}
			if text == "" {
				f.report(OutcomeEmpty)
				f.logger.Debug("fetched page has no text", zap.String("url", url))
				return nil
			}
			f.report(OutcomeOK)
			mu.Lock()
			contents = append(contents, text)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return contents, nil
}

func (f *Fetcher) fetchOne(ctx context.Context, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	t0 := time.Now()
	res, err := f.fetcher.Exec(ctx, url)
	if err != nil {
		var fe *FetchError
		if !errors.As(err, &fe) {
			err = &FetchError{URL: url, Err: err}
		}
		return "", err
	}
	f.logger.Debug("fetched page",
		zap.String("url", url),
		zap.Int("status", res.Status),
		zap.Int("chars", len(res.Text)),
		zap.Duration("elapsed", time.Since(t0)),
	)
	return strings.TrimSpace(res.Text), nil
}

func (f *Fetcher) report(outcome string) {
	if f.onResult != nil {
		f.onResult(outcome)
	}
}

func outcomeOf(err error) string {
	var fe *FetchError
	if errors.As(err, &fe) && fe.Timeout() {
		return OutcomeTimeout
	}
	return OutcomeError
}
