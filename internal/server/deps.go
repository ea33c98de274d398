package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/internal/pipeline"
	"github.com/mohammad-safakhou/searchrag/internal/synth"
	"github.com/mohammad-safakhou/searchrag/provider"
	"github.com/mohammad-safakhou/searchrag/session"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch"
	"github.com/mohammad-safakhou/searchrag/tools/web_search"
)

// Deps are the long-lived components behind the HTTP surface and the CLI.
type Deps struct {
	Pipeline *pipeline.Pipeline
	Store    session.Store
}

func (d *Deps) Close() error {
	if d == nil || d.Store == nil {
		return nil
	}
	return d.Store.Close()
}

// BuildDeps wires search, fetch, synthesis and the conversation store from
// cfg. Missing API keys do not fail the build: the affected component is
// left out and every query reports the ConfigurationError instead. Any other
// configuration error is returned.
func BuildDeps(ctx context.Context, cfg *config.Config, logger *zap.Logger, reg prometheus.Registerer) (*Deps, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Fetch.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.Telemetry.Validate(); err != nil {
		return nil, err
	}
	metrics := pipeline.NewMetrics(reg)

	store, err := session.NewStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := []pipeline.Option{pipeline.WithMetrics(metrics), pipeline.WithLogger(logger)}
	var (
		search pipeline.Searcher
		fetch  pipeline.ContentFetcher
		answer pipeline.Synthesizer
	)

	searcher, err := web_search.NewWebSearcher(web_search.Provider(cfg.Search.Provider), cfg.Search.APIKey, cfg.Search.Endpoint, &http.Client{})
	switch {
	case config.IsMissingCredential(err):
		logger.Warn("search disabled", zap.Error(err))
	case err != nil:
		_ = store.Close()
		return nil, err
	default:
		search = web_search.NewClient(searcher,
			web_search.WithProviderName(cfg.Search.Provider),
			web_search.WithMaxResults(cfg.Search.MaxResults),
			web_search.WithTimeout(cfg.Search.Timeout),
			web_search.WithLogger(logger),
			web_search.WithFailureHook(metrics.SearchFailure),
		)
	}

	fetcher, err := web_fetch.NewWebFetcher(cfg.Fetch, &http.Client{})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	fetch = web_fetch.NewFetcher(fetcher,
		web_fetch.WithParallelism(cfg.Fetch.Parallelism),
		web_fetch.WithTimeout(cfg.Fetch.Timeout),
		web_fetch.WithPolicy(cfg.Fetch.Policy),
		web_fetch.WithLogger(logger),
		web_fetch.WithResultHook(metrics.FetchResult),
	)

	llm, err := provider.NewProvider(cfg.LLM)
	switch {
	case config.IsMissingCredential(err):
		logger.Warn("LLM provider disabled", zap.Error(err))
	case err != nil:
		_ = store.Close()
		return nil, err
	default:
		answer = synth.New(llm, cfg.LLM,
			synth.WithLogger(logger),
			synth.WithFallbackHook(metrics.SynthFallback),
		)
	}

	return &Deps{
		Pipeline: pipeline.New(search, fetch, answer, store, opts...),
		Store:    store,
	}, nil
}
