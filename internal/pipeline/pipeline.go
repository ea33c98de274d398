// Package pipeline answers a query by chaining search, fetch, aggregation,
// synthesis and the conversation store.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/internal/corpus"
	"github.com/mohammad-safakhou/searchrag/models"
	searchmodels "github.com/mohammad-safakhou/searchrag/tools/web_search/models"
)

// Stage is a step of a single run. Runs only move forward.
type Stage string

const (
	StageReceived     Stage = "received"
	StageSearching    Stage = "searching"
	StageFetching     Stage = "fetching"
	StageAggregating  Stage = "aggregating"
	StageSynthesizing Stage = "synthesizing"
	StageAppending    Stage = "appending"
	StageResponded    Stage = "responded"
)

// Run outcome labels.
const (
	OutcomeOK      = "ok"
	OutcomeInvalid = "invalid"
	OutcomeError   = "error"
)

// ErrInvalidRequest is returned for a blank query or session id.
var ErrInvalidRequest = errors.New("query and session id are required")

type Searcher interface {
	Search(ctx context.Context, query string) ([]searchmodels.Result, error)
}

type ContentFetcher interface {
	FetchAll(ctx context.Context, results []searchmodels.Result) ([]string, error)
}

type Synthesizer interface {
	Synthesize(ctx context.Context, corpus, query string, history []models.Turn) (string, error)
}

type ConversationStore interface {
	Append(ctx context.Context, id string, turns ...models.Turn) error
	Get(ctx context.Context, id string) ([]models.Turn, error)
	Clear(ctx context.Context, id string) error
}

// Observer is told about every stage a run enters.
type Observer func(sessionID string, stage Stage)

// Response is the answer to one query plus the full conversation after it.
type Response struct {
	SessionID    string        `json:"session_id"`
	Content      string        `json:"content"`
	Conversation []models.Turn `json:"conversation"`
}

var pipelineTracer trace.Tracer = otel.Tracer("searchrag/internal/pipeline")

type Pipeline struct {
	search   Searcher
	fetch    ContentFetcher
	synth    Synthesizer
	store    ConversationStore
	metrics  *Metrics
	observer Observer
	logger   *zap.Logger
}

type Option func(*Pipeline)

func WithMetrics(m *Metrics) Option   { return func(p *Pipeline) { p.metrics = m } }
func WithObserver(o Observer) Option  { return func(p *Pipeline) { p.observer = o } }
func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.logger = l } }

func New(search Searcher, fetch ContentFetcher, synth Synthesizer, store ConversationStore, opts ...Option) *Pipeline {
	p := &Pipeline{search: search, fetch: fetch, synth: synth, store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	p.logger = p.logger.Named("pipeline")
	return p
}

func (p *Pipeline) configured() error {
	switch {
	case p.search == nil:
		return config.MissingKey("search.api_key", "search client is not configured")
	case p.fetch == nil:
		return config.MissingKey("fetch.fetcher", "content fetcher is not configured")
	case p.synth == nil:
		return config.MissingKey("llm.api_key", "LLM provider is not configured")
	case p.store == nil:
		return config.MissingKey("conversation.store", "conversation store is not configured")
	}
	return nil
}

// Run answers query within the conversation of sessionID. Search, fetch,
// synthesis and store failures degrade the answer instead of failing the
// run; only invalid input and configuration errors are returned.
func (p *Pipeline) Run(ctx context.Context, sessionID, query string) (Response, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || strings.TrimSpace(query) == "" {
		p.metrics.Run(OutcomeInvalid)
		return Response{}, ErrInvalidRequest
	}
	if err := p.configured(); err != nil {
		p.metrics.Run(OutcomeError)
		return Response{}, err
	}

	ctx, span := pipelineTracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(attribute.String("session.id", sessionID)),
	)
	defer span.End()
	t0 := time.Now()

	p.enter(sessionID, StageReceived)
	history, err := p.store.Get(ctx, sessionID)
	if err != nil {
		p.logger.Warn("failed to load conversation, continuing without history",
			zap.String("session_id", sessionID), zap.Error(err))
		history = nil
	}

	var results []searchmodels.Result
	if err := p.stage(ctx, sessionID, StageSearching, func(ctx context.Context) (err error) {
		results, err = p.search.Search(ctx, query)
		return err
	}); err != nil {
		return p.fail(span, err)
	}

	var contents []string
	if err := p.stage(ctx, sessionID, StageFetching, func(ctx context.Context) (err error) {
		contents, err = p.fetch.FetchAll(ctx, results)
		return err
	}); err != nil {
		return p.fail(span, err)
	}

	var text string
	_ = p.stage(ctx, sessionID, StageAggregating, func(context.Context) error {
		text = corpus.Aggregate(contents)
		return nil
	})

	var answer string
	if err := p.stage(ctx, sessionID, StageSynthesizing, func(ctx context.Context) (err error) {
		answer, err = p.synth.Synthesize(ctx, text, query, history)
		return err
	}); err != nil {
		return p.fail(span, err)
	}

	turns := []models.Turn{models.HumanTurn(query), models.AITurn(answer)}
	var conversation []models.Turn
	_ = p.stage(ctx, sessionID, StageAppending, func(ctx context.Context) error {
		conversation = p.appendAndRead(ctx, sessionID, history, turns)
		return nil
	})

	p.enter(sessionID, StageResponded)
	p.metrics.Run(OutcomeOK)
	span.SetAttributes(
		attribute.Int("search.results", len(results)),
		attribute.Int("fetch.contents", len(contents)),
		attribute.Int("corpus.chars", len(text)),
	)
	span.SetStatus(codes.Ok, "responded")
	p.logger.Info("query answered",
		zap.String("session_id", sessionID),
		zap.Int("results", len(results)),
		zap.Int("contents", len(contents)),
		zap.Int("turns", len(conversation)),
		zap.Duration("elapsed", time.Since(t0)),
	)
	return Response{SessionID: sessionID, Content: answer, Conversation: conversation}, nil
}

// appendAndRead stores the new pair and reads the conversation back. When
// the store fails the caller still gets history plus the new pair.
func (p *Pipeline) appendAndRead(ctx context.Context, sessionID string, history, turns []models.Turn) []models.Turn {
	fallback := make([]models.Turn, 0, len(history)+len(turns))
	fallback = append(fallback, history...)
	fallback = append(fallback, turns...)

	if err := p.store.Append(ctx, sessionID, turns...); err != nil {
		p.logger.Error("failed to append conversation", zap.String("session_id", sessionID), zap.Error(err))
		return fallback
	}
	conversation, err := p.store.Get(ctx, sessionID)
	if err != nil {
		p.logger.Error("failed to read conversation back", zap.String("session_id", sessionID), zap.Error(err))
		return fallback
	}
	return conversation
}

func (p *Pipeline) enter(sessionID string, stage Stage) {
	if p.observer != nil {
		p.observer(sessionID, stage)
	}
}

func (p *Pipeline) stage(ctx context.Context, sessionID string, stage Stage, fn func(context.Context) error) error {
	p.enter(sessionID, stage)
	ctx, span := pipelineTracer.Start(ctx, "pipeline."+string(stage))
	defer span.End()

	t0 := time.Now()
	err := fn(ctx)
	p.metrics.Stage(stage, time.Since(t0))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

func (p *Pipeline) fail(span trace.Span, err error) (Response, error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	p.metrics.Run(OutcomeError)
	p.logger.Error("query failed", zap.Error(err))
	return Response{}, err
}

// Clear resets the conversation of sessionID and returns it empty.
func (p *Pipeline) Clear(ctx context.Context, sessionID string) (Response, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Response{}, ErrInvalidRequest
	}
	if p.store == nil {
		return Response{}, config.MissingKey("conversation.store", "conversation store is not configured")
	}
	if err := p.store.Clear(ctx, sessionID); err != nil {
		return Response{}, err
	}
	p.logger.Info("conversation cleared", zap.String("session_id", sessionID))
	return Response{SessionID: sessionID, Conversation: []models.Turn{}}, nil
}

// Conversation returns the stored conversation of sessionID.
func (p *Pipeline) Conversation(ctx context.Context, sessionID string) (Response, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return Response{}, ErrInvalidRequest
	}
	if p.store == nil {
		return Response{}, config.MissingKey("conversation.store", "conversation store is not configured")
	}
	turns, err := p.store.Get(ctx, sessionID)
	if err != nil {
		return Response{}, err
	}
	return Response{SessionID: sessionID, Conversation: turns}, nil
}
