// Package synth turns a corpus, a query and the conversation so far into an
// answer. Provider failures never surface to the caller: they become one of
// the fixed fallback answers.
package synth

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/models"
	"github.com/mohammad-safakhou/searchrag/provider"
)

const (
	// FallbackClarify answers a completion that came back empty.
	FallbackClarify = "I'm sorry, I wasn't able to generate a response. Could you kindly restate or clarify your question?"
	// FallbackApology answers a completion call that failed.
	FallbackApology = "Apologies, something went wrong while handling your request. Please try again in a little while."
)

// Fallback reasons reported to the fallback hook.
const (
	ReasonEmpty   = "empty"
	ReasonError   = "error"
	ReasonTimeout = "timeout"
)

// Error is a failed completion call.
type Error struct {
	Err error
}

func (e *Error) Error() string { return "synthesis failed: " + e.Err.Error() }
func (e *Error) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(e.Err, &ne) && ne.Timeout()
}

// BuildPrompt lays out the corpus, the query and the rendered history in a
// fixed order.
func BuildPrompt(corpus, query string, history []models.Turn) string {
	var b strings.Builder
	b.WriteString("You are a knowledgeable assistant. Answer the user using the information and conversation below.\n\n")
	fmt.Fprintf(&b, "Provided Information: %s\n\n", corpus)
	fmt.Fprintf(&b, "User's Current Query: %s\n\n", query)
	b.WriteString("Previous Conversation Context:\n")
	b.WriteString(models.RenderHistory(history))
	b.WriteString("\n\nWrite a relevant, thoughtful reply that takes both the conversation history and the current query into account.")
	return b.String()
}

type Synthesizer struct {
	provider     provider.Provider
	model        string
	maxTokens    int
	temperature  float64
	timeout      time.Duration
	historyTurns int
	logger       *zap.Logger
	onFallback   func(reason string)
}

type Option func(*Synthesizer)

func WithLogger(l *zap.Logger) Option { return func(s *Synthesizer) { s.logger = l } }

// WithFallbackHook is called with the reason each time a fallback answer is returned.
func WithFallbackHook(fn func(reason string)) Option {
	return func(s *Synthesizer) { s.onFallback = fn }
}

func New(p provider.Provider, cfg config.LLMConfig, opts ...Option) *Synthesizer {
	s := &Synthesizer{
		provider:     p,
		model:        cfg.Model,
		maxTokens:    cfg.MaxTokens,
		temperature:  cfg.Temperature,
		timeout:      cfg.Timeout,
		historyTurns: cfg.HistoryTurns,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	s.logger = s.logger.Named("synth")
	return s
}

// Synthesize returns the model's answer, FallbackClarify for an empty
// completion or FallbackApology when the call fails. It only returns an
// error when no provider is configured.
func (s *Synthesizer) Synthesize(ctx context.Context, corpus, query string, history []models.Turn) (string, error) {
	if s == nil || s.provider == nil {
		return "", config.MissingKey("llm.api_key", "LLM provider is not configured")
	}
	if s.historyTurns > 0 && len(history) > s.historyTurns {
		history = history[len(history)-s.historyTurns:]
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	t0 := time.Now()
	resp, err := s.provider.Complete(ctx, provider.Request{
		Model:       s.model,
		Prompt:      BuildPrompt(corpus, query, history),
		MaxTokens:   s.maxTokens,
		Temperature: s.temperature,
	})
	if err != nil {
		serr := &Error{Err: err}
		reason := ReasonError
		if serr.Timeout() {
			reason = ReasonTimeout
		}
		s.logger.Error("completion failed, returning fallback",
			zap.String("model", s.model),
			zap.Duration("elapsed", time.Since(t0)),
			zap.Error(serr),
		)
		s.fallback(reason)
		return FallbackApology, nil
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		s.logger.Warn("completion was empty, asking the user to clarify", zap.String("model", s.model))
		s.fallback(ReasonEmpty)
		return FallbackClarify, nil
	}
	s.logger.Debug("completion received",
		zap.String("model", s.model),
		zap.Int("chars", len(text)),
		zap.Duration("elapsed", time.Since(t0)),
	)
	return text, nil
}

func (s *Synthesizer) fallback(reason string) {
	if s.onFallback != nil {
		s.onFallback(reason)
	}
}
