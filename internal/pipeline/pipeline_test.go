package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/internal/synth"
	"github.com/mohammad-safakhou/searchrag/models"
	"github.com/mohammad-safakhou/searchrag/provider"
	"github.com/mohammad-safakhou/searchrag/session/inmemory"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch"
	"github.com/mohammad-safakhou/searchrag/tools/web_search"
	searchmodels "github.com/mohammad-safakhou/searchrag/tools/web_search/models"
)

// fakeWeb serves a search provider, the result pages and an Anthropic
// endpoint from one test server.
type fakeWeb struct {
	srv        *httptest.Server
	mu         sync.Mutex
	prompts    []string
	searchFail bool
	llmFail    bool
}

func newFakeWeb(t *testing.T) *fakeWeb {
	t.Helper()
	fw := &fakeWeb{}
	mux := http.NewServeMux()
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		fw.mu.Lock()
		fail := fw.searchFail
		fw.mu.Unlock()
		if fail {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
			return
		}
		organic := []map[string]string{
			{"link": fw.srv.URL + "/pages/paris", "title": "Paris"},
			{"link": fw.srv.URL + "/pages/france", "title": "France"},
			{"link": fw.srv.URL + "/pages/broken", "title": "Broken"},
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"organic": organic})
	})
	mux.HandleFunc("/pages/paris", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><h1>Paris</h1><p>Paris is the capital of France.</p></body></html>")
	})
	mux.HandleFunc("/pages/france", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html><body><p>France is a country in Western Europe.</p></body></html>")
	})
	mux.HandleFunc("/pages/broken", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	})
	mux.HandleFunc("/v1/messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Messages []struct {
				Content []struct {
					Text string `json:"text"`
				} `json:"content"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		fw.mu.Lock()
		if len(body.Messages) > 0 && len(body.Messages[0].Content) > 0 {
			fw.prompts = append(fw.prompts, body.Messages[0].Content[0].Text)
		}
		fail := fw.llmFail
		fw.mu.Unlock()
		if fail {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"type":"error","error":{"type":"api_error","message":"boom"}}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-5-sonnet-20240620",` +
			`"content":[{"type":"text","text":"Paris is the capital of France."}],` +
			`"stop_reason":"end_turn","stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":7}}`))
	})
	fw.srv = httptest.NewServer(mux)
	t.Cleanup(fw.srv.Close)
	return fw
}

func (fw *fakeWeb) lastPrompt() string {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	if len(fw.prompts) == 0 {
		return ""
	}
	return fw.prompts[len(fw.prompts)-1]
}

func newTestPipeline(t *testing.T, fw *fakeWeb, reg prometheus.Registerer, opts ...Option) *Pipeline {
	t.Helper()
	metrics := NewMetrics(reg)

	ws, err := web_search.NewWebSearcher(web_search.SerperProvider, "serper-key", fw.srv.URL+"/search", nil)
	if err != nil {
		t.Fatalf("NewWebSearcher: %v", err)
	}
	search := web_search.NewClient(ws, web_search.WithProviderName("serper"), web_search.WithFailureHook(metrics.SearchFailure))

	wf, err := web_fetch.NewWebFetcher(config.FetchConfig{Fetcher: "http", Extractor: "elements"}, nil)
	if err != nil {
		t.Fatalf("NewWebFetcher: %v", err)
	}
	fetch := web_fetch.NewFetcher(wf, web_fetch.WithTimeout(5*time.Second), web_fetch.WithResultHook(metrics.FetchResult))

	llm := config.LLMConfig{
		Provider: "anthropic", APIKey: "sk-ant", BaseURL: fw.srv.URL + "/",
		Model: "claude-3-5-sonnet-20240620", MaxTokens: 1000, Temperature: 0.1, Timeout: 5 * time.Second,
	}
	p, err := provider.NewProvider(llm)
	if err != nil {
		t.Fatalf("NewProvider: %v", err)
	}
	sy := synth.New(p, llm, synth.WithFallbackHook(metrics.SynthFallback))

	return New(search, fetch, sy, inmemory.NewInMemoryConversationStore(), append([]Option{WithMetrics(metrics)}, opts...)...)
}

func TestRunAnswersAndRecordsConversation(t *testing.T) {
	fw := newFakeWeb(t)
	reg := prometheus.NewRegistry()

	var mu sync.Mutex
	var stages []Stage
	p := newTestPipeline(t, fw, reg, WithObserver(func(_ string, s Stage) {
		mu.Lock()
		stages = append(stages, s)
		mu.Unlock()
	}))

	resp, err := p.Run(context.Background(), "s1", "What is the capital of France?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Content != "Paris is the capital of France." {
		t.Fatalf("unexpected content %q", resp.Content)
	}
	want := []models.Turn{models.HumanTurn("What is the capital of France?"), models.AITurn("Paris is the capital of France.")}
	if len(resp.Conversation) != 2 || resp.Conversation[0] != want[0] || resp.Conversation[1] != want[1] {
		t.Fatalf("unexpected conversation %+v", resp.Conversation)
	}

	prompt := fw.lastPrompt()
	if !strings.Contains(prompt, "Paris is the capital of France.") || !strings.Contains(prompt, "France is a country in Western Europe.") {
		t.Fatalf("prompt is missing fetched content:\n%s", prompt)
	}
	if strings.Contains(prompt, "gone") {
		t.Fatalf("failed page leaked into the prompt")
	}

	order := []Stage{StageReceived, StageSearching, StageFetching, StageAggregating, StageSynthesizing, StageAppending, StageResponded}
	if len(stages) != len(order) {
		t.Fatalf("stages = %v", stages)
	}
	for i := range order {
		if stages[i] != order[i] {
			t.Fatalf("stage %d = %s, want %s", i, stages[i], order[i])
		}
	}

	if got := testutil.ToFloat64(p.metrics.runs.WithLabelValues(OutcomeOK)); got != 1 {
		t.Fatalf("runs ok = %v", got)
	}
	if got := testutil.ToFloat64(p.metrics.fetchResults.WithLabelValues(web_fetch.OutcomeError)); got != 1 {
		t.Fatalf("fetch errors = %v", got)
	}
}

func TestRunCarriesHistoryIntoPrompt(t *testing.T) {
	fw := newFakeWeb(t)
	p := newTestPipeline(t, fw, nil)
	ctx := context.Background()

	if _, err := p.Run(ctx, "s1", "What is the capital of France?"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	resp, err := p.Run(ctx, "s1", "And its population?")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(resp.Conversation) != 4 || resp.Conversation[2].Content != "And its population?" {
		t.Fatalf("unexpected conversation %+v", resp.Conversation)
	}
	if !strings.Contains(fw.lastPrompt(), "human: What is the capital of France?\nai: Paris is the capital of France.") {
		t.Fatalf("history missing from prompt:\n%s", fw.lastPrompt())
	}

	other, _ := p.Conversation(ctx, "s2")
	if len(other.Conversation) != 0 {
		t.Fatalf("sessions leaked: %+v", other.Conversation)
	}
}

func TestRunDegradesWhenProvidersFail(t *testing.T) {
	fw := newFakeWeb(t)
	fw.mu.Lock()
	fw.searchFail, fw.llmFail = true, true
	fw.mu.Unlock()
	reg := prometheus.NewRegistry()
	p := newTestPipeline(t, fw, reg)

	resp, err := p.Run(context.Background(), "s1", "What is the capital of France?")
	if err != nil {
		t.Fatalf("expected degraded run to succeed, got %v", err)
	}
	if resp.Content != synth.FallbackApology {
		t.Fatalf("expected apology fallback, got %q", resp.Content)
	}
	if len(resp.Conversation) != 2 || resp.Conversation[1].Content != synth.FallbackApology {
		t.Fatalf("fallback answer must be recorded, got %+v", resp.Conversation)
	}
	if !strings.Contains(fw.lastPrompt(), "Provided Information: \n") {
		t.Fatalf("expected empty corpus in prompt:\n%s", fw.lastPrompt())
	}
	if got := testutil.ToFloat64(p.metrics.searchFailures.WithLabelValues("serper")); got != 1 {
		t.Fatalf("search failures = %v", got)
	}
	if got := testutil.ToFloat64(p.metrics.synthFallbacks.WithLabelValues(synth.ReasonError)); got != 1 {
		t.Fatalf("synth fallbacks = %v", got)
	}
}

func TestRunRejectsInvalidInput(t *testing.T) {
	p := New(nil, nil, nil, nil)
	for _, tc := range []struct{ session, query string }{{"", "q"}, {"s", "   "}} {
		if _, err := p.Run(context.Background(), tc.session, tc.query); !errors.Is(err, ErrInvalidRequest) {
			t.Fatalf("Run(%q, %q) = %v, want ErrInvalidRequest", tc.session, tc.query, err)
		}
	}
}

func TestRunWithoutComponentsIsConfigurationError(t *testing.T) {
	p := New(nil, nil, nil, inmemory.NewInMemoryConversationStore())
	if _, err := p.Run(context.Background(), "s1", "q"); !config.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

type searchResult = searchmodels.Result

type stubSearch struct{ err error }

func (s stubSearch) Search(context.Context, string) ([]searchResult, error) { return nil, s.err }

type stubFetch struct{}

func (stubFetch) FetchAll(context.Context, []searchResult) ([]string, error) {
	return []string{"a", "b"}, nil
}

type stubSynth struct{ corpus string }

func (s *stubSynth) Synthesize(_ context.Context, corpus, _ string, _ []models.Turn) (string, error) {
	s.corpus = corpus
	return "answer", nil
}

type brokenStore struct{ history []models.Turn }

func (b brokenStore) Append(context.Context, string, ...models.Turn) error { return errors.New("down") }
func (b brokenStore) Get(context.Context, string) ([]models.Turn, error)   { return b.history, nil }
func (b brokenStore) Clear(context.Context, string) error                  { return errors.New("down") }

func TestRunSurvivesStoreFailure(t *testing.T) {
	sy := &stubSynth{}
	history := []models.Turn{models.HumanTurn("earlier"), models.AITurn("reply")}
	p := New(stubSearch{}, stubFetch{}, sy, brokenStore{history: history})

	resp, err := p.Run(context.Background(), "s1", "q")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sy.corpus != "a\n\nb" {
		t.Fatalf("corpus = %q", sy.corpus)
	}
	if len(resp.Conversation) != 4 || resp.Conversation[3] != models.AITurn("answer") {
		t.Fatalf("expected history plus new turns, got %+v", resp.Conversation)
	}
	if _, err := p.Clear(context.Background(), "s1"); err == nil {
		t.Fatalf("expected Clear to report the store failure")
	}
}

func TestRunStopsOnConfigurationError(t *testing.T) {
	cfgErr := config.MissingKey("search.api_key", "missing")
	p := New(stubSearch{err: cfgErr}, stubFetch{}, &stubSynth{}, inmemory.NewInMemoryConversationStore())
	if _, err := p.Run(context.Background(), "s1", "q"); !config.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
	if conv, _ := p.Conversation(context.Background(), "s1"); len(conv.Conversation) != 0 {
		t.Fatalf("failed run must not touch the conversation")
	}
}

func TestClearResetsConversation(t *testing.T) {
	p := New(stubSearch{}, stubFetch{}, &stubSynth{}, inmemory.NewInMemoryConversationStore())
	ctx := context.Background()
	if _, err := p.Run(ctx, "s1", "q"); err != nil {
		t.Fatalf("Run: %v", err)
	}
	resp, err := p.Clear(ctx, "s1")
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if resp.Conversation == nil || len(resp.Conversation) != 0 {
		t.Fatalf("expected empty conversation, got %#v", resp.Conversation)
	}
	after, _ := p.Conversation(ctx, "s1")
	if len(after.Conversation) != 0 {
		t.Fatalf("conversation not cleared: %+v", after.Conversation)
	}
	if _, err := p.Clear(ctx, " "); !errors.Is(err, ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}
