package web_fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mohammad-safakhou/searchrag/config"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/extract"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/models"
	searchmodels "github.com/mohammad-safakhou/searchrag/tools/web_search/models"
)

func pageServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/slow":
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		case "/missing":
			http.NotFound(w, r)
			return
		case "/empty":
			_, _ = w.Write([]byte("<html><body><div>nothing to see</div></body></html>"))
			return
		}
		fmt.Fprintf(w, "<html><body><h1>%s</h1><p>body of %s</p></body></html>", r.URL.Path, r.URL.Path)
	}))
}

func newHTTPFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	wf, err := NewWebFetcher(config.FetchConfig{Fetcher: "http", Extractor: "elements"}, client)
	if err != nil {
		t.Fatalf("NewWebFetcher: %v", err)
	}
	return NewFetcher(wf, opts...)
}

func results(base string, paths ...string) []searchmodels.Result {
	out := make([]searchmodels.Result, 0, len(paths))
	for _, p := range paths {
		out = append(out, searchmodels.Result{URL: base + p})
	}
	return out
}

func TestFetchAllCollectsSuccesses(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := pageServer(t)
	defer srv.Close()

	var mu sync.Mutex
	outcomes := map[string]int{}
	f := newHTTPFetcher(t, WithResultHook(func(o string) {
		mu.Lock()
		outcomes[o]++
		mu.Unlock()
	}))

	got, err := f.FetchAll(context.Background(), results(srv.URL, "/a", "/missing", "/b", "/empty", "/c"))
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	sort.Strings(got)
	want := []string{"/a\nbody of /a", "/b\nbody of /b", "/c\nbody of /c"}
	if len(got) != len(want) {
		t.Fatalf("expected %d contents, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("content %d = %q, want %q", i, got[i], want[i])
		}
	}
	if outcomes[OutcomeOK] != 3 || outcomes[OutcomeError] != 1 || outcomes[OutcomeEmpty] != 1 {
		t.Fatalf("unexpected outcomes %v", outcomes)
	}
}

func TestFetchAllTimeoutDoesNotAffectSiblings(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := pageServer(t)
	defer srv.Close()

	var timeouts atomic.Int32
	f := newHTTPFetcher(t,
		WithTimeout(100*time.Millisecond),
		WithResultHook(func(o string) {
			if o == OutcomeTimeout {
				timeouts.Add(1)
			}
		}),
	)

	got, _ := f.FetchAll(context.Background(), results(srv.URL, "/slow", "/a"))
	if len(got) != 1 || got[0] != "/a\nbody of /a" {
		t.Fatalf("expected only the fast page, got %q", got)
	}
	if timeouts.Load() != 1 {
		t.Fatalf("expected one timeout, got %d", timeouts.Load())
	}
}

func TestFetchAllAllFailuresYieldEmpty(t *testing.T) {
	srv := pageServer(t)
	defer srv.Close()

	got, err := newHTTPFetcher(t).FetchAll(context.Background(), results(srv.URL, "/missing", "/missing"))
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

type countingFetcher struct {
	inFlight atomic.Int32
	peak     atomic.Int32
}

func (c *countingFetcher) Exec(ctx context.Context, url string) (models.Result, error) {
	n := c.inFlight.Add(1)
	defer c.inFlight.Add(-1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(20 * time.Millisecond)
	return models.Result{URL: url, Text: url}, nil
}

func TestFetchAllRespectsParallelism(t *testing.T) {
	cf := &countingFetcher{}
	f := NewFetcher(cf, WithParallelism(2))
	in := make([]searchmodels.Result, 0, 6)
	for i := 0; i < 6; i++ {
		in = append(in, searchmodels.Result{URL: fmt.Sprintf("u%d", i)})
	}
	in = append(in, searchmodels.Result{URL: "  "})

	got, _ := f.FetchAll(context.Background(), in)
	if len(got) != 6 {
		t.Fatalf("expected 6 contents, got %d", len(got))
	}
	if cf.peak.Load() > 2 {
		t.Fatalf("parallelism exceeded: peak %d", cf.peak.Load())
	}
}

type errFetcher struct{}

func (errFetcher) Exec(ctx context.Context, url string) (models.Result, error) {
	return models.Result{}, errors.New("boom")
}

func TestFetchAllWrapsForeignErrors(t *testing.T) {
	var seen string
	f := NewFetcher(errFetcher{}, WithResultHook(func(o string) { seen = o }))
	got, _ := f.FetchAll(context.Background(), []searchmodels.Result{{URL: "https://example.com"}})
	if len(got) != 0 || seen != OutcomeError {
		t.Fatalf("expected error outcome, got %q %v", seen, got)
	}
}

func TestNewWebFetcherRejectsUnknownType(t *testing.T) {
	_, err := NewWebFetcher(config.FetchConfig{Fetcher: "curl"}, nil)
	if !config.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestNewWebFetcherRejectsUnknownExtractor(t *testing.T) {
	_, err := NewWebFetcher(config.FetchConfig{Fetcher: "http", Extractor: "bogus"}, nil)
	var ce *config.ConfigurationError
	if !errors.As(err, &ce) || ce.Key != "fetch.extractor" {
		t.Fatalf("expected fetch.extractor error, got %v", err)
	}
	if !errors.Is(err, extract.ErrUnsupportedMode) {
		t.Fatalf("expected ErrUnsupportedMode, got %v", err)
	}
}

func TestNilFetcherIsConfigurationError(t *testing.T) {
	var f *Fetcher
	if _, err := f.FetchAll(context.Background(), nil); !config.IsConfigurationError(err) {
		t.Fatalf("expected ConfigurationError, got %v", err)
	}
}

func TestFetchErrorTimeout(t *testing.T) {
	fe := &FetchError{URL: "u", Err: fmt.Errorf("get: %w", context.DeadlineExceeded)}
	if !fe.Timeout() {
		t.Fatalf("expected deadline error to report Timeout")
	}
	if (&FetchError{URL: "u", StatusCode: 500, Err: errors.New("x")}).Timeout() {
		t.Fatalf("status error should not be a timeout")
	}
}

func TestFetchAllSkipsDeniedHosts(t *testing.T) {
	cf := &countingFetcher{}
	var skipped atomic.Int32
	f := NewFetcher(cf,
		WithPolicy(config.CrawlPolicyConfig{Disallow: []string{"blocked.example"}}),
		WithResultHook(func(o string) {
			if o == OutcomeSkipped {
				skipped.Add(1)
			}
		}),
	)
	got, _ := f.FetchAll(context.Background(), []searchmodels.Result{
		{URL: "https://blocked.example/a"},
		{URL: "https://open.example/b"},
	})
	if len(got) != 1 || got[0] != "https://open.example/b" {
		t.Fatalf("unexpected contents %q", got)
	}
	if skipped.Load() != 1 {
		t.Fatalf("expected one skipped url, got %d", skipped.Load())
	}
}
