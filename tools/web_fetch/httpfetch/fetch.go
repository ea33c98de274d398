package httpfetch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/extract"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/models"
)

const (
	DefaultAccept       = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultMaxBodyBytes = 5 << 20
)

// Fetch downloads a page with a single GET and extracts its text.
type Fetch struct {
	HTTP         *http.Client
	UserAgent    string
	MaxBodyBytes int64
	MaxChars     int
	Extractor    extract.Mode
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, &models.FetchError{URL: url, Err: errors.New("invalid url")}
	}
	t0 := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return models.Result{}, &models.FetchError{URL: url, Err: err}
	}
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}
	req.Header.Set("Accept", DefaultAccept)

	client := f.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return models.Result{}, &models.FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return models.Result{URL: url, Status: resp.StatusCode}, &models.FetchError{
			URL: url, StatusCode: resp.StatusCode, Err: errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	limit := f.MaxBodyBytes
	if limit <= 0 {
		limit = DefaultMaxBodyBytes
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return models.Result{}, &models.FetchError{URL: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read body: %w", err)}
	}

	doc, err := extract.Extract(f.Extractor, string(body), url)
	if err != nil {
		return models.Result{}, &models.FetchError{URL: url, StatusCode: resp.StatusCode, Err: err}
	}

	sum := sha1.Sum(body)
	return models.Result{
		URL:      url,
		Title:    doc.Title,
		Text:     extract.Truncate(doc.Text, f.MaxChars),
		HTMLHash: hex.EncodeToString(sum[:]),
		Status:   resp.StatusCode,
		RenderMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}
