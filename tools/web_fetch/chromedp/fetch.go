package chromedp

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/extract"
	"github.com/mohammad-safakhou/searchrag/tools/web_fetch/models"
)

// Fetch renders the page in headless Chrome before extracting it, for
// pages that build their content with JavaScript.
type Fetch struct {
	UserAgent string
	MaxChars  int
	Extractor extract.Mode
}

func (f Fetch) Exec(ctx context.Context, url string) (models.Result, error) {
	if strings.TrimSpace(url) == "" {
		return models.Result{}, &models.FetchError{URL: url, Err: errors.New("invalid url")}
	}
	t0 := time.Now()

	// Headless browsing
	html, err := fetchHTML(ctx, url, f.UserAgent)
	if err != nil {
		return models.Result{URL: url, Status: 599, RenderMS: int(time.Since(t0) / time.Millisecond)},
			&models.FetchError{URL: url, Err: err}
	}

	doc, err := extract.Extract(f.Extractor, html, url)
	if err != nil {
		return models.Result{URL: url, Status: 200}, &models.FetchError{URL: url, StatusCode: 200, Err: err}
	}

	sum := sha1.Sum([]byte(html))
	return models.Result{
		URL:      url,
		Title:    doc.Title,
		Text:     extract.Truncate(doc.Text, f.MaxChars),
		HTMLHash: hex.EncodeToString(sum[:]),
		Status:   200,
		RenderMS: int(time.Since(t0) / time.Millisecond),
	}, nil
}

func fetchHTML(ctx context.Context, url, userAgent string) (string, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
	)
	if userAgent != "" {
		opts = append(opts, chromedp.UserAgent(userAgent))
	}
	actx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	bctx, cancelBrowser := chromedp.NewContext(actx)
	defer cancelBrowser()

	var html string
	err := chromedp.Run(bctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	return html, err
}
