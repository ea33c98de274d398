// Package extract turns fetched HTML into plain text for the corpus.
package extract

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
)

type Mode string

const (
	ModeElements    Mode = "elements"
	ModeReadability Mode = "readability"
)

// TextSelector lists the elements whose text makes up a page.
const TextSelector = "h1, h2, h3, p"

var ErrUnsupportedMode = errors.New("unsupported extractor")

type Document struct {
	Title string
	Text  string
}

// Extract parses html according to mode. pageURL resolves relative links for readability.
func Extract(mode Mode, html, pageURL string) (Document, error) {
	switch mode {
	case "", ModeElements:
		return Elements(html)
	case ModeReadability:
		return Readability(html, pageURL)
	default:
		return Document{}, fmt.Errorf("%w: %q", ErrUnsupportedMode, mode)
	}
}

// Elements collects the trimmed text of every heading and paragraph in
// document order, one per line. Empty elements are skipped.
func Elements(html string) (Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Document{}, fmt.Errorf("parse html: %w", err)
	}
	return Document{
		Title: strings.TrimSpace(doc.Find("head title").First().Text()),
		Text:  elementText(doc.Selection),
	}, nil
}

// Readability isolates the main article before collecting elements. Pages
// whose article has no headings or paragraphs fall back to its plain text.
func Readability(html, pageURL string) (Document, error) {
	u, err := url.Parse(pageURL)
	if err != nil {
		u = &url.URL{}
	}
	article, err := readability.FromReader(strings.NewReader(html), u)
	if err != nil {
		return Document{}, fmt.Errorf("readability: %w", err)
	}
	out := Document{Title: strings.TrimSpace(article.Title)}
	if article.Content != "" {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
		if err == nil {
			out.Text = elementText(doc.Selection)
		}
	}
	if out.Text == "" {
		out.Text = strings.TrimSpace(article.TextContent)
	}
	return out, nil
}

func elementText(sel *goquery.Selection) string {
	var parts []string
	sel.Find(TextSelector).Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			parts = append(parts, t)
		}
	})
	return strings.TrimSpace(strings.Join(parts, "\n"))
}

// Truncate cuts s to at most n runes. n <= 0 disables the cap.
func Truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n]))
}
