package brave

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/mohammad-safakhou/searchrag/tools/web_search/models"
)

const (
	Name            = "brave"
	DefaultEndpoint = "https://api.search.brave.com/res/v1/web/search"
)

type Search struct {
	ApiKey   string
	Endpoint string
	HTTP     *http.Client
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://api.search.brave.com/app/documentation/web-search
	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	params := url.Values{}
	params.Set("q", q)
	if k > 0 {
		params.Set("count", strconv.Itoa(k))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, &models.ProviderError{Provider: Name, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", s.ApiKey)

	client := s.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &models.ProviderError{Provider: Name, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &models.ProviderError{Provider: Name, StatusCode: resp.StatusCode, Err: errors.New(string(b))}
	}

	var raw struct {
		Web *struct {
			Results []struct {
				Title   string `json:"title"`
				URL     string `json:"url"`
				Snippet string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &models.ProviderError{Provider: Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if raw.Web == nil {
		return nil, &models.ProviderError{Provider: Name, StatusCode: resp.StatusCode, Err: errors.New("response has no web results field")}
	}
	out := make([]models.Result, 0, len(raw.Web.Results))
	for _, r := range raw.Web.Results {
		out = append(out, models.Result{Title: r.Title, URL: r.URL, Snippet: r.Snippet})
	}
	return out, nil
}
