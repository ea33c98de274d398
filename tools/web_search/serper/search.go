package serper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/mohammad-safakhou/searchrag/tools/web_search/models"
)

const (
	Name            = "serper"
	DefaultEndpoint = "https://google.serper.dev/search"
)

type Search struct {
	ApiKey   string
	Endpoint string
	HTTP     *http.Client
}

type organicItem struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Snippet string `json:"snippet"`
}

type response struct {
	Organic *[]organicItem `json:"organic"`
}

func (s Search) Discover(ctx context.Context, q string, k int) ([]models.Result, error) {
	// https://serper.dev/ docs
	payload := map[string]any{"q": q}
	if k > 0 {
		payload["num"] = k
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &models.ProviderError{Provider: Name, Err: err}
	}

	endpoint := s.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, &models.ProviderError{Provider: Name, Err: err}
	}
	req.Header.Set("X-API-KEY", s.ApiKey)
	req.Header.Set("Content-Type", "application/json")

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

	var raw response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, &models.ProviderError{Provider: Name, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if raw.Organic == nil {
		return nil, &models.ProviderError{Provider: Name, StatusCode: resp.StatusCode, Err: errors.New("response has no organic results field")}
	}

	out := make([]models.Result, 0, len(*raw.Organic))
	for _, it := range *raw.Organic {
		out = append(out, models.Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return out, nil
}
