package config

import "testing"

func TestCrawlPolicyNormalize(t *testing.T) {
	cfg := CrawlPolicyConfig{
		Allow:    []string{"Example.com", "https://news.example.com", "example.com"},
		Disallow: []string{"www.Bad.com", " "},
	}

	norm := cfg.Normalize()
	if len(norm.Allow) != 2 || norm.Allow[0] != "example.com" || norm.Allow[1] != "news.example.com" {
		t.Fatalf("unexpected allow list: %#v", norm.Allow)
	}
	if len(norm.Disallow) != 1 || norm.Disallow[0] != "bad.com" {
		t.Fatalf("unexpected disallow list: %#v", norm.Disallow)
	}
}

func TestCrawlPolicyValidate(t *testing.T) {
	valid := CrawlPolicyConfig{Allow: []string{"example.com"}, Disallow: []string{"blocked.com"}}
	if err := valid.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}

	conflict := CrawlPolicyConfig{Allow: []string{"example.com"}, Disallow: []string{"www.example.com"}}
	if err := conflict.Validate(); !IsConfigurationError(err) {
		t.Fatalf("expected conflict ConfigurationError, got %v", err)
	}
}

func TestCrawlPolicyPermits(t *testing.T) {
	open := CrawlPolicyConfig{Disallow: []string{"pinterest.com"}}.Normalize()
	cases := map[string]bool{
		"https://en.wikipedia.org/wiki/Paris": true,
		"https://www.pinterest.com/pin/1":     false,
		"https://uk.pinterest.com/pin/2":      false,
		"https://notpinterest.com/":           true,
		"not a url":                           false,
	}
	for u, want := range cases {
		if got := open.Permits(u); got != want {
			t.Fatalf("Permits(%q) = %v, want %v", u, got, want)
		}
	}

	closed := CrawlPolicyConfig{Allow: []string{"wikipedia.org"}}.Normalize()
	if !closed.Permits("https://fr.wikipedia.org/wiki/Paris") || closed.Permits("https://example.com") {
		t.Fatalf("allow list not enforced")
	}
}
