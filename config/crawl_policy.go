package config

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// CrawlPolicyConfig limits which hosts the fetcher may visit. An empty Allow
// list permits every host that is not disallowed. Subdomains inherit the
// entry of their parent domain.
type CrawlPolicyConfig struct {
	Allow    []string `mapstructure:"allow"`
	Disallow []string `mapstructure:"disallow"`
}

// Normalize cleans entries and removes duplicates.
func (c CrawlPolicyConfig) Normalize() CrawlPolicyConfig {
	norm := c
	norm.Allow = sanitizeDomainList(norm.Allow)
	norm.Disallow = sanitizeDomainList(norm.Disallow)
	return norm
}

// Validate ensures configured policy entries do not conflict.
func (c CrawlPolicyConfig) Validate() error {
	norm := c.Normalize()

	allow := make(map[string]struct{}, len(norm.Allow))
	for _, host := range norm.Allow {
		allow[host] = struct{}{}
	}
	for _, host := range norm.Disallow {
		if _, ok := allow[host]; ok {
			return &ConfigurationError{Key: "fetch.policy", Msg: fmt.Sprintf("host %q present in both allow and disallow lists", host)}
		}
	}
	return nil
}

// Permits reports whether rawURL may be fetched. The receiver is expected
// to be normalized.
func (c CrawlPolicyConfig) Permits(rawURL string) bool {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || u.Hostname() == "" {
		return false
	}
	host := normalizeHost(u.Hostname())
	if matchesDomain(host, c.Disallow) {
		return false
	}
	return len(c.Allow) == 0 || matchesDomain(host, c.Allow)
}

func matchesDomain(host string, domains []string) bool {
	for _, d := range domains {
		if host == d || strings.HasSuffix(host, "."+d) {
			return true
		}
	}
	return false
}

func sanitizeDomainList(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	for _, raw := range values {
		host := normalizeHost(raw)
		if host == "" {
			continue
		}
		seen[host] = struct{}{}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for host := range seen {
		out = append(out, host)
	}
	sort.Strings(out)
	return out
}

func normalizeHost(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return ""
	}
	if strings.HasPrefix(value, "http://") || strings.HasPrefix(value, "https://") {
		if u, err := url.Parse(value); err == nil && u.Host != "" {
			return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		}
	}
	value = strings.TrimPrefix(value, "www.")
	return value
}
