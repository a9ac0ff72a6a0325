package runbook

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/tarsy-dev/tarsy/pkg/config"
)

// Service resolves per-alert runbook URLs to content, with domain
// allowlisting and TTL caching. Fetch failures are returned to the caller;
// the chain executor applies the fail-open policy (investigate without a
// runbook) and records a system warning.
type Service struct {
	github *GitHubClient
	cache  *Cache
	cfg    *config.RunbookConfig
}

// NewService creates a runbook service. The GitHub token is read from the
// configured environment variable; empty means unauthenticated access
// (public repos only, lower rate limits).
func NewService(cfg *config.RunbookConfig) *Service {
	return &Service{
		github: NewGitHubClient(os.Getenv(cfg.TokenEnv)),
		cache:  NewCache(cfg.CacheTTL),
		cfg:    cfg,
	}
}

// Resolve fetches the runbook for an alert. An empty URL means the alert
// was submitted without a runbook; that is not an error.
func (s *Service) Resolve(ctx context.Context, alertRunbookURL string) (string, error) {
	if alertRunbookURL == "" {
		return "", nil
	}
	content, err := s.fetchWithCache(ctx, alertRunbookURL)
	if err != nil {
		return "", fmt.Errorf("fetch alert runbook %s: %w", alertRunbookURL, err)
	}
	return content, nil
}

// OverrideHTTPClientForTest replaces the internal GitHub client's HTTP client.
// For testing only.
func (s *Service) OverrideHTTPClientForTest(httpClient *http.Client) {
	s.github.httpClient = httpClient
}

func (s *Service) fetchWithCache(ctx context.Context, rawURL string) (string, error) {
	if err := ValidateRunbookURL(rawURL, s.cfg.AllowedDomains); err != nil {
		return "", err
	}

	// Cache key is the normalized raw URL so blob and raw forms of the same
	// document share an entry.
	normalizedURL := ConvertToRawURL(rawURL)
	if content, ok := s.cache.Get(normalizedURL); ok {
		return content, nil
	}

	content, err := s.github.DownloadContent(ctx, rawURL)
	if err != nil {
		return "", err
	}

	s.cache.Set(normalizedURL, content)
	return content, nil
}
