package runbook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/config"
)

func TestService_Resolve(t *testing.T) {
	t.Run("URL provided fetches content", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("# Fetched Runbook"))
		}))
		defer server.Close()

		svc := newTestService(t, server)
		content, err := svc.Resolve(context.Background(), server.URL+"/runbook.md")
		require.NoError(t, err)
		assert.Equal(t, "# Fetched Runbook", content)
	})

	t.Run("empty URL returns empty content without fetching", func(t *testing.T) {
		svc := NewService(&config.RunbookConfig{CacheTTL: time.Minute})
		content, err := svc.Resolve(context.Background(), "")
		require.NoError(t, err)
		assert.Empty(t, content)
	})

	t.Run("fetch error returns error for caller to handle", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		svc := newTestService(t, server)
		_, err := svc.Resolve(context.Background(), server.URL+"/runbook.md")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "fetch alert runbook")
	})

	t.Run("invalid URL domain returns error", func(t *testing.T) {
		svc := NewService(&config.RunbookConfig{
			CacheTTL:       time.Minute,
			AllowedDomains: []string{"github.com"},
		})

		_, err := svc.Resolve(context.Background(), "https://evil.com/runbook.md")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not in allowed list")
	})

	t.Run("caches fetched content", func(t *testing.T) {
		callCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callCount++
			_, _ = w.Write([]byte("# Cached Content"))
		}))
		defer server.Close()

		svc := newTestService(t, server)

		// First call — fetches
		content1, err := svc.Resolve(context.Background(), server.URL+"/runbook.md")
		require.NoError(t, err)
		assert.Equal(t, "# Cached Content", content1)
		assert.Equal(t, 1, callCount)

		// Second call — cache hit
		content2, err := svc.Resolve(context.Background(), server.URL+"/runbook.md")
		require.NoError(t, err)
		assert.Equal(t, "# Cached Content", content2)
		assert.Equal(t, 1, callCount) // Not incremented
	})

	t.Run("expired cache entry refetches", func(t *testing.T) {
		callCount := 0
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			callCount++
			_, _ = w.Write([]byte("# Content"))
		}))
		defer server.Close()

		svc := NewService(&config.RunbookConfig{CacheTTL: 1 * time.Millisecond})
		svc.OverrideHTTPClientForTest(server.Client())

		_, err := svc.Resolve(context.Background(), server.URL+"/runbook.md")
		require.NoError(t, err)

		time.Sleep(5 * time.Millisecond)

		_, err = svc.Resolve(context.Background(), server.URL+"/runbook.md")
		require.NoError(t, err)
		assert.Equal(t, 2, callCount)
	})
}

// newTestService creates a Service with no domain restrictions, using the test server for HTTP.
func newTestService(t *testing.T, server *httptest.Server) *Service {
	t.Helper()
	svc := NewService(&config.RunbookConfig{
		CacheTTL:       1 * time.Minute,
		AllowedDomains: nil, // No domain restrictions for tests
	})
	svc.OverrideHTTPClientForTest(server.Client())
	return svc
}
