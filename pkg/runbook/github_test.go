package runbook

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGitHubClient_DownloadContent(t *testing.T) {
	t.Run("successful download", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("# Runbook Content\n\nStep 1: Check pods"))
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		content, err := client.DownloadContent(context.Background(), server.URL+"/org/repo/blob/main/runbook.md")
		require.NoError(t, err)
		assert.Equal(t, "# Runbook Content\n\nStep 1: Check pods", content)
	})

	t.Run("authentication header sent when token present", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("content"))
		}))
		defer server.Close()

		client := newTestGitHubClient("test-token-123", server)

		_, err := client.DownloadContent(context.Background(), server.URL+"/file.md")
		require.NoError(t, err)
		assert.Equal(t, "Bearer test-token-123", gotAuth)
	})

	t.Run("no auth header when token empty", func(t *testing.T) {
		var gotAuth string
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			gotAuth = r.Header.Get("Authorization")
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("content"))
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		_, err := client.DownloadContent(context.Background(), server.URL+"/file.md")
		require.NoError(t, err)
		assert.Empty(t, gotAuth)
	})

	t.Run("HTTP 404 returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		_, err := client.DownloadContent(context.Background(), server.URL+"/missing.md")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "404")
	})

	t.Run("HTTP 500 returns error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		_, err := client.DownloadContent(context.Background(), server.URL+"/file.md")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "500")
	})

	t.Run("context cancellation", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("content"))
		}))
		defer server.Close()

		client := newTestGitHubClient("", server)

		ctx, cancel := context.WithCancel(context.Background())
		cancel() // Cancel immediately

		_, err := client.DownloadContent(ctx, server.URL+"/file.md")
		require.Error(t, err)
	})
}

// newTestGitHubClient creates a GitHubClient that uses the test server for raw content downloads.
// This is for DownloadContent tests where the URL is used directly.
func newTestGitHubClient(token string, server *httptest.Server) *GitHubClient {
	client := NewGitHubClient(token)
	client.httpClient = server.Client()
	return client
}
