package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/config"
	"github.com/tarsy-dev/tarsy/pkg/database"
	"github.com/tarsy-dev/tarsy/pkg/history"
	"github.com/tarsy-dev/tarsy/pkg/queue"
	"github.com/tarsy-dev/tarsy/pkg/services"
	testdb "github.com/tarsy-dev/tarsy/test/database"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testAPIConfig() *config.Config {
	return &config.Config{
		ChainRegistry: config.NewChainRegistry(map[string]*config.ChainConfig{
			"kubernetes-chain": {
				AlertTypes:  []string{"kubernetes"},
				Description: "Kubernetes incident analysis",
				Stages: []config.StageConfig{
					{Name: "analysis", Agent: "KubernetesAgent"},
				},
			},
		}),
	}
}

type testServer struct {
	*Server
	client *database.Client
	store  *history.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	cfg := testAPIConfig()
	client := testdb.NewTestClient(t)
	store := history.NewStore(client)

	srv := NewServer(cfg, Options{
		DBClient:       client,
		Store:          store,
		AlertService:   services.NewAlertService(cfg, store, nil, nil),
		WarningService: services.NewSystemWarningsService(),
	})
	return &testServer{Server: srv, client: client, store: store}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeJSON(t *testing.T, rec *httptest.ResponseRecorder, target interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), target))
}

// submitAlert creates a session through the API and returns its session id.
func (ts *testServer) submitAlert(t *testing.T, data map[string]interface{}) string {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/api/v1/alerts", SubmitAlertRequest{
		AlertType: "kubernetes",
		Runbook:   "https://github.com/org/runbooks/blob/main/oom.md",
		Data:      data,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result services.SubmitAlertResult
	decodeJSON(t, rec, &result)
	require.NotEmpty(t, result.SessionID)
	return result.SessionID
}

func TestSecurityHeaders(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/api/v1/alert-types", nil)

	require.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	require.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
}

func TestHealthEndpoint(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	decodeJSON(t, rec, &resp)
	require.Equal(t, healthStatusHealthy, resp.Status)
	require.Equal(t, healthStatusHealthy, resp.Checks["database"].Status)
	require.NotEmpty(t, resp.Version)
}

func TestHealthEndpointDegradedPool(t *testing.T) {
	ts := newTestServer(t)
	ts.workerPool = unhealthyPool{}

	rec := ts.do(t, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code, "degraded pool alone must not fail the probe")

	var resp HealthResponse
	decodeJSON(t, rec, &resp)
	require.Equal(t, healthStatusDegraded, resp.Status)
	require.Equal(t, "claim query failing", resp.Checks["worker_pool"].Message)
}

type unhealthyPool struct{}

func (unhealthyPool) Health() *queue.PoolHealth {
	return &queue.PoolHealth{IsHealthy: false, DBError: "claim query failing"}
}
