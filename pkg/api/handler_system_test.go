package api

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/services"
)

func TestAlertTypesEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/alert-types", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AlertTypesResponse
	decodeJSON(t, rec, &resp)
	require.Len(t, resp.AlertTypes, 1)
	assert.Equal(t, "kubernetes", resp.AlertTypes[0].Type)
	assert.Equal(t, "kubernetes-chain", resp.AlertTypes[0].ChainID)
	assert.Equal(t, "Kubernetes incident analysis", resp.AlertTypes[0].Description)
}

func TestSystemWarningsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	t.Run("empty", func(t *testing.T) {
		rec := ts.do(t, http.MethodGet, "/api/v1/system/warnings", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp SystemWarningsResponse
		decodeJSON(t, rec, &resp)
		assert.Empty(t, resp.Warnings)
	})

	t.Run("with warnings", func(t *testing.T) {
		ts.warningService.AddWarning(services.WarningCategoryMCPInit,
			"server failed to initialize", "connection refused", "kubernetes-server")

		rec := ts.do(t, http.MethodGet, "/api/v1/system/warnings", nil)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp SystemWarningsResponse
		decodeJSON(t, rec, &resp)
		require.Len(t, resp.Warnings, 1)
		assert.Equal(t, services.WarningCategoryMCPInit, resp.Warnings[0].Category)
		assert.Equal(t, "kubernetes-server", resp.Warnings[0].ServerID)
		assert.NotEmpty(t, resp.Warnings[0].CreatedAt)
	})
}

func TestMCPServersEndpointWithoutMonitor(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/system/mcp-servers", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp MCPServersResponse
	decodeJSON(t, rec, &resp)
	assert.Empty(t, resp.Servers)
}
