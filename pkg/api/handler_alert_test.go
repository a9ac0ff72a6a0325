package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tarsy-dev/tarsy/pkg/services"
)

func TestSubmitAlertEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/alerts", SubmitAlertRequest{
		AlertType: "kubernetes",
		Runbook:   "https://github.com/org/runbooks/blob/main/oom.md",
		Data:      map[string]interface{}{"namespace": "prod"},
		Severity:  "critical",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result services.SubmitAlertResult
	decodeJSON(t, rec, &result)
	assert.Equal(t, services.SubmissionStatusQueued, result.Status)
	assert.NotEmpty(t, result.SessionID)
	assert.True(t, strings.HasPrefix(result.AlertID, "kubernetes-"))

	session, err := ts.store.GetSession(t.Context(), result.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "critical", session.AlertData["severity"], "severity field merged into payload")
}

func TestSubmitAlertEndpointDuplicate(t *testing.T) {
	ts := newTestServer(t)
	data := map[string]interface{}{"namespace": "prod", "pod": "api-1"}

	first := ts.submitAlert(t, data)

	rec := ts.do(t, http.MethodPost, "/api/v1/alerts", SubmitAlertRequest{
		AlertType: "kubernetes",
		Runbook:   "https://github.com/org/runbooks/blob/main/oom.md",
		Data:      data,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var result services.SubmitAlertResult
	decodeJSON(t, rec, &result)
	assert.Equal(t, services.SubmissionStatusDuplicate, result.Status)
	assert.Equal(t, first, result.SessionID)
}

func TestSubmitAlertEndpointBadRequests(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name string
		req  SubmitAlertRequest
		want int
	}{
		{
			name: "missing alert_type",
			req: SubmitAlertRequest{
				Runbook: "https://example.com/rb.md",
				Data:    map[string]interface{}{"x": "y"},
			},
			want: http.StatusBadRequest,
		},
		{
			name: "missing runbook",
			req: SubmitAlertRequest{
				AlertType: "kubernetes",
				Data:      map[string]interface{}{"x": "y"},
			},
			want: http.StatusBadRequest,
		},
		{
			name: "unregistered alert type",
			req: SubmitAlertRequest{
				AlertType: "no-such-type",
				Runbook:   "https://example.com/rb.md",
			},
			want: http.StatusBadRequest,
		},
		{
			name: "relative runbook URL",
			req: SubmitAlertRequest{
				AlertType: "kubernetes",
				Runbook:   "runbooks/oom.md",
			},
			want: http.StatusUnprocessableEntity,
		},
		{
			name: "oversized string field",
			req: SubmitAlertRequest{
				AlertType: "kubernetes",
				Runbook:   "https://example.com/rb.md",
				Data:      map[string]interface{}{"log": strings.Repeat("x", services.MaxStringFieldBytes+1)},
			},
			want: http.StatusUnprocessableEntity,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := ts.do(t, http.MethodPost, "/api/v1/alerts", tc.req)
			assert.Equal(t, tc.want, rec.Code, rec.Body.String())

			var resp ErrorResponse
			decodeJSON(t, rec, &resp)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestSubmitAlertEndpointMalformedBody(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/alerts", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSubmitAlertEndpointPayloadTooLarge(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/alerts", SubmitAlertRequest{
		AlertType: "kubernetes",
		Runbook:   "https://example.com/rb.md",
		Data:      map[string]interface{}{"blob": strings.Repeat("a", services.MaxPayloadBytes+1)},
	})
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
