package api

// SubmitAlertRequest is the HTTP request body for POST /api/v1/alerts.
// Severity and Timestamp are convenience fields merged into Data; the
// service fills defaults for whichever is absent.
type SubmitAlertRequest struct {
	AlertType string                 `json:"alert_type"`
	Runbook   string                 `json:"runbook"`
	Data      map[string]interface{} `json:"data"`
	Severity  string                 `json:"severity,omitempty"`
	Timestamp *int64                 `json:"timestamp,omitempty"`
	Author    string                 `json:"author,omitempty"`
}
