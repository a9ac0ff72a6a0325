package agent

// MaxAlertDataSize is the maximum allowed size for alert data (10 MB).
// Alerts exceeding this limit are rejected at API submission time (HTTP 413).
const MaxAlertDataSize = 10 * 1024 * 1024 // 10 MB
