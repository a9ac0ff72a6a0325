package config

import "time"

// RetentionConfig controls data retention and cleanup behavior.
type RetentionConfig struct {
	// SessionRetentionDays is how many days to keep terminal sessions
	// before deletion. Descendant rows go with the session via
	// ON DELETE CASCADE.
	SessionRetentionDays int `yaml:"session_retention_days"`

	// EventTTL is the maximum age of event-bus rows before deletion.
	// Deleting rows never resets the id sequence.
	EventTTL time.Duration `yaml:"event_ttl"`

	// CleanupInterval is how often the cleanup loop runs.
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// DefaultRetentionConfig returns the built-in retention defaults.
func DefaultRetentionConfig() *RetentionConfig {
	return &RetentionConfig{
		SessionRetentionDays: 90,
		EventTTL:             24 * time.Hour,
		CleanupInterval:      12 * time.Hour,
	}
}
