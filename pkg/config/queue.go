package config

import "time"

// QueueConfig contains queue and worker configuration. These values control
// how sessions are polled, claimed, and processed.
type QueueConfig struct {
	// MaxConcurrentSessions is the global limit of concurrent sessions being
	// processed across ALL replicas/pods. Enforced by database COUNT(*) check.
	MaxConcurrentSessions int `yaml:"max_concurrent_sessions"`

	// WorkerCount is the number of claim workers per pod. Each worker
	// processes one session at a time.
	WorkerCount int `yaml:"worker_count"`

	// ClaimInterval is the base interval between claim attempts.
	ClaimInterval time.Duration `yaml:"claim_interval"`

	// ClaimIntervalJitter is the random jitter added to ClaimInterval.
	// Actual interval: ClaimInterval ± ClaimIntervalJitter.
	ClaimIntervalJitter time.Duration `yaml:"claim_interval_jitter"`

	// SessionTimeout is the maximum time a session can be processed.
	SessionTimeout time.Duration `yaml:"session_timeout"`

	// HeartbeatInterval is how often a worker refreshes the session's
	// last-interaction timestamp while processing it.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`

	// GracefulShutdownTimeout is the max time to wait for active sessions
	// during shutdown before letting the orphan reclaimer pick them up.
	GracefulShutdownTimeout time.Duration `yaml:"graceful_shutdown_timeout"`

	// OrphanDetectionInterval is how often to scan for orphaned sessions.
	OrphanDetectionInterval time.Duration `yaml:"orphan_detection_interval"`

	// OrphanThreshold is how long a claimed session can go without progress
	// before it is considered orphaned and re-queued.
	OrphanThreshold time.Duration `yaml:"orphan_threshold"`
}

// DefaultQueueConfig returns the built-in queue defaults.
func DefaultQueueConfig() *QueueConfig {
	return &QueueConfig{
		MaxConcurrentSessions:   5,
		WorkerCount:             2,
		ClaimInterval:           500 * time.Millisecond,
		ClaimIntervalJitter:     250 * time.Millisecond,
		SessionTimeout:          15 * time.Minute,
		HeartbeatInterval:       30 * time.Second,
		GracefulShutdownTimeout: 30 * time.Second,
		OrphanDetectionInterval: 5 * time.Minute,
		OrphanThreshold:         10 * time.Minute,
	}
}
