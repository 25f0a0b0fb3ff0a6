package config

import (
	"os"
	"strconv"
	"time"
)

// Timeouts holds the poll and retry cadence of a run.
// These values can be customized via environment variables.
type Timeouts struct {
	ResourcePoll         time.Duration // Interval for image, volume and snapshot polls (unbounded)
	ServerPoll           time.Duration // First server poll interval; grows by the same amount each attempt
	ServerPollMaxWait    time.Duration // Accumulated wait after which server polling gives up
	SessionRetry         time.Duration // Interval between SSH connection attempts
	SessionRetryMaxWait  time.Duration // Accumulated wait after which SSH acquisition gives up
	SSHDialTimeout       time.Duration // Timeout for a single TCP dial + handshake
	HTTPTimeout          time.Duration // Timeout for a single OpenStack API request
	PortCleanupBatchSize int           // Concurrent security group updates per server
}

// LoadTimeouts loads timeout configuration from environment variables.
// If an environment variable is not set or invalid, a default value is used.
//
// Environment Variables:
//   - PIPEMAN_TIMEOUT_RESOURCE_POLL (default: 3s)
//   - PIPEMAN_TIMEOUT_SERVER_POLL (default: 5s)
//   - PIPEMAN_TIMEOUT_SERVER_POLL_MAX (default: 20m)
//   - PIPEMAN_TIMEOUT_SESSION_RETRY (default: 5s)
//   - PIPEMAN_TIMEOUT_SESSION_RETRY_MAX (default: 10m)
//   - PIPEMAN_TIMEOUT_SSH_DIAL (default: 10s)
//   - PIPEMAN_TIMEOUT_HTTP (default: 60s)
//   - PIPEMAN_PORT_CLEANUP_BATCH (default: 4)
func LoadTimeouts() *Timeouts {
	return &Timeouts{
		ResourcePoll:         parseDuration("PIPEMAN_TIMEOUT_RESOURCE_POLL", 3*time.Second),
		ServerPoll:           parseDuration("PIPEMAN_TIMEOUT_SERVER_POLL", 5*time.Second),
		ServerPollMaxWait:    parseDuration("PIPEMAN_TIMEOUT_SERVER_POLL_MAX", 1200*time.Second),
		SessionRetry:         parseDuration("PIPEMAN_TIMEOUT_SESSION_RETRY", 5*time.Second),
		SessionRetryMaxWait:  parseDuration("PIPEMAN_TIMEOUT_SESSION_RETRY_MAX", 600*time.Second),
		SSHDialTimeout:       parseDuration("PIPEMAN_TIMEOUT_SSH_DIAL", 10*time.Second),
		HTTPTimeout:          parseDuration("PIPEMAN_TIMEOUT_HTTP", 60*time.Second),
		PortCleanupBatchSize: parseInt("PIPEMAN_PORT_CLEANUP_BATCH", 4),
	}
}

// parseDuration parses a duration from an environment variable.
// If the variable is not set, parsing fails or the duration is not positive,
// the default value is returned.
func parseDuration(envVar string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}

	return d
}

// parseInt parses a positive integer from an environment variable.
// If the variable is not set, parsing fails or the value is not positive,
// the default value is returned.
func parseInt(envVar string, defaultVal int) int {
	val := os.Getenv(envVar)
	if val == "" {
		return defaultVal
	}

	i, err := strconv.Atoi(val)
	if err != nil || i <= 0 {
		return defaultVal
	}

	return i
}
