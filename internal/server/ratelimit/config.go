package ratelimit

import (
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// EndpointConfig overrides the default bucket for one route.
type EndpointConfig struct {
	Path   string     // exact path, or a prefix when it ends with "/"
	Method string     // HTTP method
	Rate   rate.Limit // tokens per second; 0 means unlimited
	Burst  int
}

// Config holds rate limiting configuration.
type Config struct {
	Enabled bool
	// Rate and Burst are the per-client default bucket.
	Rate            rate.Limit
	Burst           int
	CleanupInterval time.Duration
	// IdleTTL is how long an unused bucket is kept.
	IdleTTL         time.Duration
	Whitelist       map[string]bool
	EndpointConfigs []EndpointConfig
}

// NewConfig builds a Config from a per-client requests-per-second and burst.
// rps <= 0 disables limiting.
func NewConfig(rps float64, burst int, whitelist ...string) *Config {
	if rps <= 0 {
		return &Config{Enabled: false}
	}
	if burst < 1 {
		burst = 1
	}
	return &Config{
		Enabled:         true,
		Rate:            rate.Limit(rps),
		Burst:           burst,
		CleanupInterval: 5 * time.Minute,
		IdleTTL:         time.Hour,
		Whitelist:       parseIPList(strings.Join(whitelist, ",")),
		EndpointConfigs: DefaultEndpointConfigs(),
	}
}

// DefaultEndpointConfigs returns the default endpoint-specific configurations.
func DefaultEndpointConfigs() []EndpointConfig {
	return []EndpointConfig{
		// Job creation queues model work.
		{Path: "/jobs", Method: "POST", Rate: rate.Every(6 * time.Second), Burst: 10},
		{Path: "/jobs/batch", Method: "POST", Rate: rate.Every(time.Minute), Burst: 2},

		// Operator actions.
		{Path: "/jobs/", Method: "POST", Rate: rate.Every(time.Second), Burst: 10},
		{Path: "/documents", Method: "POST", Rate: rate.Every(time.Second), Burst: 20},
	}
}

// parseIPList parses a comma-separated list of IP addresses into a map.
func parseIPList(list string) map[string]bool {
	result := make(map[string]bool)
	if list == "" {
		return result
	}
	for _, ip := range strings.Split(list, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			result[ip] = true
		}
	}
	return result
}
