// internal/workers/posts/score-post/config.go
package scorepost

import "crowd-monitor/internal/common/config"

// DefaultBlacklist holds the terms that veto a post's relatability.
var DefaultBlacklist = []string{"warning", "watch"}

type Config struct {
	Blacklist []string
}

func LoadConfig() *Config {
	return &Config{
		Blacklist: append([]string(nil), DefaultBlacklist...),
	}
}

// ConfigFrom builds the worker config from the application scoring section,
// keeping the defaults when no blacklist is configured.
func ConfigFrom(cfg config.ScoringConfig) *Config {
	c := LoadConfig()
	if len(cfg.Blacklist) > 0 {
		c.Blacklist = append([]string(nil), cfg.Blacklist...)
	}
	return c
}
