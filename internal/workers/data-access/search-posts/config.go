// internal/workers/data-access/search-posts/config.go
package searchposts

import (
	"time"

	"crowd-monitor/internal/common/config"
)

type Config struct {
	Index    string
	PageSize int
	Timeout  time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Index:    "posts",
		PageSize: 100,
		Timeout:  30 * time.Second,
	}
}

// ConfigFrom overlays the elasticsearch section on the defaults.
func ConfigFrom(cfg config.ElasticsearchConfig) *Config {
	c := LoadConfig()
	if cfg.Index != "" {
		c.Index = cfg.Index
	}
	if cfg.PageSize > 0 {
		c.PageSize = cfg.PageSize
	}
	return c
}
