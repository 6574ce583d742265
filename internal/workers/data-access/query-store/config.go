// internal/workers/data-access/query-store/config.go
package querystore

import (
	"time"

	"crowd-monitor/internal/common/config"
)

type Config struct {
	Dialect  string
	Timeout  time.Duration
	CacheTTL time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Dialect:  config.DriverPostgres,
		Timeout:  10 * time.Second,
		CacheTTL: time.Minute,
	}
}

// ConfigFrom derives the store config from the database section.
func ConfigFrom(cfg config.DatabaseConfig) *Config {
	c := LoadConfig()
	if cfg.Driver != "" {
		c.Dialect = cfg.Driver
	}
	if cfg.Redis.CacheTTL > 0 {
		c.CacheTTL = time.Duration(cfg.Redis.CacheTTL) * time.Millisecond
	}
	return c
}
