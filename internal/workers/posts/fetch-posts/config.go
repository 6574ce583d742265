// internal/workers/posts/fetch-posts/config.go
package fetchposts

type Config struct {
	// DedupeBatch collapses repeated post ids within one tick, last wins.
	DedupeBatch bool
}

func LoadConfig() *Config {
	return &Config{
		DedupeBatch: true,
	}
}
