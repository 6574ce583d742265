// internal/workers/posts/fetch-posts/models.go
package fetchposts

import (
	"context"
	"time"

	"crowd-monitor/internal/models"
)

// PostWriter persists a tick's batch.
type PostWriter interface {
	UpsertScoredPosts(ctx context.Context, posts []models.ScoredPost) error
}

// Scorer turns a raw post into a scored one.
type Scorer interface {
	Score(q models.Query, p models.RawPost) (models.ScoredPost, error)
}

// Output summarizes one tick.
type Output struct {
	TickID    string        `json:"tickId"`
	QueryID   string        `json:"queryId"`
	Fetched   int           `json:"fetched"`
	Dropped   int           `json:"dropped"`
	Persisted int           `json:"persisted"`
	Duration  time.Duration `json:"duration"`
}
