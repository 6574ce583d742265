// internal/workers/data-access/query-store/cache.go
package querystore

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/common/metrics"
	"crowd-monitor/internal/models"

	"github.com/redis/go-redis/v9"
)

const (
	topPostsKeyPrefix   = "posts:top:"
	generationKeyPrefix = "posts:gen:"
)

// CachedStore puts a Redis read-through cache in front of top-post reads.
//
// Each query id has a generation counter, and its top lists live in a hash
// keyed by limit under "posts:top:<id>:<generation>". An upsert bumps the
// generation of every query it touches, both the posts' new query and the
// query they were recorded under before. A fill that read the store before
// a concurrent upsert committed lands under the superseded generation and
// is never served. Redis failures degrade to reading the store directly.
type CachedStore struct {
	Store
	redis  *redis.Client
	ttl    time.Duration
	logger logger.Logger
}

func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, log logger.Logger) *CachedStore {
	return &CachedStore{
		Store:  inner,
		redis:  client,
		ttl:    ttl,
		logger: log.WithFields(map[string]interface{}{"taskType": TaskType, "layer": "cache"}),
	}
}

func generationKey(queryID string) string {
	return generationKeyPrefix + queryID
}

func topPostsKey(queryID string, generation int64) string {
	return topPostsKeyPrefix + queryID + ":" + strconv.FormatInt(generation, 10)
}

// generation reads the current generation of queryID; a missing counter is 0.
func (c *CachedStore) generation(ctx context.Context, queryID string) (int64, error) {
	gen, err := c.redis.Get(ctx, generationKey(queryID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *CachedStore) QueryTopScoredPosts(ctx context.Context, queryID string, limit int) ([]models.ScoredPost, error) {
	gen, err := c.generation(ctx, queryID)
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache generation read failed", map[string]interface{}{"queryId": queryID, "error": err})
		return c.Store.QueryTopScoredPosts(ctx, queryID, limit)
	}

	key := topPostsKey(queryID, gen)
	field := strconv.Itoa(limit)

	cached, err := c.redis.HGet(ctx, key, field).Result()
	switch {
	case err == nil:
		var posts []models.ScoredPost
		if jsonErr := json.Unmarshal([]byte(cached), &posts); jsonErr == nil {
			metrics.CacheLookups.WithLabelValues("hit").Inc()
			return posts, nil
		}
		c.logger.Warn("discarding undecodable cache entry", map[string]interface{}{"key": key})
	case errors.Is(err, redis.Nil):
	default:
		metrics.CacheLookups.WithLabelValues("error").Inc()
		c.logger.Warn("cache read failed", map[string]interface{}{"key": key, "error": err})
	}
	metrics.CacheLookups.WithLabelValues("miss").Inc()

	posts, err := c.Store.QueryTopScoredPosts(ctx, queryID, limit)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(posts)
	if err != nil {
		return posts, nil
	}
	if err := c.redis.HSet(ctx, key, field, data).Err(); err != nil {
		c.logger.Warn("cache write failed", map[string]interface{}{"key": key, "error": err})
		return posts, nil
	}
	if c.ttl > 0 {
		if err := c.redis.Expire(ctx, key, c.ttl).Err(); err != nil {
			c.logger.Warn("cache expire failed", map[string]interface{}{"key": key, "error": err})
		}
	}
	return posts, nil
}

// UpsertScoredPosts writes through to the store, then invalidates the
// cached lists of every query that gained or lost a post.
func (c *CachedStore) UpsertScoredPosts(ctx context.Context, posts []models.ScoredPost) error {
	if len(posts) == 0 {
		return c.Store.UpsertScoredPosts(ctx, posts)
	}

	ids := make([]string, len(posts))
	for i, p := range posts {
		ids[i] = p.ID
	}
	previous, err := c.Store.PostOwners(ctx, ids)
	if err != nil {
		c.logger.Warn("previous post owners unavailable, invalidating new owners only", map[string]interface{}{
			"posts": len(ids),
			"error": err,
		})
		previous = nil
	}

	if err := c.Store.UpsertScoredPosts(ctx, posts); err != nil {
		return err
	}

	affected := make([]string, 0, 1)
	seen := make(map[string]struct{})
	touch := func(queryID string) {
		if _, ok := seen[queryID]; ok {
			return
		}
		seen[queryID] = struct{}{}
		affected = append(affected, queryID)
	}
	for _, p := range posts {
		if owner, ok := previous[p.ID]; ok {
			touch(owner)
		}
		touch(p.QueryID)
	}

	for _, queryID := range affected {
		c.invalidate(ctx, queryID)
	}
	return nil
}

// invalidate moves queryID to a new generation and drops the list cached
// under the previous one.
func (c *CachedStore) invalidate(ctx context.Context, queryID string) {
	gen, err := c.redis.Incr(ctx, generationKey(queryID)).Result()
	if err != nil {
		c.logger.Warn("cache invalidation failed", map[string]interface{}{"queryId": queryID, "error": err})
		return
	}
	if err := c.redis.Del(ctx, topPostsKey(queryID, gen-1)).Err(); err != nil {
		c.logger.Warn("stale cache entry not dropped", map[string]interface{}{"queryId": queryID, "error": err})
	}
}
