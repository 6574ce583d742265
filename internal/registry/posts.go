// internal/registry/posts.go
package registry

import (
	"cmp"
	"context"
	"slices"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/models"
)

// TopPosts returns the best posts recorded under queryID whether or not the
// query still exists.
func (r *Registry) TopPosts(ctx context.Context, queryID string, limit int) ([]models.ScoredPost, error) {
	return r.store.QueryTopScoredPosts(ctx, queryID, limit)
}

// TopPostsActive is TopPosts restricted to an active query.
func (r *Registry) TopPostsActive(ctx context.Context, id string, limit int) ([]models.ScoredPost, error) {
	if _, ok := r.LookupActive(id); !ok {
		return nil, apperrors.NewNotFoundError(kindQuery, id)
	}
	return r.store.QueryTopScoredPosts(ctx, id, limit)
}

// TopPostsArchived is TopPosts restricted to an archived query.
func (r *Registry) TopPostsArchived(ctx context.Context, id string, limit int) ([]models.ScoredPost, error) {
	if _, ok := r.LookupArchived(id); !ok {
		return nil, apperrors.NewNotFoundError(kindArchivedQuery, id)
	}
	return r.store.QueryTopScoredPosts(ctx, id, limit)
}

// TopPostsAllActive merges the best posts of every active query.
func (r *Registry) TopPostsAllActive(ctx context.Context, limit int) ([]models.ScoredPost, error) {
	qs := r.ListActive()
	caps := make([]queryCap, len(qs))
	for i, q := range qs {
		caps[i] = queryCap{id: q.ID, max: q.MaxTweets}
	}
	return r.mergeTop(ctx, caps, limit)
}

// TopPostsAllArchived merges the best posts of every archived query.
func (r *Registry) TopPostsAllArchived(ctx context.Context, limit int) ([]models.ScoredPost, error) {
	return r.mergeTop(ctx, archivedCaps(r.ListArchived()), limit)
}

// TopPostsAllPublic merges the best posts of every public archived query.
func (r *Registry) TopPostsAllPublic(ctx context.Context, limit int) ([]models.ScoredPost, error) {
	return r.mergeTop(ctx, archivedCaps(r.ListPublicArchived()), limit)
}

type queryCap struct {
	id  string
	max int
}

func archivedCaps(aqs []models.ArchivedQuery) []queryCap {
	caps := make([]queryCap, len(aqs))
	for i, aq := range aqs {
		caps[i] = queryCap{id: aq.ID, max: aq.MaxTweets}
	}
	return caps
}

// mergeTop takes up to max posts from each query, sorts the union by
// relatability descending and keeps limit of them.
func (r *Registry) mergeTop(ctx context.Context, caps []queryCap, limit int) ([]models.ScoredPost, error) {
	out := []models.ScoredPost{}
	if limit <= 0 {
		return out, nil
	}
	for _, c := range caps {
		posts, err := r.store.QueryTopScoredPosts(ctx, c.id, c.max)
		if err != nil {
			return nil, err
		}
		out = append(out, posts...)
	}

	slices.SortStableFunc(out, func(a, b models.ScoredPost) int {
		return cmp.Or(
			cmp.Compare(b.RelatabilityScore, a.RelatabilityScore),
			cmp.Compare(a.ID, b.ID),
		)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
