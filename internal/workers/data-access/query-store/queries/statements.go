// internal/workers/data-access/query-store/queries/statements.go
package queries

import "strings"

const queryColumns = `id, name, location, start_date, end_date, keywords, frequency, max_tweets`

const (
	InsertQuery = `INSERT INTO queries (` + queryColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	ListQueries = `SELECT ` + queryColumns + ` FROM queries ORDER BY name, id`

	SelectQuery = `SELECT ` + queryColumns + ` FROM queries WHERE id = ?`

	UpdateQuery = `UPDATE queries SET name = ?, location = ?, start_date = ?, end_date = ?, keywords = ?, frequency = ?, max_tweets = ? WHERE id = ?`

	DeleteQuery = `DELETE FROM queries WHERE id = ?`

	InsertArchivedQuery = `INSERT INTO archived_queries (` + queryColumns + `, is_public, archived_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	ListArchivedQueries = `SELECT ` + queryColumns + `, is_public, archived_at FROM archived_queries ORDER BY name, id`

	UpdateArchivedQuery = `UPDATE archived_queries SET is_public = ? WHERE id = ?`

	DeleteArchivedQuery = `DELETE FROM archived_queries WHERE id = ?`

	UpsertScoredPost = `INSERT INTO scored_posts (
		id, query_id, likes, retweets, replies, posted_at, lon, lat, content, media,
		media_count, keyword_count, interaction_score, relatability_score
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (id) DO UPDATE SET
		query_id = excluded.query_id,
		likes = excluded.likes,
		retweets = excluded.retweets,
		replies = excluded.replies,
		posted_at = excluded.posted_at,
		lon = excluded.lon,
		lat = excluded.lat,
		content = excluded.content,
		media = excluded.media,
		media_count = excluded.media_count,
		keyword_count = excluded.keyword_count,
		interaction_score = excluded.interaction_score,
		relatability_score = excluded.relatability_score`

	TopScoredPosts = `SELECT id, query_id, likes, retweets, replies, posted_at, lon, lat, content, media,
		media_count, keyword_count, interaction_score, relatability_score
	FROM scored_posts WHERE query_id = ? ORDER BY relatability_score DESC, id ASC LIMIT ?`
)

// PostOwnersChunk caps the ids bound into one PostOwners statement, well
// under the bind-parameter limits of both dialects.
const PostOwnersChunk = 500

// PostOwners selects the current query_id of n post ids.
func PostOwners(n int) string {
	return `SELECT id, query_id FROM scored_posts WHERE id IN (` +
		strings.TrimSuffix(strings.Repeat("?, ", n), ", ") + `)`
}
