// internal/workers/data-access/query-store/queries/dialect.go
package queries

import (
	"strconv"
	"strings"
)

// Dialect adapts the shared statements to one database.
type Dialect struct {
	Name       string
	positional bool
	timestamp  string
	float      string
	boolean    string
	integer    string
}

var (
	Postgres = Dialect{
		Name:       "postgres",
		positional: true,
		timestamp:  "TIMESTAMPTZ",
		float:      "DOUBLE PRECISION",
		boolean:    "BOOLEAN",
		integer:    "BIGINT",
	}
	SQLite = Dialect{
		Name:      "sqlite",
		timestamp: "TIMESTAMP",
		float:     "REAL",
		boolean:   "BOOLEAN",
		integer:   "INTEGER",
	}
)

// ForDriver returns the dialect for a configured driver name.
func ForDriver(driver string) (Dialect, bool) {
	switch driver {
	case Postgres.Name:
		return Postgres, true
	case SQLite.Name:
		return SQLite, true
	}
	return Dialect{}, false
}

// Rebind rewrites ? placeholders to $N for positional dialects.
func (d Dialect) Rebind(query string) string {
	if !d.positional {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Schema returns the DDL statements creating all tables and indexes.
func (d Dialect) Schema() []string {
	r := strings.NewReplacer(
		"{ts}", d.timestamp,
		"{float}", d.float,
		"{bool}", d.boolean,
		"{int}", d.integer,
	)
	out := make([]string, len(schema))
	for i, stmt := range schema {
		out[i] = r.Replace(stmt)
	}
	return out
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS queries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL,
		start_date {ts} NOT NULL,
		end_date {ts} NOT NULL,
		keywords TEXT NOT NULL,
		frequency {float} NOT NULL,
		max_tweets {int} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS archived_queries (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		location TEXT NOT NULL,
		start_date {ts} NOT NULL,
		end_date {ts} NOT NULL,
		keywords TEXT NOT NULL,
		frequency {float} NOT NULL,
		max_tweets {int} NOT NULL,
		is_public {bool} NOT NULL DEFAULT FALSE,
		archived_at {ts} NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS scored_posts (
		id TEXT PRIMARY KEY,
		query_id TEXT NOT NULL,
		likes {int} NOT NULL,
		retweets {int} NOT NULL,
		replies {int} NOT NULL,
		posted_at {ts} NOT NULL,
		lon {float} NOT NULL,
		lat {float} NOT NULL,
		content TEXT NOT NULL,
		media TEXT NOT NULL,
		media_count {int} NOT NULL,
		keyword_count {int} NOT NULL,
		interaction_score {float} NOT NULL,
		relatability_score {float} NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS scored_posts_query_rank ON scored_posts (query_id, relatability_score DESC)`,
}
