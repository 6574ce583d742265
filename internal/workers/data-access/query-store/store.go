// internal/workers/data-access/query-store/store.go
package querystore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/common/metrics"
	"crowd-monitor/internal/models"
	"crowd-monitor/internal/workers/data-access/query-store/queries"

	"github.com/google/uuid"
)

const (
	TaskType = "query-store"
)

var (
	ErrUnknownDialect       = errors.New("UNKNOWN_DIALECT")
	ErrQueryExecutionFailed = errors.New("QUERY_EXECUTION_FAILED")
)

// Store is the durable home of queries, archived queries and scored posts.
type Store interface {
	InsertQuery(ctx context.Context, q models.Query) (models.Query, error)
	ListQueries(ctx context.Context) ([]models.Query, error)
	UpdateQuery(ctx context.Context, q models.Query) error
	DeleteQuery(ctx context.Context, id string) error
	ArchiveQuery(ctx context.Context, id string, archivedAt time.Time) (models.ArchivedQuery, error)
	ListArchivedQueries(ctx context.Context) ([]models.ArchivedQuery, error)
	UpdateArchivedQuery(ctx context.Context, aq models.ArchivedQuery) error
	DeleteArchivedQuery(ctx context.Context, id string) error
	UpsertScoredPosts(ctx context.Context, posts []models.ScoredPost) error
	// PostOwners maps each stored post id in ids to the query it is
	// recorded under. Unknown ids are absent from the result.
	PostOwners(ctx context.Context, ids []string) (map[string]string, error)
	QueryTopScoredPosts(ctx context.Context, queryID string, limit int) ([]models.ScoredPost, error)
	Ping(ctx context.Context) error
}

// SQLStore implements Store on database/sql for PostgreSQL and SQLite.
type SQLStore struct {
	config  *Config
	db      *sql.DB
	dialect queries.Dialect
	logger  logger.Logger
	newID   func() string
}

var _ Store = (*SQLStore)(nil)

func NewSQLStore(config *Config, db *sql.DB, log logger.Logger) (*SQLStore, error) {
	dialect, ok := queries.ForDriver(config.Dialect)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, config.Dialect)
	}
	return &SQLStore{
		config:  config,
		db:      db,
		dialect: dialect,
		logger:  log.WithFields(map[string]interface{}{"taskType": TaskType, "dialect": dialect.Name}),
		newID:   uuid.NewString,
	}, nil
}

// Migrate creates missing tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range s.dialect.Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewStoreError("migrate", err)
		}
	}
	s.logger.Info("schema ready", nil)
	return nil
}

func (s *SQLStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.NewStoreError("ping", err)
	}
	return nil
}

// InsertQuery persists q under a fresh id and returns the stored copy.
func (s *SQLStore) InsertQuery(ctx context.Context, q models.Query) (models.Query, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	q.ID = s.newID()
	q.State = models.QueryStateActive
	_, err := s.db.ExecContext(ctx, s.dialect.Rebind(queries.InsertQuery),
		q.ID, q.Name, q.Location, q.StartDate, q.EndDate, jsonText{q.Keywords}, q.Frequency, q.MaxTweets,
	)
	if err != nil {
		return models.Query{}, s.storeError("insert query", err)
	}
	return q, nil
}

func (s *SQLStore) ListQueries(ctx context.Context) ([]models.Query, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(queries.ListQueries))
	if err != nil {
		return nil, s.storeError("list queries", err)
	}
	defer rows.Close()

	var out []models.Query
	for rows.Next() {
		q, err := scanQuery(rows)
		if err != nil {
			return nil, s.storeError("list queries", err)
		}
		out = append(out, q)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storeError("list queries", err)
	}
	return out, nil
}

func (s *SQLStore) UpdateQuery(ctx context.Context, q models.Query) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(queries.UpdateQuery),
		q.Name, q.Location, q.StartDate, q.EndDate, jsonText{q.Keywords}, q.Frequency, q.MaxTweets, q.ID,
	)
	if err != nil {
		return s.storeError("update query", err)
	}
	return s.expectOne(res, "query", q.ID, "update query")
}

func (s *SQLStore) DeleteQuery(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(queries.DeleteQuery), id)
	if err != nil {
		return s.storeError("delete query", err)
	}
	return s.expectOne(res, "query", id, "delete query")
}

// ArchiveQuery moves id from the active table to the archive in one
// transaction. The archived copy starts private.
func (s *SQLStore) ArchiveQuery(ctx context.Context, id string, archivedAt time.Time) (models.ArchivedQuery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return models.ArchivedQuery{}, s.storeError("archive query", err)
	}
	defer tx.Rollback()

	q, err := scanQuery(tx.QueryRowContext(ctx, s.dialect.Rebind(queries.SelectQuery), id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.ArchivedQuery{}, apperrors.NewNotFoundError("query", id)
	}
	if err != nil {
		return models.ArchivedQuery{}, s.storeError("archive query", err)
	}

	aq := models.ArchivedQuery{Query: q, IsPublic: false, ArchivedAt: archivedAt}
	aq.State = models.QueryStateArchived

	_, err = tx.ExecContext(ctx, s.dialect.Rebind(queries.InsertArchivedQuery),
		q.ID, q.Name, q.Location, q.StartDate, q.EndDate, jsonText{q.Keywords}, q.Frequency, q.MaxTweets,
		aq.IsPublic, aq.ArchivedAt,
	)
	if err != nil {
		return models.ArchivedQuery{}, s.storeError("archive query", err)
	}
	if _, err := tx.ExecContext(ctx, s.dialect.Rebind(queries.DeleteQuery), id); err != nil {
		return models.ArchivedQuery{}, s.storeError("archive query", err)
	}
	if err := tx.Commit(); err != nil {
		return models.ArchivedQuery{}, s.storeError("archive query", err)
	}
	return aq, nil
}

func (s *SQLStore) ListArchivedQueries(ctx context.Context) ([]models.ArchivedQuery, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(queries.ListArchivedQueries))
	if err != nil {
		return nil, s.storeError("list archived queries", err)
	}
	defer rows.Close()

	var out []models.ArchivedQuery
	for rows.Next() {
		aq, err := scanArchivedQuery(rows)
		if err != nil {
			return nil, s.storeError("list archived queries", err)
		}
		out = append(out, aq)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storeError("list archived queries", err)
	}
	return out, nil
}

// UpdateArchivedQuery persists the mutable part of an archived query, its
// visibility.
func (s *SQLStore) UpdateArchivedQuery(ctx context.Context, aq models.ArchivedQuery) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(queries.UpdateArchivedQuery), aq.IsPublic, aq.ID)
	if err != nil {
		return s.storeError("update archived query", err)
	}
	return s.expectOne(res, "archived query", aq.ID, "update archived query")
}

func (s *SQLStore) DeleteArchivedQuery(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx, s.dialect.Rebind(queries.DeleteArchivedQuery), id)
	if err != nil {
		return s.storeError("delete archived query", err)
	}
	return s.expectOne(res, "archived query", id, "delete archived query")
}

// UpsertScoredPosts writes posts in one transaction; an existing row with
// the same post id is overwritten.
func (s *SQLStore) UpsertScoredPosts(ctx context.Context, posts []models.ScoredPost) error {
	if len(posts) == 0 {
		return nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.storeError("upsert scored posts", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, s.dialect.Rebind(queries.UpsertScoredPost))
	if err != nil {
		return s.storeError("upsert scored posts", err)
	}
	defer stmt.Close()

	for _, p := range posts {
		media := p.Media
		if media == nil {
			media = []models.Media{}
		}
		_, err := stmt.ExecContext(ctx,
			p.ID, p.QueryID, p.Likes, p.Retweets, p.Replies, p.Date,
			p.Location.Lon, p.Location.Lat, p.Content, jsonText{media},
			p.MediaCount, p.KeywordCount, p.InteractionScore, p.RelatabilityScore,
		)
		if err != nil {
			return s.storeError("upsert scored posts", fmt.Errorf("post %s: %w", p.ID, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return s.storeError("upsert scored posts", err)
	}
	metrics.PostsPersisted.Add(float64(len(posts)))
	return nil
}

func (s *SQLStore) PostOwners(ctx context.Context, ids []string) (map[string]string, error) {
	owners := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return owners, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	for start := 0; start < len(ids); start += queries.PostOwnersChunk {
		chunk := ids[start:min(start+queries.PostOwnersChunk, len(ids))]
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			args[i] = id
		}

		rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(queries.PostOwners(len(chunk))), args...)
		if err != nil {
			return nil, s.storeError("post owners", err)
		}
		for rows.Next() {
			var id, queryID string
			if err := rows.Scan(&id, &queryID); err != nil {
				rows.Close()
				return nil, s.storeError("post owners", err)
			}
			owners[id] = queryID
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, s.storeError("post owners", err)
		}
	}
	return owners, nil
}

// QueryTopScoredPosts returns up to limit posts recorded for queryID, best
// relatability first. It does not require the query to still exist.
func (s *SQLStore) QueryTopScoredPosts(ctx context.Context, queryID string, limit int) ([]models.ScoredPost, error) {
	if limit <= 0 {
		return []models.ScoredPost{}, nil
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(queries.TopScoredPosts), queryID, limit)
	if err != nil {
		return nil, s.storeError("top scored posts", err)
	}
	defer rows.Close()

	out := []models.ScoredPost{}
	for rows.Next() {
		p, err := scanScoredPost(rows)
		if err != nil {
			return nil, s.storeError("top scored posts", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, s.storeError("top scored posts", err)
	}
	return out, nil
}

func (s *SQLStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.config.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.config.Timeout)
}

func (s *SQLStore) expectOne(res sql.Result, kind, id, op string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return s.storeError(op, err)
	}
	if n == 0 {
		return apperrors.NewNotFoundError(kind, id)
	}
	return nil
}

func (s *SQLStore) storeError(op string, err error) error {
	s.logger.Error("store operation failed", map[string]interface{}{
		"operation": op,
		"error":     err,
	})
	return apperrors.NewStoreError(op, fmt.Errorf("%w: %v", ErrQueryExecutionFailed, err))
}
