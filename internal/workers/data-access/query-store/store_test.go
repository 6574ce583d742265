// internal/workers/data-access/query-store/store_test.go
package querystore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"crowd-monitor/internal/common/config"
	"crowd-monitor/internal/common/database"
	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

func createSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()

	client, err := database.NewSQLite(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cfg := LoadConfig()
	cfg.Dialect = config.DriverSQLite

	store, err := NewSQLStore(cfg, client.DB, logger.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func createTestQuery(name string) models.Query {
	loc := time.FixedZone("EDT", -4*3600)
	return models.Query{
		Name:      name,
		Location:  "43.6532,-79.3832,10km",
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, loc),
		EndDate:   time.Date(2024, 6, 30, 23, 59, 59, 0, loc),
		Keywords:  []string{"storm", "(tornado warning)"},
		Frequency: 2.5,
		MaxTweets: 40,
	}
}

func createScoredPost(id, queryID string, relatability float64) models.ScoredPost {
	return models.ScoredPost{
		ID:                id,
		QueryID:           queryID,
		Likes:             10,
		Retweets:          5,
		Replies:           2,
		Date:              time.Date(2024, 6, 2, 15, 4, 5, 0, time.UTC),
		Location:          models.Point{Lon: -79.38, Lat: 43.65},
		Content:           "storm " + id,
		Media:             []models.Media{{Type: models.MediaTypePhoto, URL: "https://img/" + id}},
		MediaCount:        1,
		KeywordCount:      1,
		InteractionScore:  11.18,
		RelatabilityScore: relatability,
	}
}

// ==========================
// Query lifecycle
// ==========================

func TestSQLStore_InsertAndList(t *testing.T) {
	store := createSQLiteStore(t)
	ctx := context.Background()

	b, err := store.InsertQuery(ctx, createTestQuery("beta"))
	require.NoError(t, err)
	a, err := store.InsertQuery(ctx, createTestQuery("alpha"))
	require.NoError(t, err)

	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, models.QueryStateActive, a.State)

	list, err := store.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "alpha", list[0].Name)

	got := list[0]
	assert.True(t, got.SameParameters(a), "round trip preserves every parameter: %+v vs %+v", got, a)
	assert.Equal(t, []string{"storm", "(tornado warning)"}, got.Keywords)
}

func TestSQLStore_UpdateAndDelete(t *testing.T) {
	store := createSQLiteStore(t)
	ctx := context.Background()

	q, err := store.InsertQuery(ctx, createTestQuery("storms"))
	require.NoError(t, err)

	q.Keywords = []string{"hail"}
	q.MaxTweets = 5
	require.NoError(t, store.UpdateQuery(ctx, q))

	list, err := store.ListQueries(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, []string{"hail"}, list[0].Keywords)
	assert.Equal(t, 5, list[0].MaxTweets)

	require.NoError(t, store.DeleteQuery(ctx, q.ID))

	err = store.DeleteQuery(ctx, q.ID)
	assert.True(t, apperrors.IsNotFound(err))

	missing := q
	missing.ID = "nope"
	assert.True(t, apperrors.IsNotFound(store.UpdateQuery(ctx, missing)))
}

func TestSQLStore_ArchiveLifecycle(t *testing.T) {
	store := createSQLiteStore(t)
	ctx := context.Background()

	q, err := store.InsertQuery(ctx, createTestQuery("storms"))
	require.NoError(t, err)

	at := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)
	aq, err := store.ArchiveQuery(ctx, q.ID, at)
	require.NoError(t, err)
	assert.False(t, aq.IsPublic)
	assert.Equal(t, models.QueryStateArchived, aq.State)

	active, err := store.ListQueries(ctx)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = store.ArchiveQuery(ctx, q.ID, at)
	assert.True(t, apperrors.IsNotFound(err), "archiving twice fails")

	aq.IsPublic = true
	require.NoError(t, store.UpdateArchivedQuery(ctx, aq))

	archived, err := store.ListArchivedQueries(ctx)
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.True(t, archived[0].IsPublic)
	assert.True(t, archived[0].ArchivedAt.Equal(at))
	assert.True(t, archived[0].SameParameters(q))

	require.NoError(t, store.DeleteArchivedQuery(ctx, q.ID))
	assert.True(t, apperrors.IsNotFound(store.DeleteArchivedQuery(ctx, q.ID)))
}

// ==========================
// Scored posts
// ==========================

func TestSQLStore_UpsertAndTopPosts(t *testing.T) {
	store := createSQLiteStore(t)
	ctx := context.Background()

	var batch []models.ScoredPost
	for i := 0; i < 5; i++ {
		batch = append(batch, createScoredPost(fmt.Sprintf("p%d", i), "q-1", float64(i)))
	}
	batch = append(batch, createScoredPost("other", "q-2", 100))
	require.NoError(t, store.UpsertScoredPosts(ctx, batch))

	top, err := store.QueryTopScoredPosts(ctx, "q-1", 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"p4", "p3", "p2"}, []string{top[0].ID, top[1].ID, top[2].ID})

	first := top[0]
	assert.Equal(t, "q-1", first.QueryID)
	assert.Equal(t, models.Point{Lon: -79.38, Lat: 43.65}, first.Location)
	assert.Equal(t, []models.Media{{Type: "photo", URL: "https://img/p4"}}, first.Media)
	assert.True(t, first.Date.Equal(time.Date(2024, 6, 2, 15, 4, 5, 0, time.UTC)))

	// Same id under a different query: new values win.
	moved := createScoredPost("p4", "q-2", 0.5)
	require.NoError(t, store.UpsertScoredPosts(ctx, []models.ScoredPost{moved}))

	top, err = store.QueryTopScoredPosts(ctx, "q-1", 10)
	require.NoError(t, err)
	assert.Len(t, top, 4)

	top, err = store.QueryTopScoredPosts(ctx, "q-2", 10)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "other", top[0].ID)
	assert.Equal(t, 0.5, top[1].RelatabilityScore)
}

func TestSQLStore_PostOwners(t *testing.T) {
	store := createSQLiteStore(t)
	ctx := context.Background()

	require.NoError(t, store.UpsertScoredPosts(ctx, []models.ScoredPost{
		createScoredPost("p1", "q-1", 1),
		createScoredPost("p2", "q-2", 2),
	}))

	owners, err := store.PostOwners(ctx, []string{"p1", "p2", "unseen"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p1": "q-1", "p2": "q-2"}, owners)

	require.NoError(t, store.UpsertScoredPosts(ctx, []models.ScoredPost{createScoredPost("p1", "q-3", 1)}))
	owners, err = store.PostOwners(ctx, []string{"p1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"p1": "q-3"}, owners)

	owners, err = store.PostOwners(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, owners)
}

func TestSQLStore_TopPostsSurviveQueryRemoval(t *testing.T) {
	store := createSQLiteStore(t)
	ctx := context.Background()

	q, err := store.InsertQuery(ctx, createTestQuery("storms"))
	require.NoError(t, err)
	require.NoError(t, store.UpsertScoredPosts(ctx, []models.ScoredPost{createScoredPost("p1", q.ID, 3)}))

	_, err = store.ArchiveQuery(ctx, q.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.DeleteArchivedQuery(ctx, q.ID))

	top, err := store.QueryTopScoredPosts(ctx, q.ID, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	assert.Equal(t, "p1", top[0].ID)
}

func TestSQLStore_EmptyInputs(t *testing.T) {
	store := createSQLiteStore(t)
	ctx := context.Background()

	assert.NoError(t, store.UpsertScoredPosts(ctx, nil))

	top, err := store.QueryTopScoredPosts(ctx, "q-1", 0)
	require.NoError(t, err)
	assert.Empty(t, top)

	top, err = store.QueryTopScoredPosts(ctx, "unknown", 10)
	require.NoError(t, err)
	assert.NotNil(t, top)
	assert.Empty(t, top)
}

func TestNewSQLStore_UnknownDialect(t *testing.T) {
	cfg := LoadConfig()
	cfg.Dialect = "oracle"
	_, err := NewSQLStore(cfg, nil, logger.NewNoOpLogger())
	assert.ErrorIs(t, err, ErrUnknownDialect)
}
