// internal/workers/posts/fetch-posts/handler_test.go
package fetchposts

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"testing"
	"time"

	apperrors "crowd-monitor/internal/common/errors"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/common/observability"
	"crowd-monitor/internal/models"
	searchposts "crowd-monitor/internal/workers/data-access/search-posts"
	scorepost "crowd-monitor/internal/workers/posts/score-post"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// ==========================
// Fakes
// ==========================

// endlessSource yields posts forever, optionally failing after failAfter.
type endlessSource struct {
	produced  int
	failAfter int
	requests  []searchposts.SearchRequest
	makePost  func(i int) models.RawPost
}

func (s *endlessSource) Search(_ context.Context, req searchposts.SearchRequest) iter.Seq2[models.RawPost, error] {
	s.requests = append(s.requests, req)
	return func(yield func(models.RawPost, error) bool) {
		for i := 0; ; i++ {
			if s.failAfter > 0 && i == s.failAfter {
				yield(models.RawPost{}, errors.New("provider timeout"))
				return
			}
			s.produced++
			if !yield(s.makePost(i), nil) {
				return
			}
		}
	}
}

type finiteSource struct {
	posts []models.RawPost
}

func (s *finiteSource) Search(_ context.Context, _ searchposts.SearchRequest) iter.Seq2[models.RawPost, error] {
	return func(yield func(models.RawPost, error) bool) {
		for _, p := range s.posts {
			if !yield(p, nil) {
				return
			}
		}
	}
}

type recordingWriter struct {
	batches [][]models.ScoredPost
	err     error
}

func (w *recordingWriter) UpsertScoredPosts(_ context.Context, posts []models.ScoredPost) error {
	if w.err != nil {
		return w.err
	}
	w.batches = append(w.batches, posts)
	return nil
}

// ==========================
// Test Helper Functions
// ==========================

func createTestConfig() *Config {
	return LoadConfig()
}

func createTestQuery(maxTweets int) models.Query {
	return models.Query{
		ID:        "q-1",
		Name:      "storms",
		Location:  "43.6532,-79.3832,10km",
		StartDate: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2024, 6, 30, 23, 59, 59, 0, time.UTC),
		Keywords:  []string{"storm"},
		Frequency: 1,
		MaxTweets: maxTweets,
		State:     models.QueryStateActive,
	}
}

func stormPost(i int) models.RawPost {
	return models.RawPost{
		ID:        fmt.Sprintf("p%d", i),
		Content:   "storm over the lake",
		LikeCount: int64(i),
		Media:     []models.RawMedia{{Type: models.MediaTypePhoto, URL: "https://img"}},
		Date:      time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC),
	}
}

func createTestHandler(t *testing.T, source searchposts.ContentSource, writer PostWriter, obs *observability.Observability) *Handler {
	return NewHandler(
		createTestConfig(),
		source,
		scorepost.NewHandler(scorepost.LoadConfig()),
		writer,
		obs,
		logger.NewTestLogger(t),
	)
}

// ==========================
// Tests
// ==========================

func TestHandler_StopsAtCap(t *testing.T) {
	source := &endlessSource{makePost: stormPost}
	writer := &recordingWriter{}
	h := createTestHandler(t, source, writer, nil)

	out, err := h.Run(context.Background(), createTestQuery(25))
	require.NoError(t, err)

	assert.Equal(t, 25, source.produced, "enumeration stops at the cap")
	assert.Equal(t, 25, out.Fetched)
	assert.Equal(t, 25, out.Persisted)
	require.Len(t, writer.batches, 1, "one batch upsert per tick")
	assert.Len(t, writer.batches[0], 25)
	assert.NotEmpty(t, out.TickID)

	require.Len(t, source.requests, 1)
	req := source.requests[0]
	assert.Equal(t, 25, req.Cap)
	assert.Contains(t, req.String(), "storm since:2024-06-01 until:2024-06-30")
}

func TestHandler_ScoresEachPost(t *testing.T) {
	source := &finiteSource{posts: []models.RawPost{stormPost(10), stormPost(0)}}
	writer := &recordingWriter{}
	h := createTestHandler(t, source, writer, nil)

	_, err := h.Run(context.Background(), createTestQuery(50))
	require.NoError(t, err)

	batch := writer.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "q-1", batch[0].QueryID)
	assert.Equal(t, 1, batch[0].KeywordCount)
	assert.InDelta(t, 11.0, batch[0].RelatabilityScore, 1e-9, "(1 media + 10 interaction) * 1 keyword")
	assert.Equal(t, models.Point{Lon: -79.3832, Lat: 43.6532}, batch[1].Location)
}

func TestHandler_SourceErrorAbortsTick(t *testing.T) {
	source := &endlessSource{makePost: stormPost, failAfter: 3}
	writer := &recordingWriter{}
	h := createTestHandler(t, source, writer, nil)

	out, err := h.Run(context.Background(), createTestQuery(10))
	require.Error(t, err)

	assert.True(t, apperrors.IsSource(err))
	assert.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, 3, out.Fetched)
	assert.Empty(t, writer.batches, "nothing is persisted for an aborted tick")
}

func TestHandler_DropsInvalidPosts(t *testing.T) {
	bad := stormPost(1)
	bad.LikeCount = -4
	source := &finiteSource{posts: []models.RawPost{stormPost(2), bad, stormPost(3)}}
	writer := &recordingWriter{}
	h := createTestHandler(t, source, writer, nil)

	out, err := h.Run(context.Background(), createTestQuery(10))
	require.NoError(t, err)

	assert.Equal(t, 3, out.Fetched)
	assert.Equal(t, 1, out.Dropped)
	assert.Equal(t, 2, out.Persisted)
}

func TestHandler_DedupesWithinBatch(t *testing.T) {
	first := stormPost(1)
	again := stormPost(1)
	again.LikeCount = 50
	source := &finiteSource{posts: []models.RawPost{first, stormPost(2), again}}
	writer := &recordingWriter{}
	h := createTestHandler(t, source, writer, nil)

	_, err := h.Run(context.Background(), createTestQuery(10))
	require.NoError(t, err)

	batch := writer.batches[0]
	require.Len(t, batch, 2)
	assert.Equal(t, "p1", batch[0].ID)
	assert.Equal(t, int64(50), batch[0].Likes, "last occurrence wins")
}

func TestHandler_StoreErrorSurfaces(t *testing.T) {
	source := &finiteSource{posts: []models.RawPost{stormPost(1)}}
	writer := &recordingWriter{err: errors.New("deadlock detected")}
	h := createTestHandler(t, source, writer, nil)

	err := h.Execute(context.Background(), createTestQuery(10))
	require.Error(t, err)
	assert.True(t, apperrors.IsStore(err))
}

func TestHandler_EmptyResultSkipsUpsert(t *testing.T) {
	writer := &recordingWriter{}
	h := createTestHandler(t, &finiteSource{}, writer, nil)

	out, err := h.Run(context.Background(), createTestQuery(10))
	require.NoError(t, err)
	assert.Equal(t, 0, out.Persisted)
	assert.Empty(t, writer.batches)
}

func TestHandler_InvalidQueryLocation(t *testing.T) {
	h := createTestHandler(t, &finiteSource{}, &recordingWriter{}, nil)
	q := createTestQuery(10)
	q.Location = "somewhere"

	err := h.Execute(context.Background(), q)
	assert.True(t, apperrors.IsValidation(err))
}

func TestHandler_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	obs := observability.New("fetch-posts-test",
		observability.WithRegisterer(promclient.NewRegistry()),
		observability.WithSpanProcessor(rec),
		observability.WithoutGlobal(),
	)
	defer obs.Shutdown()

	source := &finiteSource{posts: []models.RawPost{stormPost(1)}}
	h := createTestHandler(t, source, &recordingWriter{}, obs)

	require.NoError(t, h.Execute(context.Background(), createTestQuery(10)))

	names := map[string]bool{}
	for _, s := range rec.Ended() {
		names[s.Name()] = true
	}
	for _, want := range []string{"fetch-posts.tick", "search", "score", "persist"} {
		assert.True(t, names[want], "missing span %s", want)
	}
}
