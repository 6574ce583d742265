// internal/server/server_test.go
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crowd-monitor/internal/common/config"
	"crowd-monitor/internal/common/database"
	"crowd-monitor/internal/common/logger"
	"crowd-monitor/internal/models"
	"crowd-monitor/internal/registry"
	querystore "crowd-monitor/internal/workers/data-access/query-store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Test Helper Functions
// ==========================

type nopScheduler struct{}

func (nopScheduler) Schedule(models.Query)   {}
func (nopScheduler) Reschedule(models.Query) {}
func (nopScheduler) Unschedule(string)       {}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type testEnv struct {
	server *Server
	store  querystore.Store
}

func createTestConfig() *Config {
	return &Config{
		Address:    ":0",
		AppName:    "crowd-monitor",
		AppVersion: "test",
	}
}

func createTestEnv(t *testing.T, ready Pinger) *testEnv {
	t.Helper()

	client, err := database.NewSQLite(config.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	cfg := querystore.LoadConfig()
	cfg.Dialect = config.DriverSQLite
	store, err := querystore.NewSQLStore(cfg, client.DB, logger.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, store.Migrate(context.Background()))

	reg := registry.New(store, nopScheduler{}, nil, time.UTC, logger.NewTestLogger(t))
	return &testEnv{
		server: New(createTestConfig(), reg, ready, logger.NewTestLogger(t)),
		store:  store,
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var out map[string]interface{}
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec.Code, out
}

func createTestDraft(name string) models.QueryDraft {
	return models.QueryDraft{
		Name:      name,
		Location:  "43.6532,-79.3832,10km",
		StartDate: "2024-06-01",
		EndDate:   "2024-06-30",
		Keywords:  []string{"storm"},
		Frequency: 1,
		MaxTweets: 10,
	}
}

func (e *testEnv) createQuery(t *testing.T, name string) string {
	t.Helper()
	code, body := e.do(t, http.MethodPost, "/query/new", createTestDraft(name))
	require.Equal(t, http.StatusCreated, code)
	return body["query"].(map[string]interface{})["id"].(string)
}

// ==========================
// Tests
// ==========================

func TestServer_Probes(t *testing.T) {
	env := createTestEnv(t, stubPinger{})

	code, body := env.do(t, http.MethodGet, "/", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "crowd-monitor", body["app"])

	code, body = env.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(http.StatusOK), body["status"])

	code, _ = env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, code)

	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServer_ReadyFailsWhenStoreIsDown(t *testing.T) {
	env := createTestEnv(t, stubPinger{err: errors.New("connection refused")})

	code, body := env.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "STORE_ERROR", body["error"].(map[string]interface{})["code"])
}

func TestServer_QueryLifecycle(t *testing.T) {
	env := createTestEnv(t, nil)
	id := env.createQuery(t, "storms")

	code, body := env.do(t, http.MethodGet, "/query/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "storms", body["query"].(map[string]interface{})["name"])

	d := createTestDraft("storms")
	d.Frequency = 3
	code, body = env.do(t, http.MethodPost, "/query/"+id+"/update", d)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 3.0, body["query"].(map[string]interface{})["frequency"])

	code, _ = env.do(t, http.MethodPost, "/query/"+id+"/archive", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodGet, "/query/"+id, nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body = env.do(t, http.MethodGet, "/query/archive/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, body["query"].(map[string]interface{})["isPublic"])

	code, _ = env.do(t, http.MethodPost, "/query/"+id+"/archive", nil)
	assert.Equal(t, http.StatusNotFound, code, "archiving is one-way")

	code, body = env.do(t, http.MethodPost, "/query/archive/"+id+"/public", map[string]interface{}{"isPublic": true})
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, body["query"].(map[string]interface{})["isPublic"])

	code, body = env.do(t, http.MethodGet, "/queries/archive/public/list", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, _ = env.do(t, http.MethodPost, "/query/archive/"+id+"/remove", nil)
	require.Equal(t, http.StatusOK, code)

	code, body = env.do(t, http.MethodGet, "/queries/archive/list", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}

func TestServer_CreateValidation(t *testing.T) {
	env := createTestEnv(t, nil)

	d := createTestDraft("bad")
	d.MaxTweets = 0
	code, body := env.do(t, http.MethodPost, "/query/new", d)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "VALIDATION_ERROR", body["error"].(map[string]interface{})["code"])

	code, _ = env.do(t, http.MethodPost, "/query/new", "{not json")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodGet, "/queries/active/list", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}

func TestServer_SetPublicRequiresTypedBoolean(t *testing.T) {
	env := createTestEnv(t, nil)
	id := env.createQuery(t, "storms")
	code, _ := env.do(t, http.MethodPost, "/query/"+id+"/archive", nil)
	require.Equal(t, http.StatusOK, code)

	tests := []struct {
		name string
		body string
	}{
		{"string value", `{"isPublic": "true"}`},
		{"expression", `{"isPublic": "1 == 1"}`},
		{"missing field", `{}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, _ := env.do(t, http.MethodPost, "/query/archive/"+id+"/public", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}

	aq, ok := env.server.queries.LookupArchived(id)
	require.True(t, ok)
	assert.False(t, aq.IsPublic)
}

func TestServer_PostsLimit(t *testing.T) {
	env := createTestEnv(t, nil)
	id := env.createQuery(t, "storms")
	require.NoError(t, env.store.UpsertScoredPosts(context.Background(), []models.ScoredPost{
		{ID: "p1", QueryID: id, Content: "storm", Media: []models.Media{}, RelatabilityScore: 2, Date: time.Now().UTC()},
		{ID: "p2", QueryID: id, Content: "storm", Media: []models.Media{}, RelatabilityScore: 9, Date: time.Now().UTC()},
	}))

	tests := []struct {
		name           string
		query          string
		expectedStatus int
		validateOutput func(t *testing.T, body map[string]interface{})
	}{
		{
			name:           "default limit",
			query:          "",
			expectedStatus: http.StatusOK,
			validateOutput: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, float64(DefaultLimit), body["limit"])
				posts := body["tweets"].([]interface{})
				require.Len(t, posts, 2)
				assert.Equal(t, "p2", posts[0].(map[string]interface{})["id"])
			},
		},
		{
			name:           "explicit limit",
			query:          "?limit=1",
			expectedStatus: http.StatusOK,
			validateOutput: func(t *testing.T, body map[string]interface{}) {
				assert.Len(t, body["tweets"].([]interface{}), 1)
			},
		},
		{
			name:           "capped",
			query:          "?limit=10000",
			expectedStatus: http.StatusOK,
			validateOutput: func(t *testing.T, body map[string]interface{}) {
				assert.Equal(t, float64(MaxLimit), body["limit"])
			},
		},
		{name: "zero", query: "?limit=0", expectedStatus: http.StatusBadRequest},
		{name: "negative", query: "?limit=-3", expectedStatus: http.StatusBadRequest},
		{name: "not a number", query: "?limit=ten", expectedStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodGet, "/query/"+id+"/tweets"+tt.query, nil)
			assert.Equal(t, tt.expectedStatus, code)
			if tt.validateOutput != nil {
				tt.validateOutput(t, body)
			}
		})
	}
}

func TestServer_PostsByQueryAfterRemoval(t *testing.T) {
	env := createTestEnv(t, nil)
	id := env.createQuery(t, "storms")
	require.NoError(t, env.store.UpsertScoredPosts(context.Background(), []models.ScoredPost{
		{ID: "p1", QueryID: id, Content: "storm", Media: []models.Media{}, RelatabilityScore: 4, Date: time.Now().UTC()},
	}))

	code, _ := env.do(t, http.MethodPost, "/query/"+id+"/remove", nil)
	require.Equal(t, http.StatusOK, code)

	code, _ = env.do(t, http.MethodGet, "/query/"+id+"/tweets", nil)
	assert.Equal(t, http.StatusNotFound, code)

	code, body := env.do(t, http.MethodGet, "/posts/by-query/"+id, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(1), body["count"])

	code, body = env.do(t, http.MethodGet, "/queries/active/list/tweets", nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(0), body["count"])
}

func TestServer_UnknownIDs(t *testing.T) {
	env := createTestEnv(t, nil)

	for _, tc := range []struct{ method, path string }{
		{http.MethodGet, "/query/nope"},
		{http.MethodPost, "/query/nope/remove"},
		{http.MethodPost, "/query/nope/archive"},
		{http.MethodGet, "/query/archive/nope"},
		{http.MethodPost, "/query/archive/nope/remove"},
		{http.MethodGet, "/query/archive/nope/tweets"},
	} {
		code, body := env.do(t, tc.method, tc.path, nil)
		assert.Equal(t, http.StatusNotFound, code, tc.path)
		assert.Equal(t, float64(http.StatusNotFound), body["status"], tc.path)
	}
}
