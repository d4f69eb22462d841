package server

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/finquiz/backend/internal/auth"
	"github.com/finquiz/backend/internal/config"
	"github.com/finquiz/backend/internal/database"
	"github.com/finquiz/backend/internal/models"
	"github.com/finquiz/backend/internal/repositories"
	"github.com/finquiz/backend/internal/services"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// setupTestServer wires the whole stack against a migrated test database.
// SQLite in a temporary directory is used unless TEST_DB_HOST points at a MySQL server.
func setupTestServer(t *testing.T, mutate func(cfg *config.Config)) (chi.Router, *sql.DB) {
	t.Helper()

	cfg, err := config.LoadTestConfig(filepath.Join(t.TempDir(), "progress.db"))
	require.NoError(t, err)
	if mutate != nil {
		mutate(cfg)
	}

	db, dialect, err := database.Open(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.Migrate(db, dialect))

	clearTestData(t, db)

	logger := zap.NewNop()
	repo := repositories.NewProgressRepository(db, dialect, logger)
	svc := services.NewProgressService(repo, cfg.Storage.Timeout, logger)

	router, err := NewRouter(cfg, svc, repo, logger)
	require.NoError(t, err)

	return router, db
}

// clearTestData removes rows left by previous runs against a shared MySQL database
func clearTestData(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range []string{"completed_levels", "completed_exams", "user_progress"} {
		_, err := db.Exec("DELETE FROM " + table)
		require.NoError(t, err, "Failed to clear %s", table)
	}
}

type testResponse struct {
	Status int
	Body   map[string]any
}

func doRequest(t *testing.T, router http.Handler, method, path, userKey, body string) testResponse {
	t.Helper()

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userKey != "" {
		req.Header.Set("X-Username", userKey)
	}
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := testResponse{Status: w.Code}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp.Body), "body: %s", w.Body.String())
	return resp
}

func TestProgress_NewUserGetsDefaultRecord(t *testing.T) {
	router, db := setupTestServer(t, nil)

	resp := doRequest(t, router, http.MethodGet, "/api/v1/progress", "alice", "")

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, true, resp.Body["success"])
	assert.Equal(t, float64(0), resp.Body["xp"])
	assert.Equal(t, float64(1), resp.Body["level"])
	assert.Equal(t, []any{}, resp.Body["completed_levels"])
	assert.Equal(t, []any{}, resp.Body["completed_exams"])

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM user_progress").Scan(&count))
	assert.Equal(t, 0, count, "a read must not persist a record")
}

func TestProgress_SyncThenRead(t *testing.T) {
	router, _ := setupTestServer(t, nil)

	resp := doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice", `{"xp":250}`)
	require.Equal(t, http.StatusOK, resp.Status)

	resp = doRequest(t, router, http.MethodGet, "/api/v1/progress", "alice", "")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, float64(250), resp.Body["xp"])
	assert.Equal(t, float64(3), resp.Body["level"])
	assert.Equal(t, float64(450), resp.Body["next_level_xp"])
	assert.NotEmpty(t, resp.Body["last_updated"])
}

func TestProgress_StaleXPNeverRegresses(t *testing.T) {
	router, _ := setupTestServer(t, nil)

	resp := doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice", `{"xp":100}`)
	require.Equal(t, http.StatusOK, resp.Status)
	resp = doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice", `{"xp":50}`)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, float64(100), resp.Body["xp"])

	resp = doRequest(t, router, http.MethodGet, "/api/v1/progress", "alice", "")
	assert.Equal(t, float64(100), resp.Body["xp"])
	assert.Equal(t, float64(2), resp.Body["level"])
}

func TestProgress_Penalty(t *testing.T) {
	tests := []struct {
		name       string
		startXP    int
		delta      string
		expectedXP float64
		expectedLv float64
	}{
		{name: "regular penalty", startXP: 250, delta: `{"delta":100}`, expectedXP: 150, expectedLv: 2},
		{name: "clamped at zero", startXP: 50, delta: `{"delta":100}`, expectedXP: 0, expectedLv: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router, _ := setupTestServer(t, nil)

			body, err := json.Marshal(map[string]any{"xp": tt.startXP, "completed_exams": []string{"1.1"}})
			require.NoError(t, err)
			resp := doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice", string(body))
			require.Equal(t, http.StatusOK, resp.Status)

			resp = doRequest(t, router, http.MethodPost, "/api/v1/progress/penalty", "alice", tt.delta)
			assert.Equal(t, http.StatusOK, resp.Status)
			assert.Equal(t, tt.expectedXP, resp.Body["xp"])
			assert.Equal(t, tt.expectedLv, resp.Body["level"])
			assert.Equal(t, []any{"1.1"}, resp.Body["completed_exams"])
		})
	}
}

func TestProgress_CompletedSetsMerge(t *testing.T) {
	router, db := setupTestServer(t, nil)

	resp := doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice",
		`{"completed_levels":[{"topicId":2,"subLevelId":2.1},{"topicId":1,"subLevelId":1.25}],"completed_exams":["2.1"]}`)
	require.Equal(t, http.StatusOK, resp.Status)

	var firstCompletedAt time.Time
	require.NoError(t, db.QueryRow(
		"SELECT completed_at FROM completed_levels WHERE user_key = ? AND topic_id = ?", "alice", 2,
	).Scan(&firstCompletedAt))

	resp = doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice",
		`{"completed_levels":[{"topicId":2,"subLevelId":2.1},{"topicId":3,"subLevelId":3.1}],"completed_exams":["1.1","2.1"]}`)
	require.Equal(t, http.StatusOK, resp.Status)

	assert.Equal(t, []any{
		map[string]any{"topicId": float64(1), "subLevelId": 1.25},
		map[string]any{"topicId": float64(2), "subLevelId": 2.1},
		map[string]any{"topicId": float64(3), "subLevelId": 3.1},
	}, resp.Body["completed_levels"])
	assert.Equal(t, []any{"1.1", "2.1"}, resp.Body["completed_exams"])

	var completedAt time.Time
	require.NoError(t, db.QueryRow(
		"SELECT completed_at FROM completed_levels WHERE user_key = ? AND topic_id = ?", "alice", 2,
	).Scan(&completedAt))
	assert.True(t, firstCompletedAt.Equal(completedAt), "first completion time must be kept")

	// Repeating the same update changes nothing but the timestamp
	again := doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice",
		`{"completed_levels":[{"topicId":2,"subLevelId":2.1},{"topicId":3,"subLevelId":3.1}],"completed_exams":["1.1","2.1"]}`)
	assert.Equal(t, resp.Body["completed_levels"], again.Body["completed_levels"])
	assert.Equal(t, resp.Body["completed_exams"], again.Body["completed_exams"])
}

func TestProgress_ConcurrentWritesAreNotLost(t *testing.T) {
	router, _ := setupTestServer(t, nil)

	bodies := []string{
		`{"xp":50}`,
		`{"completed_exams":["1.1"]}`,
		`{"completed_levels":[{"topicId":1,"subLevelId":1.1}]}`,
		`{"xp":30}`,
	}

	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		for _, body := range bodies {
			wg.Add(1)
			go func(body string) {
				defer wg.Done()
				req := httptest.NewRequest(http.MethodPost, "/api/v1/progress", bytes.NewReader([]byte(body)))
				req.Header.Set("X-Username", "racer")
				w := httptest.NewRecorder()
				router.ServeHTTP(w, req)
				assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
			}(body)
		}
		wg.Wait()
	}

	resp := doRequest(t, router, http.MethodGet, "/api/v1/progress", "racer", "")
	assert.Equal(t, float64(50), resp.Body["xp"])
	assert.Equal(t, []any{"1.1"}, resp.Body["completed_exams"])
	assert.Len(t, resp.Body["completed_levels"], 1)
}

func TestProgress_UsersAreIsolated(t *testing.T) {
	router, _ := setupTestServer(t, nil)

	doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice", `{"xp":700}`)
	resp := doRequest(t, router, http.MethodGet, "/api/v1/progress", "bob", "")

	assert.Equal(t, float64(0), resp.Body["xp"])
	assert.Equal(t, "bob", resp.Body["user_key"])
}

func TestProgress_InvalidInput(t *testing.T) {
	router, db := setupTestServer(t, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{name: "negative xp", path: "/api/v1/progress", body: `{"xp":-1}`},
		{name: "xp as string", path: "/api/v1/progress", body: `{"xp":"10"}`},
		{name: "unknown field", path: "/api/v1/progress", body: `{"level":5}`},
		{name: "topic id zero", path: "/api/v1/progress", body: `{"completed_levels":[{"topicId":0,"subLevelId":1.1}]}`},
		{name: "levels not an array", path: "/api/v1/progress", body: `{"completed_levels":{"topicId":1}}`},
		{name: "malformed exam", path: "/api/v1/progress", body: `{"completed_exams":["abc"]}`},
		{name: "empty body", path: "/api/v1/progress", body: ``},
		{name: "negative delta", path: "/api/v1/progress/penalty", body: `{"delta":-5}`},
		{name: "missing delta", path: "/api/v1/progress/penalty", body: `{}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doRequest(t, router, http.MethodPost, tt.path, "alice", tt.body)

			assert.Equal(t, http.StatusBadRequest, resp.Status)
			assert.Equal(t, false, resp.Body["success"])
			assert.NotEmpty(t, resp.Body["error"])
		})
	}

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM user_progress").Scan(&count))
	assert.Equal(t, 0, count, "rejected requests must not write")
}

func TestProgress_IdentityRequired(t *testing.T) {
	router, _ := setupTestServer(t, nil)

	resp := doRequest(t, router, http.MethodGet, "/api/v1/progress", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.Status)

	resp = doRequest(t, router, http.MethodGet, "/api/v1/progress", "not a valid key", "")
	assert.Equal(t, http.StatusBadRequest, resp.Status)
}

func TestProgress_JWTIdentity(t *testing.T) {
	router, _ := setupTestServer(t, func(cfg *config.Config) {
		cfg.Auth.Mode = config.AuthModeJWT
	})
	token, err := auth.NewTokenValidator("test-secret").IssueAccessToken("carol", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/progress", bytes.NewReader([]byte(`{"xp":120}`)))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Username", "mallory")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp models.ProgressResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "carol", resp.UserKey)
	assert.Equal(t, 120, resp.XP)

	resp2 := doRequest(t, router, http.MethodGet, "/api/v1/progress", "carol", "")
	assert.Equal(t, http.StatusUnauthorized, resp2.Status, "header identity is ignored in jwt mode")
}

func TestProgress_AdminReset(t *testing.T) {
	router, _ := setupTestServer(t, nil)

	doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice",
		`{"xp":700,"completed_levels":[{"topicId":1,"subLevelId":1.1}],"completed_exams":["1.1"]}`)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/progress/alice/reset", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/admin/progress/alice/reset", nil)
	req.Header.Set("X-API-Key", "test-api-key")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	resp := doRequest(t, router, http.MethodGet, "/api/v1/progress", "alice", "")
	assert.Equal(t, float64(0), resp.Body["xp"])
	assert.Equal(t, float64(1), resp.Body["level"])
	assert.Equal(t, []any{}, resp.Body["completed_levels"])
	assert.Equal(t, []any{}, resp.Body["completed_exams"])

	// Progress can be rebuilt after a reset
	resp = doRequest(t, router, http.MethodPost, "/api/v1/progress", "alice", `{"completed_exams":["1.1"]}`)
	assert.Equal(t, []any{"1.1"}, resp.Body["completed_exams"])
}

func TestHealth(t *testing.T) {
	router, db := setupTestServer(t, nil)

	resp := doRequest(t, router, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "ok", resp.Body["status"])

	db.Close()
	resp = doRequest(t, router, http.MethodGet, "/api/v1/health", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)
}

func TestNewRouter_InvalidAuthMode(t *testing.T) {
	cfg := &config.Config{Auth: config.AuthConfig{Mode: "basic"}}

	_, err := NewRouter(cfg, nil, nil, zap.NewNop())
	assert.Error(t, err)

	cfg.Auth.Mode = config.AuthModeJWT
	_, err = NewRouter(cfg, nil, nil, zap.NewNop())
	assert.Error(t, err)
}
