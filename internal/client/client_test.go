package client

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetries() Option {
	return WithBackOff(func() backoff.BackOff {
		return backoff.WithMaxRetries(&backoff.ZeroBackOff{}, 3)
	})
}

func newSession(t *testing.T) *Session {
	t.Helper()
	s, err := NewSession(&MemoryStore{})
	require.NoError(t, err)
	return s
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ===== REQUESTS =====

func TestLoginStoresTokenAndSendsItAfterwards(t *testing.T) {
	var gotAuth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			var body map[string]string
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ana@example.com", body["email"])
			writeJSON(w, http.StatusOK, map[string]any{
				"message": "login successful",
				"token":   "tok-123",
				"user":    map[string]any{"id": 1, "email": "ana@example.com", "name": "Ana"},
			})
		case "/api/users/profile":
			gotAuth.Store(r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]any{
				"user":  map[string]any{"id": 1, "name": "Ana", "totalPoints": 25},
				"stats": map[string]any{"totalSessions": 2, "totalStudyTimeSeconds": 9000},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(srv.URL)
	sess := newSession(t)

	res, err := c.Login(context.Background(), sess, "ana@example.com", "secret123")
	require.NoError(t, err)
	assert.Equal(t, "tok-123", res.Token)
	assert.True(t, sess.IsAuthenticated())
	assert.Equal(t, "Ana", sess.User().Name)
	assert.Equal(t, srv.URL, sess.Server())

	p, err := c.Profile(context.Background(), sess)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok-123", gotAuth.Load())
	assert.Equal(t, int64(25), p.User.TotalPoints)
	assert.Equal(t, int64(9000), p.Stats.TotalStudyTimeSeconds)
}

func TestAPIErrorCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":  "durationSeconds must be at least 1",
			"code":   "validation_error",
			"fields": map[string]string{"durationSeconds": "durationSeconds must be at least 1"},
		})
	}))
	defer srv.Close()

	_, err := New(srv.URL).LogSession(context.Background(), newSession(t), LogSessionRequest{})
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.Status)
	assert.Equal(t, "validation_error", apiErr.Code)
	assert.Equal(t, "durationSeconds must be at least 1", apiErr.Error())
	assert.Contains(t, apiErr.Fields, "durationSeconds")
}

func TestAPIErrorWithoutJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	defer srv.Close()

	err := New(srv.URL).DeleteSession(context.Background(), newSession(t), 1)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadGateway, apiErr.Status)
	assert.Contains(t, apiErr.Message, "502")
}

// ===== RETRIES =====

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "busy"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"challenges": []any{map[string]any{"id": 7, "name": "Weekly"}}})
	}))
	defer srv.Close()

	list, err := New(srv.URL, fastRetries()).Challenges(context.Background(), newSession(t))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, int64(7), list[0].ID)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token", "code": "unauthorized"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, fastRetries()).Verify(context.Background(), newSession(t))
	require.Error(t, err)
	assert.True(t, IsUnauthorized(err))
	assert.Equal(t, int32(1), calls.Load())
}

func TestWritesAreNeverRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}))
	defer srv.Close()

	_, err := New(srv.URL, fastRetries()).LogSession(context.Background(), newSession(t), LogSessionRequest{DurationSeconds: 60})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

// ===== QUERY + DOWNLOAD =====

func TestSessionsQueryString(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		writeJSON(w, http.StatusOK, map[string]any{
			"sessions":   []any{},
			"pagination": map[string]any{"currentPage": 2, "totalPages": 3, "hasNextPage": true},
		})
	}))
	defer srv.Close()

	page, err := New(srv.URL).Sessions(context.Background(), newSession(t), 2, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Pagination.CurrentPage)
	assert.True(t, page.Pagination.HasNextPage)
}

func TestExportSessions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Disposition", `attachment; filename="study-sessions-20260301.xlsx"`)
		_, _ = w.Write([]byte("PK-fake-workbook"))
	}))
	defer srv.Close()

	var buf bytes.Buffer
	name, err := New(srv.URL).ExportSessions(context.Background(), newSession(t), &buf)
	require.NoError(t, err)
	assert.Equal(t, "study-sessions-20260301.xlsx", name)
	assert.Equal(t, "PK-fake-workbook", buf.String())
}

// ===== LIVE =====

func TestWatchRanking(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/challenges/7/live", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, pts := range []int64{10, 20} {
			_ = conn.WriteJSON(RankingSnapshot{
				Type:        "ranking",
				ChallengeID: 7,
				Ranking:     []RankingEntry{{Position: 1, Name: "Ana", TotalPoints: pts}},
			})
		}
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
	}))
	defer srv.Close()

	sess := newSession(t)
	require.NoError(t, sess.SignIn(srv.URL, "tok", User{ID: 1}))

	var got []int64
	err := New(srv.URL).WatchRanking(context.Background(), sess, 7, func(s RankingSnapshot) error {
		got = append(got, s.Ranking[0].TotalPoints)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{10, 20}, got)
}

func TestWatchRankingUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid token", "code": "unauthorized"})
	}))
	defer srv.Close()

	err := New(srv.URL).WatchRanking(context.Background(), newSession(t), 1, func(RankingSnapshot) error { return nil })
	assert.True(t, IsUnauthorized(err))
}

// ===== SESSION STORES =====

func TestFileStoreRoundTripAndPermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "estudo", "credentials.yaml")
	store := &FileStore{Path: path}

	c, err := store.Load()
	require.NoError(t, err)
	assert.Nil(t, c, "missing file is not an error")

	sess, err := NewSession(store)
	require.NoError(t, err)
	require.NoError(t, sess.SignIn("http://localhost:8080", "tok-abc", User{ID: 3, Name: "Ana", TotalPoints: 40}))

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	}

	restored, err := NewSession(store)
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", restored.Token())
	assert.Equal(t, int64(40), restored.User().TotalPoints)
	assert.Equal(t, "http://localhost:8080", restored.Server())

	require.NoError(t, restored.SignOut())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	assert.False(t, restored.IsAuthenticated())
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte("token: [unterminated"), 0o600))

	_, err := NewSession(&FileStore{Path: path})
	assert.Error(t, err)
}

func TestSessionUserIsACopy(t *testing.T) {
	sess := newSession(t)
	require.NoError(t, sess.SignIn("", "t", User{Name: "Ana"}))
	u := sess.User()
	u.Name = "changed"
	assert.Equal(t, "Ana", sess.User().Name)
}

// ===== FORMATTING =====

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0s"},
		{42, "42s"},
		{125, "2m 5s"},
		{3600, "1h 0m 0s"},
		{3723, "1h 2m 3s"},
		{-5, "0s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatDuration(tt.in), "FormatDuration(%d)", tt.in)
	}
}

func TestFormatClock(t *testing.T) {
	assert.Equal(t, "00:00:00", FormatClock(0))
	assert.Equal(t, "01:02:03", FormatClock(time.Hour+2*time.Minute+3*time.Second+400*time.Millisecond))
}

func TestFormatDate(t *testing.T) {
	ts := time.Date(2026, 3, 9, 14, 5, 0, 0, time.Local)
	assert.Equal(t, "09/03/2026 14:05", FormatDate(ts))
	assert.True(t, strings.Count(FormatDate(time.Now()), "/") == 2)
}
