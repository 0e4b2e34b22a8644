package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"request-governor/internal/config"
)

func testConfig(addr string) *config.Config {
	cfg := config.Load()
	cfg.RedisAddress = addr
	cfg.JWTSecret = "0123456789abcdef0123456789abcdef"
	return cfg
}

func setupTestApp(t *testing.T, tweak func(*config.Config)) (*App, http.Handler, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	cfg := testConfig(mr.Addr())
	if tweak != nil {
		tweak(cfg)
	}
	require.NoError(t, cfg.Validate())

	app, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(app.Cleanup)

	return app, app.Router(), mr
}

func doJSON(t *testing.T, handler http.Handler, method, path, body, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.RemoteAddr = remoteAddr
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRouter_Health(t *testing.T) {
	t.Run("healthy store", func(t *testing.T) {
		_, handler, _ := setupTestApp(t, nil)

		rec := doJSON(t, handler, http.MethodGet, "/api/health", "", "10.0.0.1:1000")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	})

	t.Run("store outage reports degraded", func(t *testing.T) {
		_, handler, mr := setupTestApp(t, nil)
		mr.Close()

		rec := doJSON(t, handler, http.MethodGet, "/api/health", "", "10.0.0.1:1000")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.JSONEq(t, `{"status":"degraded"}`, rec.Body.String())
	})
}

func TestRouter_UserLifecycle(t *testing.T) {
	_, handler, _ := setupTestApp(t, nil)
	addr := "10.0.0.1:1000"

	t.Run("list starts empty and caches", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/users", "", addr)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
		assert.JSONEq(t, `[]`, rec.Body.String())

		rec = doJSON(t, handler, http.MethodGet, "/api/users", "", addr)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	})

	t.Run("create invalidates the list cache", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/users",
			`{"email":"ada@example.com","name":"Ada"}`, addr)
		require.Equal(t, http.StatusCreated, rec.Code)

		var created struct {
			ID int `json:"id"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
		assert.Equal(t, 1, created.ID)

		rec = doJSON(t, handler, http.MethodGet, "/api/users", "", addr)
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
		assert.Contains(t, rec.Body.String(), "ada@example.com")
	})

	t.Run("single user reads cache independently", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodGet, "/api/users/1", "", addr)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))

		rec = doJSON(t, handler, http.MethodGet, "/api/users/1", "", addr)
		assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	})

	t.Run("update invalidates the touched entries", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPut, "/api/users/1", `{"name":"Ada Lovelace"}`, addr)
		require.Equal(t, http.StatusOK, rec.Code)

		rec = doJSON(t, handler, http.MethodGet, "/api/users/1", "", addr)
		assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
		assert.Contains(t, rec.Body.String(), "Ada Lovelace")
	})

	t.Run("missing user is a 404 and stays uncached", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			rec := doJSON(t, handler, http.MethodGet, "/api/users/999", "", addr)
			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
		}
	})

	t.Run("delete removes the user", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodDelete, "/api/users/1", "", addr)
		assert.Equal(t, http.StatusNoContent, rec.Code)

		rec = doJSON(t, handler, http.MethodGet, "/api/users/1", "", addr)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestRouter_GlobalRateLimit(t *testing.T) {
	_, handler, _ := setupTestApp(t, func(cfg *config.Config) {
		cfg.GlobalLimit = 3
	})

	for i := 0; i < 3; i++ {
		rec := doJSON(t, handler, http.MethodGet, "/api/health", "", "10.0.0.1:1000")
		require.Equal(t, http.StatusOK, rec.Code, "request %d", i+1)
	}

	rec := doJSON(t, handler, http.MethodGet, "/api/health", "", "10.0.0.1:1000")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.JSONEq(t, `{"error":"too many requests","retry_after":60}`, rec.Body.String())

	rec = doJSON(t, handler, http.MethodGet, "/api/health", "", "10.0.0.2:1000")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_MutationRateLimit(t *testing.T) {
	_, handler, _ := setupTestApp(t, func(cfg *config.Config) {
		cfg.MutateLimit = 2
	})
	addr := "10.0.0.1:1000"

	for i := 0; i < 2; i++ {
		body := fmt.Sprintf(`{"email":"u%d@example.com","name":"U%d"}`, i, i)
		rec := doJSON(t, handler, http.MethodPost, "/api/users", body, addr)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := doJSON(t, handler, http.MethodPost, "/api/users",
		`{"email":"u3@example.com","name":"U3"}`, addr)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = doJSON(t, handler, http.MethodGet, "/api/users", "", addr)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouter_AuthRateLimit(t *testing.T) {
	_, handler, _ := setupTestApp(t, func(cfg *config.Config) {
		cfg.AuthLimit = 3
	})
	addr := "10.0.0.1:1000"

	t.Run("successful logins never count", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			rec := doJSON(t, handler, http.MethodPost, "/api/auth/login",
				`{"email":"admin@example.com","password":"governor-demo"}`, addr)
			require.Equal(t, http.StatusOK, rec.Code)
			assert.Contains(t, rec.Body.String(), "token")
		}
	})

	t.Run("failed attempts lock the window", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			rec := doJSON(t, handler, http.MethodPost, "/api/auth/login",
				`{"email":"admin@example.com","password":"wrong"}`, addr)
			require.Equal(t, http.StatusUnauthorized, rec.Code)
		}

		rec := doJSON(t, handler, http.MethodPost, "/api/auth/login",
			`{"email":"admin@example.com","password":"governor-demo"}`, addr)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.JSONEq(t, `{"error":"too many failed attempts","retry_after":900}`, rec.Body.String())
	})

	t.Run("other clients still log in", func(t *testing.T) {
		rec := doJSON(t, handler, http.MethodPost, "/api/auth/login",
			`{"email":"admin@example.com","password":"governor-demo"}`, "10.0.0.9:1000")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
