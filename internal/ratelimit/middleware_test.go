package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"request-governor/internal/middleware"
)

func limitedHandler(e *Engine, p Policy, id Identity, inner http.Handler) http.Handler {
	return middleware.Observe(e.Middleware(p, id)(inner))
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"ok":true}`))
	})
}

func doRequest(t *testing.T, handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_Headers(t *testing.T) {
	engine, _ := setupTestEngine(t)
	handler := limitedHandler(engine, testPolicy(2, time.Minute), Identity{}, okHandler())

	t.Run("allowed responses carry the limit headers", func(t *testing.T) {
		rec := doRequest(t, handler, "10.0.0.1:4000")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "1", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("denied responses carry retry-after and a json body", func(t *testing.T) {
		doRequest(t, handler, "10.0.0.1:4000")
		rec := doRequest(t, handler, "10.0.0.1:4000")

		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
		assert.JSONEq(t, `{"error":"rate limit exceeded","retry_after":60}`, rec.Body.String())
	})

	t.Run("other clients are unaffected", func(t *testing.T) {
		rec := doRequest(t, handler, "10.0.0.2:4000")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestMiddleware_SkipSuccessful(t *testing.T) {
	engine, _ := setupTestEngine(t)

	p := testPolicy(3, time.Minute)
	p.SkipSuccessful = true

	status := http.StatusOK
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})
	handler := limitedHandler(engine, p, Identity{}, inner)

	t.Run("successful responses never count", func(t *testing.T) {
		for i := 0; i < 10; i++ {
			rec := doRequest(t, handler, "10.0.0.1:4000")
			assert.Equal(t, http.StatusOK, rec.Code)
		}
	})

	t.Run("failures count until the limit trips", func(t *testing.T) {
		status = http.StatusUnauthorized
		for i := 0; i < 3; i++ {
			rec := doRequest(t, handler, "10.0.0.1:4000")
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		}

		rec := doRequest(t, handler, "10.0.0.1:4000")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("a tripped window blocks successes too", func(t *testing.T) {
		status = http.StatusOK
		rec := doRequest(t, handler, "10.0.0.1:4000")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})
}

func TestMiddleware_Unidentifiable(t *testing.T) {
	engine, _ := setupTestEngine(t)

	request := func(handler http.Handler) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/things", nil)
		req.RemoteAddr = ""
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("fail-open lets the request through uncounted", func(t *testing.T) {
		handler := limitedHandler(engine, testPolicy(1, time.Minute), Identity{}, okHandler())
		assert.Equal(t, http.StatusOK, request(handler).Code)
		assert.Equal(t, http.StatusOK, request(handler).Code)
	})

	t.Run("fail-closed denies up front", func(t *testing.T) {
		p := testPolicy(1, time.Minute)
		p.FailClosed = true
		handler := limitedHandler(engine, p, Identity{}, okHandler())

		rec := request(handler)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	})
}

func TestMiddleware_InvalidPolicy(t *testing.T) {
	engine, _ := setupTestEngine(t)

	assert.Panics(t, func() {
		engine.Middleware(Policy{}, Identity{})
	})
}

func TestIdentity_Resolve(t *testing.T) {
	secret := []byte("0123456789abcdef0123456789abcdef")

	newRequest := func() *http.Request {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "192.0.2.7:1234"
		return req
	}

	t.Run("verified token subject wins", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   "42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		signed, err := token.SignedString(secret)
		require.NoError(t, err)

		req := newRequest()
		req.Header.Set("Authorization", "Bearer "+signed)
		req.Header.Set("X-Forwarded-For", "1.2.3.4")

		got, ok := Identity{JWTSecret: secret}.Resolve(req)
		assert.True(t, ok)
		assert.Equal(t, "user:42", got)
	})

	t.Run("token signed with the wrong secret is ignored", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "42"})
		signed, err := token.SignedString([]byte("not-the-real-secret-not-the-real"))
		require.NoError(t, err)

		req := newRequest()
		req.Header.Set("Authorization", "Bearer "+signed)

		got, ok := Identity{JWTSecret: secret}.Resolve(req)
		assert.True(t, ok)
		assert.Equal(t, "ip:192.0.2.7", got)
	})

	t.Run("forwarded-for uses the first hop", func(t *testing.T) {
		req := newRequest()
		req.Header.Set("X-Forwarded-For", "1.2.3.4, 5.6.7.8")

		got, ok := Identity{}.Resolve(req)
		assert.True(t, ok)
		assert.Equal(t, "ip:1.2.3.4", got)
	})

	t.Run("real-ip beats the transport peer", func(t *testing.T) {
		req := newRequest()
		req.Header.Set("X-Real-IP", "9.9.9.9")

		got, ok := Identity{}.Resolve(req)
		assert.True(t, ok)
		assert.Equal(t, "ip:9.9.9.9", got)
	})

	t.Run("falls back to the remote address host", func(t *testing.T) {
		got, ok := Identity{}.Resolve(newRequest())
		assert.True(t, ok)
		assert.Equal(t, "ip:192.0.2.7", got)
	})

	t.Run("no source at all is unresolvable", func(t *testing.T) {
		req := newRequest()
		req.RemoteAddr = ""

		_, ok := Identity{}.Resolve(req)
		assert.False(t, ok)
	})
}
