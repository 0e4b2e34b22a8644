package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	t.Run("type and message", func(t *testing.T) {
		err := ValidationError("email is required")
		assert.Equal(t, "validation: email is required", err.Error())
	})

	t.Run("includes code and cause", func(t *testing.T) {
		cause := stderrors.New("connection refused")
		err := StoreError("get failed", cause).WithCode("REDIS_DOWN")

		msg := err.Error()
		assert.Contains(t, msg, "store: get failed")
		assert.Contains(t, msg, "code=REDIS_DOWN")
		assert.Contains(t, msg, "cause=connection refused")
	})

	t.Run("includes context", func(t *testing.T) {
		err := InvalidKey("empty after sanitization").WithContext("namespace", "users")
		assert.Contains(t, err.Error(), "namespace=users")
	})
}

func TestAppError_Unwrap(t *testing.T) {
	cause := stderrors.New("dial tcp: refused")
	err := StoreError("ping failed", cause)

	assert.True(t, stderrors.Is(err, cause))
	assert.True(t, stderrors.Is(fmt.Errorf("startup: %w", err), cause))
}

func TestIsType(t *testing.T) {
	assert.True(t, IsType(NotFoundError("user"), ErrTypeNotFound))
	assert.False(t, IsType(NotFoundError("user"), ErrTypeStore))
	assert.False(t, IsType(stderrors.New("plain"), ErrTypeStore))
	assert.False(t, IsType(nil, ErrTypeStore))
}

func TestGetType(t *testing.T) {
	assert.Equal(t, ErrTypeAuth, GetType(AuthError("bad credentials")))
	assert.Equal(t, ErrTypeInternal, GetType(stderrors.New("plain")))
	assert.Equal(t, ErrorType(""), GetType(nil))
}

func TestRetryAfter(t *testing.T) {
	t.Run("extracts the duration from a rate limit error", func(t *testing.T) {
		err := RateLimitExceeded("too many requests", 100, 42*time.Second)

		d, ok := RetryAfter(err)
		assert.True(t, ok)
		assert.Equal(t, 42*time.Second, d)
	})

	t.Run("other errors carry nothing", func(t *testing.T) {
		_, ok := RetryAfter(ValidationError("nope"))
		assert.False(t, ok)

		_, ok = RetryAfter(stderrors.New("plain"))
		assert.False(t, ok)
	})
}
