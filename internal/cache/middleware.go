package cache

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"request-governor/internal/common/logging"
	"request-governor/internal/middleware"
)

// fillTimeout bounds the store write on the cache-fill path, which runs
// after the response has already been sent.
const fillTimeout = 2 * time.Second

// KeyFunc derives the cache key for a request. The default keys on the
// full request URI so query variants cache independently.
type KeyFunc func(r *http.Request) string

func defaultKeyFunc(r *http.Request) string {
	return r.URL.RequestURI()
}

// Middleware returns a cache-aside wrapper for idempotent reads under one
// namespace. Hits are served straight from the store with the cached
// status and body; misses fall through and arm a terminal callback that
// fills the cache when the response is 2xx. Either way the response
// carries X-Cache and X-Cache-Key so consumers can tell fresh from cached.
func (c *ResponseCache) Middleware(namespace string, ttl time.Duration, keyFn KeyFunc) func(http.Handler) http.Handler {
	if keyFn == nil {
		keyFn = defaultKeyFunc
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodGet {
				next.ServeHTTP(w, r)
				return
			}

			key := keyFn(r)
			w.Header().Set("X-Cache-Key", namespace+":"+key)

			if entry, ok := c.Get(r.Context(), namespace, key); ok {
				w.Header().Set("X-Cache", "HIT")
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(entry.StatusCode)
				w.Write(entry.Body)
				return
			}

			w.Header().Set("X-Cache", "MISS")

			tw := middleware.Wrap(w)
			tw.OnTerminal(func(status int, body []byte) {
				if status < 200 || status >= 300 {
					return
				}
				if !json.Valid(body) {
					c.logger.Debug("skipping cache fill for non-JSON body",
						logging.String("key", key))
					return
				}

				ctx, cancel := context.WithTimeout(context.Background(), fillTimeout)
				defer cancel()
				c.Set(ctx, namespace, key, &Entry{
					Body:       json.RawMessage(body),
					StatusCode: status,
					StoredAt:   time.Now().UTC(),
				}, ttl)
			})

			next.ServeHTTP(tw, r)
		})
	}
}
