package cache

import (
	"context"
	"net/http"
	"sync"

	"request-governor/internal/common/logging"
	"request-governor/internal/middleware"
)

// Target declares cache entries to remove after a mutation succeeds:
// either explicit keys under a namespace, or the whole namespace.
type Target struct {
	Namespace string
	Keys      []string
	Wildcard  bool
}

type targetSet struct {
	mu      sync.Mutex
	targets []Target
}

type invalidationKey struct{}

// Declare records an invalidation target on the current request. Targets
// accumulate across middleware layers and handlers; all of them execute
// after a successful terminal response. Outside the coordinator middleware
// this is a no-op.
func Declare(r *http.Request, t Target) {
	set, ok := r.Context().Value(invalidationKey{}).(*targetSet)
	if !ok {
		return
	}
	set.mu.Lock()
	set.targets = append(set.targets, t)
	set.mu.Unlock()
}

// Coordinator executes declared invalidation targets once the mutation
// they belong to has succeeded. Invalidation failures are logged, never
// surfaced: the mutation already succeeded and must report success.
type Coordinator struct {
	cache  *ResponseCache
	logger logging.Logger
}

func NewCoordinator(cache *ResponseCache) *Coordinator {
	return &Coordinator{
		cache:  cache,
		logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "invalidation"}),
	}
}

// Middleware attaches a target set to the request and runs every declared
// target after a 2xx terminal response.
func (c *Coordinator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		set := &targetSet{}
		r = r.WithContext(context.WithValue(r.Context(), invalidationKey{}, set))

		tw := middleware.Wrap(w)
		tw.OnTerminal(func(status int, _ []byte) {
			if status < 200 || status >= 300 {
				return
			}

			set.mu.Lock()
			targets := make([]Target, len(set.targets))
			copy(targets, set.targets)
			set.mu.Unlock()

			if len(targets) == 0 {
				return
			}

			ctx, cancel := context.WithTimeout(context.Background(), fillTimeout)
			defer cancel()
			c.execute(ctx, targets)
		})

		next.ServeHTTP(tw, r)
	})
}

func (c *Coordinator) execute(ctx context.Context, targets []Target) {
	for _, t := range targets {
		if t.Wildcard {
			removed := c.cache.ClearNamespace(ctx, t.Namespace)
			c.logger.Debug("cleared cache namespace",
				logging.String("namespace", t.Namespace),
				logging.Int("removed", removed))
			continue
		}
		c.cache.DeleteBatch(ctx, t.Namespace, t.Keys)
		c.logger.Debug("invalidated cache keys",
			logging.String("namespace", t.Namespace),
			logging.Int("count", len(t.Keys)))
	}
}
