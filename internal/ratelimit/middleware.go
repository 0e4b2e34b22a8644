package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"request-governor/internal/common/logging"
	"request-governor/internal/middleware"
)

// penalizeTimeout bounds the failure-count increment, which runs after the
// response has already been sent.
const penalizeTimeout = 2 * time.Second

// Middleware enforces a policy in front of a handler. Every outcome sets
// the standard rate-limit headers; a deny short-circuits with 429, the
// policy message and retry-after guidance. Panics on an invalid policy so
// misconfiguration fails at wiring time, not per request.
func (e *Engine) Middleware(p Policy, id Identity) func(http.Handler) http.Handler {
	if err := p.Validate(); err != nil {
		panic(err)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identifier, ok := id.Resolve(r)
			if !ok {
				if p.FailClosed {
					e.logger.Warn("denying unidentifiable client",
						logging.String("policy", p.Name),
						logging.String("path", r.URL.Path))
					res := &Result{
						Limit:      p.Limit,
						Reset:      time.Now().Add(p.Window),
						RetryAfter: p.Window,
					}
					setHeaders(w, res)
					writeDeny(w, p, res)
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			res, err := e.Check(r.Context(), p, identifier, r.URL.Path)
			if err != nil {
				e.logger.Error("rate limit key construction failed", err,
					logging.String("policy", p.Name))
				http.Error(w, "internal server error", http.StatusInternalServerError)
				return
			}

			setHeaders(w, res)

			if !res.Allowed {
				writeDeny(w, p, res)
				return
			}

			if p.SkipSuccessful {
				tw := middleware.Wrap(w)
				tw.OnTerminal(func(status int, _ []byte) {
					if status < http.StatusBadRequest {
						return
					}
					ctx, cancel := context.WithTimeout(context.Background(), penalizeTimeout)
					defer cancel()
					e.Penalize(ctx, p, identifier, r.URL.Path)
				})
				next.ServeHTTP(tw, r)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setHeaders(w http.ResponseWriter, res *Result) {
	w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", res.Limit))
	w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
	w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", res.Reset.Unix()))
}

func writeDeny(w http.ResponseWriter, p Policy, res *Result) {
	retryAfter := int(res.RetryAfter / time.Second)
	if retryAfter < 1 {
		retryAfter = 1
	}

	w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":       p.Message,
		"retry_after": retryAfter,
	})
}
