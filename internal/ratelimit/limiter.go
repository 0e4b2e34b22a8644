// Package ratelimit implements distributed rate limiting over the shared
// key-value store. Each (policy, identifier, route) window is a single
// counter whose TTL is the window boundary; every counted request runs one
// atomic increment in the store, so counters stay correct across processes
// even though allow/deny decisions at the exact limit boundary may admit
// slightly more than the limit under heavy concurrency.
package ratelimit

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/sony/gobreaker"

	"request-governor/internal/common/errors"
	"request-governor/internal/common/logging"
	"request-governor/internal/keys"
)

// Store is the counter surface the engine needs from the shared store.
type Store interface {
	GetWithTTL(ctx context.Context, key string) (string, time.Duration, bool, error)
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// Engine evaluates rate-limit policies. Store calls run through a circuit
// breaker so a dead store short-circuits straight to each policy's
// fail-open or fail-closed behavior instead of stalling every request.
type Engine struct {
	store   Store
	breaker *gobreaker.CircuitBreaker
	logger  logging.Logger
}

func NewEngine(store Store) *Engine {
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "ratelimit-store",
		MaxRequests: 1,
		Timeout:     10 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	})

	return &Engine{
		store:   store,
		breaker: breaker,
		logger:  logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "ratelimit"}),
	}
}

func counterKey(p Policy, identifier, route string) (string, error) {
	return keys.Build(p.Prefix, fmt.Sprintf("%s:%s:%s", p.Name, identifier, keys.NormalizeRoute(route)))
}

// Check decides allow/deny for one request under a policy. Store failures
// never reach the caller: a fail-closed policy converts them into the same
// deny shape a normal limit-exceeded produces, a fail-open policy logs and
// allows. The only returned error is an invalid key, which is a programmer
// error at the call site.
func (e *Engine) Check(ctx context.Context, p Policy, identifier, route string) (*Result, error) {
	key, err := counterKey(p, identifier, route)
	if err != nil {
		return nil, err
	}

	res, err := e.breaker.Execute(func() (interface{}, error) {
		return e.check(ctx, p, key)
	})
	if err != nil {
		e.logger.Warn("rate limit check failed against store",
			logging.String("policy", p.Name),
			logging.String("key", key),
			logging.Bool("fail_closed", p.FailClosed),
			logging.Err(err))

		if p.FailClosed {
			return &Result{
				Allowed:    false,
				Limit:      p.Limit,
				Remaining:  0,
				Reset:      time.Now().Add(p.Window),
				RetryAfter: p.Window,
			}, nil
		}
		return &Result{
			Allowed:   true,
			Limit:     p.Limit,
			Remaining: p.Limit,
			Reset:     time.Now().Add(p.Window),
		}, nil
	}

	return res.(*Result), nil
}

func (e *Engine) check(ctx context.Context, p Policy, key string) (*Result, error) {
	val, ttl, found, err := e.store.GetWithTTL(ctx, key)
	if err != nil {
		return nil, err
	}

	count := 0
	if found {
		count, err = strconv.Atoi(val)
		if err != nil {
			return nil, errors.StoreError("unexpected counter value", err).WithContext("key", key)
		}
	}
	if !found || ttl <= 0 {
		ttl = p.Window
	}

	if count >= p.Limit {
		// Exceeded until the TTL elapses. No further increments: retried
		// clients must not grow the counter without bound.
		return &Result{
			Allowed:    false,
			Limit:      p.Limit,
			Remaining:  0,
			Reset:      time.Now().Add(ttl),
			RetryAfter: time.Duration(math.Ceil(ttl.Seconds())) * time.Second,
		}, nil
	}

	if p.SkipSuccessful {
		// Read-only check; the request counts only if it ultimately
		// fails, via a terminal callback calling Penalize.
		return &Result{
			Allowed:   true,
			Limit:     p.Limit,
			Remaining: p.Limit - count,
			Reset:     time.Now().Add(ttl),
		}, nil
	}

	newCount, err := e.store.IncrWithTTL(ctx, key, p.Window)
	if err != nil {
		return nil, err
	}

	remaining := p.Limit - int(newCount)
	if remaining < 0 {
		remaining = 0
	}
	reset := time.Now().Add(p.Window)
	if found {
		reset = time.Now().Add(ttl)
	}

	return &Result{
		Allowed:   true,
		Limit:     p.Limit,
		Remaining: remaining,
		Reset:     reset,
	}, nil
}

// Penalize counts a failed request against a count-on-failure policy.
// Best-effort: increment failures are logged and dropped.
func (e *Engine) Penalize(ctx context.Context, p Policy, identifier, route string) {
	key, err := counterKey(p, identifier, route)
	if err != nil {
		e.logger.Error("invalid rate limit key", err,
			logging.String("policy", p.Name),
			logging.String("identifier", identifier))
		return
	}

	_, err = e.breaker.Execute(func() (interface{}, error) {
		return e.store.IncrWithTTL(ctx, key, p.Window)
	})
	if err != nil {
		e.logger.Warn("failure count increment failed",
			logging.String("policy", p.Name),
			logging.String("key", key),
			logging.Err(err))
	}
}
