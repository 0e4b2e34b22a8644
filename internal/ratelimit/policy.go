package ratelimit

import (
	"time"

	"request-governor/internal/common/errors"
)

// DefaultPrefix namespaces rate-limit counters in the shared store.
const DefaultPrefix = "ratelimit"

// Policy is one named rate-limit configuration. A window is represented in
// the store as a single counter with a TTL; the TTL is the window boundary.
type Policy struct {
	// Name identifies the policy and partitions its counters
	Name string `json:"name"`
	// Limit is the maximum counted requests per window
	Limit int `json:"limit"`
	// Window is the counting window length
	Window time.Duration `json:"window"`
	// FailClosed denies when the store is unavailable or the client
	// cannot be identified; unset, such requests pass through
	FailClosed bool `json:"fail_closed"`
	// SkipSuccessful counts only requests whose terminal status is >= 400
	SkipSuccessful bool `json:"skip_successful"`
	// Message is the client-facing deny message
	Message string `json:"message"`
	// Prefix overrides the store key prefix
	Prefix string `json:"prefix,omitempty"`
}

// Validate checks the policy and fills defaults.
func (p *Policy) Validate() error {
	if p.Name == "" {
		return errors.ValidationError("rate limit policy requires a name")
	}
	if p.Limit <= 0 {
		return errors.ValidationError("rate limit policy requires a positive limit")
	}
	if p.Window <= 0 {
		return errors.ValidationError("rate limit policy requires a positive window")
	}
	if p.Message == "" {
		p.Message = "rate limit exceeded"
	}
	if p.Prefix == "" {
		p.Prefix = DefaultPrefix
	}
	return nil
}

// Result is the outcome of a policy check, carrying the standard
// rate-limit metadata for response headers.
type Result struct {
	Allowed    bool          `json:"allowed"`
	Limit      int           `json:"limit"`
	Remaining  int           `json:"remaining"`
	Reset      time.Time     `json:"reset"`
	RetryAfter time.Duration `json:"retry_after,omitempty"`
}
