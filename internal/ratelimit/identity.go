package ratelimit

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Identity resolves the client identifier a request is billed under,
// from the most specific source available: a verified bearer token's
// subject, then forwarded-address headers, then the transport peer.
type Identity struct {
	// JWTSecret verifies bearer tokens; empty disables token resolution
	JWTSecret []byte
}

// Resolve returns the identifier for a request, or ok=false when no
// source yields one. The caller's fail-closed flag decides what an
// unidentifiable request means.
func (id Identity) Resolve(r *http.Request) (string, bool) {
	if len(id.JWTSecret) > 0 {
		if sub := id.subjectFromToken(r); sub != "" {
			return "user:" + sub, true
		}
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.SplitN(fwd, ",", 2)[0])
		if first != "" {
			return "ip:" + first, true
		}
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return "ip:" + ip, true
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host, true
	}
	if r.RemoteAddr != "" {
		return "ip:" + r.RemoteAddr, true
	}

	return "", false
}

func (id Identity) subjectFromToken(r *http.Request) string {
	const prefix = "Bearer "

	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}

	token, err := jwt.Parse(strings.TrimPrefix(auth, prefix), func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return id.JWTSecret, nil
	})
	if err != nil || !token.Valid {
		return ""
	}

	sub, err := token.Claims.GetSubject()
	if err != nil {
		return ""
	}
	return sub
}
