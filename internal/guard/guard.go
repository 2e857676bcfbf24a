// Package guard gates the mutating sync endpoint. Three checks run in
// strict order: per-caller rate limit, shared-secret authentication, then
// admin store availability. Failing an earlier gate never evaluates a
// later one.
package guard

import (
	"net/http"
	"strings"
	"time"
)

// placeholderSecret ships in example configs. A deployment whose secret
// still equals it accepts nobody.
const placeholderSecret = "change-me"

// Rejection describes why a request was refused.
type Rejection struct {
	Status  int
	Message string
}

// Guard authorizes requests to the sync endpoint.
type Guard struct {
	limiter *FixedWindowLimiter
	secret  string
	ready   func() bool
}

// New creates a Guard. ready reports whether the admin store connection is
// available; nil means always available.
func New(limiter *FixedWindowLimiter, secret string, ready func() bool) *Guard {
	if ready == nil {
		ready = func() bool { return true }
	}
	return &Guard{limiter: limiter, secret: secret, ready: ready}
}

// NewFromConfig builds a Guard with a real clock from the window and cap
// settings.
func NewFromConfig(windowSecs, maxRequests int, secret string, ready func() bool) *Guard {
	limiter := NewFixedWindowLimiter(time.Duration(windowSecs)*time.Second, maxRequests, nil)
	return New(limiter, secret, ready)
}

// Authorize evaluates the gates against one request. A nil return allows it.
func (g *Guard) Authorize(r *http.Request) *Rejection {
	if !g.limiter.Allow(callerKey(r)) {
		return &Rejection{
			Status:  http.StatusTooManyRequests,
			Message: "rate limit exceeded, try again later",
		}
	}

	if !g.authenticated(r) {
		return &Rejection{
			Status:  http.StatusUnauthorized,
			Message: "invalid or missing sync token",
		}
	}

	if !g.ready() {
		return &Rejection{
			Status:  http.StatusServiceUnavailable,
			Message: "store connection unavailable",
		}
	}

	return nil
}

// authenticated checks the caller-supplied secret against configuration.
// The configured secret must be set and must differ from the shipped
// placeholder, otherwise an unconfigured deployment would accept a
// publicly known value.
func (g *Guard) authenticated(r *http.Request) bool {
	if g.secret == "" || g.secret == placeholderSecret {
		return false
	}

	token := ""
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		token = strings.TrimPrefix(auth, "Bearer ")
	} else {
		// Lower-trust fallback for callers that cannot set headers.
		token = r.URL.Query().Get("token")
	}
	return token != "" && token == g.secret
}

// callerKey identifies the caller for rate limiting: the first
// X-Forwarded-For hop, then X-Real-IP, then a shared "unknown" bucket.
func callerKey(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if i := strings.IndexByte(fwd, ','); i >= 0 {
			fwd = fwd[:i]
		}
		if key := strings.TrimSpace(fwd); key != "" {
			return key
		}
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return "unknown"
}
