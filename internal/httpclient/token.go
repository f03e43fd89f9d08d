// -----------------------------------------------------------------------
// Token transport - cached auth token with idle and absolute expiry
// -----------------------------------------------------------------------

package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
)

// TokenSource fetches a fresh auth token.
type TokenSource func(ctx context.Context) (string, error)

// refreshMargin renews a token slightly before its expiry so an in-flight
// request never carries a token that dies mid-request.
const refreshMargin = 30 * time.Second

// TokenTransport injects a cached auth token into every request. The token
// is renewed when it nears its idle or absolute expiry, refreshes are
// serialized, and a 401 response invalidates the token and retries the
// request once with a fresh one.
type TokenTransport struct {
	Base           http.RoundTripper
	Source         TokenSource
	Scheme         string // Authorization value prefix, e.g. "AR-JWT" or "Bearer"
	IdleExpiry     time.Duration
	AbsoluteExpiry time.Duration
	Logger         arbor.ILogger

	mu        sync.Mutex
	token     string
	fetchedAt time.Time
	lastUsed  time.Time
}

func (t *TokenTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

// currentToken returns the cached token, refreshing it when stale. The lock
// covers the fetch so concurrent requests trigger exactly one refresh.
func (t *TokenTransport) currentToken(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	if t.token != "" && !t.expired(now) {
		t.lastUsed = now
		return t.token, nil
	}

	t.Logger.Debug().Msg("Fetching fresh auth token")
	token, err := t.Source(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to fetch auth token: %w", err)
	}
	t.token = token
	t.fetchedAt = now
	t.lastUsed = now
	return token, nil
}

func (t *TokenTransport) expired(now time.Time) bool {
	if t.AbsoluteExpiry > 0 && now.Sub(t.fetchedAt) >= t.AbsoluteExpiry-refreshMargin {
		return true
	}
	if t.IdleExpiry > 0 && now.Sub(t.lastUsed) >= t.IdleExpiry-refreshMargin {
		return true
	}
	return false
}

// invalidate drops the cached token if it is still the one that failed.
func (t *TokenTransport) invalidate(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.token == token {
		t.token = ""
	}
}

func (t *TokenTransport) authorize(req *http.Request, token string) *http.Request {
	clone := req.Clone(req.Context())
	value := token
	if t.Scheme != "" {
		value = t.Scheme + " " + token
	}
	clone.Header.Set("Authorization", value)
	return clone
}

func (t *TokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	token, err := t.currentToken(req.Context())
	if err != nil {
		return nil, err
	}

	resp, err := t.base().RoundTrip(t.authorize(req, token))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	// The request body is gone after the first attempt unless it can be
	// rewound.
	if req.Body != nil && req.GetBody == nil {
		return resp, nil
	}

	t.Logger.Warn().
		Str("url", req.URL.Path).
		Msg("Auth token rejected, retrying once with a fresh token")
	t.invalidate(token)
	resp.Body.Close()

	token, err = t.currentToken(req.Context())
	if err != nil {
		return nil, err
	}
	retry := t.authorize(req, token)
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}
	return t.base().RoundTrip(retry)
}
