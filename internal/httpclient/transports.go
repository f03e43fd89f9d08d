package httpclient

import (
	"net/http"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// LoggingTransport logs every request with its status and duration.
type LoggingTransport struct {
	Base   http.RoundTripper
	Logger arbor.ILogger
}

func (t *LoggingTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *LoggingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base().RoundTrip(req)
	elapsed := time.Since(start)

	if err != nil {
		t.Logger.Warn().
			Err(err).
			Str("method", req.Method).
			Str("url", req.URL.String()).
			Str("elapsed", elapsed.String()).
			Msg("HTTP request failed")
		return nil, err
	}

	t.Logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Str("elapsed", elapsed.String()).
		Msg("HTTP request")
	return resp, nil
}

// RateLimitTransport delays requests to honor a request budget.
type RateLimitTransport struct {
	Base    http.RoundTripper
	Limiter *rate.Limiter
}

func (t *RateLimitTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *RateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Limiter != nil {
		if err := t.Limiter.Wait(req.Context()); err != nil {
			return nil, err
		}
	}
	return t.base().RoundTrip(req)
}

// BasicAuthTransport adds HTTP basic auth credentials to every request.
type BasicAuthTransport struct {
	Base     http.RoundTripper
	Username string
	Password string
}

func (t *BasicAuthTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *BasicAuthTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	clone.SetBasicAuth(t.Username, t.Password)
	return t.base().RoundTrip(clone)
}

// ImpersonateTransport adds an impersonation header so queries run as a
// configured user instead of the service account.
type ImpersonateTransport struct {
	Base   http.RoundTripper
	Header string
	User   string
}

func (t *ImpersonateTransport) base() http.RoundTripper {
	if t.Base != nil {
		return t.Base
	}
	return http.DefaultTransport
}

func (t *ImpersonateTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.User != "" {
		clone := req.Clone(req.Context())
		header := t.Header
		if header == "" {
			header = "X-Impersonate-User"
		}
		clone.Header.Set(header, t.User)
		req = clone
	}
	return t.base().RoundTrip(req)
}
