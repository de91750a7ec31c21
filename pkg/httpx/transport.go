// Package httpx provides the outbound http.RoundTripper middleware used by
// the SDK's HTTP client: bearer injection, request ids, rate limiting and
// request logging.
package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/aussiebroadwan/spaauth/pkg/idx"
	"github.com/aussiebroadwan/spaauth/pkg/slogx"
)

// Middleware wraps a RoundTripper.
type Middleware func(http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// Chain wraps base with middlewares. The first middleware is the outermost.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	for i := len(mws) - 1; i >= 0; i-- {
		base = mws[i](base)
	}
	return base
}

// TokenFunc returns the access token to attach to a request. An empty token
// means the request goes out unauthenticated.
type TokenFunc func(ctx context.Context) (string, error)

// Bearer attaches "Authorization: Bearer <token>" to requests whose URL
// passes allow. Requests that already carry an Authorization header are left
// alone.
func Bearer(token TokenFunc, allow func(*url.URL) bool) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			if r.Header.Get("Authorization") != "" || (allow != nil && !allow(r.URL)) {
				return next.RoundTrip(r)
			}

			tok, err := token(r.Context())
			if err != nil {
				return nil, err
			}
			if tok == "" {
				return next.RoundTrip(r)
			}

			r = r.Clone(r.Context())
			r.Header.Set("Authorization", "Bearer "+tok)
			return next.RoundTrip(r)
		})
	}
}

// RequestID sets X-Request-ID on outgoing requests when the caller has not
// and attaches a req_id scoped logger (derived from base unless the context
// already carries one) to the request context.
func RequestID(base *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = idx.New().String()
			}

			ctx := slogx.WithContext(r.Context(), slogx.FromContextOr(r.Context(), base).With("req_id", reqID))
			r = r.Clone(ctx)
			r.Header.Set("X-Request-ID", reqID)
			return next.RoundTrip(r)
		})
	}
}

// Logging logs one line per request at debug level, and failures at warn.
// The logger from the request context wins over base when present.
func Logging(base *slog.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			logger := slogx.FromContextOr(r.Context(), base)

			start := time.Now()
			resp, err := next.RoundTrip(r)
			duration := time.Since(start).Milliseconds()

			if err != nil {
				logger.Warn("http_client_request_failed",
					"method", r.Method,
					"url", redactURL(r.URL),
					"duration_ms", duration,
					"err", err,
				)
				return nil, err
			}

			logger.Debug("http_client_request",
				"method", r.Method,
				"url", redactURL(r.URL),
				"status", resp.StatusCode,
				"duration_ms", duration,
			)
			return resp, nil
		})
	}
}

// OriginAllowList returns a predicate matching URLs that share scheme and
// host with one of origins. An empty list allows every URL.
func OriginAllowList(origins ...string) func(*url.URL) bool {
	allowed := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		u, err := url.Parse(strings.TrimSpace(o))
		if err != nil || u.Host == "" {
			continue
		}
		allowed[strings.ToLower(u.Scheme+"://"+u.Host)] = struct{}{}
	}

	return func(u *url.URL) bool {
		if len(allowed) == 0 {
			return true
		}
		_, ok := allowed[strings.ToLower(u.Scheme+"://"+u.Host)]
		return ok
	}
}

// ParseSpaceDelimitedFields splits a space-delimited string into fields.
// Returns nil if the input is empty or whitespace.
func ParseSpaceDelimitedFields(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}

func redactURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}
