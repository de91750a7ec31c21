package authsdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/sync/errgroup"

	"github.com/aussiebroadwan/spaauth/pkg/httpx"
)

// HTTPRequest sends one request, attaching the access token unless
// cfg.SkipToken is set. Token-bearing requests must target the identity
// server or a configured resource server. Non-2xx responses are returned as
// *HTTPError.
//
// While the HTTP handler is enabled the request fires HookHTTPRequestStart,
// then HookHTTPRequestSuccess or HookHTTPRequestError, then
// HookHTTPRequestFinish.
func (c *Client) HTTPRequest(ctx context.Context, cfg HTTPRequestConfig) (*HTTPResponse, error) {
	rt, err := c.current()
	if err != nil {
		return nil, err
	}

	hooks := c.handlerEnabled.Load()
	if hooks {
		c.hooks.fire(HookHTTPRequestStart, cfg)
		defer c.hooks.fire(HookHTTPRequestFinish, nil)
	}

	resp, err := c.do(ctx, rt, cfg)
	if hooks {
		if err != nil {
			c.hooks.fire(HookHTTPRequestError, err)
		} else {
			c.hooks.fire(HookHTTPRequestSuccess, resp)
		}
	}
	return resp, err
}

// HTTPRequestAll sends the requests concurrently and returns the responses
// in the same order. The first failure cancels the rest and is returned.
// Hooks fire once for the whole batch: HookHTTPRequestStart with the
// configs, HookHTTPRequestSuccess with the responses.
func (c *Client) HTTPRequestAll(ctx context.Context, cfgs []HTTPRequestConfig) ([]*HTTPResponse, error) {
	rt, err := c.current()
	if err != nil {
		return nil, err
	}

	hooks := c.handlerEnabled.Load()
	if hooks {
		c.hooks.fire(HookHTTPRequestStart, cfgs)
		defer c.hooks.fire(HookHTTPRequestFinish, nil)
	}

	out := make([]*HTTPResponse, len(cfgs))
	g, gctx := errgroup.WithContext(ctx)
	for i, cfg := range cfgs {
		g.Go(func() error {
			resp, err := c.do(gctx, rt, cfg)
			if err != nil {
				return err
			}
			out[i] = resp
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if hooks {
			c.hooks.fire(HookHTTPRequestError, err)
		}
		return nil, err
	}

	if hooks {
		c.hooks.fire(HookHTTPRequestSuccess, out)
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, rt *runtime, cfg HTTPRequestConfig) (*HTTPResponse, error) {
	req, err := newRequest(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if !cfg.SkipToken && req.Header.Get("Authorization") == "" {
		if !httpx.OriginAllowList(rt.cfg.resourceOrigins()...)(req.URL) {
			return nil, fmt.Errorf("%w: %s", ErrURLNotAllowed, redact(req.URL))
		}
		tok, err := c.validToken(ctx)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	start := c.now()
	resp, err := rt.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &HTTPError{
			Method:     req.Method,
			URL:        redact(req.URL),
			StatusCode: resp.StatusCode,
			Body:       body,
		}
	}

	return &HTTPResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       body,
		Duration:   c.now().Sub(start),
	}, nil
}

func newRequest(ctx context.Context, cfg HTTPRequestConfig) (*http.Request, error) {
	method := cfg.Method
	if method == "" {
		method = http.MethodGet
	}

	var body io.Reader
	contentType := ""
	switch {
	case cfg.JSON != nil:
		data, err := json.Marshal(cfg.JSON)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	case cfg.Body != nil:
		body = bytes.NewReader(cfg.Body)
	}

	req, err := http.NewRequestWithContext(ctx, method, cfg.URL, body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range cfg.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

func redact(u *url.URL) string {
	c := *u
	c.RawQuery = ""
	c.User = nil
	return c.String()
}
