// Package client is a Go adapter for the folio auth endpoints.
//
// The refresh credential lives only in the cookie jar. The access token is kept
// in memory, attached to every call made through Do, and renewed once per
// rejected call. Concurrent renewals are collapsed into a single request.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	refreshTimeout    = 15 * time.Second
	defaultCookieName = "refresh_token"
)

var (
	// ErrUnauthorized is returned when the session cannot be renewed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrReuseDetected is returned when the server revoked the whole session family.
	ErrReuseDetected = errors.New("refresh token reuse detected")
)

// APIError is a non-2xx response carrying the server's stable error key.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth api: %d %s: %s", e.Status, e.Code, e.Message)
}

// User mirrors the public user fields returned by the server.
type User struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	Role        string    `json:"role"`
	CreatedAt   time.Time `json:"created_at"`
}

type tokenResponse struct {
	User            *User     `json:"user,omitempty"`
	AccessToken     string    `json:"access_token"`
	AccessExpiresAt time.Time `json:"access_expires_at"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Client talks to one folio server. It is safe for concurrent use.
type Client struct {
	base       *url.URL
	prefix     string
	cookieName string
	hc         *http.Client

	mu     sync.RWMutex
	access string

	refreshes singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient uses hc instead of a fresh client. A cookie jar is attached when hc has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.hc = hc
		}
	}
}

// WithPathPrefix overrides the auth route prefix (default /api/auth).
func WithPathPrefix(p string) Option {
	return func(c *Client) {
		p = "/" + strings.Trim(strings.TrimSpace(p), "/")
		if p != "/" {
			c.prefix = p
		}
	}
}

// WithRefreshCookieName overrides the refresh cookie name (default refresh_token).
func WithRefreshCookieName(name string) Option {
	return func(c *Client) {
		if name = strings.TrimSpace(name); name != "" {
			c.cookieName = name
		}
	}
}

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(strings.TrimSpace(baseURL), "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute: %q", baseURL)
	}

	c := &Client{
		base:       u,
		prefix:     "/api/auth",
		cookieName: defaultCookieName,
		hc:         &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		c.hc.Jar = jar
	}
	return c, nil
}

// AccessToken returns the current in-memory access token, if any.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.access
}

func (c *Client) setAccess(tok string) {
	c.mu.Lock()
	c.access = tok
	c.mu.Unlock()
}

// Register creates an account and starts a session.
func (c *Client) Register(ctx context.Context, email, password, name string) (User, error) {
	return c.start(ctx, "/register", map[string]string{"email": email, "password": password, "name": name})
}

// Login starts a session.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	return c.start(ctx, "/login", map[string]string{"email": email, "password": password})
}

func (c *Client) start(ctx context.Context, route string, body any) (User, error) {
	var out tokenResponse
	if err := c.post(ctx, route, body, &out); err != nil {
		return User{}, err
	}
	c.setAccess(out.AccessToken)
	if out.User == nil {
		return User{}, errors.New("auth api: response without user")
	}
	return *out.User, nil
}

// Refresh renews the access token using the refresh cookie. Concurrent callers
// share one request and its result.
func (c *Client) Refresh(ctx context.Context) (string, error) {
	ch := c.refreshes.DoChan("refresh", func() (any, error) {
		// Detached so one caller giving up does not fail the others.
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), refreshTimeout)
		defer cancel()

		var out tokenResponse
		if err := c.post(rctx, "/refresh", nil, &out); err != nil {
			c.setAccess("")
			return "", mapRefreshError(err)
		}
		c.setAccess(out.AccessToken)
		return out.AccessToken, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// Logout revokes the refresh credential and forgets the access token.
func (c *Client) Logout(ctx context.Context) error {
	defer c.setAccess("")
	return c.post(ctx, "/logout", nil, nil)
}

// Me returns the identity behind the current session.
func (c *Client) Me(ctx context.Context) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url(c.prefix+"/me"), nil)
	if err != nil {
		return User{}, err
	}
	resp, err := c.Do(req)
	if err != nil {
		return User{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	var out struct {
		User User `json:"user"`
	}
	if err := decode(resp, &out); err != nil {
		return User{}, err
	}
	return out.User, nil
}

// Do sends req with the access token attached. A 401 token_invalid response, or a
// 401 token_required while the jar still holds a refresh cookie, triggers one refresh
// and one retry. The retry needs req.GetBody when req has a body.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	resp, err := c.send(req, c.AccessToken())
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}

	raw, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(raw))
	switch errorCode(raw) {
	case "token_invalid":
	case "token_required":
		if !c.hasRefreshCookie() {
			return resp, nil
		}
	default:
		return resp, nil
	}
	if req.Body != nil && req.Body != http.NoBody && req.GetBody == nil {
		return resp, nil
	}

	tok, err := c.Refresh(req.Context())
	if err != nil {
		return nil, err
	}

	retry := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		retry.Body = body
	}
	return c.send(retry, tok)
}

// hasRefreshCookie reports whether the jar would send a refresh cookie, e.g. after a
// process restart with a persistent jar and no access token in memory.
func (c *Client) hasRefreshCookie() bool {
	u, err := url.Parse(c.url(c.prefix + "/refresh"))
	if err != nil {
		return false
	}
	for _, ck := range c.hc.Jar.Cookies(u) {
		if ck.Name == c.cookieName && ck.Value != "" {
			return true
		}
	}
	return false
}

func (c *Client) send(req *http.Request, tok string) (*http.Response, error) {
	if tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return c.hc.Do(req)
}

func (c *Client) post(ctx context.Context, route string, body, dst any) error {
	var rd io.Reader = http.NoBody
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(c.prefix+route), rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decode(resp, dst)
}

func (c *Client) url(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func decode(resp *http.Response, dst any) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		var eb errorBody
		_ = json.Unmarshal(raw, &eb)
		return &APIError{Status: resp.StatusCode, Code: eb.Error.Code, Message: eb.Error.Message}
	}
	if dst == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func errorCode(raw []byte) string {
	var eb errorBody
	if err := json.Unmarshal(raw, &eb); err != nil {
		return ""
	}
	return eb.Error.Code
}

func mapRefreshError(err error) error {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return err
	}
	switch {
	case apiErr.Code == "token_reuse_detected":
		return fmt.Errorf("%w: %w", ErrReuseDetected, ErrUnauthorized)
	case apiErr.Status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", ErrUnauthorized, apiErr.Code)
	default:
		return err
	}
}
