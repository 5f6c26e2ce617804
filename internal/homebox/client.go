// Package homebox is a typed client for the HomeBox inventory API. All JSON
// is decoded into wire structs at this boundary; callers only ever see
// domain types.
package homebox

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"snapshelf/internal/retry"
)

// ErrNotAuthorized is returned by every operation after a failed login until
// Login is called again.
var ErrNotAuthorized = errors.New("not authorized to inventory service")

// maxErrorLen caps the LastError diagnostic string.
const maxErrorLen = 500

const apiPrefix = "/api/v1"

// Config carries connection settings for the inventory service. Either a
// pre-issued Token or Username/Password must be set.
type Config struct {
	BaseURL  string
	Token    string
	Username string
	Password string
	Timeout  time.Duration
	Retry    retry.Policy
}

type Client struct {
	api        string
	username   string
	password   string
	httpClient *http.Client
	policy     retry.Policy
	logger     *slog.Logger

	// authMu serializes the read-check-login-write sequence so concurrent
	// unauthenticated calls produce exactly one login.
	authMu   sync.Mutex
	token    string // full Authorization header value
	loginErr error  // sticky login failure, cleared only by Login

	errMu   sync.Mutex
	lastErr string
}

func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	c := &Client{
		api:        strings.TrimRight(cfg.BaseURL, "/") + apiPrefix,
		username:   cfg.Username,
		password:   cfg.Password,
		httpClient: &http.Client{Timeout: timeout},
		policy:     cfg.Retry,
		logger:     logger,
	}
	if cfg.Token != "" {
		c.token = bearerValue(cfg.Token)
	}
	return c
}

// bearerValue normalizes a raw token into an Authorization header value,
// leaving tokens that already carry the prefix untouched.
func bearerValue(token string) string {
	if strings.HasPrefix(token, "Bearer ") {
		return token
	}
	return "Bearer " + token
}

// LastError returns the most recent remote failure diagnostic, truncated to
// 500 characters. It is sticky until the next failure overwrites it.
func (c *Client) LastError() string {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.lastErr
}

func (c *Client) setLastError(msg string) {
	if r := []rune(msg); len(r) > maxErrorLen {
		msg = string(r[:maxErrorLen])
	}
	c.errMu.Lock()
	c.lastErr = msg
	c.errMu.Unlock()
}

// Login authenticates with the configured credentials and caches the token.
// It also clears a previously cached login failure, so it doubles as the
// explicit retry path after startup problems.
func (c *Client) Login(ctx context.Context) error {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	c.loginErr = nil
	token, err := c.login(ctx)
	if err != nil {
		c.loginErr = err
		return err
	}
	c.token = bearerValue(token)
	return nil
}

// ensureAuthorized returns the Authorization header value, performing the
// one-time login when no token is cached yet. After a failed login every
// call fails fast here instead of hammering the login endpoint.
func (c *Client) ensureAuthorized(ctx context.Context) (string, error) {
	c.authMu.Lock()
	defer c.authMu.Unlock()
	if c.token != "" {
		return c.token, nil
	}
	if c.loginErr != nil {
		return "", fmt.Errorf("%w: login previously failed: %v", ErrNotAuthorized, c.loginErr)
	}
	if c.username == "" {
		c.loginErr = errors.New("no token or credentials configured")
		return "", fmt.Errorf("%w: %v", ErrNotAuthorized, c.loginErr)
	}
	token, err := c.login(ctx)
	if err != nil {
		c.loginErr = err
		return "", fmt.Errorf("%w: %v", ErrNotAuthorized, err)
	}
	c.token = bearerValue(token)
	c.logger.Info("logged in to inventory service")
	return c.token, nil
}

func (c *Client) login(ctx context.Context) (string, error) {
	form := url.Values{
		"username": {c.username},
		"password": {c.password},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.api+"/users/login", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("failed to create login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call login: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		detail := readBodySnippet(resp.Body)
		c.setLastError(fmt.Sprintf("login: status %d: %s", resp.StatusCode, detail))
		return "", fmt.Errorf("login returned status %d", resp.StatusCode)
	}

	var body loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	if body.Token == "" {
		return "", errors.New("login response contained no token")
	}
	return body.Token, nil
}

// StatusError reports a non-matching HTTP status from the remote store.
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Detail     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s returned status %d", e.Method, e.Path, e.StatusCode)
}

// call runs one remote operation through the retry executor. A fresh request
// is built per attempt so bodies are re-sent intact.
func (c *Client) call(ctx context.Context, label, method, path string, query url.Values, body, out any, want int) error {
	return retry.Run(ctx, c.logger, c.policy, label, func(ctx context.Context) error {
		return c.request(ctx, method, path, query, body, out, want)
	})
}

// request performs a single authorized exchange. want==0 accepts any 2xx.
// Transport failures bubble up for the executor to retry; a response with
// the wrong status fails immediately, whatever the code.
func (c *Client) request(ctx context.Context, method, path string, query url.Values, body, out any, want int) error {
	auth, err := c.ensureAuthorized(ctx)
	if err != nil {
		return err
	}

	var rd io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(payload)
	}

	u := c.api + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", auth)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.setLastError(fmt.Sprintf("%s %s: %v", method, path, err))
		return fmt.Errorf("failed to call %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if !statusMatches(resp.StatusCode, want) {
		detail := readBodySnippet(resp.Body)
		c.setLastError(fmt.Sprintf("%s %s: status %d: %s", method, path, resp.StatusCode, detail))
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Detail: detail}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func statusMatches(code, want int) bool {
	if want == 0 {
		return code >= 200 && code < 300
	}
	return code == want
}

func readBodySnippet(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
