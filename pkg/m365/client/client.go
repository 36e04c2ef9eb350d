package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/praetorian-inc/tenantscan/version"
)

const (
	DefaultBaseURL      = "https://graph.microsoft.com/v1.0"
	DefaultMaxRetries   = 5
	DefaultInitialDelay = time.Second
	DefaultTimeout      = 60 * time.Second
)

// GraphScope is the client-credential scope for Microsoft Graph.
var GraphScope = []string{"https://graph.microsoft.com/.default"}

// Config tunes a Client. Zero values fall back to the package defaults.
type Config struct {
	BaseURL           string
	MaxRetries        int
	InitialDelay      time.Duration
	RequestsPerSecond float64
	Timeout           time.Duration
}

// Client performs authenticated JSON requests against one API family with
// throttling-aware retries.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	credential   azcore.TokenCredential
	scopes       []string
	limiter      *rate.Limiter
	maxRetries   int
	initialDelay time.Duration
	logger       *slog.Logger

	sleep func(context.Context, time.Duration) error
	now   func() time.Time
}

// Request describes a single call. Path may be relative to the base URL or an
// absolute URL.
type Request struct {
	Method  string
	Path    string
	Body    any
	Headers map[string]string
}

// Response is a successful (2xx) reply with its body fully read.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// New builds a Client that obtains bearer tokens from cred for scopes.
func New(cred azcore.TokenCredential, scopes []string, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		credential:   cred,
		scopes:       scopes,
		maxRetries:   cfg.MaxRetries,
		initialDelay: cfg.InitialDelay,
		logger:       logger,
		sleep:        sleepWithContext,
		now:          time.Now,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultBaseURL
	}
	if c.maxRetries <= 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.initialDelay <= 0 {
		c.initialDelay = DefaultInitialDelay
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c.httpClient = &http.Client{Timeout: timeout}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return c
}

// NewWithToken builds a Client that sends a fixed, caller-supplied bearer token.
func NewWithToken(token string, cfg Config, logger *slog.Logger) *Client {
	return New(StaticToken(token), nil, cfg, logger)
}

// BaseURL returns the prefix relative paths are resolved against.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Resolve turns a relative path into an absolute URL.
func (c *Client) Resolve(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Relative strips the base URL from an absolute link. Links on other hosts
// are returned unchanged.
func (c *Client) Relative(link string) string {
	if rest, ok := strings.CutPrefix(link, c.baseURL); ok {
		if rest == "" {
			return "/"
		}
		return rest
	}
	return link
}

// Do sends req, retrying on 429 and 5xx with exponential backoff. A
// Retry-After header on a retryable response replaces the computed delay for
// that attempt. Transport errors are returned immediately.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	target := c.Resolve(req.Path)

	var payload []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = b
	}

	delay := c.initialDelay
	for attempt := 0; ; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, err := c.send(ctx, method, target, payload, req.Headers)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}
		if !retryable(resp.StatusCode) {
			return nil, &APIError{Target: target, StatusCode: resp.StatusCode, Body: truncate(resp.Body, 512)}
		}
		if attempt >= c.maxRetries {
			return nil, &RequestExhaustedError{Target: target, Retries: c.maxRetries, LastStatus: resp.StatusCode}
		}

		wait := delay
		if ra, ok := retryAfter(resp.Header, c.now()); ok {
			wait = ra
		}
		c.logger.Warn("Request throttled, retrying",
			"url", target,
			"status", resp.StatusCode,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"delay", wait)

		if err := c.sleep(ctx, wait); err != nil {
			return nil, err
		}
		delay *= 2
	}
}

func (c *Client) send(ctx context.Context, method, target string, payload []byte, headers map[string]string) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	token, err := c.credential.GetToken(ctx, policy.TokenRequestOptions{Scopes: c.scopes})
	if err != nil {
		return nil, fmt.Errorf("failed to acquire access token: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token.Token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("client-request-id", uuid.NewString())
	req.Header.Set("User-Agent", version.UserAgent())
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

// GetJSON issues a GET and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, path string, headers map[string]string, out any) error {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Headers: headers})
	if err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// GetRaw issues a GET and returns the body bytes as-is.
func (c *Client) GetRaw(ctx context.Context, path string, headers map[string]string) ([]byte, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Headers: headers})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func truncate(b []byte, n int) string {
	s := strings.TrimSpace(string(b))
	if len(s) > n {
		return s[:n] + "..."
	}
	return s
}
