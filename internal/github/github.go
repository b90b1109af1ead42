// Package github searches GitHub for repositories and reads their rendered
// READMEs.
package github

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	DefaultAPIURL = "https://api.github.com"
	DefaultWebURL = "https://github.com"
	userAgent     = "papers-without-code"
)

// Client wraps the REST search endpoint and the public repository pages.
type Client struct {
	token      string
	apiURL     string
	webURL     string
	httpClient *http.Client
	logger     *slog.Logger

	pageSize    int
	maxAttempts int
	readmeTTL   time.Duration

	// RetryInterval is the first backoff delay; later delays grow
	// exponentially.
	RetryInterval time.Duration
}

type Option func(*Client)

func WithAPIURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.apiURL = strings.TrimSuffix(u, "/")
		}
	}
}

func WithWebURL(u string) Option {
	return func(c *Client) {
		if u != "" {
			c.webURL = strings.TrimSuffix(u, "/")
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPageSize sets per_page on every search request.
func WithPageSize(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

// WithMaxAttempts bounds how many times a search is tried on 4xx replies.
func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithReadmeRetryBudget bounds the total time spent retrying one README.
func WithReadmeRetryBudget(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.readmeTTL = d
		}
	}
}

// NewClient returns a client for api.github.com. token may be empty, at the
// cost of a much lower search rate limit.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		token:         token,
		apiURL:        DefaultAPIURL,
		webURL:        DefaultWebURL,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        slog.Default(),
		pageSize:      10,
		maxAttempts:   5,
		readmeTTL:     60 * time.Second,
		RetryInterval: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("GitHub returned %d", e.StatusCode)
	}
	return fmt.Sprintf("GitHub returned %d: %s", e.StatusCode, e.Body)
}

func (e *StatusError) clientError() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func (c *Client) addAPIHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("User-Agent", userAgent)
}
