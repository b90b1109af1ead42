// Package semanticscholar looks papers up in the Semantic Scholar Graph API.
package semanticscholar

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

const (
	DefaultAPIURL = "https://api.semanticscholar.org"
	paperFields   = "paperId,title,authors,abstract"
	paperPageURL  = "https://www.semanticscholar.org/paper/"
)

type Client struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	logger      *slog.Logger
	maxAttempts int

	// RetryInterval is the first delay between rate-limited attempts.
	RetryInterval time.Duration
}

type Option func(*Client)

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

func WithMaxAttempts(n int) Option {
	return func(c *Client) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewClient returns a client for baseURL (DefaultAPIURL when empty). apiKey
// is optional.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultAPIURL
	}
	c := &Client{
		baseURL:       strings.TrimSuffix(baseURL, "/"),
		apiKey:        apiKey,
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		logger:        slog.Default(),
		maxAttempts:   5,
		RetryInterval: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type paperResponse struct {
	PaperID  string  `json:"paperId"`
	Title    string  `json:"title"`
	Abstract *string `json:"abstract"`
	Authors  []struct {
		AuthorID *string `json:"authorId"`
		Name     string  `json:"name"`
	} `json:"authors"`
}

type statusError struct {
	code int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("Semantic Scholar returned HTTP %d", e.code)
}

// GetPaper resolves query (see Identifier) to paper details. Unknown papers
// fail with a NotFound error; malformed identifiers with InvalidInput.
func (c *Client) GetPaper(ctx context.Context, query string) (models.PaperDetails, error) {
	const op = "semanticscholar.GetPaper"

	id, err := Identifier(query)
	if err != nil {
		return models.PaperDetails{}, err
	}
	c.logger.Info("looking up paper", "id", id)

	reqURL := c.baseURL + "/graph/v1/paper/" + escapeID(id) + "?fields=" + url.QueryEscape(paperFields)

	var body []byte
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "application/json")
		if c.apiKey != "" {
			req.Header.Set("x-api-key", c.apiKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("executing request: %w", err))
		}
		defer func() { _ = resp.Body.Close() }()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading response: %w", err)
		}
		switch {
		case resp.StatusCode == http.StatusOK:
			body = b
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return &statusError{code: resp.StatusCode}
		default:
			return backoff.Permanent(&statusError{code: resp.StatusCode})
		}
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)
	if err := backoff.Retry(attempt, policy); err != nil {
		var se *statusError
		if errors.As(err, &se) {
			switch {
			case se.code == http.StatusNotFound:
				return models.PaperDetails{}, models.Errorf(models.KindNotFound, op, "no paper found for %q", query)
			case se.code == http.StatusBadRequest:
				return models.PaperDetails{}, models.NewError(models.KindInvalidInput, op, err)
			case se.code == http.StatusTooManyRequests || se.code >= 500:
				return models.PaperDetails{}, models.NewError(models.KindTransientNetwork, op, err)
			}
		}
		return models.PaperDetails{}, models.NewError(models.KindTransientNetwork, op, err)
	}

	return decodePaper(body, query)
}

func decodePaper(body []byte, query string) (models.PaperDetails, error) {
	const op = "semanticscholar.GetPaper"

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return models.PaperDetails{}, models.NewError(models.KindPermanentExternal, op, fmt.Errorf("parsing response: %w", err))
	}
	if len(raw) == 0 {
		return models.PaperDetails{}, models.Errorf(models.KindNotFound, op, "no paper found for %q", query)
	}

	var pr paperResponse
	if err := json.Unmarshal(body, &pr); err != nil {
		return models.PaperDetails{}, models.NewError(models.KindPermanentExternal, op, fmt.Errorf("parsing response: %w", err))
	}

	paper := models.PaperDetails{
		Title:            pr.Title,
		Authors:          make([]models.AuthorDetails, 0, len(pr.Authors)),
		ExternalMetadata: raw,
	}
	if pr.PaperID != "" {
		paper.URL = paperPageURL + pr.PaperID
	}
	if pr.Abstract != nil {
		paper.Abstract = *pr.Abstract
	}
	for _, a := range pr.Authors {
		paper.Authors = append(paper.Authors, models.AuthorDetails{NameParts: strings.Fields(a.Name)})
	}
	return paper, nil
}

// escapeID path-escapes id but keeps the slashes DOIs and URLs rely on.
func escapeID(id string) string {
	return strings.ReplaceAll(url.PathEscape(id), "%2F", "/")
}
