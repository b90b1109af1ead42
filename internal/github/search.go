package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

type searchResponse struct {
	Items []searchItem `json:"items"`
}

type searchItem struct {
	FullName        string  `json:"full_name"`
	Fork            bool    `json:"fork"`
	StargazersCount int     `json:"stargazers_count"`
	Forks           int     `json:"forks"`
	WatchersCount   int     `json:"watchers_count"`
	Description     *string `json:"description"`
}

// QueryString is the q parameter sent for a query. Exact-phrase queries are
// wrapped in double quotes.
func QueryString(q models.SearchQuery) string {
	if q.ExactPhrase {
		return `"` + q.Text + `"`
	}
	return q.Text
}

// SearchRepositories runs one page of /search/repositories. Forks are
// dropped and each repository appears once. 4xx replies (rate limits
// included) are retried with exponential backoff up to the configured
// number of attempts; any other failure is returned at once.
func (c *Client) SearchRepositories(ctx context.Context, q models.SearchQuery) ([]models.SearchHit, error) {
	const op = "github.SearchRepositories"

	u, err := url.Parse(c.apiURL + "/search/repositories")
	if err != nil {
		return nil, models.NewError(models.KindInvalidInput, op, err)
	}
	params := url.Values{}
	params.Set("q", QueryString(q))
	params.Set("per_page", strconv.Itoa(c.pageSize))
	u.RawQuery = params.Encode()

	var (
		resp      searchResponse
		permanent bool
	)
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			permanent = true
			return backoff.Permanent(err)
		}
		c.addAPIHeaders(req)

		err = c.doJSON(req, &resp)
		var se *StatusError
		if errors.As(err, &se) && se.clientError() {
			return err
		}
		if err != nil {
			permanent = true
			return backoff.Permanent(err)
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxAttempts-1)), ctx)

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying repository search", "query", q.Text, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(attempt, policy, notify); err != nil {
		kind := models.KindTransientNetwork
		if permanent {
			kind = models.KindPermanentExternal
		}
		return nil, models.NewError(kind, op, fmt.Errorf("searching %q: %w", q.Text, err))
	}

	return hitsFromItems(resp.Items, q.Text), nil
}

func hitsFromItems(items []searchItem, query string) []models.SearchHit {
	seen := make(map[string]bool, len(items))
	hits := make([]models.SearchHit, 0, len(items))
	for _, item := range items {
		if item.Fork || item.FullName == "" || seen[item.FullName] {
			continue
		}
		seen[item.FullName] = true
		hits = append(hits, models.SearchHit{
			FullName:         item.FullName,
			Stars:            item.StargazersCount,
			Forks:            item.Forks,
			Watchers:         item.WatchersCount,
			Description:      item.Description,
			OriginatingQuery: query,
		})
	}
	return hits
}

func (c *Client) doJSON(req *http.Request, v any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 200)}
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("parsing response: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
