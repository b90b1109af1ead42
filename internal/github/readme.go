package github

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/cenkalti/backoff/v4"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

// FetchReadme loads the repository's public page and returns the text of
// its #readme element. A page without one yields (nil, nil). Transport
// errors, 429 and 5xx are retried until the README retry budget is spent;
// other 4xx replies fail immediately.
func (c *Client) FetchReadme(ctx context.Context, hit models.SearchHit) (*models.RepoReadme, error) {
	const op = "github.FetchReadme"
	pageURL := c.webURL + "/" + hit.FullName

	var doc *goquery.Document
	attempt := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Accept", "text/html")
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("executing request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK {
			_, _ = io.Copy(io.Discard, resp.Body)
			se := &StatusError{StatusCode: resp.StatusCode}
			if se.clientError() && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(se)
			}
			return se
		}

		d, err := goquery.NewDocumentFromReader(resp.Body)
		if err != nil {
			return fmt.Errorf("parsing page: %w", err)
		}
		doc = d
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.RetryInterval
	b.MaxElapsedTime = c.readmeTTL

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("retrying README fetch", "repo", hit.FullName, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(attempt, backoff.WithContext(b, ctx), notify); err != nil {
		kind := models.KindTransientNetwork
		var se *StatusError
		if errors.As(err, &se) && se.clientError() && se.StatusCode != http.StatusTooManyRequests {
			kind = models.KindPermanentExternal
		}
		return nil, models.NewError(kind, op, fmt.Errorf("fetching %s: %w", hit.FullName, err))
	}

	text, ok := readmeText(doc)
	if !ok {
		return nil, nil
	}
	return &models.RepoReadme{SearchHit: hit, ReadmeText: text}, nil
}

// readmeText extracts the #readme container with runs of whitespace
// collapsed.
func readmeText(doc *goquery.Document) (string, bool) {
	sel := doc.Find("#readme").First()
	if sel.Length() == 0 {
		return "", false
	}
	return strings.Join(strings.Fields(sel.Text()), " "), true
}
