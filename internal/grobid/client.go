package grobid

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

// Client calls a running GROBID server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type ClientOption func(*Client)

func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var fulltextParams = map[string]string{
	"consolidateHeader":      "1",
	"consolidateCitations":   "0",
	"includeRawCitations":    "0",
	"includeRawAffiliations": "0",
	"segmentSentences":       "0",
	"generateIDs":            "0",
}

// ProcessPDF sends one PDF through processFulltextDocument and parses the
// resulting TEI.
func (c *Client) ProcessPDF(ctx context.Context, path string) (models.PaperDetails, error) {
	const op = "grobid.ProcessPDF"

	abs, err := filepath.Abs(path)
	if err != nil {
		return models.PaperDetails{}, models.NewError(models.KindInvalidInput, op, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return models.PaperDetails{}, models.Errorf(models.KindInvalidInput, op, "provided file does not exist: %s", abs)
	}
	if info.IsDir() {
		return models.PaperDetails{}, models.Errorf(models.KindInvalidInput, op, "parsing only supports single files, got directory: %s", abs)
	}

	body, contentType, err := multipartBody(abs)
	if err != nil {
		return models.PaperDetails{}, models.NewError(models.KindInvalidInput, op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/processFulltextDocument", body)
	if err != nil {
		return models.PaperDetails{}, models.NewError(models.KindPermanentExternal, op, err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/xml")

	c.logger.Info("parsing PDF, this can take up to a minute", "path", abs)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.PaperDetails{}, models.NewError(models.KindPermanentExternal, op, fmt.Errorf("calling GROBID: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return models.PaperDetails{}, models.Errorf(models.KindPermanentExternal, op,
			"processing failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	paper, err := ParseTEI(resp.Body)
	if err != nil {
		return models.PaperDetails{}, models.NewError(models.KindPermanentExternal, op, err)
	}
	return paper, nil
}

func multipartBody(path string) (io.Reader, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = f.Close() }()

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("input", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, "", fmt.Errorf("reading %s: %w", path, err)
	}
	for k, v := range fulltextParams {
		if err := w.WriteField(k, v); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}
