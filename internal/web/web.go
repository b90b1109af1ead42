// Package web serves the search form and the JSON endpoint the result page
// polls for ranked repositories.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

//go:embed templates/*.html
var templatesFS embed.FS

const (
	pageIndex           = "index.html"
	pageSearchSuccess   = "search-success.html"
	pageSearchNotFound  = "search-not-found.html"
	pageProcessingError = "processing-error.html"

	processingErrorPath = "/processing-error"
)

// Service is what the handlers need from the pipeline.
type Service interface {
	LookupPaper(ctx context.Context, query string) (models.PaperDetails, error)
	Search(ctx context.Context, query string) ([]models.RankedRepo, error)
}

type Handler struct {
	svc    Service
	pages  map[string]*template.Template
	logger *slog.Logger
}

type Option func(*Handler)

func WithLogger(logger *slog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

func NewHandler(svc Service, opts ...Option) (*Handler, error) {
	h := &Handler{
		svc:    svc,
		pages:  make(map[string]*template.Template),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}

	for _, name := range []string{pageIndex, pageSearchSuccess, pageSearchNotFound, pageProcessingError} {
		tmpl, err := template.ParseFS(templatesFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		h.pages[name] = tmpl
	}
	return h, nil
}

// Register mounts every route on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/", h.index)
	r.Post("/", h.submit)
	r.Get("/search/:q", h.search)
	r.Post("/search/:q", h.submit)
	r.Post("/process", h.process)
	r.Get(processingErrorPath, h.processingError)
}

// NewApp returns a fiber app with request logging and the handler's routes.
func NewApp(h *Handler) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "papers-without-code",
		DisableStartupMessage: true,
		ReadTimeout:           30 * time.Second,
		// Ranking a paper can take a couple of minutes.
		WriteTimeout: 5 * time.Minute,
	})
	app.Use(h.logRequests)
	h.Register(app)
	return app
}

func (h *Handler) logRequests(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()
	status := c.Response().StatusCode()
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
	}
	h.logger.Info("request",
		"method", c.Method(),
		"path", c.Path(),
		"status", status,
		"duration", time.Since(start),
	)
	return err
}

type page struct {
	Query    string
	Title    string
	PaperURL string
}

func (h *Handler) render(c *fiber.Ctx, status int, name string, data page) error {
	var buf bytes.Buffer
	if err := h.pages[name].ExecuteTemplate(&buf, "base", data); err != nil {
		return fmt.Errorf("rendering %s: %w", name, err)
	}
	c.Type("html", "utf-8")
	return c.Status(status).Send(buf.Bytes())
}

func (h *Handler) index(c *fiber.Ctx) error {
	return h.render(c, fiber.StatusOK, pageIndex, page{})
}

func (h *Handler) submit(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.FormValue("search"))
	if q == "" {
		return c.Redirect("/", fiber.StatusSeeOther)
	}
	return c.Redirect("/search/"+escapeQuery(q), fiber.StatusSeeOther)
}

func (h *Handler) search(c *fiber.Ctx) error {
	query := unescapeQuery(c.Params("q"))

	paper, err := h.svc.LookupPaper(c.UserContext(), query)
	switch {
	case errors.Is(err, models.ErrNotFound), errors.Is(err, models.ErrInvalidInput):
		h.logger.Info("paper not found", "query", query, "error", err)
		return h.render(c, fiber.StatusNotFound, pageSearchNotFound, page{Query: query})
	case err != nil:
		h.logger.Error("paper lookup failed", "query", query, "error", err)
		return c.Redirect(processingErrorPath, fiber.StatusSeeOther)
	}

	return h.render(c, fiber.StatusOK, pageSearchSuccess, page{
		Query:    query,
		Title:    paper.Title,
		PaperURL: paper.URL,
	})
}

type processRequest struct {
	Query string `json:"query"`
}

func (h *Handler) process(c *fiber.Ctx) error {
	if !strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON) {
		return fiber.NewError(fiber.StatusUnsupportedMediaType, "Content-Type must be application/json")
	}

	var req processRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid JSON body")
	}
	if strings.TrimSpace(req.Query) == "" {
		return fiber.NewError(fiber.StatusBadRequest, "query is required")
	}

	repos, err := h.svc.Search(c.UserContext(), req.Query)
	if err != nil {
		h.logger.Error("search failed", "query", req.Query, "error", err)
		return c.Redirect(processingErrorPath, fiber.StatusSeeOther)
	}
	if repos == nil {
		repos = []models.RankedRepo{}
	}
	return c.JSON(repos)
}

func (h *Handler) processingError(c *fiber.Ctx) error {
	return h.render(c, fiber.StatusOK, pageProcessingError, page{})
}

// Identifiers carry slashes and colons, which would otherwise split or
// confuse the /search/:q path segment.
var (
	queryEscaper   = strings.NewReplacer("/", "&#47;", ":", "&#58;")
	queryUnescaper = strings.NewReplacer("&#47;", "/", "&#58;", ":")
)

func escapeQuery(q string) string {
	return url.PathEscape(queryEscaper.Replace(q))
}

func unescapeQuery(raw string) string {
	if s, err := url.PathUnescape(raw); err == nil {
		raw = s
	}
	return queryUnescaper.Replace(raw)
}
