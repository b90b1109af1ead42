// Package grobid runs a GROBID document-parsing server in a local container
// and turns PDFs into paper details through it.
package grobid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/kevinmichaelchen/papers-without-code/internal/container"
	"github.com/kevinmichaelchen/papers-without-code/internal/models"
)

const (
	DefaultImage  = "lfoppiano/grobid:0.7.2"
	DefaultPort   = 8070
	containerPort = 8070
)

// Server is a handle on the GROBID container. The caller owns its
// lifecycle: SetupOrConnect before use, Teardown (or nothing, to keep it
// warm for the next run) after.
type Server struct {
	rt         container.Runtime
	image      string
	port       int
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger

	// AliveBudget bounds how long SetupOrConnect waits for /api/isalive.
	AliveBudget time.Duration
	// PollInterval is the first delay between liveness checks.
	PollInterval time.Duration

	containerID string
}

type ServerOption func(*Server)

func WithServerLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithBaseURL overrides the address derived from the port.
func WithBaseURL(u string) ServerOption {
	return func(s *Server) {
		s.baseURL = u
	}
}

func WithServerHTTPClient(hc *http.Client) ServerOption {
	return func(s *Server) {
		s.httpClient = hc
	}
}

func NewServer(rt container.Runtime, image string, port int, opts ...ServerOption) *Server {
	if image == "" {
		image = DefaultImage
	}
	if port <= 0 {
		port = DefaultPort
	}
	s := &Server{
		rt:           rt,
		image:        image,
		port:         port,
		baseURL:      "http://127.0.0.1:" + strconv.Itoa(port),
		httpClient:   &http.Client{Timeout: 5 * time.Second},
		logger:       slog.Default(),
		AliveBudget:  90 * time.Second,
		PollInterval: time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Server) URL() string { return s.baseURL }

// ContainerID is the container SetupOrConnect attached to, if any.
func (s *Server) ContainerID() string { return s.containerID }

// SetupOrConnect makes sure a GROBID container is running and answering,
// then returns a client for it. The image is pulled when missing; a running
// container is reused, a stopped one restarted, and otherwise a new one is
// started.
func (s *Server) SetupOrConnect(ctx context.Context, opts ...ClientOption) (*Client, error) {
	const op = "grobid.SetupOrConnect"

	if err := s.ensureContainer(ctx); err != nil {
		return nil, models.NewError(models.KindPermanentExternal, op, err)
	}
	if err := s.waitAlive(ctx); err != nil {
		return nil, models.NewError(models.KindPermanentExternal, op, fmt.Errorf("GROBID at %s never became alive: %w", s.baseURL, err))
	}
	s.logger.Debug("GROBID API available", "url", s.baseURL)

	return NewClient(s.baseURL, append([]ClientOption{WithLogger(s.logger)}, opts...)...), nil
}

func (s *Server) ensureContainer(ctx context.Context) error {
	if s.rt == nil {
		return errors.New("no container runtime")
	}

	if err := s.rt.ImageExists(ctx, s.image); err != nil {
		s.logger.Info("pulling GROBID image, this only happens on first use", "image", s.image)
		if err := s.rt.Pull(ctx, s.image); err != nil {
			return err
		}
	}

	existing, err := s.rt.List(ctx, s.image)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.Running() {
			s.containerID = c.ID
			s.logger.Debug("found running GROBID container", "id", c.ID)
			return nil
		}
	}
	if len(existing) > 0 {
		c := existing[0]
		s.logger.Debug("starting stopped GROBID container", "id", c.ID)
		if err := s.rt.Start(ctx, c.ID); err != nil {
			return err
		}
		s.containerID = c.ID
		return nil
	}

	s.logger.Info("setting up PDF parsing server", "image", s.image, "port", s.port)
	id, err := s.rt.RunDetached(ctx, s.image, s.port, containerPort)
	if err != nil {
		return err
	}
	s.containerID = id
	s.logger.Debug("started GROBID container", "id", id)
	return nil
}

// Alive reports whether /api/isalive answers 200.
func (s *Server) Alive(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/api/isalive", nil)
	if err != nil {
		return false
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()
	return resp.StatusCode == http.StatusOK
}

func (s *Server) waitAlive(ctx context.Context) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.PollInterval
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = s.AliveBudget

	return backoff.Retry(func() error {
		if s.Alive(ctx) {
			return nil
		}
		return errors.New("not alive yet")
	}, backoff.WithContext(b, ctx))
}

// Teardown stops and removes the container this handle attached to.
func (s *Server) Teardown(ctx context.Context) error {
	if s.containerID == "" {
		return nil
	}
	id := s.containerID
	if err := s.rt.Stop(ctx, id); err != nil {
		return err
	}
	if err := s.rt.Remove(ctx, id); err != nil {
		return err
	}
	s.containerID = ""
	s.logger.Info("stopped and removed GROBID container", "id", id)
	return nil
}

// Stop stops every running container of the image.
func (s *Server) Stop(ctx context.Context) error {
	existing, err := s.rt.List(ctx, s.image)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if !c.Running() {
			continue
		}
		if err := s.rt.Stop(ctx, c.ID); err != nil {
			return err
		}
		s.logger.Info("stopped GROBID container", "id", c.ID)
	}
	return nil
}

// Shutdown stops and removes every container of the image.
func (s *Server) Shutdown(ctx context.Context) error {
	existing, err := s.rt.List(ctx, s.image)
	if err != nil {
		return err
	}
	for _, c := range existing {
		if c.Running() {
			if err := s.rt.Stop(ctx, c.ID); err != nil {
				return err
			}
		}
		if err := s.rt.Remove(ctx, c.ID); err != nil {
			return err
		}
		s.logger.Info("stopped and removed GROBID container", "id", c.ID)
	}
	s.containerID = ""
	return nil
}
