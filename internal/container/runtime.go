// Package container drives a local docker or podman binary to manage
// long-running service containers.
package container

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

const (
	binDocker = "docker"
	binPodman = "podman"
)

// Container is one row of `ps -a`.
type Container struct {
	ID    string
	Image string
	State string
}

func (c Container) Running() bool { return c.State == "running" }

// Runtime is the subset of container operations needed to keep a service
// container up.
type Runtime interface {
	Name() string
	Available(ctx context.Context) bool
	ImageExists(ctx context.Context, image string) error
	Pull(ctx context.Context, image string) error

	// List returns all containers, running or not, created from image.
	List(ctx context.Context, image string) ([]Container, error)

	// RunDetached starts a new container publishing hostPort to
	// containerPort and returns its ID.
	RunDetached(ctx context.Context, image string, hostPort, containerPort int) (string, error)

	Start(ctx context.Context, id string) error
	Stop(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
}

// executor abstracts command execution for testing.
type executor interface {
	LookPath(file string) (string, error)
	Run(ctx context.Context, name string, args ...string) error
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type osExecutor struct{}

func (osExecutor) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (osExecutor) Run(ctx context.Context, name string, args ...string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return withStderr(err, stderr.String())
	}
	return nil
}

func (osExecutor) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, withStderr(err, stderr.String())
	}
	return out, nil
}

func withStderr(err error, stderr string) error {
	if s := strings.TrimSpace(stderr); s != "" {
		return fmt.Errorf("%w: %s", err, s)
	}
	return err
}

// runtime implements Runtime for one binary. Docker and podman differ only
// in the binary name and the image check subcommand.
type runtime struct {
	bin           string
	imageCheckCmd []string
	exec          executor
}

func (r *runtime) Name() string { return r.bin }

func (r *runtime) Available(ctx context.Context) bool {
	if _, err := r.exec.LookPath(r.bin); err != nil {
		return false
	}
	return r.exec.Run(ctx, r.bin, "info") == nil
}

func (r *runtime) ImageExists(ctx context.Context, image string) error {
	args := append(append([]string(nil), r.imageCheckCmd...), image)
	if err := r.exec.Run(ctx, r.bin, args...); err != nil {
		return fmt.Errorf("image %s not found in %s: %w", image, r.bin, err)
	}
	return nil
}

func (r *runtime) Pull(ctx context.Context, image string) error {
	if err := r.exec.Run(ctx, r.bin, "pull", image); err != nil {
		return fmt.Errorf("pulling %s: %w", image, err)
	}
	return nil
}

const psFormat = "{{.ID}} {{.Image}} {{.State}}"

func (r *runtime) List(ctx context.Context, image string) ([]Container, error) {
	out, err := r.exec.Output(ctx, r.bin, "ps", "-a", "--filter", "ancestor="+image, "--format", psFormat)
	if err != nil {
		return nil, fmt.Errorf("listing %s containers: %w", image, err)
	}

	var containers []Container
	for _, line := range strings.Split(string(out), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		containers = append(containers, Container{ID: fields[0], Image: fields[1], State: strings.ToLower(fields[2])})
	}
	return containers, nil
}

func (r *runtime) RunDetached(ctx context.Context, image string, hostPort, containerPort int) (string, error) {
	publish := strconv.Itoa(hostPort) + ":" + strconv.Itoa(containerPort)
	out, err := r.exec.Output(ctx, r.bin, "run", "-d", "-p", publish, image)
	if err != nil {
		return "", fmt.Errorf("running %s: %w", image, err)
	}
	id := strings.TrimSpace(string(out))
	if id == "" {
		return "", fmt.Errorf("running %s: no container ID returned", image)
	}
	return id, nil
}

func (r *runtime) Start(ctx context.Context, id string) error {
	if err := r.exec.Run(ctx, r.bin, "start", id); err != nil {
		return fmt.Errorf("starting container %s: %w", id, err)
	}
	return nil
}

func (r *runtime) Stop(ctx context.Context, id string) error {
	if err := r.exec.Run(ctx, r.bin, "stop", id); err != nil {
		return fmt.Errorf("stopping container %s: %w", id, err)
	}
	return nil
}

func (r *runtime) Remove(ctx context.Context, id string) error {
	if err := r.exec.Run(ctx, r.bin, "rm", id); err != nil {
		return fmt.Errorf("removing container %s: %w", id, err)
	}
	return nil
}

func newDockerRuntime(exec executor) *runtime {
	return &runtime{bin: binDocker, imageCheckCmd: []string{"image", "inspect"}, exec: exec}
}

func newPodmanRuntime(exec executor) *runtime {
	return &runtime{bin: binPodman, imageCheckCmd: []string{"image", "exists"}, exec: exec}
}

// DetectRuntime tries docker first and falls back to podman.
func DetectRuntime(ctx context.Context) (Runtime, error) {
	return detectRuntime(ctx, osExecutor{})
}

func detectRuntime(ctx context.Context, exec executor) (Runtime, error) {
	if docker := newDockerRuntime(exec); docker.Available(ctx) {
		return docker, nil
	}
	if podman := newPodmanRuntime(exec); podman.Available(ctx) {
		return podman, nil
	}
	return nil, fmt.Errorf("no container runtime available: neither %s nor %s found or operational", binDocker, binPodman)
}
