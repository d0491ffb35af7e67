// Package docker implements fleet.Backend on top of the Docker Engine API.
//
// Containers are found by the io.gridfleet.project and io.gridfleet.service
// labels. A service without a labelled container falls back to its
// configured container name, so fleets created by other tools can still be
// managed.
package docker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ory/dockertest/v3"
	dc "github.com/ory/dockertest/v3/docker"
	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/ctxlog"
	"github.com/vk/gridfleet/internal/fleet"
	"github.com/vk/gridfleet/internal/parallel"
)

// Labels identifying the containers of a fleet.
const (
	LabelProject = "io.gridfleet.project"
	LabelService = "io.gridfleet.service"
)

// client is the subset of *dc.Client the backend uses.
type client interface {
	PingWithContext(ctx context.Context) error
	ListContainers(opts dc.ListContainersOptions) ([]dc.APIContainers, error)
	StartContainerWithContext(id string, hostConfig *dc.HostConfig, ctx context.Context) error
	StopContainerWithContext(id string, timeout uint, ctx context.Context) error
	WaitContainerWithContext(id string, ctx context.Context) (int, error)
	RestartContainer(id string, timeout uint) error
	PauseContainer(id string) error
	UnpauseContainer(id string) error
	KillContainer(opts dc.KillContainerOptions) error
	RemoveContainer(opts dc.RemoveContainerOptions) error
}

// Backend manages containers through a Docker daemon.
type Backend struct {
	client client
	// second is the length of one timeout unit; zero means time.Second.
	second time.Duration
}

var _ fleet.Backend = (*Backend)(nil)

// NewBackend connects to the daemon at endpoint. An empty endpoint uses
// DOCKER_HOST or the platform default socket.
func NewBackend(endpoint string) (*Backend, error) {
	pool, err := dockertest.NewPool(endpoint)
	if err != nil {
		return nil, fmt.Errorf("connecting to docker: %w", err)
	}
	return &Backend{client: pool.Client}, nil
}

// Ping checks that the daemon is reachable.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.client.PingWithContext(ctx); err != nil {
		return fmt.Errorf("docker daemon is not reachable: %w", err)
	}
	return nil
}

// Containers implements fleet.Backend.
func (b *Backend) Containers(ctx context.Context, project string, services []*config.Service) ([]*fleet.Container, error) {
	logger := ctxlog.FromContext(ctx)

	labelled, err := b.client.ListContainers(dc.ListContainersOptions{
		All:     true,
		Filters: map[string][]string{"label": {LabelProject + "=" + project}},
		Context: ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("list containers of project %s: %w", project, err)
	}

	byService := make(map[string][]dc.APIContainers)
	for _, c := range labelled {
		svc := c.Labels[LabelService]
		byService[svc] = append(byService[svc], c)
	}

	var out []*fleet.Container
	for _, svc := range services {
		found := byService[svc.Name]
		if len(found) == 0 {
			named, err := b.byName(ctx, svc.ContainerNameFor(project))
			if err != nil {
				return nil, err
			}
			found = named
		}
		if len(found) == 0 {
			logger.Debug("Service has no container.", "service", svc.Name)
			continue
		}
		for _, c := range found {
			out = append(out, toContainer(c, svc.Name))
		}
	}
	return out, nil
}

// byName returns the container called exactly name, if it exists.
func (b *Backend) byName(ctx context.Context, name string) ([]dc.APIContainers, error) {
	list, err := b.client.ListContainers(dc.ListContainersOptions{
		All:     true,
		Filters: map[string][]string{"name": {name}},
		Context: ctx,
	})
	if err != nil {
		return nil, fmt.Errorf("list container %s: %w", name, err)
	}
	// The name filter matches substrings.
	var out []dc.APIContainers
	for _, c := range list {
		if containerName(c) == name {
			out = append(out, c)
		}
	}
	return out, nil
}

func toContainer(c dc.APIContainers, service string) *fleet.Container {
	return &fleet.Container{
		ID:      c.ID,
		Name:    containerName(c),
		Service: service,
		Running: c.State == "running" || c.State == "paused",
		Paused:  c.State == "paused",
	}
}

func containerName(c dc.APIContainers) string {
	if len(c.Names) == 0 {
		return c.ID
	}
	return strings.TrimPrefix(c.Names[0], "/")
}

// Start implements fleet.Backend. A container that is already running is
// left as it is.
func (b *Backend) Start(ctx context.Context, c *fleet.Container) error {
	err := b.client.StartContainerWithContext(c.ID, nil, ctx)
	var alreadyRunning *dc.ContainerAlreadyRunning
	if errors.As(err, &alreadyRunning) {
		return nil
	}
	return translate(err, c.Name)
}

// Stop implements fleet.Backend. If the container has a stop signal, it is
// sent first and the container gets timeout seconds to exit before it is
// killed. Otherwise the daemon sends SIGTERM and kills the container after
// timeout seconds. A container that is not running is left as it is.
func (b *Backend) Stop(ctx context.Context, c *fleet.Container, timeout int) error {
	if c.StopSignal != "" {
		sig, err := ParseSignal(c.StopSignal)
		if err != nil {
			return &parallel.OperationError{Msg: err.Error()}
		}
		if err := b.client.KillContainer(dc.KillContainerOptions{ID: c.ID, Signal: sig, Context: ctx}); err != nil {
			return translate(err, c.Name)
		}
		exited, err := b.waitExit(ctx, c, timeout)
		if err != nil || exited {
			return err
		}
		ctxlog.FromContext(ctx).Debug("Container ignored its stop signal.", "container", c.Name, "signal", c.StopSignal)
		timeout = 0
	}

	err := b.client.StopContainerWithContext(c.ID, uint(timeout), ctx)
	var notRunning *dc.ContainerNotRunning
	if errors.As(err, &notRunning) {
		return nil
	}
	return translate(err, c.Name)
}

// waitExit waits up to timeout seconds for c to exit. It reports false when
// the container is still running after that.
func (b *Backend) waitExit(ctx context.Context, c *fleet.Container, timeout int) (bool, error) {
	second := b.second
	if second == 0 {
		second = time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, time.Duration(timeout)*second)
	defer cancel()

	_, err := b.client.WaitContainerWithContext(c.ID, waitCtx)
	switch {
	case err == nil:
		return true, nil
	case ctx.Err() != nil:
		return false, fmt.Errorf("container %s: %w", c.Name, ctx.Err())
	case waitCtx.Err() != nil:
		return false, nil
	}
	return false, translate(err, c.Name)
}

// Restart implements fleet.Backend.
func (b *Backend) Restart(_ context.Context, c *fleet.Container, timeout int) error {
	return translate(b.client.RestartContainer(c.ID, uint(timeout)), c.Name)
}

// Pause implements fleet.Backend.
func (b *Backend) Pause(_ context.Context, c *fleet.Container) error {
	return translate(b.client.PauseContainer(c.ID), c.Name)
}

// Unpause implements fleet.Backend.
func (b *Backend) Unpause(_ context.Context, c *fleet.Container) error {
	return translate(b.client.UnpauseContainer(c.ID), c.Name)
}

// Kill implements fleet.Backend.
func (b *Backend) Kill(ctx context.Context, c *fleet.Container, signal string) error {
	sig, err := ParseSignal(signal)
	if err != nil {
		return &parallel.OperationError{Msg: err.Error()}
	}
	return translate(b.client.KillContainer(dc.KillContainerOptions{ID: c.ID, Signal: sig, Context: ctx}), c.Name)
}

// Remove implements fleet.Backend.
func (b *Backend) Remove(ctx context.Context, c *fleet.Container, opts fleet.RemoveOptions) error {
	return translate(b.client.RemoveContainer(dc.RemoveContainerOptions{
		ID:            c.ID,
		Force:         opts.Force,
		RemoveVolumes: opts.Volumes,
		Context:       ctx,
	}), c.Name)
}
