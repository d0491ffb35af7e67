package fleet

import (
	"context"

	"github.com/vk/gridfleet/internal/config"
)

// Container is a container that belongs to one service of a project.
type Container struct {
	ID      string
	Name    string
	Service string
	Running bool
	Paused  bool

	// StopTimeout is the grace period in seconds used by Stop and Restart.
	StopTimeout int
	// StopSignal, if set, is sent before the container is stopped.
	StopSignal string
}

// String returns the container name.
func (c *Container) String() string {
	return c.Name
}

// RemoveOptions controls Backend.Remove.
type RemoveOptions struct {
	Force   bool
	Volumes bool
}

// Backend performs lifecycle calls against a container runtime. It must be
// safe for concurrent use: one call is made per container, concurrently.
type Backend interface {
	// Containers returns the existing containers of the given services of
	// project, in the order of services. Services without a container are
	// omitted.
	Containers(ctx context.Context, project string, services []*config.Service) ([]*Container, error)

	Start(ctx context.Context, c *Container) error
	Stop(ctx context.Context, c *Container, timeout int) error
	Restart(ctx context.Context, c *Container, timeout int) error
	Pause(ctx context.Context, c *Container) error
	Unpause(ctx context.Context, c *Container) error
	Kill(ctx context.Context, c *Container, signal string) error
	Remove(ctx context.Context, c *Container, opts RemoveOptions) error
}
