// Package fleettest provides an in-memory fleet.Backend for tests.
package fleettest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/fleet"
)

// Call is one recorded lifecycle call.
type Call struct {
	Op        string
	Container string
	Arg       string
	Start     time.Time
	End       time.Time
}

// FakeBackend keeps containers in memory and records every lifecycle call
// with its start and end time. It is safe for concurrent use.
type FakeBackend struct {
	// Delay is slept inside every lifecycle call.
	Delay time.Duration

	mu         sync.Mutex
	containers []*fleet.Container
	failures   map[string]error
	calls      []Call
	listErr    error
}

// NewFakeBackend returns a backend holding containers.
func NewFakeBackend(containers ...*fleet.Container) *FakeBackend {
	return &FakeBackend{
		containers: containers,
		failures:   make(map[string]error),
	}
}

// FailOn makes every lifecycle call for the named container return err.
func (b *FakeBackend) FailOn(container string, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[container] = err
}

// FailList makes Containers return err.
func (b *FakeBackend) FailList(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listErr = err
}

// Calls returns a copy of the recorded calls in start order.
func (b *FakeBackend) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Call, len(b.calls))
	copy(out, b.calls)
	return out
}

// Call returns the recorded call for container, if any.
func (b *FakeBackend) Call(container string) (Call, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, c := range b.calls {
		if c.Container == container {
			return c, true
		}
	}
	return Call{}, false
}

// Containers implements fleet.Backend. The project name is ignored.
func (b *FakeBackend) Containers(_ context.Context, _ string, services []*config.Service) ([]*fleet.Container, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listErr != nil {
		return nil, b.listErr
	}

	var out []*fleet.Container
	for _, svc := range services {
		for _, c := range b.containers {
			if c.Service == svc.Name {
				out = append(out, c)
			}
		}
	}
	return out, nil
}

func (b *FakeBackend) Start(ctx context.Context, c *fleet.Container) error {
	return b.do(ctx, "start", c, "", func() { c.Running = true })
}

func (b *FakeBackend) Stop(ctx context.Context, c *fleet.Container, timeout int) error {
	return b.do(ctx, "stop", c, fmt.Sprint(timeout), func() { c.Running = false })
}

func (b *FakeBackend) Restart(ctx context.Context, c *fleet.Container, timeout int) error {
	return b.do(ctx, "restart", c, fmt.Sprint(timeout), func() { c.Running = true })
}

func (b *FakeBackend) Pause(ctx context.Context, c *fleet.Container) error {
	return b.do(ctx, "pause", c, "", func() { c.Paused = true })
}

func (b *FakeBackend) Unpause(ctx context.Context, c *fleet.Container) error {
	return b.do(ctx, "unpause", c, "", func() { c.Paused = false })
}

func (b *FakeBackend) Kill(ctx context.Context, c *fleet.Container, signal string) error {
	return b.do(ctx, "kill", c, signal, func() { c.Running = false })
}

func (b *FakeBackend) Remove(ctx context.Context, c *fleet.Container, opts fleet.RemoveOptions) error {
	return b.do(ctx, "remove", c, fmt.Sprintf("force=%t volumes=%t", opts.Force, opts.Volumes), func() {
		for i, existing := range b.containers {
			if existing == c {
				b.containers = append(b.containers[:i], b.containers[i+1:]...)
				break
			}
		}
	})
}

func (b *FakeBackend) do(ctx context.Context, op string, c *fleet.Container, arg string, apply func()) error {
	call := Call{Op: op, Container: c.Name, Arg: arg, Start: time.Now()}
	b.mu.Lock()
	idx := len(b.calls)
	b.calls = append(b.calls, call)
	err := b.failures[c.Name]
	b.mu.Unlock()

	if b.Delay > 0 {
		select {
		case <-time.After(b.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[idx].End = time.Now()
	if err != nil {
		return err
	}
	apply()
	return nil
}
