package fleet

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vk/gridfleet/internal/ctxlog"
	"github.com/vk/gridfleet/internal/parallel"
	"github.com/vk/gridfleet/internal/progress"
)

// DefaultKillSignal is sent by Kill when no signal is given.
const DefaultKillSignal = "SIGKILL"

// Operation is a lifecycle call applied to every selected container.
type Operation int

const (
	Start Operation = iota
	Stop
	Restart
	Pause
	Unpause
	Kill
	Remove
)

var operationNames = map[Operation]string{
	Start:   "start",
	Stop:    "stop",
	Restart: "restart",
	Pause:   "pause",
	Unpause: "unpause",
	Kill:    "kill",
	Remove:  "remove",
}

var operationMessages = map[Operation]string{
	Start:   "Starting",
	Stop:    "Stopping",
	Restart: "Restarting",
	Pause:   "Pausing",
	Unpause: "Unpausing",
	Kill:    "Killing",
	Remove:  "Removing",
}

func (o Operation) String() string {
	if name, ok := operationNames[o]; ok {
		return name
	}
	return fmt.Sprintf("Operation(%d)", int(o))
}

// Message is the progress prefix for the operation, e.g. "Starting".
func (o Operation) Message() string {
	return operationMessages[o]
}

// Reversed reports whether the operation runs dependents before their
// dependencies.
func (o Operation) Reversed() bool {
	switch o {
	case Stop, Pause, Kill, Remove:
		return true
	}
	return false
}

// Applies reports whether op changes c. Containers already in the target
// state are left out of a run: start only acts on stopped containers, stop
// and kill on running ones, pause on running unpaused ones, unpause on paused
// ones and remove on stopped ones. Restart acts on every container.
func (o Operation) Applies(c *Container) bool {
	switch o {
	case Start, Remove:
		return !c.Running
	case Stop, Kill:
		return c.Running
	case Pause:
		return c.Running && !c.Paused
	case Unpause:
		return c.Paused
	}
	return true
}

// ParseOperation returns the operation called name.
func ParseOperation(name string) (Operation, error) {
	for op, n := range operationNames {
		if n == name {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", name)
}

// Options are the arguments of a lifecycle call.
type Options struct {
	// Timeout overrides the per-container stop timeout, in seconds, for Stop
	// and Restart. Zero keeps the container's own.
	Timeout int
	// Signal is sent by Kill. Empty selects DefaultKillSignal.
	Signal string
	// Force and RemoveVolumes apply to Remove.
	Force         bool
	RemoveVolumes bool
}

// Display controls how progress and errors are reported.
type Display struct {
	// Output receives the progress lines and the error summary.
	Output io.Writer
	// Quiet suppresses the progress lines; the summary is still written.
	Quiet bool
	// Color enables colored status words.
	Color bool
	// Reporters receive every progress update, e.g. a broadcast.Reporter.
	Reporters []progress.Reporter
	// PollInterval overrides the engine's admission interval.
	PollInterval time.Duration
}

// Result is the outcome of an operation over many containers.
type Result struct {
	// Containers holds the containers the operation succeeded on, in
	// completion order.
	Containers []*Container
	// Errors maps container names to the message shown for their failure.
	Errors map[string]string
}

// Failed reports whether any container failed.
func (r *Result) Failed() bool {
	return len(r.Errors) > 0
}

// ParallelOperation applies op to all containers concurrently. deps may be
// nil; otherwise a container is only processed after the containers it
// returns. The returned error is the first unexpected failure, a
// *parallel.CycleError or parallel.ErrShutdown.
func ParallelOperation(ctx context.Context, backend Backend, containers []*Container, op Operation, opts Options, display Display, deps parallel.DepsFunc[*Container]) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parallel operation started.", "operation", op, "containers", len(containers))

	work := func(ctx context.Context, c *Container) (*Container, error) {
		return c, apply(ctx, backend, op, c, opts)
	}

	message := op.Message()
	if display.Quiet {
		message = ""
	}
	results, errs, err := parallel.Execute(ctx, containers, work, (*Container).String, parallel.Options[*Container]{
		Deps:         deps,
		Message:      message,
		Output:       display.Output,
		Color:        display.Color,
		Reporters:    display.Reporters,
		PollInterval: display.PollInterval,
	})

	logger.Debug("Parallel operation finished.", "operation", op, "succeeded", len(results), "failed", len(errs))
	return &Result{Containers: results, Errors: errs}, err
}

func apply(ctx context.Context, backend Backend, op Operation, c *Container, opts Options) error {
	timeout := c.StopTimeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	switch op {
	case Start:
		return backend.Start(ctx, c)
	case Stop:
		return backend.Stop(ctx, c, timeout)
	case Restart:
		return backend.Restart(ctx, c, timeout)
	case Pause:
		return backend.Pause(ctx, c)
	case Unpause:
		return backend.Unpause(ctx, c)
	case Kill:
		signal := opts.Signal
		if signal == "" {
			signal = DefaultKillSignal
		}
		return backend.Kill(ctx, c, signal)
	case Remove:
		return backend.Remove(ctx, c, RemoveOptions{Force: opts.Force, Volumes: opts.RemoveVolumes})
	default:
		return fmt.Errorf("unsupported operation %v", op)
	}
}
