package fleet

import (
	"context"
	"fmt"

	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/ctxlog"
	"github.com/vk/gridfleet/internal/dag"
)

// Project applies operations to the services of one fleet definition.
type Project struct {
	model   *config.Model
	backend Backend
	display Display
	// graph has an edge from each service to the services depending on it;
	// reversed flips it for operations that bring containers down.
	graph    *dag.Graph[string]
	reversed *dag.Graph[string]
}

// NewProject returns a Project for model. The model must be valid; dependency
// cycles are reported by the operations themselves.
func NewProject(model *config.Model, backend Backend, display Display) *Project {
	g := dag.New[string]()
	for _, svc := range model.Services {
		g.AddNode(svc.Name)
	}
	for _, svc := range model.Services {
		for _, dep := range svc.DependsOn {
			if dep == svc.Name || !g.Has(dep) {
				continue
			}
			_ = g.AddEdge(dep, svc.Name)
		}
	}
	return &Project{model: model, backend: backend, display: display, graph: g, reversed: g.Reverse()}
}

// Name returns the project name.
func (p *Project) Name() string {
	return p.model.Project
}

// Start starts the containers of services, dependencies first. No services
// means all of them.
func (p *Project) Start(ctx context.Context, services ...string) (*Result, error) {
	return p.Run(ctx, Start, Options{}, services...)
}

// Stop stops the containers of services, dependents first. A timeout of zero
// uses each service's stop_timeout.
func (p *Project) Stop(ctx context.Context, timeout int, services ...string) (*Result, error) {
	return p.Run(ctx, Stop, Options{Timeout: timeout}, services...)
}

// Restart restarts the containers of services, dependencies first.
func (p *Project) Restart(ctx context.Context, timeout int, services ...string) (*Result, error) {
	return p.Run(ctx, Restart, Options{Timeout: timeout}, services...)
}

// Pause pauses the containers of services, dependents first.
func (p *Project) Pause(ctx context.Context, services ...string) (*Result, error) {
	return p.Run(ctx, Pause, Options{}, services...)
}

// Unpause unpauses the containers of services, dependencies first.
func (p *Project) Unpause(ctx context.Context, services ...string) (*Result, error) {
	return p.Run(ctx, Unpause, Options{}, services...)
}

// Kill sends signal to the containers of services, dependents first.
func (p *Project) Kill(ctx context.Context, signal string, services ...string) (*Result, error) {
	return p.Run(ctx, Kill, Options{Signal: signal}, services...)
}

// Remove removes the stopped containers of services, dependents first.
func (p *Project) Remove(ctx context.Context, opts Options, services ...string) (*Result, error) {
	return p.Run(ctx, Remove, opts, services...)
}

// Run applies op to the containers of services. Dependencies on services
// that are not selected are treated as already satisfied.
// Containers already in the state op leads to are skipped.
func (p *Project) Run(ctx context.Context, op Operation, opts Options, services ...string) (*Result, error) {
	ctx, logger := ctxlog.With(ctx, "project", p.model.Project, "operation", op.String())

	selected, err := p.selectServices(services)
	if err != nil {
		return nil, err
	}

	if op.Reversed() && len(services) > 0 {
		p.warnUnselectedDependents(ctx, selected)
	}

	containers, err := p.backend.Containers(ctx, p.model.Project, selected)
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	logger.Debug("Containers found.", "services", len(selected), "containers", len(containers))
	if len(containers) == 0 {
		logger.Warn("No containers found for the selected services.")
	}

	containers = applicable(ctx, op, containers)

	byService := make(map[string][]*Container)
	for _, c := range containers {
		if svc, ok := p.model.Service(c.Service); ok {
			if c.StopTimeout == 0 {
				c.StopTimeout = svc.StopTimeoutOrDefault()
			}
			if c.StopSignal == "" {
				c.StopSignal = svc.StopSignal
			}
		}
		byService[c.Service] = append(byService[c.Service], c)
	}

	graph := p.graph
	if op.Reversed() {
		graph = p.reversed
	}
	deps := func(c *Container) []*Container {
		names, err := graph.Dependencies(c.Service)
		if err != nil {
			return nil
		}
		var out []*Container
		for _, name := range names {
			out = append(out, byService[name]...)
		}
		return out
	}

	return ParallelOperation(ctx, p.backend, containers, op, opts, p.display, deps)
}

// applicable drops the containers already in the state op would put them in.
func applicable(ctx context.Context, op Operation, containers []*Container) []*Container {
	var out []*Container
	for _, c := range containers {
		if op.Applies(c) {
			out = append(out, c)
		}
	}
	if skipped := len(containers) - len(out); skipped > 0 {
		ctxlog.FromContext(ctx).Info("Skipping containers already in the target state.", "count", skipped)
	}
	return out
}

// selectServices resolves names to services in definition order. No names
// selects every service.
func (p *Project) selectServices(names []string) ([]*config.Service, error) {
	if len(names) == 0 {
		return p.model.Services, nil
	}

	wanted := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, ok := p.model.Service(name); !ok {
			return nil, fmt.Errorf("no such service: %s", name)
		}
		wanted[name] = struct{}{}
	}

	var out []*config.Service
	for _, svc := range p.model.Services {
		if _, ok := wanted[svc.Name]; ok {
			out = append(out, svc)
		}
	}
	return out, nil
}

// warnUnselectedDependents logs the services that depend on the selection but
// are left running because they were not selected themselves.
func (p *Project) warnUnselectedDependents(ctx context.Context, selected []*config.Service) {
	in := make(map[string]struct{}, len(selected))
	for _, svc := range selected {
		in[svc.Name] = struct{}{}
	}
	for _, svc := range selected {
		dependents, err := p.graph.Dependents(svc.Name)
		if err != nil {
			continue
		}
		for _, d := range dependents {
			if _, ok := in[d]; !ok {
				ctxlog.FromContext(ctx).Warn("Dependent service is not selected.", "service", svc.Name, "dependent", d)
			}
		}
	}
}
