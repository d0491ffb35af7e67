// Package hcl_adapter loads fleet definitions written in HCL.
package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"github.com/zclconf/go-cty/cty/function/stdlib"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct {
	env map[string]string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnv replaces the process environment exposed to expressions as env.*.
func WithEnv(env map[string]string) Option {
	return func(l *Loader) {
		l.env = env
	}
}

// NewLoader creates a new HCL fleet loader. By default expressions can read
// the process environment through the env object.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{env: environ()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// fileRoot is a struct used to decode all top-level content of a fleet file.
type fileRoot struct {
	Project  string          `hcl:"project,optional"`
	Services []*serviceBlock `hcl:"service,block"`
}

type serviceBlock struct {
	Name          string            `hcl:"name,label"`
	Image         string            `hcl:"image,optional"`
	ContainerName string            `hcl:"container_name,optional"`
	DependsOn     []string          `hcl:"depends_on,optional"`
	StopTimeout   int               `hcl:"stop_timeout,optional"`
	StopSignal    string            `hcl:"stop_signal,optional"`
	Labels        map[string]string `hcl:"labels,optional"`
}

// Load parses every .hcl file found in paths and merges them into one model.
// The model is not validated; config.Dispatcher does that once all files are
// merged.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	files, err := config.FindFiles(paths, ".hcl")
	if err != nil {
		return nil, err
	}

	parser := hclparse.NewParser()
	evalCtx := l.evalContext()
	model := &config.Model{}

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, evalCtx, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		fileModel := &config.Model{Project: root.Project}
		for _, svc := range root.Services {
			fileModel.Services = append(fileModel.Services, translateService(svc))
		}
		if err := model.Merge(fileModel); err != nil {
			return nil, fmt.Errorf("in %s: %w", file, err)
		}
		logger.Debug("Decoded HCL file.", "file", file, "services", len(root.Services))
	}

	logger.Debug("HCL loading complete.", "project", model.Project, "services", len(model.Services))
	return model, nil
}

func translateService(b *serviceBlock) *config.Service {
	return &config.Service{
		Name:          b.Name,
		Image:         b.Image,
		ContainerName: b.ContainerName,
		DependsOn:     b.DependsOn,
		StopTimeout:   b.StopTimeout,
		StopSignal:    b.StopSignal,
		Labels:        b.Labels,
	}
}

// evalContext exposes env.* and a few string functions to expressions.
func (l *Loader) evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value, len(l.env))
	for k, v := range l.env {
		env[k] = cty.StringVal(v)
	}
	return &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"env": cty.ObjectVal(env),
		},
		Functions: map[string]function.Function{
			"upper":    stdlib.UpperFunc,
			"lower":    stdlib.LowerFunc,
			"coalesce": stdlib.CoalesceFunc,
			"format":   stdlib.FormatFunc,
		},
	}
}

func environ() map[string]string {
	env := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			env[k] = v
		}
	}
	return env
}
