// Package yaml_adapter loads fleet definitions written in YAML:
//
//	project: shop
//	services:
//	  db:
//	    image: postgres:16
//	  web:
//	    image: nginx
//	    container_name: ${USER}_web
//	    depends_on: [db]
//
// Services keep the order in which they appear in the file. ${VAR} references
// in string fields are expanded from the environment.
package yaml_adapter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/ctxlog"
	"gopkg.in/yaml.v3"
)

// Loader is the YAML implementation of the config.Loader interface.
type Loader struct {
	env map[string]string
}

// Option configures a Loader.
type Option func(*Loader)

// WithEnv replaces the process environment used for ${VAR} expansion.
func WithEnv(env map[string]string) Option {
	return func(l *Loader) {
		l.env = env
	}
}

// NewLoader creates a new YAML fleet loader.
func NewLoader(opts ...Option) *Loader {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type fileRoot struct {
	Project  string    `yaml:"project"`
	Services yaml.Node `yaml:"services"`
}

type serviceEntry struct {
	Image         string            `yaml:"image"`
	ContainerName string            `yaml:"container_name"`
	DependsOn     []string          `yaml:"depends_on"`
	StopTimeout   int               `yaml:"stop_timeout"`
	StopSignal    string            `yaml:"stop_signal"`
	Labels        map[string]string `yaml:"labels"`
}

// Load parses every .yaml and .yml file found in paths and merges them into
// one model.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("YAML loader started.", "path_count", len(paths))

	files, err := config.FindFiles(paths, ".yaml", ".yml")
	if err != nil {
		return nil, err
	}

	model := &config.Model{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read YAML file %s: %w", file, err)
		}
		fileModel, err := l.decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to decode YAML file %s: %w", file, err)
		}
		if err := model.Merge(fileModel); err != nil {
			return nil, fmt.Errorf("in %s: %w", file, err)
		}
		logger.Debug("Decoded YAML file.", "file", file, "services", len(fileModel.Services))
	}

	logger.Debug("YAML loading complete.", "project", model.Project, "services", len(model.Services))
	return model, nil
}

func (l *Loader) decode(data []byte) (*config.Model, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var root fileRoot
	if err := dec.Decode(&root); err != nil {
		if errors.Is(err, io.EOF) {
			return &config.Model{}, nil
		}
		return nil, err
	}

	model := &config.Model{Project: l.expand(root.Project)}
	if root.Services.Kind == 0 {
		return model, nil
	}
	if root.Services.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: services must be a mapping of name to service", root.Services.Line)
	}

	// Content alternates key and value nodes.
	for i := 0; i+1 < len(root.Services.Content); i += 2 {
		key, value := root.Services.Content[i], root.Services.Content[i+1]

		var entry serviceEntry
		if err := decodeStrict(value, &entry); err != nil {
			return nil, fmt.Errorf("service %q: %w", key.Value, err)
		}
		model.Services = append(model.Services, l.translate(key.Value, &entry))
	}
	return model, nil
}

// decodeStrict decodes node into v, rejecting unknown fields. Node.Decode
// does not carry the decoder's KnownFields setting, so the node is re-encoded.
func decodeStrict(node *yaml.Node, v any) error {
	data, err := yaml.Marshal(node)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(v)
}

func (l *Loader) translate(name string, e *serviceEntry) *config.Service {
	var labels map[string]string
	if e.Labels != nil {
		labels = make(map[string]string, len(e.Labels))
		for k, v := range e.Labels {
			labels[k] = l.expand(v)
		}
	}
	return &config.Service{
		Name:          name,
		Image:         l.expand(e.Image),
		ContainerName: l.expand(e.ContainerName),
		DependsOn:     e.DependsOn,
		StopTimeout:   e.StopTimeout,
		StopSignal:    e.StopSignal,
		Labels:        labels,
	}
}

func (l *Loader) expand(s string) string {
	if !strings.Contains(s, "$") {
		return s
	}
	if l.env == nil {
		return os.ExpandEnv(s)
	}
	return os.Expand(s, func(key string) string { return l.env[key] })
}
