package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/gridfleet/internal/docker"
	"github.com/vk/gridfleet/internal/fleet"
)

// Progress display modes.
const (
	ProgressAuto   = "auto"
	ProgressAlways = "always"
	ProgressNever  = "never"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	Files    []string // fleet definition files or directories
	Project  string   // overrides the project name
	Command  string
	Services []string

	LogFormat string
	LogLevel  string

	DockerEndpoint string
	Timeout        int // seconds, 0 keeps each service's stop_timeout
	Signal         string
	Force          bool
	RemoveVolumes  bool

	Progress     string
	Color        bool
	NotifyURL    string
	PollInterval time.Duration
}

// commandAliases maps extra command names onto operation names.
var commandAliases = map[string]string{
	"rm": "remove",
	"up": "start",
}

// NewConfig validates cfg and returns a copy with defaults applied.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.Files) == 0 {
		return nil, errors.New("at least one fleet file is required")
	}
	if cfg.Command == "" {
		return nil, errors.New("a command is required")
	}
	if alias, ok := commandAliases[cfg.Command]; ok {
		cfg.Command = alias
	}
	if _, err := fleet.ParseOperation(cfg.Command); err != nil {
		return nil, err
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "warn"
	}
	if _, err := parseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	if cfg.Timeout < 0 {
		return nil, errors.New("timeout must not be negative")
	}
	if cfg.Signal != "" {
		if _, err := docker.ParseSignal(cfg.Signal); err != nil {
			return nil, err
		}
	}

	switch cfg.Progress {
	case "":
		cfg.Progress = ProgressAuto
	case ProgressAuto, ProgressAlways, ProgressNever:
	default:
		return nil, fmt.Errorf("invalid progress mode %q: must be 'auto', 'always', or 'never'", cfg.Progress)
	}
	if cfg.PollInterval < 0 {
		return nil, errors.New("poll interval must not be negative")
	}

	return &cfg, nil
}

// Operation returns the operation named by Command.
func (c *Config) Operation() fleet.Operation {
	op, _ := fleet.ParseOperation(c.Command)
	return op
}
