package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mattn/go-isatty"
	"github.com/vk/gridfleet/internal/broadcast"
	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/ctxlog"
	"github.com/vk/gridfleet/internal/fleet"
	"github.com/vk/gridfleet/internal/progress"
)

// ErrFailed is returned by Run when at least one container failed with an
// error that was already reported in the summary.
var ErrFailed = errors.New("one or more containers failed")

// RemoteReporter is a progress.Reporter holding a connection.
type RemoteReporter interface {
	progress.Reporter
	Close() error
}

// Dialer opens a RemoteReporter for url. message is the operation's progress
// prefix, e.g. "Stopping".
type Dialer func(ctx context.Context, url, message string) (RemoteReporter, error)

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW    io.Writer
	logger  *slog.Logger
	config  *Config
	loader  config.Loader
	backend fleet.Backend
	dial    Dialer
}

// Option configures an App.
type Option func(*App)

// WithDialer replaces the Socket.IO dialer used for -notify-url.
func WithDialer(d Dialer) Option {
	return func(a *App) {
		a.dial = d
	}
}

// NewApp is the constructor for the main application. Progress lines and the
// error summary are written to outW, logs to logW.
func NewApp(outW, logW io.Writer, cfg *Config, loader config.Loader, backend fleet.Backend, opts ...Option) *App {
	logger := newLogger(cfg.LogLevel, cfg.LogFormat, logW)
	logger.Debug("Logger configured successfully.")

	a := &App{
		outW:    outW,
		logger:  logger,
		config:  cfg,
		loader:  loader,
		backend: backend,
		dial:    dialBroadcast,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run loads the fleet and applies the configured command to it.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.", "command", a.config.Command)

	model, err := a.loader.Load(ctx, a.config.Files...)
	if err != nil {
		return fmt.Errorf("failed to load fleet: %w", err)
	}
	a.logger.Debug("Fleet loaded.", "project", model.Project, "services", len(model.Services))

	if p, ok := a.backend.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return err
		}
	}

	op := a.config.Operation()
	display := fleet.Display{
		Output:       a.outW,
		Quiet:        !a.progressEnabled(),
		Color:        a.config.Color && isTerminal(a.outW),
		PollInterval: a.config.PollInterval,
	}

	if a.config.NotifyURL != "" {
		remote, err := a.dial(ctx, a.config.NotifyURL, op.Message())
		if err != nil {
			a.logger.Warn("Progress broadcast disabled.", "url", a.config.NotifyURL, "error", err)
		} else {
			defer func() {
				if err := remote.Close(); err != nil {
					a.logger.Warn("Failed to close progress broadcast.", "error", err)
				}
			}()
			display.Reporters = append(display.Reporters, remote)
		}
	}

	project := fleet.NewProject(model, a.backend, display)
	res, err := project.Run(ctx, op, fleet.Options{
		Timeout:       a.config.Timeout,
		Signal:        a.config.Signal,
		Force:         a.config.Force,
		RemoveVolumes: a.config.RemoveVolumes,
	}, a.config.Services...)
	if err != nil {
		return fmt.Errorf("%s failed: %w", op, err)
	}

	a.logger.Info("Command finished.", "command", op.String(), "succeeded", len(res.Containers), "failed", len(res.Errors))
	if res.Failed() {
		return ErrFailed
	}
	return nil
}

func (a *App) progressEnabled() bool {
	switch a.config.Progress {
	case ProgressAlways:
		return true
	case ProgressNever:
		return false
	}
	return isTerminal(a.outW)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func dialBroadcast(ctx context.Context, url, message string) (RemoteReporter, error) {
	return broadcast.Dial(ctx, url, message, broadcast.Options{})
}
