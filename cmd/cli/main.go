package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/vk/gridfleet/internal/app"
	"github.com/vk/gridfleet/internal/cli"
	"github.com/vk/gridfleet/internal/config"
	"github.com/vk/gridfleet/internal/docker"
	"github.com/vk/gridfleet/internal/fleet"
	"github.com/vk/gridfleet/internal/hcl_adapter"
	"github.com/vk/gridfleet/internal/parallel"
	"github.com/vk/gridfleet/internal/yaml_adapter"
)

// main is the entrypoint for the gridfleet application.
func main() {
	// Use a minimal logger until the full one is configured.
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	})))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, os.Stdout, os.Stderr, os.Args[1:], newDockerBackend)
	stop()

	// The real main function handles errors and exit codes.
	if err != nil {
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			exitErr = toExitError(err)
		}
		if exitErr.Message != "" {
			fmt.Fprintln(os.Stderr, exitErr.Message)
		}
		os.Exit(exitErr.Code)
	}
}

// backendFactory builds the container backend once the configuration is known.
type backendFactory func(cfg *app.Config) (fleet.Backend, error)

func newDockerBackend(cfg *app.Config) (fleet.Backend, error) {
	return docker.NewBackend(cfg.DockerEndpoint)
}

// run encapsulates the main application logic for easier testing and error
// handling. Usage goes to outW; progress, the error summary and logs go to
// errW.
func run(ctx context.Context, outW, errW io.Writer, args []string, newBackend backendFactory) error {
	appConfig, shouldExit, err := cli.Parse(args, outW)
	if err != nil {
		return err
	}
	if shouldExit {
		return nil
	}

	backend, err := newBackend(appConfig)
	if err != nil {
		return err
	}

	yml := yaml_adapter.NewLoader()
	loader := config.NewDispatcher(map[string]config.Loader{
		".hcl":  hcl_adapter.NewLoader(),
		".yaml": yml,
		".yml":  yml,
	})
	loader.Project = appConfig.Project

	return app.NewApp(errW, errW, appConfig, loader, backend).Run(ctx)
}

// toExitError maps an application error onto a process exit code.
func toExitError(err error) *cli.ExitError {
	switch {
	case errors.Is(err, parallel.ErrShutdown):
		return &cli.ExitError{Code: cli.ExitInterrupt, Message: "Aborting."}
	case errors.Is(err, app.ErrFailed):
		// Every failure is already in the summary.
		return &cli.ExitError{Code: cli.ExitFailure}
	default:
		return &cli.ExitError{Code: cli.ExitFailure, Message: err.Error()}
	}
}
