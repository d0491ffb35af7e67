package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/vk/gridfleet/internal/app"
	"github.com/vk/gridfleet/internal/parallel"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Exit codes.
const (
	ExitFailure   = 1
	ExitUsage     = 2
	ExitInterrupt = 130
)

// DefaultFiles are looked up in the working directory when no -f is given.
var DefaultFiles = []string{"gridfleet.hcl", "gridfleet.yaml", "gridfleet.yml"}

// stringList is a repeatable string flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := flag.NewFlagSet("gridfleet", flag.ContinueOnError)
	flagSet.SetOutput(output)

	// Custom usage/help text function
	flagSet.Usage = func() {
		fmt.Fprint(output, `
gridfleet - Run lifecycle operations over a fleet of containers, in parallel
and in dependency order.

Usage:
  gridfleet [options] COMMAND [SERVICE...]

Commands:
  start, stop, restart, pause, unpause, kill, remove (rm)

Options:
`)
		flagSet.PrintDefaults()
	}

	var files stringList
	flagSet.Var(&files, "file", "Fleet definition file or directory (.hcl, .yaml, .yml). Repeatable.")
	flagSet.Var(&files, "f", "Fleet definition file or directory (shorthand).")
	projectFlag := flagSet.String("project", "", "Project name. Defaults to the name in the fleet files, then the directory name.")
	pFlag := flagSet.String("p", "", "Project name (shorthand).")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "warn", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	endpointFlag := flagSet.String("docker-endpoint", "", "Docker daemon endpoint. Defaults to DOCKER_HOST or the local socket.")
	timeoutFlag := flagSet.Int("timeout", 0, "Stop/restart timeout in seconds. 0 uses each service's stop_timeout.")
	flagSet.IntVar(timeoutFlag, "t", 0, "Stop/restart timeout in seconds (shorthand).")
	signalFlag := flagSet.String("signal", "SIGKILL", "Signal sent by kill.")
	flagSet.StringVar(signalFlag, "s", "SIGKILL", "Signal sent by kill (shorthand).")
	forceFlag := flagSet.Bool("force", false, "Force removal of containers.")
	volumesFlag := flagSet.Bool("v", false, "Remove anonymous volumes attached to removed containers.")
	progressFlag := flagSet.String("progress", app.ProgressAuto, "Progress display. Options: 'auto', 'always', 'never'.")
	colorFlag := flagSet.Bool("color", true, "Color status words when writing to a terminal.")
	notifyFlag := flagSet.String("notify-url", "", "Socket.IO server that receives progress events.")
	pollFlag := flagSet.Duration("poll-interval", parallel.DefaultPollInterval, "How often the scheduler re-checks pending containers.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	if flagSet.NArg() == 0 {
		slog.Debug("No command provided, printing usage and exiting.")
		flagSet.Usage()
		return nil, true, nil
	}
	command := strings.ToLower(flagSet.Arg(0))
	services := flagSet.Args()[1:]

	if len(files) == 0 {
		files = defaultFiles()
		if len(files) == 0 {
			return nil, false, &ExitError{Code: ExitUsage, Message: fmt.Sprintf("no fleet file given and none of %s found", strings.Join(DefaultFiles, ", "))}
		}
	}
	slog.Debug("Fleet files determined.", "files", []string(files))

	project := *projectFlag
	if project == "" {
		project = *pFlag
	}

	config, err := app.NewConfig(app.Config{
		Files:          files,
		Project:        project,
		Command:        command,
		Services:       services,
		LogFormat:      strings.ToLower(*logFormatFlag),
		LogLevel:       strings.ToLower(*logLevelFlag),
		DockerEndpoint: *endpointFlag,
		Timeout:        *timeoutFlag,
		Signal:         *signalFlag,
		Force:          *forceFlag,
		RemoveVolumes:  *volumesFlag,
		Progress:       strings.ToLower(*progressFlag),
		Color:          *colorFlag,
		NotifyURL:      *notifyFlag,
		PollInterval:   *pollFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "command", config.Command)
	return config, false, nil
}

func defaultFiles() []string {
	var found []string
	for _, name := range DefaultFiles {
		if _, err := os.Stat(name); err == nil {
			found = append(found, name)
		}
	}
	return found
}
