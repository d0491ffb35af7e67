package parallel

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/vk/gridfleet/internal/ctxlog"
	"github.com/vk/gridfleet/internal/progress"
)

// Options configures Execute. The zero value runs without dependencies and
// without a progress display, writing the error summary to stderr.
type Options[T comparable] struct {
	// Deps returns the dependencies of an object. Nil means none.
	Deps DepsFunc[T]
	// Message prefixes every progress line, e.g. "Starting". An empty message
	// disables the terminal display.
	Message string
	// Output receives the progress lines and the error summary. Defaults to
	// os.Stderr.
	Output io.Writer
	// Color renders status words in color when Output is a terminal.
	Color bool
	// Reporters receive the same Register/Update calls as the terminal
	// display, e.g. to mirror progress to a remote dashboard.
	Reporters []progress.Reporter
	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
}

// Execute runs work on every object, each object only after all of its
// dependencies succeeded, and blocks until all objects are processed.
//
// It returns the results of the successful objects and a map from object name
// to error message for failed objects. Objects skipped because a dependency
// failed are not in the map; their root cause is. If any object failed with an
// unexpected error, the first such error is returned once every other object
// has been processed.
//
// Execute fails fast with a *CycleError, before running anything, if the
// dependencies form a cycle, and returns ErrShutdown if ctx is cancelled.
func Execute[T comparable, R any](ctx context.Context, objects []T, work WorkFunc[T, R], name NameFunc[T], opts Options[T]) ([]R, map[string]string, error) {
	logger := ctxlog.FromContext(ctx)
	objects = unique(objects)
	deps := resolveDeps(objects, opts.Deps)

	if cycle := FindCycle(objects, deps); cycle != nil {
		names := make([]string, len(cycle))
		for i, obj := range cycle {
			names[i] = name(obj)
		}
		return nil, nil, &CycleError{Names: names}
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	var writerOpts []progress.Option
	if opts.Color {
		writerOpts = append(writerOpts, progress.WithColor())
	}
	reporters := append([]progress.Reporter{progress.NewWriter(out, opts.Message, writerOpts...)}, opts.Reporters...)
	reporter := progress.Multi(reporters...)

	for _, obj := range objects {
		if err := reporter.Register(name(obj)); err != nil {
			logger.Warn("Failed to register progress line.", "name", name(obj), "error", err)
		}
	}

	stream := NewStream(objects, work, deps, opts.PollInterval)

	errs := make(map[string]string)
	var results []R
	var errToReturn error

	update := func(objName, status string) {
		if err := reporter.Update(objName, status); err != nil {
			logger.Warn("Failed to update progress line.", "name", objName, "error", err)
		}
	}

	for ev := range stream.Events(ctx) {
		objName := name(ev.Object)
		if ev.Err == nil {
			update(objName, progress.StatusDone)
			results = append(results, ev.Result)
			continue
		}

		kind, msg := Classify(ev.Err)
		switch kind {
		case FailureExplained, FailureOperation:
			errs[objName] = msg
			update(objName, progress.StatusError)
		case FailureUpstream:
			update(objName, progress.StatusError)
		default:
			logger.Error("Unexpected failure.", "name", objName, "error", ev.Err)
			errs[objName] = msg
			if errToReturn == nil {
				errToReturn = ev.Err
			}
		}
	}

	if err := stream.Err(); err != nil {
		return results, errs, err
	}

	if err := writeSummary(out, errs); err != nil {
		logger.Warn("Failed to write error summary.", "error", err)
	}

	return results, errs, errToReturn
}

// resolveDeps calls deps once per object and serves later lookups from the
// result.
func resolveDeps[T comparable](objects []T, deps DepsFunc[T]) DepsFunc[T] {
	if deps == nil {
		return nil
	}
	m := make(map[T][]T, len(objects))
	for _, obj := range objects {
		m[obj] = deps(obj)
	}
	return func(obj T) []T { return m[obj] }
}

// writeSummary writes one line per failed object, sorted by name.
func writeSummary(w io.Writer, errs map[string]string) error {
	names := make([]string, 0, len(errs))
	for n := range errs {
		names = append(names, n)
	}
	sort.Strings(names)

	for _, n := range names {
		if _, err := fmt.Fprintf(w, "\nERROR: for %s  %s\n", n, errs[n]); err != nil {
			return err
		}
	}
	return nil
}
