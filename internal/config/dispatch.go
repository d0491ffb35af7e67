package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/vk/gridfleet/internal/ctxlog"
	"github.com/vk/gridfleet/internal/fsutil"
)

// ErrNoFiles is returned when none of the given paths yields a fleet file.
var ErrNoFiles = errors.New("no fleet definition files found")

// Dispatcher loads fleet files of mixed formats by handing each file to the
// Loader registered for its extension, then merges and validates the result.
type Dispatcher struct {
	loaders map[string]Loader

	// Project overrides the project name found in the files. When neither is
	// set, the name of the first path's directory is used.
	Project string
}

// NewDispatcher returns a Dispatcher for the given extension to loader map.
// Extensions include the leading dot, e.g. ".hcl".
func NewDispatcher(loaders map[string]Loader) *Dispatcher {
	return &Dispatcher{loaders: loaders}
}

// Load implements Loader.
func (d *Dispatcher) Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)

	files, err := FindFiles(paths, d.extensions()...)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}
	logger.Debug("Discovered fleet files.", "count", len(files))

	model := &Model{}
	for _, file := range files {
		loader, ok := d.loaders[filepath.Ext(file)]
		if !ok {
			return nil, fmt.Errorf("unsupported fleet file %s", file)
		}
		m, err := loader.Load(ctx, file)
		if err != nil {
			return nil, err
		}
		if err := model.Merge(m); err != nil {
			return nil, fmt.Errorf("merging %s: %w", file, err)
		}
	}

	if d.Project != "" {
		model.Project = d.Project
	}
	if model.Project == "" {
		model.Project = defaultProject(paths[0])
	}

	if err := model.Validate(); err != nil {
		return nil, fmt.Errorf("invalid fleet definition: %w", err)
	}
	logger.Debug("Fleet loaded.", "project", model.Project, "services", len(model.Services))
	return model, nil
}

func (d *Dispatcher) extensions() []string {
	exts := make([]string, 0, len(d.loaders))
	for ext := range d.loaders {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// defaultProject derives a project name from path: the directory itself, or
// the directory containing the file.
func defaultProject(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		abs = filepath.Dir(abs)
	}
	return strings.ToLower(filepath.Base(abs))
}

// FindFiles expands paths into a flat, de-duplicated list of files. Files are
// kept as given, whatever their extension; directories are searched
// recursively for files with one of exts. A path that does not exist is an
// error.
func FindFiles(paths []string, exts ...string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	add := func(p string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		if !info.IsDir() {
			add(path)
			continue
		}

		found, err := fsutil.FindFiles(path, exts...)
		if err != nil {
			return nil, fmt.Errorf("searching %s: %w", path, err)
		}
		for _, f := range found {
			add(f)
		}
	}
	return out, nil
}
