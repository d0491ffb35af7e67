package config

import "context"

// Loader is the interface for a format-specific fleet loader.
type Loader interface {
	// Load reads the given files and translates them into the
	// format-agnostic model. Directories are searched for files the loader
	// understands.
	Load(ctx context.Context, paths ...string) (*Model, error)
}
