// Package config defines the format-agnostic fleet model: a project and the
// services it is made of, together with the Loader interface implemented by
// the HCL and YAML adapters.
//
// The Model is the single source of truth for the fleet and parallel
// packages. Concrete loaders live in separate packages; Dispatcher picks one
// per file extension.
package config
