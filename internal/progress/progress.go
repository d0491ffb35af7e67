// Package progress renders the status of many concurrent operations, one
// line per operation, and fans the same updates out to other reporters.
package progress

import (
	"errors"
	"fmt"
)

// Status words written after an operation reaches a terminal state.
const (
	StatusDone  = "done"
	StatusError = "error"
)

// ErrUnknownLine is returned when updating a name that was never registered.
var ErrUnknownLine = errors.New("progress: line not registered")

// Reporter receives one Register call per operation before any work starts,
// followed by Update calls as operations finish. Implementations are not
// required to be safe for concurrent use.
type Reporter interface {
	Register(name string) error
	Update(name, status string) error
}

type multi []Reporter

// Multi returns a Reporter that forwards every call to each non-nil reporter
// in order. Errors from individual reporters are joined; a failing reporter
// does not stop the others from being called.
func Multi(reporters ...Reporter) Reporter {
	var m multi
	for _, r := range reporters {
		if r != nil {
			m = append(m, r)
		}
	}
	return m
}

func (m multi) Register(name string) error {
	var errs []error
	for _, r := range m {
		if err := r.Register(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m multi) Update(name, status string) error {
	var errs []error
	for _, r := range m {
		if err := r.Update(name, status); err != nil {
			errs = append(errs, fmt.Errorf("update %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
